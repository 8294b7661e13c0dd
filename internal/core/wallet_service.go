package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// minWithdrawal is the smallest amount an earner may withdraw in one request.
var minWithdrawal = decimal.NewFromInt(50)

// WalletService manages wallets and the append-only transaction ledger.
//
// The Tx-scoped methods work inside a caller-provided transaction: the phase
// coordinator owns the transaction boundary so that wallet movement, ledger
// write, and phase status change commit or roll back as one unit.
type WalletService interface {
	CreateWallet(ctx context.Context, ownerRef string) (*Wallet, error)
	GetWallet(ctx context.Context, walletID int) (*Wallet, error)
	GetTransactions(ctx context.Context, walletID int) ([]WalletTransaction, error)
	// Topup credits the wallet balance, with a COMPLETED ledger entry.
	Topup(ctx context.Context, walletID int, amount decimal.Decimal, source string) (*WalletTransaction, error)
	// Withdraw moves funds from balance to hold pending manual payout, with a
	// PENDING ledger entry. Fails with INSUFFICIENT_AMOUNT below the minimum
	// or the available balance.
	Withdraw(ctx context.Context, walletID int, amount decimal.Decimal, destination string) (*WalletTransaction, error)

	// EscrowFundsTx moves amount from balance to holdBalance and writes the
	// hold ledger entry, all inside tx. The conditional update fails with
	// INSUFFICIENT_AMOUNT when the spendable balance is below amount.
	EscrowFundsTx(ctx context.Context, tx pgx.Tx, walletID int, amount decimal.Decimal, phaseID, orderID int, description string) error
	// ReleaseFundsTx releases amount from the payer's holdBalance, credits the
	// recipient's balance and totalEarned, and writes the release ledger entry,
	// all inside tx.
	ReleaseFundsTx(ctx context.Context, tx pgx.Tx, payerWalletID, recipientWalletID int, amount decimal.Decimal, phaseID, orderID int, description string) error
}

type walletService struct {
	pool *pgxpool.Pool
}

func NewWalletService(pool *pgxpool.Pool) WalletService {
	return &walletService{pool: pool}
}

func (s *walletService) CreateWallet(ctx context.Context, ownerRef string) (*Wallet, error) {
	if ownerRef == "" {
		return nil, validationf("wallet must have an owner reference")
	}
	var w Wallet
	err := s.pool.QueryRow(ctx, `
		INSERT INTO wallets (owner_ref, balance, hold_balance, total_earned)
		VALUES ($1, 0, 0, 0)
		RETURNING id, owner_ref, balance, hold_balance, total_earned, created_at
	`, ownerRef).Scan(&w.ID, &w.OwnerRef, &w.Balance, &w.HoldBalance, &w.TotalEarned, &w.CreatedAt)
	if err != nil {
		return nil, internalErr("failed to create wallet", err)
	}
	return &w, nil
}

func (s *walletService) GetWallet(ctx context.Context, walletID int) (*Wallet, error) {
	var w Wallet
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_ref, balance, hold_balance, total_earned, created_at
		FROM wallets
		WHERE id = $1
	`, walletID).Scan(&w.ID, &w.OwnerRef, &w.Balance, &w.HoldBalance, &w.TotalEarned, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("wallet %d not found", walletID)
		}
		return nil, internalErr("failed to fetch wallet", err)
	}
	return &w, nil
}

func (s *walletService) GetTransactions(ctx context.Context, walletID int) ([]WalletTransaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, wallet_id, reference, amount, type, status, description,
		       phase_id, order_id, created_at
		FROM wallet_transactions
		WHERE wallet_id = $1
		ORDER BY id DESC
	`, walletID)
	if err != nil {
		return nil, internalErr("failed to query wallet transactions", err)
	}
	defer rows.Close()

	var txs []WalletTransaction
	for rows.Next() {
		var t WalletTransaction
		if err := rows.Scan(
			&t.ID, &t.WalletID, &t.Reference, &t.Amount, &t.Type, &t.Status,
			&t.Description, &t.PhaseID, &t.OrderID, &t.CreatedAt,
		); err != nil {
			return nil, internalErr("failed to scan wallet transaction", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (s *walletService) Topup(ctx context.Context, walletID int, amount decimal.Decimal, source string) (*WalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, validationf("topup amount must be positive, got %s", amount)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, internalErr("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		"UPDATE wallets SET balance = balance + $1 WHERE id = $2",
		amount, walletID,
	)
	if err != nil {
		return nil, internalErr("failed to credit wallet", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, notFoundf("wallet %d not found", walletID)
	}

	var out WalletTransaction
	err = tx.QueryRow(ctx, `
		INSERT INTO wallet_transactions (wallet_id, reference, amount, type, status, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, wallet_id, reference, amount, type, status, description, phase_id, order_id, created_at
	`, walletID, uuid.NewString(), amount, TxTopup, TxCompleted,
		fmt.Sprintf("Topup from %s", source),
	).Scan(
		&out.ID, &out.WalletID, &out.Reference, &out.Amount, &out.Type, &out.Status,
		&out.Description, &out.PhaseID, &out.OrderID, &out.CreatedAt,
	)
	if err != nil {
		return nil, internalErr("failed to record topup", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, internalErr("failed to commit topup", err)
	}
	return &out, nil
}

func (s *walletService) Withdraw(ctx context.Context, walletID int, amount decimal.Decimal, destination string) (*WalletTransaction, error) {
	if amount.LessThan(minWithdrawal) {
		return nil, insufficientf("minimum withdrawal is %s, got %s", minWithdrawal, amount)
	}
	if destination == "" {
		return nil, validationf("withdrawal requires a destination")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, internalErr("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := debitToHold(ctx, tx, walletID, amount); err != nil {
		return nil, err
	}

	var out WalletTransaction
	err = tx.QueryRow(ctx, `
		INSERT INTO wallet_transactions (wallet_id, reference, amount, type, status, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, wallet_id, reference, amount, type, status, description, phase_id, order_id, created_at
	`, walletID, uuid.NewString(), amount.Neg(), TxWithdrawal, TxPending,
		fmt.Sprintf("Withdrawal to %s", destination),
	).Scan(
		&out.ID, &out.WalletID, &out.Reference, &out.Amount, &out.Type, &out.Status,
		&out.Description, &out.PhaseID, &out.OrderID, &out.CreatedAt,
	)
	if err != nil {
		return nil, internalErr("failed to record withdrawal", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, internalErr("failed to commit withdrawal", err)
	}
	return &out, nil
}

// ── Tx-scoped fund movement ──────────────────────────────────────────────────

func (s *walletService) EscrowFundsTx(ctx context.Context, tx pgx.Tx, walletID int, amount decimal.Decimal, phaseID, orderID int, description string) error {
	if err := debitToHold(ctx, tx, walletID, amount); err != nil {
		return err
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO wallet_transactions (wallet_id, reference, amount, type, status, description, phase_id, order_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, walletID, uuid.NewString(), amount.Neg(), TxEscrowHold, TxCompleted, description, phaseID, orderID)
	if err != nil {
		return internalErr("failed to write escrow ledger entry", err)
	}
	return nil
}

func (s *walletService) ReleaseFundsTx(ctx context.Context, tx pgx.Tx, payerWalletID, recipientWalletID int, amount decimal.Decimal, phaseID, orderID int, description string) error {
	// Release the payer's hold. The guard keeps holdBalance non-negative even
	// if a caller bug reaches this with an unexpected amount.
	tag, err := tx.Exec(ctx, `
		UPDATE wallets
		SET hold_balance = hold_balance - $1
		WHERE id = $2 AND hold_balance >= $1
	`, amount, payerWalletID)
	if err != nil {
		return internalErr("failed to release payer hold", err)
	}
	if tag.RowsAffected() == 0 {
		return notEscrowedf("wallet %d does not hold %s in escrow", payerWalletID, amount)
	}

	tag, err = tx.Exec(ctx, `
		UPDATE wallets
		SET balance = balance + $1, total_earned = total_earned + $1
		WHERE id = $2
	`, amount, recipientWalletID)
	if err != nil {
		return internalErr("failed to credit recipient wallet", err)
	}
	if tag.RowsAffected() == 0 {
		return notFoundf("recipient wallet %d not found", recipientWalletID)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO wallet_transactions (wallet_id, reference, amount, type, status, description, phase_id, order_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, recipientWalletID, uuid.NewString(), amount, TxEscrowRelease, TxCompleted, description, phaseID, orderID)
	if err != nil {
		return internalErr("failed to write release ledger entry", err)
	}
	return nil
}

// debitToHold atomically moves amount from balance to holdBalance, failing
// when the spendable balance is insufficient. The balance check and the update
// are one conditional statement so concurrent debits cannot overdraw.
func debitToHold(ctx context.Context, tx pgx.Tx, walletID int, amount decimal.Decimal) error {
	tag, err := tx.Exec(ctx, `
		UPDATE wallets
		SET balance = balance - $1, hold_balance = hold_balance + $1
		WHERE id = $2 AND balance >= $1
	`, amount, walletID)
	if err != nil {
		return internalErr("failed to debit wallet", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing wallet from an underfunded one.
		var exists bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM wallets WHERE id = $1)", walletID).Scan(&exists); err != nil {
			return internalErr("failed to check wallet", err)
		}
		if !exists {
			return notFoundf("wallet %d not found", walletID)
		}
		return insufficientf("wallet %d balance is below %s", walletID, amount)
	}
	return nil
}
