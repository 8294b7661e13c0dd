package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds a party's funds. Balance is spendable; HoldBalance is escrowed
// and unavailable until released. TotalEarned accumulates every release
// credited to this wallet.
type Wallet struct {
	ID          int             `json:"id"`
	OwnerRef    string          `json:"owner_ref"` // customer or earner identifier
	Balance     decimal.Decimal `json:"balance"`
	HoldBalance decimal.Decimal `json:"hold_balance"`
	TotalEarned decimal.Decimal `json:"total_earned"`
	CreatedAt   time.Time       `json:"created_at"`
}

type WalletTxType string

const (
	TxEscrowHold    WalletTxType = "ESCROW_HOLD"
	TxEscrowRelease WalletTxType = "ESCROW_RELEASE"
	TxWithdrawal    WalletTxType = "WITHDRAWAL"
	TxTopup         WalletTxType = "TOPUP"
)

type WalletTxStatus string

const (
	TxPending   WalletTxStatus = "PENDING"
	TxCompleted WalletTxStatus = "COMPLETED"
	TxFailed    WalletTxStatus = "FAILED"
)

// WalletTransaction is an immutable, append-only ledger entry. Every balance or
// hold-balance mutation writes exactly one entry in the same transaction; the
// ledger is the auditable record of all fund movement.
type WalletTransaction struct {
	ID          int             `json:"id"`
	WalletID    int             `json:"wallet_id"`
	Reference   string          `json:"reference"` // uuid, unique per entry
	Amount      decimal.Decimal `json:"amount"`    // signed: negative leaves the wallet
	Type        WalletTxType    `json:"type"`
	Status      WalletTxStatus  `json:"status"`
	Description string          `json:"description"`
	PhaseID     *int            `json:"phase_id,omitempty"`
	OrderID     *int            `json:"order_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
