package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PhaseService splits orders into delivery phases and coordinates the escrow
// flow that gates fund release on physical delivery plus customer confirmation.
type PhaseService interface {
	CreatePhasesFromOrder(ctx context.Context, orderID int, specs []PhaseSpec) ([]DeliveryPhase, error)
	CreatePhase(ctx context.Context, orderID int, spec PhaseSpec) (*DeliveryPhase, error)

	// UpdateDeliveryStatus applies one validated delivery transition. CONFIRMED
	// is not settable here; it is only reachable through ConfirmAndRelease.
	UpdateDeliveryStatus(ctx context.Context, phaseID int, to DeliveryStatus, meta *DeliveryMeta) (*DeliveryPhase, error)
	// ProcessDeposit records the phase deposit. paidAmount must cover the
	// deposit requirement; payment status advances UNPAID → DEPOSIT_PAID.
	ProcessDeposit(ctx context.Context, phaseID int, paidAmount decimal.Decimal, method string) (*DeliveryPhase, error)
	// EscrowPhase atomically debits the payer wallet by the phase value into
	// hold, writes the ledger entry, and advances payment to ESCROWED.
	EscrowPhase(ctx context.Context, phaseID, walletID int) (*DeliveryPhase, error)
	// ConfirmAndRelease is the fund-movement linchpin: requires DELIVERED and
	// ESCROWED, then atomically releases the payer's hold, credits the
	// recipient, writes the ledger entry, and terminates both state machines.
	// Concurrent calls on the same phase cannot both succeed.
	ConfirmAndRelease(ctx context.Context, phaseID int, confirmedBy string, recipientWalletID int) (*DeliveryPhase, error)

	// SuggestPhases groups the order's items into construction-stage templates
	// by product category. Purely advisory; persists nothing.
	SuggestPhases(ctx context.Context, orderID int) ([]PhaseSuggestion, error)

	GetPhase(ctx context.Context, phaseID int) (*DeliveryPhase, error)
	GetOrderPhases(ctx context.Context, orderID int) ([]DeliveryPhase, error)
	GetUpcomingDeliveries(ctx context.Context, days int) ([]DeliveryPhase, error)
}

type phaseService struct {
	pool    *pgxpool.Pool
	wallets WalletService
	events  EventPublisher
}

// NewPhaseService builds the pgx-backed delivery phase coordinator. events may
// be nil to disable domain-event publishing.
func NewPhaseService(pool *pgxpool.Pool, wallets WalletService, events EventPublisher) PhaseService {
	return &phaseService{pool: pool, wallets: wallets, events: events}
}

// ── Phase creation ───────────────────────────────────────────────────────────

func (s *phaseService) CreatePhasesFromOrder(ctx context.Context, orderID int, specs []PhaseSpec) ([]DeliveryPhase, error) {
	if len(specs) == 0 {
		return nil, validationf("at least one phase spec is required")
	}
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, internalErr("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	lines, err := s.orderLinesForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	lineByProduct := make(map[int]OrderLine, len(lines))
	for _, l := range lines {
		lineByProduct[l.ProductID] = l
	}

	var ids []int
	for _, spec := range specs {
		id, err := s.insertPhaseTx(ctx, tx, orderID, spec, lineByProduct)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, internalErr("failed to commit phase creation", err)
	}

	phases := make([]DeliveryPhase, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetPhase(ctx, id)
		if err != nil {
			return nil, err
		}
		phases = append(phases, *p)
	}
	return phases, nil
}

func (s *phaseService) CreatePhase(ctx context.Context, orderID int, spec PhaseSpec) (*DeliveryPhase, error) {
	phases, err := s.CreatePhasesFromOrder(ctx, orderID, []PhaseSpec{spec})
	if err != nil {
		return nil, err
	}
	return &phases[0], nil
}

// orderLinesForUpdate locks the order row and loads its lines.
func (s *phaseService) orderLinesForUpdate(ctx context.Context, tx pgx.Tx, orderID int) ([]OrderLine, error) {
	var id int
	err := tx.QueryRow(ctx, "SELECT id FROM orders WHERE id = $1 FOR UPDATE", orderID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("order %d not found", orderID)
		}
		return nil, internalErr("failed to lock order", err)
	}
	return fetchOrderLines(ctx, tx, orderID)
}

// insertPhaseTx snapshots the selected order lines into a new phase. Every
// referenced product must belong to the order; items the caller leaves out of
// all phases are simply not covered by phased delivery.
func (s *phaseService) insertPhaseTx(ctx context.Context, tx pgx.Tx, orderID int, spec PhaseSpec, lineByProduct map[int]OrderLine) (int, error) {
	items := make([]PhaseItem, 0, len(spec.ProductIDs))
	for _, pid := range spec.ProductIDs {
		line, ok := lineByProduct[pid]
		if !ok {
			return 0, validationf("phase %q references product %d which is not on order %d", spec.Name, pid, orderID)
		}
		items = append(items, PhaseItem{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Unit:        line.Unit,
		})
	}

	phaseValue := computePhaseValue(items)
	deposit := computeDeposit(phaseValue, spec.DepositPercent)

	var phaseNumber int
	err := tx.QueryRow(ctx,
		"SELECT COALESCE(MAX(phase_number), 0) + 1 FROM delivery_phases WHERE order_id = $1",
		orderID,
	).Scan(&phaseNumber)
	if err != nil {
		return 0, internalErr("failed to compute phase number", err)
	}

	var phaseID int
	err = tx.QueryRow(ctx, `
		INSERT INTO delivery_phases (order_id, phase_number, name, description,
		                             phase_value, deposit_required, scheduled_date,
		                             status, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'PENDING', 'UNPAID')
		RETURNING id
	`, orderID, phaseNumber, spec.Name, spec.Description,
		phaseValue, deposit, spec.ScheduledDate,
	).Scan(&phaseID)
	if err != nil {
		return 0, internalErr("failed to insert delivery phase", err)
	}

	for _, item := range items {
		_, err = tx.Exec(ctx, `
			INSERT INTO delivery_phase_items (phase_id, product_id, product_name, quantity, unit_price, unit)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, phaseID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.Unit)
		if err != nil {
			return 0, internalErr("failed to insert phase item", err)
		}
	}
	return phaseID, nil
}

// ── Delivery transitions ─────────────────────────────────────────────────────

func (s *phaseService) UpdateDeliveryStatus(ctx context.Context, phaseID int, to DeliveryStatus, meta *DeliveryMeta) (*DeliveryPhase, error) {
	if to == PhaseConfirmed {
		return nil, invalidStatef("CONFIRMED is only reachable through confirm-and-release")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, internalErr("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var from DeliveryStatus
	var payment PaymentStatus
	var orderID int
	err = tx.QueryRow(ctx,
		"SELECT status, payment_status, order_id FROM delivery_phases WHERE id = $1 FOR UPDATE",
		phaseID,
	).Scan(&from, &payment, &orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("phase %d not found", phaseID)
		}
		return nil, internalErr("failed to lock phase", err)
	}

	if !CanTransitionDelivery(from, to) {
		return nil, invalidStatef("phase %d cannot move from %s to %s", phaseID, from, to)
	}
	if err := checkJointTransition(from, payment, &to, nil); err != nil {
		return nil, err
	}

	query := "UPDATE delivery_phases SET status = $1"
	args := []any{to}
	n := 1
	if to == PhaseDelivered {
		query += ", actual_date = NOW()"
	}
	if meta != nil {
		cols := []struct {
			name  string
			value string
		}{
			{"tracking_number", meta.TrackingNumber},
			{"carrier_name", meta.CarrierName},
			{"delivery_proof", meta.DeliveryProof},
			{"receiver_name", meta.ReceiverName},
			{"receiver_signature", meta.ReceiverSignature},
		}
		for _, c := range cols {
			if c.value == "" {
				continue
			}
			n++
			query += fmt.Sprintf(", %s = $%d", c.name, n)
			args = append(args, c.value)
		}
	}
	n++
	query += fmt.Sprintf(" WHERE id = $%d", n)
	args = append(args, phaseID)

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return nil, internalErr("failed to update phase status", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, internalErr("failed to commit phase status update", err)
	}

	if s.events != nil {
		s.events.Publish(EventPhaseStatusChanged, fmt.Sprintf("phase-%d", phaseID), PhaseStatusChangedPayload{
			PhaseID: phaseID, OrderID: orderID, OldStatus: from, NewStatus: to,
		})
	}

	return s.GetPhase(ctx, phaseID)
}

// ── Payment transitions ──────────────────────────────────────────────────────

func (s *phaseService) ProcessDeposit(ctx context.Context, phaseID int, paidAmount decimal.Decimal, method string) (*DeliveryPhase, error) {
	if method == "" {
		return nil, validationf("deposit requires a payment method")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, internalErr("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var payment PaymentStatus
	var required decimal.Decimal
	err = tx.QueryRow(ctx,
		"SELECT payment_status, deposit_required FROM delivery_phases WHERE id = $1 FOR UPDATE",
		phaseID,
	).Scan(&payment, &required)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("phase %d not found", phaseID)
		}
		return nil, internalErr("failed to lock phase", err)
	}

	if !CanTransitionPayment(payment, PaymentDepositPaid) {
		return nil, invalidStatef("phase %d payment status is %s, deposit not applicable", phaseID, payment)
	}
	if paidAmount.LessThan(required) {
		return nil, insufficientf("deposit %s is below the required %s", paidAmount, required)
	}

	_, err = tx.Exec(ctx, `
		UPDATE delivery_phases
		SET payment_status = 'DEPOSIT_PAID', deposit_paid_at = NOW(), deposit_method = $1
		WHERE id = $2
	`, method, phaseID)
	if err != nil {
		return nil, internalErr("failed to record deposit", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, internalErr("failed to commit deposit", err)
	}
	return s.GetPhase(ctx, phaseID)
}

func (s *phaseService) EscrowPhase(ctx context.Context, phaseID, walletID int) (*DeliveryPhase, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, internalErr("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var payment PaymentStatus
	var value decimal.Decimal
	var orderID int
	var name string
	err = tx.QueryRow(ctx,
		"SELECT payment_status, phase_value, order_id, name FROM delivery_phases WHERE id = $1 FOR UPDATE",
		phaseID,
	).Scan(&payment, &value, &orderID, &name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("phase %d not found", phaseID)
		}
		return nil, internalErr("failed to lock phase", err)
	}

	if !CanTransitionPayment(payment, PaymentEscrowed) {
		return nil, invalidStatef("phase %d payment status is %s, escrow not applicable", phaseID, payment)
	}

	// Wallet debit, ledger entry, and status change share this transaction:
	// either all three commit or none do.
	desc := fmt.Sprintf("Escrow for %s (order %d)", name, orderID)
	if err := s.wallets.EscrowFundsTx(ctx, tx, walletID, value, phaseID, orderID, desc); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE delivery_phases
		SET payment_status = 'ESCROWED', escrow_wallet_id = $1
		WHERE id = $2
	`, walletID, phaseID)
	if err != nil {
		return nil, internalErr("failed to mark phase escrowed", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, internalErr("failed to commit escrow", err)
	}

	if s.events != nil {
		s.events.Publish(EventPhaseEscrowed, fmt.Sprintf("phase-%d", phaseID), PhaseEscrowedPayload{
			PhaseID: phaseID, OrderID: orderID, WalletID: walletID, Amount: value,
		})
	}

	return s.GetPhase(ctx, phaseID)
}

func (s *phaseService) ConfirmAndRelease(ctx context.Context, phaseID int, confirmedBy string, recipientWalletID int) (*DeliveryPhase, error) {
	if confirmedBy == "" {
		return nil, validationf("confirmation requires a confirmer")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, internalErr("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	// FOR UPDATE serializes concurrent confirmations: the second caller blocks
	// here, then fails the ESCROWED precondition after the first commits.
	var delivery DeliveryStatus
	var payment PaymentStatus
	var value decimal.Decimal
	var orderID int
	var name string
	var payerWalletID *int
	err = tx.QueryRow(ctx, `
		SELECT status, payment_status, phase_value, order_id, name, escrow_wallet_id
		FROM delivery_phases
		WHERE id = $1
		FOR UPDATE
	`, phaseID).Scan(&delivery, &payment, &value, &orderID, &name, &payerWalletID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("phase %d not found", phaseID)
		}
		return nil, internalErr("failed to lock phase", err)
	}

	if delivery != PhaseDelivered {
		return nil, invalidStatef("phase %d must be DELIVERED before release, delivery status is %s", phaseID, delivery)
	}
	if payment != PaymentEscrowed {
		return nil, notEscrowedf("phase %d funds are not in escrow, payment status is %s", phaseID, payment)
	}
	if payerWalletID == nil {
		return nil, notEscrowedf("phase %d has no escrow wallet recorded", phaseID)
	}

	desc := fmt.Sprintf("Escrow release for %s (order %d)", name, orderID)
	if err := s.wallets.ReleaseFundsTx(ctx, tx, *payerWalletID, recipientWalletID, value, phaseID, orderID, desc); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE delivery_phases
		SET status = 'CONFIRMED', payment_status = 'RELEASED',
		    confirmed_by = $1, confirmed_at = NOW(), released_at = NOW()
		WHERE id = $2
	`, confirmedBy, phaseID)
	if err != nil {
		return nil, internalErr("failed to mark phase released", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, internalErr("failed to commit release", err)
	}

	if s.events != nil {
		s.events.Publish(EventPhaseReleased, fmt.Sprintf("phase-%d", phaseID), PhaseReleasedPayload{
			PhaseID: phaseID, OrderID: orderID, RecipientWalletID: recipientWalletID,
			Amount: value, ConfirmedBy: confirmedBy,
		})
	}

	return s.GetPhase(ctx, phaseID)
}

// ── Suggestions and queries ──────────────────────────────────────────────────

func (s *phaseService) SuggestPhases(ctx context.Context, orderID int) ([]PhaseSuggestion, error) {
	var id int
	err := s.pool.QueryRow(ctx, "SELECT id FROM orders WHERE id = $1", orderID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("order %d not found", orderID)
		}
		return nil, internalErr("failed to fetch order", err)
	}

	lines, err := fetchOrderLines(ctx, s.pool, orderID)
	if err != nil {
		return nil, err
	}
	return suggestPhaseGroups(lines), nil
}

func (s *phaseService) GetPhase(ctx context.Context, phaseID int) (*DeliveryPhase, error) {
	var p DeliveryPhase
	err := s.pool.QueryRow(ctx, `
		SELECT id, order_id, phase_number, name, description,
		       phase_value, deposit_required, scheduled_date, actual_date,
		       status, payment_status,
		       COALESCE(tracking_number, ''), COALESCE(carrier_name, ''),
		       COALESCE(delivery_proof, ''), COALESCE(receiver_name, ''),
		       COALESCE(receiver_signature, ''),
		       deposit_paid_at, COALESCE(deposit_method, ''), escrow_wallet_id,
		       COALESCE(confirmed_by, ''), confirmed_at, released_at, created_at
		FROM delivery_phases
		WHERE id = $1
	`, phaseID).Scan(
		&p.ID, &p.OrderID, &p.PhaseNumber, &p.Name, &p.Description,
		&p.PhaseValue, &p.DepositRequired, &p.ScheduledDate, &p.ActualDate,
		&p.Status, &p.PaymentStatus,
		&p.TrackingNumber, &p.CarrierName,
		&p.DeliveryProof, &p.ReceiverName,
		&p.ReceiverSignature,
		&p.DepositPaidAt, &p.DepositMethod, &p.EscrowWalletID,
		&p.ConfirmedBy, &p.ConfirmedAt, &p.ReleasedAt, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("phase %d not found", phaseID)
		}
		return nil, internalErr("failed to fetch phase", err)
	}

	items, err := s.fetchPhaseItems(ctx, phaseID)
	if err != nil {
		return nil, err
	}
	p.Items = items
	return &p, nil
}

func (s *phaseService) GetOrderPhases(ctx context.Context, orderID int) ([]DeliveryPhase, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id FROM delivery_phases WHERE order_id = $1 ORDER BY phase_number",
		orderID,
	)
	if err != nil {
		return nil, internalErr("failed to query order phases", err)
	}
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, internalErr("failed to scan phase id", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, internalErr("error iterating phases", err)
	}

	phases := make([]DeliveryPhase, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetPhase(ctx, id)
		if err != nil {
			return nil, err
		}
		phases = append(phases, *p)
	}
	return phases, nil
}

func (s *phaseService) GetUpcomingDeliveries(ctx context.Context, days int) ([]DeliveryPhase, error) {
	if days <= 0 {
		days = 7
	}
	until := time.Now().AddDate(0, 0, days)

	rows, err := s.pool.Query(ctx, `
		SELECT id FROM delivery_phases
		WHERE scheduled_date >= NOW() AND scheduled_date <= $1
		  AND status IN ('PENDING', 'PREPARING', 'READY')
		ORDER BY scheduled_date
	`, until)
	if err != nil {
		return nil, internalErr("failed to query upcoming deliveries", err)
	}
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, internalErr("failed to scan phase id", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, internalErr("error iterating phases", err)
	}

	phases := make([]DeliveryPhase, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetPhase(ctx, id)
		if err != nil {
			return nil, err
		}
		phases = append(phases, *p)
	}
	return phases, nil
}

func (s *phaseService) fetchPhaseItems(ctx context.Context, phaseID int) ([]PhaseItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, phase_id, product_id, product_name, quantity, unit_price, unit
		FROM delivery_phase_items
		WHERE phase_id = $1
		ORDER BY id
	`, phaseID)
	if err != nil {
		return nil, internalErr("failed to query phase items", err)
	}
	defer rows.Close()

	var items []PhaseItem
	for rows.Next() {
		var it PhaseItem
		if err := rows.Scan(&it.ID, &it.PhaseID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.Unit); err != nil {
			return nil, internalErr("failed to scan phase item", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
