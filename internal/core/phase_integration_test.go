package core_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"buildmart/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
)

type phaseFixture struct {
	pool    *pgxpool.Pool
	wallets core.WalletService
	phases  core.PhaseService
	orders  core.OrderService
}

func setupPhaseFixture(t *testing.T) *phaseFixture {
	t.Helper()
	pool := setupTestDB(t)

	pricing := core.NewPricingService(pool, nil)
	wallets := core.NewWalletService(pool)
	return &phaseFixture{
		pool:    pool,
		wallets: wallets,
		phases:  core.NewPhaseService(pool, wallets, nil),
		orders:  core.NewOrderService(pool, pricing),
	}
}

// createPhasedOrder builds an order for the regular customer (BASE prices) and
// one 30%-deposit phase over the cement line: 40 bags × 100000 = 4000000 phase
// value, 1200000 deposit.
func (f *phaseFixture) createPhasedOrder(t *testing.T) (*core.Order, *core.DeliveryPhase) {
	t.Helper()
	ctx := context.Background()

	order, err := f.orders.CreateOrder(ctx, 2, []core.OrderLineInput{
		{ProductID: 1, Quantity: mustDec("40")},
		{ProductID: 4, Quantity: mustDec("2")},
	}, "Phased delivery test order")
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	phase, err := f.phases.CreatePhase(ctx, order.ID, core.PhaseSpec{
		Name:           "Foundation & structure",
		ScheduledDate:  time.Now().AddDate(0, 0, 3),
		DepositPercent: mustDec("30"),
		ProductIDs:     []int{1},
	})
	if err != nil {
		t.Fatalf("CreatePhase failed: %v", err)
	}
	return order, phase
}

// fundedWallet creates a wallet and tops it up.
func (f *phaseFixture) fundedWallet(t *testing.T, owner, amount string) *core.Wallet {
	t.Helper()
	ctx := context.Background()

	w, err := f.wallets.CreateWallet(ctx, owner)
	if err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}
	if amount != "0" {
		if _, err := f.wallets.Topup(ctx, w.ID, mustDec(amount), "bank transfer"); err != nil {
			t.Fatalf("Topup failed: %v", err)
		}
	}
	got, err := f.wallets.GetWallet(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	return got
}

// escrowedPhase drives a fresh phase to DEPOSIT_PAID + ESCROWED from a funded
// payer wallet and returns phase, payer, recipient.
func (f *phaseFixture) escrowedPhase(t *testing.T) (*core.DeliveryPhase, *core.Wallet, *core.Wallet) {
	t.Helper()
	ctx := context.Background()

	_, phase := f.createPhasedOrder(t)
	payer := f.fundedWallet(t, "buyer:delta-build", "5000000")
	recipient := f.fundedWallet(t, "supplier:buildmart", "0")

	if _, err := f.phases.ProcessDeposit(ctx, phase.ID, mustDec("1200000"), "bank transfer"); err != nil {
		t.Fatalf("ProcessDeposit failed: %v", err)
	}
	escrowed, err := f.phases.EscrowPhase(ctx, phase.ID, payer.ID)
	if err != nil {
		t.Fatalf("EscrowPhase failed: %v", err)
	}
	return escrowed, payer, recipient
}

func (f *phaseFixture) walletState(t *testing.T, walletID int) *core.Wallet {
	t.Helper()
	w, err := f.wallets.GetWallet(context.Background(), walletID)
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	return w
}

func TestPhases_CreateFromOrder(t *testing.T) {
	f := setupPhaseFixture(t)
	defer f.pool.Close()
	ctx := context.Background()

	order, err := f.orders.CreateOrder(ctx, 2, []core.OrderLineInput{
		{ProductID: 1, Quantity: mustDec("40")},
		{ProductID: 4, Quantity: mustDec("2")},
	}, "")
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	phases, err := f.phases.CreatePhasesFromOrder(ctx, order.ID, []core.PhaseSpec{
		{
			Name:           "Foundation & structure",
			ScheduledDate:  time.Now().AddDate(0, 0, 3),
			DepositPercent: mustDec("30"),
			ProductIDs:     []int{1},
		},
		{
			Name:           "Finishing",
			ScheduledDate:  time.Now().AddDate(0, 0, 60),
			DepositPercent: mustDec("50"),
			ProductIDs:     []int{4},
		},
	})
	if err != nil {
		t.Fatalf("CreatePhasesFromOrder failed: %v", err)
	}
	if len(phases) != 2 {
		t.Fatalf("got %d phases, want 2", len(phases))
	}

	first := phases[0]
	if first.PhaseNumber != 1 {
		t.Errorf("first phase number = %d, want 1", first.PhaseNumber)
	}
	if !first.PhaseValue.Equal(mustDec("4000000")) {
		t.Errorf("first phase value = %s, want 4000000", first.PhaseValue)
	}
	if !first.DepositRequired.Equal(mustDec("1200000")) {
		t.Errorf("first deposit = %s, want 1200000", first.DepositRequired)
	}
	if first.Status != core.PhasePending || first.PaymentStatus != core.PaymentUnpaid {
		t.Errorf("first phase starts %s/%s, want PENDING/UNPAID", first.Status, first.PaymentStatus)
	}
	if len(first.Items) != 1 || first.Items[0].ProductName != "Portland cement 50kg" {
		t.Errorf("first phase items = %+v", first.Items)
	}

	second := phases[1]
	if second.PhaseNumber != 2 {
		t.Errorf("second phase number = %d, want 2", second.PhaseNumber)
	}
	if !second.PhaseValue.Equal(mustDec("1900000")) {
		t.Errorf("second phase value = %s, want 1900000", second.PhaseValue)
	}
	if !second.DepositRequired.Equal(mustDec("950000")) {
		t.Errorf("second deposit = %s, want 950000", second.DepositRequired)
	}

	// A product the order does not contain is rejected, and nothing sticks.
	_, err = f.phases.CreatePhasesFromOrder(ctx, order.ID, []core.PhaseSpec{
		{
			Name:           "Bogus phase",
			ScheduledDate:  time.Now().AddDate(0, 0, 5),
			DepositPercent: mustDec("30"),
			ProductIDs:     []int{3},
		},
	})
	if core.KindOf(err) != core.KindValidation {
		t.Fatalf("foreign product error kind = %s, want VALIDATION", core.KindOf(err))
	}
	all, err := f.phases.GetOrderPhases(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrderPhases failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("rejected creation left %d phases, want 2", len(all))
	}
}

func TestPhases_DeliveryTransitions(t *testing.T) {
	f := setupPhaseFixture(t)
	defer f.pool.Close()
	ctx := context.Background()

	_, phase := f.createPhasedOrder(t)

	// Skipping a step is rejected.
	_, err := f.phases.UpdateDeliveryStatus(ctx, phase.ID, core.PhaseShipped, nil)
	if core.KindOf(err) != core.KindInvalidState {
		t.Errorf("skip error kind = %s, want INVALID_STATE", core.KindOf(err))
	}

	// CONFIRMED is never directly settable.
	_, err = f.phases.UpdateDeliveryStatus(ctx, phase.ID, core.PhaseConfirmed, nil)
	if core.KindOf(err) != core.KindInvalidState {
		t.Errorf("direct confirm error kind = %s, want INVALID_STATE", core.KindOf(err))
	}

	for _, status := range []core.DeliveryStatus{core.PhasePreparing, core.PhaseReady, core.PhaseShipped} {
		if _, err := f.phases.UpdateDeliveryStatus(ctx, phase.ID, status, nil); err != nil {
			t.Fatalf("transition to %s failed: %v", status, err)
		}
	}

	delivered, err := f.phases.UpdateDeliveryStatus(ctx, phase.ID, core.PhaseDelivered, &core.DeliveryMeta{
		TrackingNumber: "TRK-7781",
		CarrierName:    "Metro Freight",
		ReceiverName:   "A. Foreman",
	})
	if err != nil {
		t.Fatalf("transition to DELIVERED failed: %v", err)
	}
	if delivered.ActualDate == nil {
		t.Error("actual date not stamped on delivery")
	}
	if delivered.TrackingNumber != "TRK-7781" || delivered.CarrierName != "Metro Freight" {
		t.Errorf("delivery meta not stored: %+v", delivered.DeliveryMeta)
	}

	// Going backward is rejected.
	_, err = f.phases.UpdateDeliveryStatus(ctx, phase.ID, core.PhaseShipped, nil)
	if core.KindOf(err) != core.KindInvalidState {
		t.Errorf("backward error kind = %s, want INVALID_STATE", core.KindOf(err))
	}
}

func TestPhases_DepositThreshold(t *testing.T) {
	f := setupPhaseFixture(t)
	defer f.pool.Close()
	ctx := context.Background()

	_, phase := f.createPhasedOrder(t)

	// 1000000 against a 1200000 requirement: rejected, status untouched.
	_, err := f.phases.ProcessDeposit(ctx, phase.ID, mustDec("1000000"), "bank transfer")
	if core.KindOf(err) != core.KindInsufficientAmount {
		t.Fatalf("short deposit error kind = %s, want INSUFFICIENT_AMOUNT", core.KindOf(err))
	}
	got, err := f.phases.GetPhase(ctx, phase.ID)
	if err != nil {
		t.Fatalf("GetPhase failed: %v", err)
	}
	if got.PaymentStatus != core.PaymentUnpaid {
		t.Errorf("payment status after short deposit = %s, want UNPAID", got.PaymentStatus)
	}

	// Exactly the requirement: accepted.
	paid, err := f.phases.ProcessDeposit(ctx, phase.ID, mustDec("1200000"), "bank transfer")
	if err != nil {
		t.Fatalf("ProcessDeposit failed: %v", err)
	}
	if paid.PaymentStatus != core.PaymentDepositPaid {
		t.Errorf("payment status = %s, want DEPOSIT_PAID", paid.PaymentStatus)
	}
	if paid.DepositPaidAt == nil || paid.DepositMethod != "bank transfer" {
		t.Errorf("deposit metadata not stored: %+v", paid)
	}

	// Paying twice is rejected.
	_, err = f.phases.ProcessDeposit(ctx, phase.ID, mustDec("1200000"), "bank transfer")
	if core.KindOf(err) != core.KindInvalidState {
		t.Errorf("second deposit error kind = %s, want INVALID_STATE", core.KindOf(err))
	}
}

func TestPhases_EscrowInsufficientBalance_NothingSticks(t *testing.T) {
	f := setupPhaseFixture(t)
	defer f.pool.Close()
	ctx := context.Background()

	_, phase := f.createPhasedOrder(t)
	payer := f.fundedWallet(t, "buyer:underfunded", "1000000") // phase value is 4000000

	if _, err := f.phases.ProcessDeposit(ctx, phase.ID, mustDec("1200000"), "bank transfer"); err != nil {
		t.Fatalf("ProcessDeposit failed: %v", err)
	}

	_, err := f.phases.EscrowPhase(ctx, phase.ID, payer.ID)
	if core.KindOf(err) != core.KindInsufficientAmount {
		t.Fatalf("escrow error kind = %s, want INSUFFICIENT_AMOUNT", core.KindOf(err))
	}

	// Wallet, ledger, and phase all untouched.
	w := f.walletState(t, payer.ID)
	if !w.Balance.Equal(mustDec("1000000")) || !w.HoldBalance.IsZero() {
		t.Errorf("wallet after failed escrow = balance %s hold %s, want 1000000/0", w.Balance, w.HoldBalance)
	}
	txs, err := f.wallets.GetTransactions(ctx, payer.ID)
	if err != nil {
		t.Fatalf("GetTransactions failed: %v", err)
	}
	for _, wt := range txs {
		if wt.Type == core.TxEscrowHold {
			t.Errorf("failed escrow left a ledger entry: %+v", wt)
		}
	}
	got, err := f.phases.GetPhase(ctx, phase.ID)
	if err != nil {
		t.Fatalf("GetPhase failed: %v", err)
	}
	if got.PaymentStatus != core.PaymentDepositPaid {
		t.Errorf("payment status = %s, want DEPOSIT_PAID", got.PaymentStatus)
	}
	if got.EscrowWalletID != nil {
		t.Error("escrow wallet recorded despite failure")
	}
}

func TestPhases_Escrow_MovesFundsToHold(t *testing.T) {
	f := setupPhaseFixture(t)
	defer f.pool.Close()
	ctx := context.Background()

	phase, payer, _ := f.escrowedPhase(t)

	if phase.PaymentStatus != core.PaymentEscrowed {
		t.Errorf("payment status = %s, want ESCROWED", phase.PaymentStatus)
	}
	if phase.EscrowWalletID == nil || *phase.EscrowWalletID != payer.ID {
		t.Errorf("escrow wallet = %v, want %d", phase.EscrowWalletID, payer.ID)
	}

	w := f.walletState(t, payer.ID)
	if !w.Balance.Equal(mustDec("1000000")) {
		t.Errorf("payer balance = %s, want 1000000", w.Balance)
	}
	if !w.HoldBalance.Equal(mustDec("4000000")) {
		t.Errorf("payer hold = %s, want 4000000", w.HoldBalance)
	}

	txs, err := f.wallets.GetTransactions(ctx, payer.ID)
	if err != nil {
		t.Fatalf("GetTransactions failed: %v", err)
	}
	var holds int
	for _, wt := range txs {
		if wt.Type == core.TxEscrowHold {
			holds++
			if !wt.Amount.Equal(mustDec("-4000000")) {
				t.Errorf("hold ledger amount = %s, want -4000000", wt.Amount)
			}
			if wt.PhaseID == nil || *wt.PhaseID != phase.ID {
				t.Errorf("hold ledger phase ref = %v, want %d", wt.PhaseID, phase.ID)
			}
		}
	}
	if holds != 1 {
		t.Errorf("got %d hold ledger entries, want 1", holds)
	}

	// Escrowing again is rejected.
	_, err = f.phases.EscrowPhase(ctx, phase.ID, payer.ID)
	if core.KindOf(err) != core.KindInvalidState {
		t.Errorf("double escrow error kind = %s, want INVALID_STATE", core.KindOf(err))
	}
}

func TestPhases_ReleaseBeforeDelivery_Rejected(t *testing.T) {
	f := setupPhaseFixture(t)
	defer f.pool.Close()
	ctx := context.Background()

	phase, payer, recipient := f.escrowedPhase(t)

	for _, status := range []core.DeliveryStatus{core.PhasePreparing, core.PhaseReady, core.PhaseShipped} {
		if _, err := f.phases.UpdateDeliveryStatus(ctx, phase.ID, status, nil); err != nil {
			t.Fatalf("transition to %s failed: %v", status, err)
		}
	}

	// SHIPPED is not enough: goods must be DELIVERED before funds move.
	_, err := f.phases.ConfirmAndRelease(ctx, phase.ID, "buyer@site-a", recipient.ID)
	if core.KindOf(err) != core.KindInvalidState {
		t.Fatalf("early release error kind = %s, want INVALID_STATE", core.KindOf(err))
	}

	w := f.walletState(t, payer.ID)
	if !w.HoldBalance.Equal(mustDec("4000000")) {
		t.Errorf("payer hold after rejected release = %s, want 4000000", w.HoldBalance)
	}
	r := f.walletState(t, recipient.ID)
	if !r.Balance.IsZero() {
		t.Errorf("recipient balance after rejected release = %s, want 0", r.Balance)
	}
}

func TestPhases_ReleaseWithoutEscrow_Rejected(t *testing.T) {
	f := setupPhaseFixture(t)
	defer f.pool.Close()
	ctx := context.Background()

	_, phase := f.createPhasedOrder(t)
	recipient := f.fundedWallet(t, "supplier:buildmart", "0")

	for _, status := range []core.DeliveryStatus{core.PhasePreparing, core.PhaseReady, core.PhaseShipped, core.PhaseDelivered} {
		if _, err := f.phases.UpdateDeliveryStatus(ctx, phase.ID, status, nil); err != nil {
			t.Fatalf("transition to %s failed: %v", status, err)
		}
	}

	_, err := f.phases.ConfirmAndRelease(ctx, phase.ID, "buyer@site-a", recipient.ID)
	if core.KindOf(err) != core.KindFundsNotEscrowed {
		t.Errorf("release error kind = %s, want FUNDS_NOT_ESCROWED", core.KindOf(err))
	}
}

func TestPhases_ConfirmAndRelease(t *testing.T) {
	f := setupPhaseFixture(t)
	defer f.pool.Close()
	ctx := context.Background()

	phase, payer, recipient := f.escrowedPhase(t)

	for _, status := range []core.DeliveryStatus{core.PhasePreparing, core.PhaseReady, core.PhaseShipped, core.PhaseDelivered} {
		if _, err := f.phases.UpdateDeliveryStatus(ctx, phase.ID, status, nil); err != nil {
			t.Fatalf("transition to %s failed: %v", status, err)
		}
	}

	released, err := f.phases.ConfirmAndRelease(ctx, phase.ID, "buyer@site-a", recipient.ID)
	if err != nil {
		t.Fatalf("ConfirmAndRelease failed: %v", err)
	}

	if released.Status != core.PhaseConfirmed || released.PaymentStatus != core.PaymentReleased {
		t.Errorf("phase = %s/%s, want CONFIRMED/RELEASED", released.Status, released.PaymentStatus)
	}
	if released.ConfirmedBy != "buyer@site-a" || released.ConfirmedAt == nil || released.ReleasedAt == nil {
		t.Errorf("confirmation metadata missing: %+v", released)
	}

	w := f.walletState(t, payer.ID)
	if !w.Balance.Equal(mustDec("1000000")) || !w.HoldBalance.IsZero() {
		t.Errorf("payer after release = balance %s hold %s, want 1000000/0", w.Balance, w.HoldBalance)
	}
	r := f.walletState(t, recipient.ID)
	if !r.Balance.Equal(mustDec("4000000")) || !r.TotalEarned.Equal(mustDec("4000000")) {
		t.Errorf("recipient after release = balance %s earned %s, want 4000000/4000000", r.Balance, r.TotalEarned)
	}

	txs, err := f.wallets.GetTransactions(ctx, recipient.ID)
	if err != nil {
		t.Fatalf("GetTransactions failed: %v", err)
	}
	if len(txs) != 1 || txs[0].Type != core.TxEscrowRelease || !txs[0].Amount.Equal(mustDec("4000000")) {
		t.Errorf("recipient ledger = %+v, want one ESCROW_RELEASE of 4000000", txs)
	}

	// Releasing again must fail: the funds are gone from escrow.
	_, err = f.phases.ConfirmAndRelease(ctx, phase.ID, "buyer@site-a", recipient.ID)
	if core.KindOf(err) != core.KindInvalidState {
		t.Errorf("double release error kind = %s, want INVALID_STATE", core.KindOf(err))
	}
}

func TestPhases_ConcurrentRelease_SingleWinner(t *testing.T) {
	f := setupPhaseFixture(t)
	defer f.pool.Close()
	ctx := context.Background()

	phase, _, recipient := f.escrowedPhase(t)

	for _, status := range []core.DeliveryStatus{core.PhasePreparing, core.PhaseReady, core.PhaseShipped, core.PhaseDelivered} {
		if _, err := f.phases.UpdateDeliveryStatus(ctx, phase.ID, status, nil); err != nil {
			t.Fatalf("transition to %s failed: %v", status, err)
		}
	}

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.phases.ConfirmAndRelease(ctx, phase.ID, "buyer@site-a", recipient.ID)
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("%d of %d concurrent releases succeeded, want exactly 1", wins, attempts)
	}

	// The recipient was credited exactly once.
	r := f.walletState(t, recipient.ID)
	if !r.Balance.Equal(mustDec("4000000")) {
		t.Errorf("recipient balance = %s, want 4000000", r.Balance)
	}
}

func TestPhases_CancelWhileEscrowed_Rejected(t *testing.T) {
	f := setupPhaseFixture(t)
	defer f.pool.Close()
	ctx := context.Background()

	phase, payer, _ := f.escrowedPhase(t)

	_, err := f.phases.UpdateDeliveryStatus(ctx, phase.ID, core.PhaseCancelled, nil)
	if core.KindOf(err) != core.KindInvalidState {
		t.Fatalf("cancel error kind = %s, want INVALID_STATE", core.KindOf(err))
	}

	w := f.walletState(t, payer.ID)
	if !w.HoldBalance.Equal(mustDec("4000000")) {
		t.Errorf("payer hold after rejected cancel = %s, want 4000000", w.HoldBalance)
	}
}

func TestPhases_SuggestionsFollowCategories(t *testing.T) {
	f := setupPhaseFixture(t)
	defer f.pool.Close()
	ctx := context.Background()

	order, err := f.orders.CreateOrder(ctx, 2, []core.OrderLineInput{
		{ProductID: 1, Quantity: mustDec("40")},   // Cement
		{ProductID: 2, Quantity: mustDec("20")},   // Steel
		{ProductID: 3, Quantity: mustDec("5000")}, // Brick
		{ProductID: 4, Quantity: mustDec("2")},    // Paint
	}, "")
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	suggestions, err := f.phases.SuggestPhases(ctx, order.ID)
	if err != nil {
		t.Fatalf("SuggestPhases failed: %v", err)
	}

	wantNames := []string{"Foundation & structure", "Structural shell", "Finishing"}
	if len(suggestions) != len(wantNames) {
		t.Fatalf("got %d suggestions, want %d: %+v", len(suggestions), len(wantNames), suggestions)
	}
	for i, name := range wantNames {
		if suggestions[i].Name != name {
			t.Errorf("suggestion %d = %s, want %s", i, suggestions[i].Name, name)
		}
	}
	if ids := suggestions[0].ProductIDs; len(ids) != 2 {
		t.Errorf("foundation suggestion products = %v, want cement and steel", ids)
	}
}

func TestPhases_UpcomingDeliveries(t *testing.T) {
	f := setupPhaseFixture(t)
	defer f.pool.Close()
	ctx := context.Background()

	order, err := f.orders.CreateOrder(ctx, 2, []core.OrderLineInput{
		{ProductID: 1, Quantity: mustDec("40")},
		{ProductID: 4, Quantity: mustDec("2")},
	}, "")
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	_, err = f.phases.CreatePhasesFromOrder(ctx, order.ID, []core.PhaseSpec{
		{Name: "Soon", ScheduledDate: time.Now().AddDate(0, 0, 2), DepositPercent: mustDec("0"), ProductIDs: []int{1}},
		{Name: "Far out", ScheduledDate: time.Now().AddDate(0, 0, 45), DepositPercent: mustDec("0"), ProductIDs: []int{4}},
	})
	if err != nil {
		t.Fatalf("CreatePhasesFromOrder failed: %v", err)
	}

	upcoming, err := f.phases.GetUpcomingDeliveries(ctx, 7)
	if err != nil {
		t.Fatalf("GetUpcomingDeliveries failed: %v", err)
	}
	if len(upcoming) != 1 || upcoming[0].Name != "Soon" {
		t.Errorf("upcoming = %+v, want only the phase scheduled in 2 days", upcoming)
	}
}
