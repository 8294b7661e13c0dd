package core

import (
	"testing"
	"time"
)

func TestCanTransitionDelivery(t *testing.T) {
	tests := []struct {
		from, to DeliveryStatus
		want     bool
	}{
		{PhasePending, PhasePreparing, true},
		{PhasePreparing, PhaseReady, true},
		{PhaseReady, PhaseShipped, true},
		{PhaseShipped, PhaseDelivered, true},
		{PhaseDelivered, PhaseConfirmed, true},

		// No skipping forward.
		{PhasePending, PhaseReady, false},
		{PhasePending, PhaseShipped, false},
		{PhasePreparing, PhaseDelivered, false},
		{PhaseReady, PhaseConfirmed, false},

		// No moving backward.
		{PhaseShipped, PhaseReady, false},
		{PhaseDelivered, PhaseShipped, false},

		// CANCELLED reachable from every non-terminal state.
		{PhasePending, PhaseCancelled, true},
		{PhasePreparing, PhaseCancelled, true},
		{PhaseReady, PhaseCancelled, true},
		{PhaseShipped, PhaseCancelled, true},
		{PhaseDelivered, PhaseCancelled, true},

		// Terminal states stay terminal.
		{PhaseConfirmed, PhaseCancelled, false},
		{PhaseConfirmed, PhasePending, false},
		{PhaseCancelled, PhasePending, false},
		{PhaseCancelled, PhaseConfirmed, false},
	}

	for _, tt := range tests {
		if got := CanTransitionDelivery(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransitionDelivery(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCanTransitionPayment(t *testing.T) {
	tests := []struct {
		from, to PaymentStatus
		want     bool
	}{
		{PaymentUnpaid, PaymentDepositPaid, true},
		{PaymentDepositPaid, PaymentEscrowed, true},
		{PaymentEscrowed, PaymentReleased, true},

		// No skipping, no going back.
		{PaymentUnpaid, PaymentEscrowed, false},
		{PaymentUnpaid, PaymentReleased, false},
		{PaymentDepositPaid, PaymentReleased, false},
		{PaymentEscrowed, PaymentDepositPaid, false},
		{PaymentReleased, PaymentEscrowed, false},
		{PaymentReleased, PaymentUnpaid, false},
	}

	for _, tt := range tests {
		if got := CanTransitionPayment(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransitionPayment(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCheckJointTransition(t *testing.T) {
	released := PaymentReleased
	cancelled := PhaseCancelled
	confirmed := PhaseConfirmed

	tests := []struct {
		name       string
		delivery   DeliveryStatus
		payment    PaymentStatus
		toDelivery *DeliveryStatus
		toPayment  *PaymentStatus
		expectErr  bool
	}{
		{"release after delivery is fine", PhaseDelivered, PaymentEscrowed, nil, &released, false},
		{"release together with confirmation is fine", PhaseDelivered, PaymentEscrowed, &confirmed, &released, false},
		{"release while shipped is rejected", PhaseShipped, PaymentEscrowed, nil, &released, true},
		{"release while pending is rejected", PhasePending, PaymentEscrowed, nil, &released, true},
		{"cancel while unpaid is fine", PhaseReady, PaymentUnpaid, &cancelled, nil, false},
		{"cancel after deposit is fine", PhaseReady, PaymentDepositPaid, &cancelled, nil, false},
		{"cancel while escrowed is rejected", PhaseReady, PaymentEscrowed, &cancelled, nil, true},
		{"cancel after release is rejected", PhaseDelivered, PaymentReleased, &cancelled, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkJointTransition(tt.delivery, tt.payment, tt.toDelivery, tt.toPayment)
			if tt.expectErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.expectErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.expectErr && KindOf(err) != KindInvalidState {
				t.Errorf("error kind = %s, want INVALID_STATE", KindOf(err))
			}
		})
	}
}

func TestComputePhaseValue(t *testing.T) {
	items := []PhaseItem{
		{Quantity: d("100"), UnitPrice: d("85000")},
		{Quantity: d("2.5"), UnitPrice: d("1200000")},
	}
	got := computePhaseValue(items)
	if !got.Equal(d("11500000")) {
		t.Errorf("phase value = %s, want 11500000", got)
	}

	if v := computePhaseValue(nil); !v.IsZero() {
		t.Errorf("empty phase value = %s, want 0", v)
	}
}

func TestComputeDeposit(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		percent string
		want    string
	}{
		{"thirty percent", "1000000", "30", "300000"},
		{"zero percent", "1000000", "0", "0"},
		{"rounding", "99999.99", "33.33", "33330"}, // 33329.9967 rounds up
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeDeposit(d(tt.value), d(tt.percent))
			if !got.Equal(d(tt.want)) {
				t.Errorf("deposit = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPhaseSpec_Validate(t *testing.T) {
	valid := PhaseSpec{
		Name:           "Foundation & structure",
		ScheduledDate:  time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		DepositPercent: d("30"),
		ProductIDs:     []int{7, 9},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*PhaseSpec)
	}{
		{"missing name", func(s *PhaseSpec) { s.Name = "" }},
		{"missing date", func(s *PhaseSpec) { s.ScheduledDate = time.Time{} }},
		{"negative deposit", func(s *PhaseSpec) { s.DepositPercent = d("-1") }},
		{"deposit above 100", func(s *PhaseSpec) { s.DepositPercent = d("101") }},
		{"no products", func(s *PhaseSpec) { s.ProductIDs = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			err := s.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if KindOf(err) != KindValidation {
				t.Errorf("error kind = %s, want VALIDATION", KindOf(err))
			}
		})
	}
}

func TestSuggestPhaseGroups(t *testing.T) {
	lines := []OrderLine{
		{ProductID: 1, Category: "Cement"},
		{ProductID: 2, Category: "Steel"},
		{ProductID: 3, Category: "Brick"},
		{ProductID: 4, Category: "Paint"},
		{ProductID: 5, Category: "Tiles"},
		{ProductID: 6, Category: "Garden furniture"}, // no template
	}

	got := suggestPhaseGroups(lines)

	wantNames := []string{"Foundation & structure", "Structural shell", "Finishing"}
	if len(got) != len(wantNames) {
		t.Fatalf("got %d suggestions, want %d: %+v", len(got), len(wantNames), got)
	}
	for i, name := range wantNames {
		if got[i].Name != name {
			t.Errorf("suggestion %d = %s, want %s", i, got[i].Name, name)
		}
	}

	if ids := got[0].ProductIDs; len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("foundation products = %v, want [1 2]", ids)
	}
	if got[0].SuggestedDays != 0 || got[1].SuggestedDays != 14 || got[2].SuggestedDays != 60 {
		t.Errorf("suggested day offsets = %d/%d/%d, want 0/14/60",
			got[0].SuggestedDays, got[1].SuggestedDays, got[2].SuggestedDays)
	}

	if res := suggestPhaseGroups(nil); res != nil {
		t.Errorf("empty order should produce no suggestions, got %+v", res)
	}
}
