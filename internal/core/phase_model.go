package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// DeliveryStatus tracks the physical movement of a phase.
type DeliveryStatus string

const (
	PhasePending   DeliveryStatus = "PENDING"
	PhasePreparing DeliveryStatus = "PREPARING"
	PhaseReady     DeliveryStatus = "READY"
	PhaseShipped   DeliveryStatus = "SHIPPED"
	PhaseDelivered DeliveryStatus = "DELIVERED"
	PhaseConfirmed DeliveryStatus = "CONFIRMED"
	PhaseCancelled DeliveryStatus = "CANCELLED"
)

// PaymentStatus tracks the money side of a phase, independently of delivery.
// It only ever moves forward.
type PaymentStatus string

const (
	PaymentUnpaid      PaymentStatus = "UNPAID"
	PaymentDepositPaid PaymentStatus = "DEPOSIT_PAID"
	PaymentEscrowed    PaymentStatus = "ESCROWED"
	PaymentReleased    PaymentStatus = "RELEASED"
)

// PhaseItem is one order line included in a delivery phase, snapshotted at
// phase creation so later catalog changes cannot alter the phase value.
type PhaseItem struct {
	ID          int             `json:"id"`
	PhaseID     int             `json:"phase_id"`
	ProductID   int             `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Unit        string          `json:"unit"`
}

// DeliveryMeta is the shipment metadata attachable up to the point a phase is
// marked DELIVERED.
type DeliveryMeta struct {
	TrackingNumber    string `json:"tracking_number,omitempty"`
	CarrierName       string `json:"carrier_name,omitempty"`
	DeliveryProof     string `json:"delivery_proof,omitempty"`
	ReceiverName      string `json:"receiver_name,omitempty"`
	ReceiverSignature string `json:"receiver_signature,omitempty"`
}

// DeliveryPhase is a scheduled partial shipment of an order, carrying its own
// value, deposit requirement, and two independent state machines.
type DeliveryPhase struct {
	ID              int             `json:"id"`
	OrderID         int             `json:"order_id"`
	PhaseNumber     int             `json:"phase_number"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Items           []PhaseItem     `json:"items"`
	PhaseValue      decimal.Decimal `json:"phase_value"`
	DepositRequired decimal.Decimal `json:"deposit_required"`
	ScheduledDate   time.Time       `json:"scheduled_date"`
	ActualDate      *time.Time      `json:"actual_date,omitempty"`
	Status          DeliveryStatus  `json:"status"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	DeliveryMeta
	DepositPaidAt  *time.Time `json:"deposit_paid_at,omitempty"`
	DepositMethod  string     `json:"deposit_method,omitempty"`
	EscrowWalletID *int       `json:"escrow_wallet_id,omitempty"` // payer wallet, set at escrow time
	ConfirmedBy    string     `json:"confirmed_by,omitempty"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
	ReleasedAt     *time.Time `json:"released_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// PhaseSpec describes one phase when splitting an order: which products it
// covers, when it ships, and what deposit fraction it requires.
type PhaseSpec struct {
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	ScheduledDate  time.Time       `json:"scheduled_date"`
	DepositPercent decimal.Decimal `json:"deposit_percent"`
	ProductIDs     []int           `json:"product_ids"`
}

// PhaseSuggestion is one advisory grouping returned by SuggestPhases. Nothing
// is persisted; callers decide whether to turn suggestions into phases.
type PhaseSuggestion struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	SuggestedDays int    `json:"suggested_days"` // offset from order date
	ProductIDs    []int  `json:"product_ids"`
}
