package core

import "github.com/shopspring/decimal"

// Domain event types published on commerce state changes.
const (
	EventContractActivated  = "ContractActivated"
	EventContractExpired    = "ContractExpired"
	EventPhaseStatusChanged = "PhaseStatusChanged"
	EventPhaseEscrowed      = "PhaseEscrowed"
	EventPhaseReleased      = "PhaseReleased"
)

// EventPublisher is implemented by the Kafka producer adapter. Publishing is
// fire-and-forget; services treat a nil publisher as "events disabled".
type EventPublisher interface {
	Publish(eventType, key string, payload any)
}

type ContractActivatedPayload struct {
	ContractID     int    `json:"contract_id"`
	ContractNumber string `json:"contract_number"`
	ApprovedBy     string `json:"approved_by"`
}

type ContractExpiredPayload struct {
	ContractID     int    `json:"contract_id"`
	ContractNumber string `json:"contract_number"`
}

type PhaseStatusChangedPayload struct {
	PhaseID   int            `json:"phase_id"`
	OrderID   int            `json:"order_id"`
	OldStatus DeliveryStatus `json:"old_status"`
	NewStatus DeliveryStatus `json:"new_status"`
}

type PhaseEscrowedPayload struct {
	PhaseID  int             `json:"phase_id"`
	OrderID  int             `json:"order_id"`
	WalletID int             `json:"wallet_id"`
	Amount   decimal.Decimal `json:"amount"`
}

type PhaseReleasedPayload struct {
	PhaseID           int             `json:"phase_id"`
	OrderID           int             `json:"order_id"`
	RecipientWalletID int             `json:"recipient_wallet_id"`
	Amount            decimal.Decimal `json:"amount"`
	ConfirmedBy       string          `json:"confirmed_by"`
}
