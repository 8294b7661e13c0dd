package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type ContractStatus string

const (
	ContractDraft      ContractStatus = "DRAFT"
	ContractActive     ContractStatus = "ACTIVE"
	ContractExpired    ContractStatus = "EXPIRED"
	ContractTerminated ContractStatus = "TERMINATED"
)

// Contract is a negotiated commercial agreement with one customer. Its price
// lines override catalog and price-list pricing while the contract is ACTIVE
// and inside its validity window.
type Contract struct {
	ID                 int                 `json:"id"`
	ContractNumber     string              `json:"contract_number"` // assigned at creation, e.g. CT-2026-000042
	CustomerID         int                 `json:"customer_id"`
	CustomerName       string              `json:"customer_name"` // joined from customers
	Name               string              `json:"name"`
	Description        string              `json:"description"`
	Status             ContractStatus      `json:"status"`
	ValidFrom          time.Time           `json:"valid_from"`
	ValidTo            time.Time           `json:"valid_to"`
	CreditTermDays     int                 `json:"credit_term_days"`
	SpecialCreditLimit *decimal.Decimal    `json:"special_credit_limit,omitempty"`
	Terms              string              `json:"terms"`
	ApprovedBy         string              `json:"approved_by,omitempty"`
	ApprovedAt         *time.Time          `json:"approved_at,omitempty"`
	Lines              []ContractPriceLine `json:"lines"`
	CreatedAt          time.Time           `json:"created_at"`
}

// AdjustmentKind discriminates the two mutually exclusive ways a contract line
// can move a price. A line never carries both.
type AdjustmentKind string

const (
	AdjustFixed    AdjustmentKind = "FIXED"
	AdjustDiscount AdjustmentKind = "DISCOUNT"
)

// PriceAdjustment is the tagged variant stored on a contract price line:
// either a fixed per-unit price or a percentage off the base price.
type PriceAdjustment struct {
	Kind            AdjustmentKind  `json:"kind"`
	FixedPrice      decimal.Decimal `json:"fixed_price,omitempty"`
	DiscountPercent decimal.Decimal `json:"discount_percent,omitempty"`
}

// ContractPriceLine is a per-product override scoped to one contract and an
// optional quantity band. MaxQuantity nil means the band is open-ended.
type ContractPriceLine struct {
	ID          int              `json:"id"`
	ContractID  int              `json:"contract_id"`
	ProductID   int              `json:"product_id"`
	ProductName string           `json:"product_name"` // joined from products
	Adjustment  PriceAdjustment  `json:"adjustment"`
	MinQuantity decimal.Decimal  `json:"min_quantity"`
	MaxQuantity *decimal.Decimal `json:"max_quantity,omitempty"`
	Notes       string           `json:"notes"`
}

// PriceList is a named discount rule keyed by customer segment. When several
// lists match a customer, the highest Priority wins.
type PriceList struct {
	ID              int             `json:"id"`
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	CustomerTypes   []CustomerType  `json:"customer_types"`
	Priority        int             `json:"priority"`
	ValidFrom       *time.Time      `json:"valid_from,omitempty"`
	ValidTo         *time.Time      `json:"valid_to,omitempty"`
	IsActive        bool            `json:"is_active"`
}

type PriceSource string

const (
	SourceContract  PriceSource = "CONTRACT"
	SourcePromotion PriceSource = "PROMOTION"
	SourcePriceList PriceSource = "PRICE_LIST"
	SourceBase      PriceSource = "BASE"
)

// PriceResult is the outcome of one effective-price resolution. It is computed
// on demand, never mutated afterwards, and safe to cache briefly keyed by
// (product, customer, quantity, asOf date).
type PriceResult struct {
	ProductID       int             `json:"product_id"`
	BasePrice       decimal.Decimal `json:"base_price"`
	EffectivePrice  decimal.Decimal `json:"effective_price"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Source          PriceSource     `json:"price_source"`
	SourceID        int             `json:"price_source_id,omitempty"`
	SourceName      string          `json:"price_source_name,omitempty"`
	ContractNumber  string          `json:"contract_number,omitempty"`
	Locked          bool            `json:"is_locked"` // contract prices must not be overridden by staff
	ValidUntil      *time.Time      `json:"valid_until,omitempty"`
	Notes           string          `json:"notes,omitempty"`
}

// PriceRequestItem is one line of a batch pricing request.
type PriceRequestItem struct {
	ProductID int             `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// ContractLineInput describes one price line when creating a contract.
// FixedPrice and DiscountPercent are mutually exclusive; setting both is
// rejected, setting neither makes the line inert.
type ContractLineInput struct {
	ProductID       int              `json:"product_id"`
	FixedPrice      *decimal.Decimal `json:"fixed_price,omitempty"`
	DiscountPercent *decimal.Decimal `json:"discount_percent,omitempty"`
	MinQuantity     decimal.Decimal  `json:"min_quantity"`
	MaxQuantity     *decimal.Decimal `json:"max_quantity,omitempty"`
	Notes           string           `json:"notes"`
}

// CreateContractInput carries everything needed to create a DRAFT contract.
type CreateContractInput struct {
	CustomerID         int                 `json:"customer_id"`
	Name               string              `json:"name"`
	Description        string              `json:"description"`
	ValidFrom          time.Time           `json:"valid_from"`
	ValidTo            time.Time           `json:"valid_to"`
	CreditTermDays     int                 `json:"credit_term_days"`
	SpecialCreditLimit *decimal.Decimal    `json:"special_credit_limit,omitempty"`
	Terms              string              `json:"terms"`
	Lines              []ContractLineInput `json:"lines"`
}

// UpsertPriceListInput is a full replacement of a price list's mutable fields,
// keyed by Code. Callers must pass current values for fields they want kept.
type UpsertPriceListInput struct {
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	CustomerTypes   []CustomerType  `json:"customer_types"`
	Priority        int             `json:"priority"`
	ValidFrom       *time.Time      `json:"valid_from,omitempty"`
	ValidTo         *time.Time      `json:"valid_to,omitempty"`
	IsActive        bool            `json:"is_active"`
}

// ExpirySweepResult reports one run of the contract expiry sweep.
type ExpirySweepResult struct {
	Expired      int `json:"expired"`
	ExpiringSoon int `json:"expiring_soon"`
}
