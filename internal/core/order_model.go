package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Order is a customer purchase. Line prices are frozen at creation time by the
// pricing engine; they never re-resolve against later contract changes.
type Order struct {
	ID           int             `json:"id"`
	OrderNumber  string          `json:"order_number"`
	CustomerID   int             `json:"customer_id"`
	CustomerName string          `json:"customer_name"` // joined from customers
	Status       OrderStatus     `json:"status"`
	TotalValue   decimal.Decimal `json:"total_value"`
	OrderDate    time.Time       `json:"order_date"`
	Notes        string          `json:"notes"`
	Lines        []OrderLine     `json:"lines"`
	CreatedAt    time.Time       `json:"created_at"`
}

// OrderLine is one priced line item. UnitPrice is the effective price the
// pricing engine resolved when the order was created, together with the
// winning source and its locked flag.
type OrderLine struct {
	ID             int             `json:"id"`
	OrderID        int             `json:"order_id"`
	LineNumber     int             `json:"line_number"`
	ProductID      int             `json:"product_id"`
	ProductName    string          `json:"product_name"` // joined from products
	Category       string          `json:"category"`     // joined from categories
	Unit           string          `json:"unit"`
	Quantity       decimal.Decimal `json:"quantity"`
	BasePrice      decimal.Decimal `json:"base_price"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	PriceSource    PriceSource     `json:"price_source"`
	ContractNumber string          `json:"contract_number,omitempty"`
	PriceLocked    bool            `json:"price_locked"`
	LineTotal      decimal.Decimal `json:"line_total"`
}

// OrderLineInput is one requested line when creating an order.
type OrderLineInput struct {
	ProductID int             `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}
