package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// CustomerType segments customers for price-list matching.
type CustomerType string

const (
	CustomerRegular    CustomerType = "REGULAR"
	CustomerVIP        CustomerType = "VIP"
	CustomerWholesale  CustomerType = "WHOLESALE"
	CustomerContractor CustomerType = "CONTRACTOR"
)

// Category groups products; delivery-phase suggestions key off the category name.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Product is a catalog item. BasePrice is immutable within a catalog revision;
// only catalog management (external to this core) mutates it.
type Product struct {
	ID         int             `json:"id"`
	Code       string          `json:"code"`
	Name       string          `json:"name"`
	CategoryID int             `json:"category_id"`
	Category   string          `json:"category"` // joined from categories
	BasePrice  decimal.Decimal `json:"base_price"`
	Unit       string          `json:"unit"`
	IsActive   bool            `json:"is_active"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Customer is a buying party. Type is the sole segmentation key for price lists.
type Customer struct {
	ID        int          `json:"id"`
	Code      string       `json:"code"`
	Name      string       `json:"name"`
	Email     string       `json:"email"`
	Phone     string       `json:"phone"`
	Address   string       `json:"address"`
	Type      CustomerType `json:"customer_type"`
	CreatedAt time.Time    `json:"created_at"`
}
