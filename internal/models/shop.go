package models

import (
	"time"

	"github.com/google/uuid"
)

// Vendor sells products on the secondary marketplace. Its commission tier
// fixes the platform's take-rate on every sale.
type Vendor struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	CommissionTier  string    `db:"commission_tier" json:"commission_tier"`
	StripeAccountID *string   `db:"stripe_account_id" json:"stripe_account_id,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// VendorProduct is a marketplace listing.
type VendorProduct struct {
	ID         uuid.UUID `db:"id" json:"id"`
	VendorID   uuid.UUID `db:"vendor_id" json:"vendor_id"`
	Name       string    `db:"name" json:"name"`
	PriceCents int64     `db:"price_cents" json:"price_cents"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ShopOrder is a marketplace purchase. Item prices and commission splits
// are snapshotted at checkout time and never recomputed afterwards.
type ShopOrder struct {
	ID            uuid.UUID `db:"id" json:"id"`
	CustomerEmail string    `db:"customer_email" json:"customer_email"`
	Status        string    `db:"status" json:"status"`
	TotalCents    int64     `db:"total_cents" json:"total_cents"`

	StripeSessionID       *string    `db:"stripe_session_id" json:"stripe_session_id,omitempty"`
	StripePaymentIntentID *string    `db:"stripe_payment_intent_id" json:"stripe_payment_intent_id,omitempty"`
	PaidAt                *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	RefundedAt            *time.Time `db:"refunded_at" json:"refunded_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`

	Items []ShopOrderItem `json:"items,omitempty"`
}

// ShopOrderItem is one snapshotted order line with its locked-in split.
type ShopOrderItem struct {
	ID                uuid.UUID `db:"id" json:"id"`
	OrderID           uuid.UUID `db:"order_id" json:"order_id"`
	ProductID         uuid.UUID `db:"product_id" json:"product_id"`
	VendorID          uuid.UUID `db:"vendor_id" json:"vendor_id"`
	Name              string    `db:"name" json:"name"`
	UnitPriceCents    int64     `db:"unit_price_cents" json:"unit_price_cents"`
	Quantity          int       `db:"quantity" json:"quantity"`
	CommissionCents   int64     `db:"commission_cents" json:"commission_cents"`
	VendorAmountCents int64     `db:"vendor_amount_cents" json:"vendor_amount_cents"`
}
