package models

import (
	"time"

	"github.com/google/uuid"
)

// Quote is a priced service proposal issued by a detailer to a customer.
// It is the central monetary document: total_price_cents always equals the
// sum of its line items.
type Quote struct {
	ID         uuid.UUID `db:"id" json:"id"`
	DetailerID uuid.UUID `db:"detailer_id" json:"detailer_id"`

	// ShareLink is the public unguessable token for customer-facing access,
	// distinct from the id.
	ShareLink string `db:"share_link" json:"share_link"`

	CustomerName  string `db:"customer_name" json:"customer_name"`
	CustomerEmail string `db:"customer_email" json:"customer_email"`
	CustomerPhone string `db:"customer_phone" json:"customer_phone"`

	TotalPriceCents int64  `db:"total_price_cents" json:"total_price_cents"`
	Status          string `db:"status" json:"status"`

	ValidUntil  *time.Time `db:"valid_until" json:"valid_until,omitempty"`
	SentAt      *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	ViewedAt    *time.Time `db:"viewed_at" json:"viewed_at,omitempty"`
	PaidAt      *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	RefundedAt  *time.Time `db:"refunded_at" json:"refunded_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`

	StripeSessionID       *string `db:"stripe_session_id" json:"stripe_session_id,omitempty"`
	StripePaymentIntentID *string `db:"stripe_payment_intent_id" json:"stripe_payment_intent_id,omitempty"`
	StripeRefundID        *string `db:"stripe_refund_id" json:"stripe_refund_id,omitempty"`

	// PaidAmountCents snapshots the amount actually charged on the quote's
	// checkout session. Change orders grow total_price_cents afterwards, so
	// refund bounds are checked against this snapshot.
	PaidAmountCents   int64 `db:"paid_amount_cents" json:"paid_amount_cents"`
	RefundAmountCents int64 `db:"refund_amount_cents" json:"refund_amount_cents"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	LineItems []QuoteLineItem `json:"line_items,omitempty"`
}

// QuoteLineItem is one priced line of a quote. Line items are append-only:
// never reordered, never deleted after creation.
type QuoteLineItem struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	QuoteID       uuid.UUID  `db:"quote_id" json:"quote_id"`
	Position      int        `db:"position" json:"position"`
	Description   string     `db:"description" json:"description"`
	AmountCents   int64      `db:"amount_cents" json:"amount_cents"`
	IsChangeOrder bool       `db:"is_change_order" json:"is_change_order"`
	ChangeOrderID *uuid.UUID `db:"change_order_id" json:"change_order_id,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// CustomerContact carries the counterparty's contact details for sending.
type CustomerContact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}
