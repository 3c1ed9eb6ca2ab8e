package models

import (
	"time"

	"github.com/google/uuid"
)

// ChangeOrder is an amendment proposed against an already-sent quote.
// Its status moves pending -> approved or pending -> declined, never back.
type ChangeOrder struct {
	ID      uuid.UUID `db:"id" json:"id"`
	QuoteID uuid.UUID `db:"quote_id" json:"quote_id"`

	// ApprovalToken is the customer-facing token. It is written in a second
	// step after the row exists; a change order without a token is inert.
	ApprovalToken *string `db:"approval_token" json:"approval_token,omitempty"`

	AmountCents int64  `db:"amount_cents" json:"amount_cents"`
	Reason      string `db:"reason" json:"reason"`
	Status      string `db:"status" json:"status"`

	PaymentIntentID *string    `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	ProcessedAt     *time.Time `db:"processed_at" json:"processed_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	Services []ChangeOrderService `json:"services,omitempty"`
}

// ChangeOrderService is one added service line of a change order.
type ChangeOrderService struct {
	ID            uuid.UUID `db:"id" json:"id"`
	ChangeOrderID uuid.UUID `db:"change_order_id" json:"change_order_id"`
	Position      int       `db:"position" json:"position"`
	Name          string    `db:"name" json:"name"`
	AmountCents   int64     `db:"amount_cents" json:"amount_cents"`
}
