package models

import (
	"time"

	"github.com/google/uuid"
)

// Detailer is the seller tenant. Its plan drives the platform fee rate and
// its connect account receives the non-fee portion of every payment.
type Detailer struct {
	ID           uuid.UUID `db:"id" json:"id"`
	BusinessName string    `db:"business_name" json:"business_name"`
	Email        string    `db:"email" json:"email"`
	Plan         string    `db:"plan" json:"plan"`

	StripeAccountID  *string `db:"stripe_account_id" json:"stripe_account_id,omitempty"`
	StripeCustomerID *string `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`

	// Subscription mirror fields, written only by the webhook reconciler.
	SubscriptionID     *string `db:"subscription_id" json:"subscription_id,omitempty"`
	SubscriptionStatus string  `db:"subscription_status" json:"subscription_status"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
