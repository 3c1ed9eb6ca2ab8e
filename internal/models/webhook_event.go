package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookEvent durably records every authentic processor event before it is
// applied. The unique stripe_event_id makes duplicate deliveries visible,
// and permanently-malformed events stay here for later reconciliation
// instead of looping through processor retries.
type WebhookEvent struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	StripeEventID string          `db:"stripe_event_id" json:"stripe_event_id"`
	Type          string          `db:"type" json:"type"`
	Payload       json.RawMessage `db:"payload" json:"payload"`
	Disposition   string          `db:"disposition" json:"disposition"`
	Detail        *string         `db:"detail" json:"detail,omitempty"`
	ReceivedAt    time.Time       `db:"received_at" json:"received_at"`
	ProcessedAt   *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}
