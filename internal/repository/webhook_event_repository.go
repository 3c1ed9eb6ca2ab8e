package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// WebhookEventRepository durably records processor events. The unique
// constraint on stripe_event_id doubles as the event-level idempotency key.
type WebhookEventRepository struct {
	baseRepository
}

// NewWebhookEventRepository creates a new instance.
func NewWebhookEventRepository(db *sqlx.DB, timeout time.Duration) *WebhookEventRepository {
	return &WebhookEventRepository{baseRepository{db: db, timeout: timeout}}
}

// Record inserts the event and reports whether this delivery was the first
// one. A duplicate event id inserts nothing and returns false.
func (r *WebhookEventRepository) Record(ctx context.Context, stripeEventID, eventType string, payload json.RawMessage) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var id string
	err := r.db.GetContext(ctx, &id, `
		INSERT INTO webhook_events (stripe_event_id, type, payload, disposition)
		VALUES ($1, $2, $3, 'received')
		ON CONFLICT (stripe_event_id) DO NOTHING
		RETURNING id
	`, stripeEventID, eventType, []byte(payload))
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("webhook event repository: record %w", err)
	}
	return true, nil
}

// GetDisposition returns the recorded outcome for an event id.
func (r *WebhookEventRepository) GetDisposition(ctx context.Context, stripeEventID string) (string, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var disposition string
	err := r.db.GetContext(ctx, &disposition,
		`SELECT disposition FROM webhook_events WHERE stripe_event_id = $1`, stripeEventID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("webhook event repository: event %s not recorded", stripeEventID)
	}
	if err != nil {
		return "", fmt.Errorf("webhook event repository: get disposition %w", err)
	}
	return disposition, nil
}

// SetDisposition writes the processing outcome for an event.
func (r *WebhookEventRepository) SetDisposition(ctx context.Context, stripeEventID, disposition string, detail *string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_events
		SET disposition = $2, detail = $3, processed_at = $4
		WHERE stripe_event_id = $1
	`, stripeEventID, disposition, detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("webhook event repository: set disposition %w", err)
	}
	return nil
}
