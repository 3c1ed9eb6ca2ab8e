package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/shinequote/detailer-backend/internal/models"
)

// Repository-level errors.
var (
	ErrQuoteNotFound       = errors.New("quote not found")
	ErrQuoteTerminal       = errors.New("quote is in a terminal status")
	ErrChangeOrderNotFound = errors.New("change order not found")
	ErrDetailerNotFound    = errors.New("detailer not found")
	ErrShopOrderNotFound   = errors.New("shop order not found")
)

// QuoteRepository owns quote rows and their append-only line items.
type QuoteRepository struct {
	baseRepository
}

// NewQuoteRepository creates a new instance.
func NewQuoteRepository(db *sqlx.DB, timeout time.Duration) *QuoteRepository {
	return &QuoteRepository{baseRepository{db: db, timeout: timeout}}
}

const quoteColumns = `
	id, detailer_id, share_link, customer_name, customer_email, customer_phone,
	total_price_cents, status, valid_until, sent_at, viewed_at, paid_at,
	refunded_at, completed_at, stripe_session_id, stripe_payment_intent_id,
	stripe_refund_id, paid_amount_cents, refund_amount_cents, created_at, updated_at
`

// Create stores a quote and its line items in one transaction.
func (r *QuoteRepository) Create(ctx context.Context, quote *models.Quote, items []models.QuoteLineItem) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("quote repository: begin tx %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO quotes (detailer_id, share_link, customer_name, customer_email, customer_phone, total_price_cents, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	if err := tx.QueryRowxContext(ctx, query,
		quote.DetailerID, quote.ShareLink, quote.CustomerName, quote.CustomerEmail,
		quote.CustomerPhone, quote.TotalPriceCents, quote.Status,
	).Scan(&quote.ID, &quote.CreatedAt, &quote.UpdatedAt); err != nil {
		return fmt.Errorf("quote repository: insert quote %w", err)
	}

	for i := range items {
		items[i].QuoteID = quote.ID
		items[i].Position = i + 1
		if err := tx.QueryRowxContext(ctx, `
			INSERT INTO quote_line_items (quote_id, position, description, amount_cents, is_change_order, change_order_id)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at
		`, items[i].QuoteID, items[i].Position, items[i].Description,
			items[i].AmountCents, items[i].IsChangeOrder, items[i].ChangeOrderID,
		).Scan(&items[i].ID, &items[i].CreatedAt); err != nil {
			return fmt.Errorf("quote repository: insert line item %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("quote repository: commit create %w", err)
	}
	quote.LineItems = items
	return nil
}

// GetByID returns a quote by identifier.
func (r *QuoteRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var quote models.Quote
	query := `SELECT ` + quoteColumns + ` FROM quotes WHERE id = $1`
	if err := r.db.GetContext(ctx, &quote, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrQuoteNotFound
		}
		return nil, fmt.Errorf("quote repository: get by id %w", err)
	}
	return &quote, nil
}

// GetByShareLink returns a quote by its customer-facing token.
func (r *QuoteRepository) GetByShareLink(ctx context.Context, shareLink string) (*models.Quote, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var quote models.Quote
	query := `SELECT ` + quoteColumns + ` FROM quotes WHERE share_link = $1`
	if err := r.db.GetContext(ctx, &quote, query, shareLink); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrQuoteNotFound
		}
		return nil, fmt.Errorf("quote repository: get by share link %w", err)
	}
	return &quote, nil
}

// GetByPaymentIntentID returns the quote carrying the given payment intent.
func (r *QuoteRepository) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Quote, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var quote models.Quote
	query := `SELECT ` + quoteColumns + ` FROM quotes WHERE stripe_payment_intent_id = $1`
	if err := r.db.GetContext(ctx, &quote, query, paymentIntentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrQuoteNotFound
		}
		return nil, fmt.Errorf("quote repository: get by payment intent %w", err)
	}
	return &quote, nil
}

// ListByDetailer returns the detailer's quotes, newest first.
func (r *QuoteRepository) ListByDetailer(ctx context.Context, detailerID uuid.UUID, limit, offset int) ([]models.Quote, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var quotes []models.Quote
	query := `SELECT ` + quoteColumns + ` FROM quotes WHERE detailer_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &quotes, query, detailerID, limit, offset); err != nil {
		return nil, fmt.Errorf("quote repository: list by detailer %w", err)
	}
	return quotes, nil
}

// ListItems returns a quote's line items in append order.
func (r *QuoteRepository) ListItems(ctx context.Context, quoteID uuid.UUID) ([]models.QuoteLineItem, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var items []models.QuoteLineItem
	query := `
		SELECT id, quote_id, position, description, amount_cents, is_change_order, change_order_id, created_at
		FROM quote_line_items
		WHERE quote_id = $1
		ORDER BY position
	`
	if err := r.db.SelectContext(ctx, &items, query, quoteID); err != nil {
		return nil, fmt.Errorf("quote repository: list items %w", err)
	}
	return items, nil
}

// MarkSentFromDraft moves draft -> sent, sets the contact, share link,
// validity window and sent_at. Returns false when the quote was not draft.
func (r *QuoteRepository) MarkSentFromDraft(ctx context.Context, id uuid.UUID, contact models.CustomerContact, shareLink string, validUntil time.Time, sentAt time.Time) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE quotes
		SET status = $2, customer_name = $3, customer_email = $4, customer_phone = $5,
		    share_link = $6, valid_until = $7, sent_at = $8, updated_at = NOW()
		WHERE id = $1 AND status = $9
	`, id, models.QuoteStatusSent, contact.Name, contact.Email, contact.Phone,
		shareLink, validUntil, sentAt, models.QuoteStatusDraft)
	if err != nil {
		return false, fmt.Errorf("quote repository: mark sent %w", err)
	}
	return rowsAffected(res), nil
}

// UpdateContact refreshes the counterparty contact fields on a re-send.
func (r *QuoteRepository) UpdateContact(ctx context.Context, id uuid.UUID, contact models.CustomerContact) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE quotes
		SET customer_name = $2, customer_email = $3, customer_phone = $4, updated_at = NOW()
		WHERE id = $1
	`, id, contact.Name, contact.Email, contact.Phone)
	if err != nil {
		return fmt.Errorf("quote repository: update contact %w", err)
	}
	return nil
}

// MarkViewed moves sent -> viewed. Returns false when the quote is in any
// other status; a later status never regresses.
func (r *QuoteRepository) MarkViewed(ctx context.Context, id uuid.UUID, viewedAt time.Time) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE quotes
		SET status = $2, viewed_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, models.QuoteStatusViewed, viewedAt, models.QuoteStatusSent)
	if err != nil {
		return false, fmt.Errorf("quote repository: mark viewed %w", err)
	}
	return rowsAffected(res), nil
}

// SetCheckoutSession records the processor session id after the processor
// confirmed its creation. Reserve-after-confirm keeps local state free of
// sessions the processor never saw.
func (r *QuoteRepository) SetCheckoutSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE quotes SET stripe_session_id = $2, updated_at = NOW() WHERE id = $1
	`, id, sessionID)
	if err != nil {
		return fmt.Errorf("quote repository: set checkout session %w", err)
	}
	return nil
}

// ApplyPayment moves a sent/viewed quote to paid and records the payment
// linkage plus the charged-amount snapshot. The status condition is the
// single-writer guard against duplicate webhook deliveries.
func (r *QuoteRepository) ApplyPayment(ctx context.Context, id uuid.UUID, sessionID, paymentIntentID string, paidAt time.Time) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE quotes
		SET status = $2, stripe_session_id = $3, stripe_payment_intent_id = $4,
		    paid_at = $5, paid_amount_cents = total_price_cents, updated_at = NOW()
		WHERE id = $1 AND status = ANY($6)
	`, id, models.QuoteStatusPaid, sessionID, paymentIntentID, paidAt,
		pq.Array([]string{models.QuoteStatusSent, models.QuoteStatusViewed}))
	if err != nil {
		return false, fmt.Errorf("quote repository: apply payment %w", err)
	}
	return rowsAffected(res), nil
}

// TransitionStatus performs a guarded forward transition. Returns false
// when the quote was not in any of the allowed source statuses.
func (r *QuoteRepository) TransitionStatus(ctx context.Context, id uuid.UUID, to string, from []string) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE quotes SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`, id, to, pq.Array(from))
	if err != nil {
		return false, fmt.Errorf("quote repository: transition to %s %w", to, err)
	}
	return rowsAffected(res), nil
}

// Complete moves the quote to completed and stamps completed_at.
func (r *QuoteRepository) Complete(ctx context.Context, id uuid.UUID, completedAt time.Time, from []string) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE quotes SET status = $2, completed_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = ANY($4)
	`, id, models.QuoteStatusCompleted, completedAt, pq.Array(from))
	if err != nil {
		return false, fmt.Errorf("quote repository: complete %w", err)
	}
	return rowsAffected(res), nil
}

// ApplyRefund writes the new cumulative refund total and status. The
// compare-and-swap on refund_amount_cents prevents lost updates when two
// deliveries interleave; the status condition keeps the edge legal.
func (r *QuoteRepository) ApplyRefund(ctx context.Context, id uuid.UUID, refundID *string, newRefundTotalCents int64, expectedPrevRefundCents int64, newStatus string, refundedAt time.Time) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE quotes
		SET status = $2, refund_amount_cents = $3, stripe_refund_id = COALESCE($4, stripe_refund_id),
		    refunded_at = COALESCE(refunded_at, $5), updated_at = NOW()
		WHERE id = $1 AND refund_amount_cents = $6 AND status = ANY($7)
	`, id, newStatus, newRefundTotalCents, refundID, refundedAt, expectedPrevRefundCents,
		pq.Array([]string{
			models.QuoteStatusPaid, models.QuoteStatusApproved,
			models.QuoteStatusScheduled, models.QuoteStatusInProgress,
			models.QuoteStatusCompleted, models.QuoteStatusPartialRefund,
		}))
	if err != nil {
		return false, fmt.Errorf("quote repository: apply refund %w", err)
	}
	return rowsAffected(res), nil
}

// ExpireDue moves every unpaid sent/viewed quote past its validity window
// to expired and returns the affected ids. Quotes in money-moved states are
// untouched by construction of the status condition.
func (r *QuoteRepository) ExpireDue(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var ids []uuid.UUID
	rows, err := r.db.QueryxContext(ctx, `
		UPDATE quotes SET status = $1, updated_at = NOW()
		WHERE status = ANY($2) AND valid_until IS NOT NULL AND valid_until < $3
		RETURNING id
	`, models.QuoteStatusExpired,
		pq.Array([]string{models.QuoteStatusSent, models.QuoteStatusViewed}), now)
	if err != nil {
		return nil, fmt.Errorf("quote repository: expire due %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("quote repository: scan expired id %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func rowsAffected(res sql.Result) bool {
	n, err := res.RowsAffected()
	return err == nil && n > 0
}
