package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/shinequote/detailer-backend/internal/models"
)

// ErrChangeOrderProcessed signals that a pending-only update found the
// change order already approved or declined.
var ErrChangeOrderProcessed = errors.New("change order already processed")

// ChangeOrderRepository owns amendment rows and the atomic application of
// approved amendments into the owning quote.
type ChangeOrderRepository struct {
	baseRepository
}

// NewChangeOrderRepository creates a new instance.
func NewChangeOrderRepository(db *sqlx.DB, timeout time.Duration) *ChangeOrderRepository {
	return &ChangeOrderRepository{baseRepository{db: db, timeout: timeout}}
}

const changeOrderColumns = `
	id, quote_id, approval_token, amount_cents, reason, status,
	payment_intent_id, processed_at, created_at, updated_at
`

// Create inserts a pending change order with its service lines. The
// approval token is deliberately not written here: activation is a second
// step, so a failure in between leaves an inert row rather than a live
// half-priced amendment.
func (r *ChangeOrderRepository) Create(ctx context.Context, co *models.ChangeOrder, services []models.ChangeOrderService) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("change order repository: begin tx %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowxContext(ctx, `
		INSERT INTO change_orders (quote_id, amount_cents, reason, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, co.QuoteID, co.AmountCents, co.Reason, co.Status,
	).Scan(&co.ID, &co.CreatedAt, &co.UpdatedAt); err != nil {
		return fmt.Errorf("change order repository: insert %w", err)
	}

	for i := range services {
		services[i].ChangeOrderID = co.ID
		services[i].Position = i + 1
		if err := tx.QueryRowxContext(ctx, `
			INSERT INTO change_order_services (change_order_id, position, name, amount_cents)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, services[i].ChangeOrderID, services[i].Position, services[i].Name, services[i].AmountCents,
		).Scan(&services[i].ID); err != nil {
			return fmt.Errorf("change order repository: insert service %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("change order repository: commit create %w", err)
	}
	co.Services = services
	return nil
}

// SetApprovalToken activates the change order for customer access.
func (r *ChangeOrderRepository) SetApprovalToken(ctx context.Context, id uuid.UUID, token string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE change_orders SET approval_token = $2, updated_at = NOW() WHERE id = $1
	`, id, token)
	if err != nil {
		return fmt.Errorf("change order repository: set approval token %w", err)
	}
	if !rowsAffected(res) {
		return ErrChangeOrderNotFound
	}
	return nil
}

// GetByID returns a change order by identifier.
func (r *ChangeOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ChangeOrder, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var co models.ChangeOrder
	query := `SELECT ` + changeOrderColumns + ` FROM change_orders WHERE id = $1`
	if err := r.db.GetContext(ctx, &co, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrChangeOrderNotFound
		}
		return nil, fmt.Errorf("change order repository: get by id %w", err)
	}
	return &co, nil
}

// GetByToken returns an activated change order by its approval token.
func (r *ChangeOrderRepository) GetByToken(ctx context.Context, token string) (*models.ChangeOrder, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var co models.ChangeOrder
	query := `SELECT ` + changeOrderColumns + ` FROM change_orders WHERE approval_token = $1`
	if err := r.db.GetContext(ctx, &co, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrChangeOrderNotFound
		}
		return nil, fmt.Errorf("change order repository: get by token %w", err)
	}
	return &co, nil
}

// ListByQuote returns a quote's change orders, oldest first.
func (r *ChangeOrderRepository) ListByQuote(ctx context.Context, quoteID uuid.UUID) ([]models.ChangeOrder, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var orders []models.ChangeOrder
	query := `SELECT ` + changeOrderColumns + ` FROM change_orders WHERE quote_id = $1 ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &orders, query, quoteID); err != nil {
		return nil, fmt.Errorf("change order repository: list by quote %w", err)
	}
	return orders, nil
}

// ListServices returns the service lines of a change order in order.
func (r *ChangeOrderRepository) ListServices(ctx context.Context, changeOrderID uuid.UUID) ([]models.ChangeOrderService, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var services []models.ChangeOrderService
	query := `
		SELECT id, change_order_id, position, name, amount_cents
		FROM change_order_services
		WHERE change_order_id = $1
		ORDER BY position
	`
	if err := r.db.SelectContext(ctx, &services, query, changeOrderID); err != nil {
		return nil, fmt.Errorf("change order repository: list services %w", err)
	}
	return services, nil
}

// Decline moves pending -> declined. Returns ErrChangeOrderProcessed when
// the change order is no longer pending.
func (r *ChangeOrderRepository) Decline(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE change_orders SET status = $2, processed_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, models.ChangeOrderStatusDeclined, processedAt, models.ChangeOrderStatusPending)
	if err != nil {
		return fmt.Errorf("change order repository: decline %w", err)
	}
	if !rowsAffected(res) {
		return ErrChangeOrderProcessed
	}
	return nil
}

// ApproveAndApply flips a pending change order to approved and appends its
// services into the owning quote within one transaction. The quote row is
// locked first so concurrent deliveries and the refund path serialize; a
// failure anywhere rolls back both sides.
func (r *ChangeOrderRepository) ApproveAndApply(ctx context.Context, id uuid.UUID, paymentIntentID string, processedAt time.Time) (*models.ChangeOrder, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("change order repository: begin tx %w", err)
	}
	defer tx.Rollback()

	var co models.ChangeOrder
	if err := tx.GetContext(ctx, &co,
		`SELECT `+changeOrderColumns+` FROM change_orders WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrChangeOrderNotFound
		}
		return nil, fmt.Errorf("change order repository: load %w", err)
	}

	// Single-writer-per-quote discipline: the row lock serializes this
	// path against other webhook deliveries and the refund path.
	var quoteStatus string
	if err := tx.GetContext(ctx, &quoteStatus,
		`SELECT status FROM quotes WHERE id = $1 FOR UPDATE`, co.QuoteID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrQuoteNotFound
		}
		return nil, fmt.Errorf("change order repository: lock quote %w", err)
	}
	// The checkout-time check ran before the session was created; by the
	// time the payment evidence lands the quote may have been refunded,
	// declined or expired. A terminal quote accepts no change orders.
	if models.IsQuoteTerminal(quoteStatus) {
		return nil, ErrQuoteTerminal
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE change_orders SET status = $2, payment_intent_id = $3, processed_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = $5
	`, id, models.ChangeOrderStatusApproved, paymentIntentID, processedAt, models.ChangeOrderStatusPending)
	if err != nil {
		return nil, fmt.Errorf("change order repository: approve %w", err)
	}
	if !rowsAffected(res) {
		return &co, ErrChangeOrderProcessed
	}

	var services []models.ChangeOrderService
	if err := tx.SelectContext(ctx, &services, `
		SELECT id, change_order_id, position, name, amount_cents
		FROM change_order_services WHERE change_order_id = $1 ORDER BY position
	`, id); err != nil {
		return nil, fmt.Errorf("change order repository: load services %w", err)
	}

	var nextPosition int
	if err := tx.GetContext(ctx, &nextPosition,
		`SELECT COALESCE(MAX(position), 0) + 1 FROM quote_line_items WHERE quote_id = $1`, co.QuoteID); err != nil {
		return nil, fmt.Errorf("change order repository: next position %w", err)
	}

	for i, svc := range services {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO quote_line_items (quote_id, position, description, amount_cents, is_change_order, change_order_id)
			VALUES ($1, $2, $3, $4, TRUE, $5)
		`, co.QuoteID, nextPosition+i, svc.Name, svc.AmountCents, co.ID); err != nil {
			return nil, fmt.Errorf("change order repository: append line item %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE quotes SET total_price_cents = total_price_cents + $2, updated_at = NOW() WHERE id = $1
	`, co.QuoteID, co.AmountCents); err != nil {
		return nil, fmt.Errorf("change order repository: grow quote total %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("change order repository: commit approve %w", err)
	}

	co.Status = models.ChangeOrderStatusApproved
	co.PaymentIntentID = &paymentIntentID
	co.ProcessedAt = &processedAt
	co.Services = services
	return &co, nil
}
