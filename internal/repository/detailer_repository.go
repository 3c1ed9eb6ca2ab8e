package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/shinequote/detailer-backend/internal/models"
)

// DetailerRepository owns the tenant rows and their subscription mirror.
type DetailerRepository struct {
	baseRepository
}

// NewDetailerRepository creates a new instance.
func NewDetailerRepository(db *sqlx.DB, timeout time.Duration) *DetailerRepository {
	return &DetailerRepository{baseRepository{db: db, timeout: timeout}}
}

const detailerColumns = `
	id, business_name, email, plan, stripe_account_id, stripe_customer_id,
	subscription_id, subscription_status, created_at, updated_at
`

// GetByID returns a detailer by identifier.
func (r *DetailerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Detailer, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var detailer models.Detailer
	query := `SELECT ` + detailerColumns + ` FROM detailers WHERE id = $1`
	if err := r.db.GetContext(ctx, &detailer, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrDetailerNotFound
		}
		return nil, fmt.Errorf("detailer repository: get by id %w", err)
	}
	return &detailer, nil
}

// GetByStripeCustomerID returns the detailer owning a processor customer.
func (r *DetailerRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*models.Detailer, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var detailer models.Detailer
	query := `SELECT ` + detailerColumns + ` FROM detailers WHERE stripe_customer_id = $1`
	if err := r.db.GetContext(ctx, &detailer, query, customerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrDetailerNotFound
		}
		return nil, fmt.Errorf("detailer repository: get by stripe customer %w", err)
	}
	return &detailer, nil
}

// GetBySubscriptionID returns the detailer mirroring a processor
// subscription.
func (r *DetailerRepository) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Detailer, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var detailer models.Detailer
	query := `SELECT ` + detailerColumns + ` FROM detailers WHERE subscription_id = $1`
	if err := r.db.GetContext(ctx, &detailer, query, subscriptionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrDetailerNotFound
		}
		return nil, fmt.Errorf("detailer repository: get by subscription %w", err)
	}
	return &detailer, nil
}

// UpdatePlan writes the plan and subscription mirror fields. Only the
// webhook reconciler calls this.
func (r *DetailerRepository) UpdatePlan(ctx context.Context, id uuid.UUID, plan string, subscriptionID *string, subscriptionStatus string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE detailers
		SET plan = $2, subscription_id = $3, subscription_status = $4, updated_at = NOW()
		WHERE id = $1
	`, id, plan, subscriptionID, subscriptionStatus)
	if err != nil {
		return fmt.Errorf("detailer repository: update plan %w", err)
	}
	if !rowsAffected(res) {
		return ErrDetailerNotFound
	}
	return nil
}

// UpdateSubscriptionStatus changes only the mirrored status (e.g. past_due
// after a failed invoice); the plan stays untouched.
func (r *DetailerRepository) UpdateSubscriptionStatus(ctx context.Context, subscriptionID string, status string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE detailers SET subscription_status = $2, updated_at = NOW()
		WHERE subscription_id = $1
	`, subscriptionID, status)
	if err != nil {
		return fmt.Errorf("detailer repository: update subscription status %w", err)
	}
	if !rowsAffected(res) {
		return ErrDetailerNotFound
	}
	return nil
}
