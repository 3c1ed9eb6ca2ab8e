package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/shinequote/detailer-backend/internal/models"
)

// ShopRepository owns marketplace products and snapshot orders.
type ShopRepository struct {
	baseRepository
}

// NewShopRepository creates a new instance.
func NewShopRepository(db *sqlx.DB, timeout time.Duration) *ShopRepository {
	return &ShopRepository{baseRepository{db: db, timeout: timeout}}
}

// ListActiveProducts returns every purchasable product.
func (r *ShopRepository) ListActiveProducts(ctx context.Context) ([]models.VendorProduct, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var products []models.VendorProduct
	query := `
		SELECT id, vendor_id, name, price_cents, active, created_at
		FROM vendor_products WHERE active ORDER BY name
	`
	if err := r.db.SelectContext(ctx, &products, query); err != nil {
		return nil, fmt.Errorf("shop repository: list products %w", err)
	}
	return products, nil
}

// ProductWithVendor joins a product with the split-relevant vendor fields.
type ProductWithVendor struct {
	models.VendorProduct
	CommissionTier  string  `db:"commission_tier"`
	VendorStripeAcc *string `db:"vendor_stripe_account_id"`
}

// GetProductsByIDs returns active products with their vendors' commission
// tiers, for snapshotting splits at checkout time.
func (r *ShopRepository) GetProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]ProductWithVendor, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var products []ProductWithVendor
	query := `
		SELECT p.id, p.vendor_id, p.name, p.price_cents, p.active, p.created_at,
		       v.commission_tier, v.stripe_account_id AS vendor_stripe_account_id
		FROM vendor_products p
		JOIN vendors v ON v.id = p.vendor_id
		WHERE p.id = ANY($1) AND p.active
	`
	if err := r.db.SelectContext(ctx, &products, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("shop repository: get products %w", err)
	}
	return products, nil
}

// CreateOrder stores an order and its snapshotted items in one
// transaction. The caller generates the id up front (it is referenced in
// processor session metadata before the local write) and the split columns
// are never recomputed after this write.
func (r *ShopRepository) CreateOrder(ctx context.Context, order *models.ShopOrder, items []models.ShopOrderItem) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("shop repository: begin tx %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowxContext(ctx, `
		INSERT INTO shop_orders (id, customer_email, status, total_cents, stripe_session_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, order.ID, order.CustomerEmail, order.Status, order.TotalCents, order.StripeSessionID,
	).Scan(&order.CreatedAt); err != nil {
		return fmt.Errorf("shop repository: insert order %w", err)
	}

	for i := range items {
		items[i].OrderID = order.ID
		if err := tx.QueryRowxContext(ctx, `
			INSERT INTO shop_order_items (order_id, product_id, vendor_id, name, unit_price_cents, quantity, commission_cents, vendor_amount_cents)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`, items[i].OrderID, items[i].ProductID, items[i].VendorID, items[i].Name,
			items[i].UnitPriceCents, items[i].Quantity, items[i].CommissionCents, items[i].VendorAmountCents,
		).Scan(&items[i].ID); err != nil {
			return fmt.Errorf("shop repository: insert order item %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("shop repository: commit order %w", err)
	}
	order.Items = items
	return nil
}

// GetOrderByID returns an order with its items.
func (r *ShopRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*models.ShopOrder, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var order models.ShopOrder
	query := `
		SELECT id, customer_email, status, total_cents, stripe_session_id,
		       stripe_payment_intent_id, paid_at, refunded_at, created_at
		FROM shop_orders WHERE id = $1
	`
	if err := r.db.GetContext(ctx, &order, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrShopOrderNotFound
		}
		return nil, fmt.Errorf("shop repository: get order %w", err)
	}

	if err := r.db.SelectContext(ctx, &order.Items, `
		SELECT id, order_id, product_id, vendor_id, name, unit_price_cents, quantity, commission_cents, vendor_amount_cents
		FROM shop_order_items WHERE order_id = $1 ORDER BY id
	`, id); err != nil {
		return nil, fmt.Errorf("shop repository: get order items %w", err)
	}
	return &order, nil
}

// MarkPaid moves a pending order to paid. Returns false when the order was
// already paid (duplicate delivery) or refunded.
func (r *ShopRepository) MarkPaid(ctx context.Context, id uuid.UUID, paymentIntentID string, paidAt time.Time) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE shop_orders
		SET status = $2, stripe_payment_intent_id = $3, paid_at = $4
		WHERE id = $1 AND status = $5
	`, id, models.ShopOrderStatusPaid, paymentIntentID, paidAt, models.ShopOrderStatusPending)
	if err != nil {
		return false, fmt.Errorf("shop repository: mark paid %w", err)
	}
	return rowsAffected(res), nil
}

// GetOrderByPaymentIntentID resolves the order a refunded charge belongs to.
func (r *ShopRepository) GetOrderByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.ShopOrder, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var order models.ShopOrder
	query := `
		SELECT id, customer_email, status, total_cents, stripe_session_id,
		       stripe_payment_intent_id, paid_at, refunded_at, created_at
		FROM shop_orders WHERE stripe_payment_intent_id = $1
	`
	if err := r.db.GetContext(ctx, &order, query, paymentIntentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrShopOrderNotFound
		}
		return nil, fmt.Errorf("shop repository: get order by payment intent %w", err)
	}
	return &order, nil
}

// MarkRefunded moves a paid order to refunded. Returns false when the order
// was not paid, which covers duplicate deliveries.
func (r *ShopRepository) MarkRefunded(ctx context.Context, id uuid.UUID, refundedAt time.Time) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE shop_orders
		SET status = $2, refunded_at = $3
		WHERE id = $1 AND status = $4
	`, id, models.ShopOrderStatusRefunded, refundedAt, models.ShopOrderStatusPaid)
	if err != nil {
		return false, fmt.Errorf("shop repository: mark refunded %w", err)
	}
	return rowsAffected(res), nil
}
