package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// baseRepository carries the shared connection and the deadline applied to
// every storage operation.
type baseRepository struct {
	db      *sqlx.DB
	timeout time.Duration
}

// bound caps one storage operation with the configured deadline so a slow
// database cannot pin a request indefinitely.
func (b baseRepository) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}
