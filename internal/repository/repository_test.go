package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBoundAppliesDeadline(t *testing.T) {
	repo := NewQuoteRepository(nil, 5*time.Second)

	ctx, cancel := repo.bound(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	assert.True(t, ok, "storage operations must carry a deadline")
	assert.WithinDuration(t, time.Now().Add(5*time.Second), deadline, time.Second)
}

func TestBoundZeroTimeoutPassesThrough(t *testing.T) {
	repo := NewQuoteRepository(nil, 0)

	ctx, cancel := repo.bound(context.Background())
	defer cancel()

	_, ok := ctx.Deadline()
	assert.False(t, ok)
}

func TestBoundKeepsTighterCallerDeadline(t *testing.T) {
	repo := NewQuoteRepository(nil, time.Hour)

	parent, parentCancel := context.WithTimeout(context.Background(), time.Second)
	defer parentCancel()

	ctx, cancel := repo.bound(parent)
	defer cancel()

	deadline, ok := ctx.Deadline()
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 500*time.Millisecond)
}
