package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// A lease outlives the widest expected cycle so a crashed holder cannot
// wedge the schedule for more than one interval.
const defaultLeaseTTL = 25 * time.Hour

// Lock gates a sweep cycle to a single worker replica.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// LeaseLock is a redis SETNX lease keyed per environment. Every acquire
// writes a fresh token, and release only deletes the key while that token
// still holds it, so a replica whose lease expired cannot drop a lease
// someone else claimed since.
type LeaseLock struct {
	store leaseStore
	key   string
	ttl   time.Duration
	token string
}

// NewLeaseLock builds a lease on the given key. A non-positive ttl falls
// back to the default.
func NewLeaseLock(store leaseStore, key string, ttl time.Duration) (*LeaseLock, error) {
	if store == nil {
		return nil, errors.New("redis store required for lease lock")
	}
	if key == "" {
		return nil, errors.New("lease key is required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &LeaseLock{store: store, key: key, ttl: ttl}, nil
}

// Acquire claims the lease for the TTL. False means another replica holds it.
func (l *LeaseLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	claimed, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("claim sweep lease: %w", err)
	}
	if !claimed {
		return false, nil
	}
	l.token = token
	return true, nil
}

// Release drops the lease if this instance still holds it.
func (l *LeaseLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	holder, err := l.store.Get(ctx, l.key)
	switch {
	case errors.Is(err, redis.Nil):
		l.token = ""
		return nil
	case err != nil:
		return fmt.Errorf("read sweep lease: %w", err)
	case holder != l.token:
		// The lease expired mid-cycle and another replica claimed it.
		l.token = ""
		return nil
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("drop sweep lease: %w", err)
	}
	l.token = ""
	return nil
}
