package security

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/mintforge/packdrop-backend/pkg/errors"
)

type windowLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type limitRecorder interface {
	RecordRateLimited(ctx context.Context) error
}

// CooldownLimiter enforces the per-caller purchase cooldown: one purchase
// per window per caller and channel.
type CooldownLimiter struct {
	store    windowLimiter
	recorder limitRecorder
	window   time.Duration
}

// NewCooldownLimiter wires the limiter. A nil recorder disables counting.
func NewCooldownLimiter(store windowLimiter, recorder limitRecorder, window time.Duration) (*CooldownLimiter, error) {
	if store == nil {
		return nil, fmt.Errorf("limiter store required")
	}
	if window <= 0 {
		return nil, fmt.Errorf("cooldown window must be positive")
	}
	return &CooldownLimiter{store: store, recorder: recorder, window: window}, nil
}

// Allow checks and consumes the caller's purchase slot for this window.
func (l *CooldownLimiter) Allow(ctx context.Context, channel, caller string) error {
	scope := fmt.Sprintf("%s:%s", channel, caller)
	allowed, _, err := l.store.FixedWindowAllow(ctx, scope, 1, l.window)
	if err != nil {
		// Fail closed: an unreachable limiter must not disable the cooldown.
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiter unavailable")
	}
	if !allowed {
		if l.recorder != nil {
			_ = l.recorder.RecordRateLimited(ctx)
		}
		return pkgerrors.New(pkgerrors.CodeRateLimit,
			fmt.Sprintf("purchase cooldown active for %s", caller))
	}
	return nil
}
