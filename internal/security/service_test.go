package security

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mintforge/packdrop-backend/pkg/config"
	"github.com/mintforge/packdrop-backend/pkg/db"
	"github.com/mintforge/packdrop-backend/pkg/db/models"
	"github.com/mintforge/packdrop-backend/pkg/enums"
	pkgerrors "github.com/mintforge/packdrop-backend/pkg/errors"
	"github.com/mintforge/packdrop-backend/pkg/outbox"
)

func newTestClient(t *testing.T) *db.Client {
	t.Helper()
	dsn := "file:security_" + uuid.NewString() + "?mode=memory&cache=shared"
	client, err := db.New(context.Background(), config.DBConfig{DSN: dsn}, true, nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := client.DB().AutoMigrate(&models.SecurityState{}, &models.OutboxEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return client
}

func newTestService(t *testing.T) (Service, *db.Client) {
	t.Helper()
	client := newTestClient(t)
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	svc, err := NewService(NewRepository(client.DB()), client, emitter, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return svc, client
}

func TestToggleFlagEmitsEvent(t *testing.T) {
	t.Parallel()

	svc, client := newTestService(t)
	ctx := context.Background()

	if err := svc.ToggleFlag(ctx, FlagPaused, true, "0xadmin"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	paused, err := svc.Paused(ctx)
	if err != nil || !paused {
		t.Fatalf("expected paused, got %v err=%v", paused, err)
	}

	var events []models.OutboxEvent
	if err := client.DB().Find(&events).Error; err != nil {
		t.Fatalf("load outbox: %v", err)
	}
	if len(events) != 1 || events[0].EventType != enums.EventPauseToggled {
		t.Fatalf("expected pause_toggled event, got %+v", events)
	}

	// No-op toggle emits nothing.
	if err := svc.ToggleFlag(ctx, FlagPaused, true, "0xadmin"); err != nil {
		t.Fatalf("repeat toggle: %v", err)
	}
	if err := client.DB().Find(&events).Error; err != nil {
		t.Fatalf("load outbox: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("no-op toggle emitted an event: %+v", events)
	}
}

func TestRequireOperational(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.RequireOperational(ctx); err != nil {
		t.Fatalf("fresh state should be operational: %v", err)
	}

	if err := svc.ToggleFlag(ctx, FlagMintingLocked, true, "0xadmin"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := svc.RequireOperational(ctx); !pkgerrors.HasCode(err, pkgerrors.CodeEngineLocked) {
		t.Fatalf("expected engine locked, got %v", err)
	}

	if err := svc.ToggleFlag(ctx, FlagMintingLocked, false, "0xadmin"); err != nil {
		t.Fatalf("untoggle: %v", err)
	}
	if err := svc.RequireOperational(ctx); err != nil {
		t.Fatalf("unlocked state should be operational: %v", err)
	}
}

func TestGuardRefusesReentry(t *testing.T) {
	t.Parallel()

	guard := NewGuard()
	if err := guard.Enter(); err != nil {
		t.Fatalf("first enter: %v", err)
	}
	if err := guard.Enter(); !pkgerrors.HasCode(err, pkgerrors.CodeReentry) {
		t.Fatalf("expected reentry error, got %v", err)
	}
	guard.Exit()
	if err := guard.Enter(); err != nil {
		t.Fatalf("enter after exit: %v", err)
	}
}

func TestGuardUnderContention(t *testing.T) {
	t.Parallel()

	guard := NewGuard()
	var wg sync.WaitGroup
	var entered, refused int64
	var mu sync.Mutex

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := guard.Enter(); err != nil {
				mu.Lock()
				refused++
				mu.Unlock()
				return
			}
			time.Sleep(time.Millisecond)
			mu.Lock()
			entered++
			mu.Unlock()
			guard.Exit()
		}()
	}
	wg.Wait()

	if entered == 0 || entered+refused != 32 {
		t.Fatalf("entered=%d refused=%d", entered, refused)
	}
}

type fakeWindow struct {
	counts map[string]int64
}

func (f *fakeWindow) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func TestCooldownLimiter(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	limiter, err := NewCooldownLimiter(&fakeWindow{}, svc, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	ctx := context.Background()

	if err := limiter.Allow(ctx, "pack", "0xalice"); err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	if err := limiter.Allow(ctx, "pack", "0xalice"); !pkgerrors.HasCode(err, pkgerrors.CodeRateLimit) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	// Different channel and caller scopes are independent.
	if err := limiter.Allow(ctx, "deck", "0xalice"); err != nil {
		t.Fatalf("deck purchase: %v", err)
	}
	if err := limiter.Allow(ctx, "pack", "0xbob"); err != nil {
		t.Fatalf("other caller: %v", err)
	}

	state, err := svc.State(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.RateLimited != 1 {
		t.Fatalf("expected one rate-limited hit, got %d", state.RateLimited)
	}
}
