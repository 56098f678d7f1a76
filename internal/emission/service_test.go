package emission

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mintforge/packdrop-backend/pkg/db/models"
	"github.com/mintforge/packdrop-backend/pkg/enums"
	pkgerrors "github.com/mintforge/packdrop-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:emission_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.EmissionState{}, &models.CallerStat{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func newTestService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(conn), nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestBootstrapValidation(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, newTestDB(t))
	ctx := context.Background()

	cases := []struct {
		cap      int64
		packSize int
	}{
		{cap: 0, packSize: 15},
		{cap: -15, packSize: 15},
		{cap: 100, packSize: 15},
		{cap: 150, packSize: 0},
	}
	for _, tc := range cases {
		if _, err := svc.Bootstrap(ctx, tc.cap, tc.packSize); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("expected validation error for cap=%d pack=%d, got %v", tc.cap, tc.packSize, err)
		}
	}
}

func TestBootstrapIdempotentButPinned(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, newTestDB(t))
	ctx := context.Background()

	if _, err := svc.Bootstrap(ctx, 150, 15); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	// Same parameters are a no-op.
	state, err := svc.Bootstrap(ctx, 150, 15)
	if err != nil {
		t.Fatalf("rebootstrap: %v", err)
	}
	if state.EmissionCap != 150 || state.PackSize != 15 {
		t.Fatalf("unexpected state: %+v", state)
	}
	// Changed parameters are refused.
	if _, err := svc.Bootstrap(ctx, 300, 15); !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCommitStopsAtCap(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	if _, err := svc.Bootstrap(ctx, 30, 15); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	for i := 0; i < 2; i++ {
		err := conn.Transaction(func(tx *gorm.DB) error {
			return svc.Commit(ctx, tx, "0xbuyer", 15, enums.EmissionKindPack, 1)
		})
		if err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Commit(ctx, tx, "0xbuyer", 15, enums.EmissionKindPack, 1)
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeCapExceeded) {
		t.Fatalf("expected cap exceeded, got %v", err)
	}

	state, err := svc.Totals(ctx)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if state.TotalEmitted != 30 || state.Remaining() != 0 || state.PacksOpened != 2 {
		t.Fatalf("unexpected totals: %+v", state)
	}
}

func TestCommitRollsBackWithTransaction(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	if _, err := svc.Bootstrap(ctx, 150, 15); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	wantErr := pkgerrors.New(pkgerrors.CodeInternal, "downstream failed")
	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Commit(ctx, tx, "0xbuyer", 15, enums.EmissionKindPack, 1); err != nil {
			return err
		}
		return wantErr
	})
	if err == nil {
		t.Fatal("expected transaction failure")
	}

	state, err := svc.Totals(ctx)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if state.TotalEmitted != 0 || state.PacksOpened != 0 {
		t.Fatalf("aborted commit leaked into ledger: %+v", state)
	}
}

func TestReserveStopsAtCap(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	if _, err := svc.Bootstrap(ctx, 30, 15); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	reserve := func(amount int64) error {
		return conn.Transaction(func(tx *gorm.DB) error {
			return svc.Reserve(ctx, tx, amount)
		})
	}
	if err := reserve(15); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if err := reserve(15); err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	// The cap is fully promised; a third reservation must lose even though
	// nothing has been emitted yet.
	if err := reserve(15); !pkgerrors.HasCode(err, pkgerrors.CodeCapExceeded) {
		t.Fatalf("expected cap exceeded, got %v", err)
	}

	state, err := svc.Totals(ctx)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if state.Reserved != 30 || state.Remaining() != 0 {
		t.Fatalf("unexpected totals: %+v", state)
	}
}

func TestCommitRespectsReservations(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	if _, err := svc.Bootstrap(ctx, 30, 15); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(ctx, tx, 15)
	}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// A deck may take the unreserved half but not the promised half.
	if err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Commit(ctx, tx, "0xbuyer", 15, enums.EmissionKindDeck, 1)
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Commit(ctx, tx, "0xbuyer", 15, enums.EmissionKindDeck, 1)
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeCapExceeded) {
		t.Fatalf("expected cap exceeded, got %v", err)
	}

	// Converting the reservation: release and commit in one transaction.
	if err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Release(ctx, tx, 15); err != nil {
			return err
		}
		return svc.Commit(ctx, tx, "0xbuyer", 15, enums.EmissionKindPack, 1)
	}); err != nil {
		t.Fatalf("release+commit: %v", err)
	}

	state, err := svc.Totals(ctx)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if state.TotalEmitted != 30 || state.Reserved != 0 || state.Remaining() != 0 {
		t.Fatalf("unexpected totals: %+v", state)
	}
}

func TestReleaseRefusesMoreThanReserved(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	if _, err := svc.Bootstrap(ctx, 30, 15); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Release(ctx, tx, 15)
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestCallerStats(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	if _, err := svc.Bootstrap(ctx, 150, 15); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	commit := func(kind enums.EmissionKind, amount int64) {
		t.Helper()
		err := conn.Transaction(func(tx *gorm.DB) error {
			return svc.Commit(ctx, tx, "0xalice", amount, kind, 1)
		})
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
	}
	commit(enums.EmissionKindPack, 15)
	commit(enums.EmissionKindPack, 15)
	commit(enums.EmissionKindDeck, 6)

	stat, err := svc.CallerStats(ctx, "0xalice")
	if err != nil {
		t.Fatalf("caller stats: %v", err)
	}
	if stat.PacksOpened != 2 || stat.DecksOpened != 1 || stat.LastActionAt == nil {
		t.Fatalf("unexpected stats: %+v", stat)
	}

	// Unknown callers read as zero rather than not found.
	stat, err = svc.CallerStats(ctx, "0xnobody")
	if err != nil {
		t.Fatalf("caller stats: %v", err)
	}
	if stat.PacksOpened != 0 || stat.DecksOpened != 0 {
		t.Fatalf("unexpected stats: %+v", stat)
	}
}
