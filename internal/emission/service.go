package emission

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mintforge/packdrop-backend/pkg/db/models"
	"github.com/mintforge/packdrop-backend/pkg/enums"
	pkgerrors "github.com/mintforge/packdrop-backend/pkg/errors"
	"github.com/mintforge/packdrop-backend/pkg/logger"
)

// Service is the emission ledger: a fixed cap set once at bootstrap, a
// monotonic emitted counter, a reserved-units counter for open pack
// requests, and per-caller purchase stats.
type Service interface {
	Bootstrap(ctx context.Context, cap int64, packSize int) (*models.EmissionState, error)
	Reserve(ctx context.Context, tx *gorm.DB, amount int64) error
	Release(ctx context.Context, tx *gorm.DB, amount int64) error
	Commit(ctx context.Context, tx *gorm.DB, caller string, amount int64, kind enums.EmissionKind, bundles int) error
	Totals(ctx context.Context) (*models.EmissionState, error)
	CallerStats(ctx context.Context, caller string) (*models.CallerStat, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires an emission service with the provided repository.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("emission repository required")
	}
	return &service{repo: repo, logg: logg}, nil
}

// Bootstrap creates the singleton ledger row on first boot. The cap must be a
// positive multiple of the pack size; a redeploy with different parameters is
// refused rather than silently rewriting the ledger.
func (s *service) Bootstrap(ctx context.Context, cap int64, packSize int) (*models.EmissionState, error) {
	if packSize <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pack size must be positive")
	}
	if cap <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "emission cap must be positive")
	}
	if cap%int64(packSize) != 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("emission cap %d is not a multiple of pack size %d", cap, packSize))
	}

	existing, err := s.repo.GetState(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.EmissionCap != cap || existing.PackSize != packSize {
			return nil, pkgerrors.New(pkgerrors.CodeConflict,
				fmt.Sprintf("ledger already initialized with cap=%d pack_size=%d", existing.EmissionCap, existing.PackSize))
		}
		return existing, nil
	}

	state := &models.EmissionState{
		ID:          models.EmissionStateID,
		EmissionCap: cap,
		PackSize:    packSize,
	}
	if err := s.repo.CreateState(ctx, state); err != nil {
		return nil, err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"emission_cap": cap,
			"pack_size":    packSize,
		}), "emission ledger initialized")
	}
	return state, nil
}

// Reserve holds amount units for an open pack request inside the caller's
// transaction. A refused reservation means the cap cannot cover the request
// on top of everything already emitted or promised.
func (s *service) Reserve(ctx context.Context, tx *gorm.DB, amount int64) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	ok, err := s.repo.WithTx(tx).Reserve(ctx, amount)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeCapExceeded,
			fmt.Sprintf("reserving %d units would exceed the emission cap", amount))
	}
	return nil
}

// Release hands a reservation back, on expiry or right before the matching
// Commit inside the fulfillment transaction.
func (s *service) Release(ctx context.Context, tx *gorm.DB, amount int64) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	ok, err := s.repo.WithTx(tx).Release(ctx, amount)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInternal,
			fmt.Sprintf("releasing %d units exceeds the reserved total", amount))
	}
	return nil
}

// Commit records amount emitted units inside the caller's transaction. The
// authoritative cap check happens here; a refused commit aborts the whole
// distribution.
func (s *service) Commit(ctx context.Context, tx *gorm.DB, caller string, amount int64, kind enums.EmissionKind, bundles int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if bundles <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "bundle count must be positive")
	}
	if !kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid emission kind %q", kind))
	}

	repo := s.repo.WithTx(tx)
	ok, err := repo.Commit(ctx, amount, kind, bundles)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeCapExceeded,
			fmt.Sprintf("committing %d units would exceed the emission cap", amount))
	}
	if caller != "" {
		if err := repo.TouchCaller(ctx, caller, kind, time.Now()); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) Totals(ctx context.Context) (*models.EmissionState, error) {
	return s.requireState(ctx)
}

func (s *service) CallerStats(ctx context.Context, caller string) (*models.CallerStat, error) {
	if caller == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "caller is required")
	}
	stat, err := s.repo.FindCaller(ctx, caller)
	if err != nil {
		return nil, err
	}
	if stat == nil {
		return &models.CallerStat{Caller: caller}, nil
	}
	return stat, nil
}

func (s *service) requireState(ctx context.Context) (*models.EmissionState, error) {
	state, err := s.repo.GetState(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "emission ledger not initialized")
	}
	return state, nil
}
