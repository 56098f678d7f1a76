package security

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/mintforge/packdrop-backend/pkg/db"
	"github.com/mintforge/packdrop-backend/pkg/db/models"
	"github.com/mintforge/packdrop-backend/pkg/enums"
	pkgerrors "github.com/mintforge/packdrop-backend/pkg/errors"
	"github.com/mintforge/packdrop-backend/pkg/logger"
	"github.com/mintforge/packdrop-backend/pkg/outbox"
)

// Service owns the security envelope flags. Every state-mutating entry point
// consults these gates before doing work.
type Service interface {
	Bootstrap(ctx context.Context) error
	State(ctx context.Context) (*models.SecurityState, error)
	ToggleFlag(ctx context.Context, flag Flag, enabled bool, actor string) error

	Paused(ctx context.Context) (bool, error)
	MintingLocked(ctx context.Context) (bool, error)
	PriceLocked(ctx context.Context) (bool, error)
	CatalogLocked(ctx context.Context) (bool, error)

	// RequireOperational fails when the engine is paused or minting is locked.
	RequireOperational(ctx context.Context) error

	RecordExpiredRequest(ctx context.Context, tx *gorm.DB) error
	RecordRateLimited(ctx context.Context) error
}

type service struct {
	repo     Repository
	dbClient *db.Client
	emitter  outbox.Emitter
	logg     *logger.Logger
}

// NewService constructs a security service instance.
func NewService(repo Repository, dbClient *db.Client, emitter outbox.Emitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("security repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{repo: repo, dbClient: dbClient, emitter: emitter, logg: logg}, nil
}

func (s *service) Bootstrap(ctx context.Context) error {
	_, err := s.repo.EnsureState(ctx)
	return err
}

func (s *service) State(ctx context.Context) (*models.SecurityState, error) {
	return s.requireState(ctx)
}

func (s *service) ToggleFlag(ctx context.Context, flag Flag, enabled bool, actor string) error {
	if !flag.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown flag %q", flag))
	}
	state, err := s.requireState(ctx)
	if err != nil {
		return err
	}
	if current := flagValue(state, flag); current == enabled {
		// No-op toggles emit nothing.
		return nil
	}

	eventType := enums.EventLockToggled
	if flag == FlagPaused {
		eventType = enums.EventPauseToggled
	}

	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).SetFlag(ctx, flag, enabled); err != nil {
			return err
		}
		return s.emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateSecurity,
			AggregateID:   string(flag),
			Actor:         &outbox.ActorRef{Caller: actor, Role: "admin"},
			Data: outbox.SecurityToggledEvent{
				Flag:    string(flag),
				Enabled: enabled,
				Actor:   actor,
			},
		})
	})
	if err != nil {
		return err
	}

	if s.logg != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"flag":    flag,
			"enabled": enabled,
			"actor":   actor,
		}), "security flag toggled")
	}
	return nil
}

func (s *service) Paused(ctx context.Context) (bool, error) {
	state, err := s.requireState(ctx)
	if err != nil {
		return false, err
	}
	return state.Paused, nil
}

func (s *service) MintingLocked(ctx context.Context) (bool, error) {
	state, err := s.requireState(ctx)
	if err != nil {
		return false, err
	}
	return state.MintingLocked, nil
}

func (s *service) PriceLocked(ctx context.Context) (bool, error) {
	state, err := s.requireState(ctx)
	if err != nil {
		return false, err
	}
	return state.PriceLocked, nil
}

func (s *service) CatalogLocked(ctx context.Context) (bool, error) {
	state, err := s.requireState(ctx)
	if err != nil {
		return false, err
	}
	return state.CatalogLocked, nil
}

func (s *service) RequireOperational(ctx context.Context) error {
	state, err := s.requireState(ctx)
	if err != nil {
		return err
	}
	if state.Paused {
		return pkgerrors.New(pkgerrors.CodeEngineLocked, "engine is paused")
	}
	if state.MintingLocked {
		return pkgerrors.New(pkgerrors.CodeEngineLocked, "minting is locked")
	}
	return nil
}

func (s *service) RecordExpiredRequest(ctx context.Context, tx *gorm.DB) error {
	return s.repo.WithTx(tx).IncrementExpired(ctx)
}

func (s *service) RecordRateLimited(ctx context.Context) error {
	return s.repo.IncrementRateLimited(ctx)
}

func (s *service) requireState(ctx context.Context) (*models.SecurityState, error) {
	state, err := s.repo.GetState(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "security state not initialized")
	}
	return state, nil
}

func flagValue(state *models.SecurityState, flag Flag) bool {
	switch flag {
	case FlagPaused:
		return state.Paused
	case FlagMintingLocked:
		return state.MintingLocked
	case FlagPriceLocked:
		return state.PriceLocked
	case FlagCatalogLocked:
		return state.CatalogLocked
	default:
		return false
	}
}
