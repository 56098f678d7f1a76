package catalog

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/mintforge/packdrop-backend/pkg/db"
	"github.com/mintforge/packdrop-backend/pkg/db/models"
	"github.com/mintforge/packdrop-backend/pkg/enums"
	pkgerrors "github.com/mintforge/packdrop-backend/pkg/errors"
	"github.com/mintforge/packdrop-backend/pkg/logger"
	"github.com/mintforge/packdrop-backend/pkg/outbox"
)

// Service exposes catalog administration and allocation bookkeeping.
type Service interface {
	Register(ctx context.Context, actor string, input RegisterItemInput) (*models.Item, error)
	Deactivate(ctx context.Context, id uint64) error
	Reactivate(ctx context.Context, id uint64) error
	Remove(ctx context.Context, id uint64) error
	Get(ctx context.Context, id uint64) (*models.Item, error)
	List(ctx context.Context, includeRemoved bool) ([]models.Item, error)
}

// RegisterItemInput holds the validated payload to register a catalog item.
type RegisterItemInput struct {
	ID               uint64
	Name             string
	Rarity           enums.Rarity
	SupplyCap        uint64
	RoyaltyRecipient string
	RoyaltyRateBps   int
}

type catalogLockReader interface {
	CatalogLocked(ctx context.Context) (bool, error)
}

type service struct {
	repo     Repository
	dbClient *db.Client
	locks    catalogLockReader
	emitter  outbox.Emitter
	logg     *logger.Logger
}

// NewService constructs a catalog service instance.
func NewService(repo Repository, dbClient *db.Client, locks catalogLockReader, emitter outbox.Emitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if locks == nil {
		return nil, fmt.Errorf("lock reader required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		repo:     repo,
		dbClient: dbClient,
		locks:    locks,
		emitter:  emitter,
		logg:     logg,
	}, nil
}

func (s *service) Register(ctx context.Context, actor string, input RegisterItemInput) (*models.Item, error) {
	if input.ID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item name is required")
	}
	if !input.Rarity.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid rarity %q", input.Rarity))
	}
	if input.RoyaltyRateBps < 0 || input.RoyaltyRateBps > 10000 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "royalty rate must be between 0 and 10000 bps")
	}
	if input.RoyaltyRateBps > 0 && strings.TrimSpace(input.RoyaltyRecipient) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "royalty recipient required when royalty rate is set")
	}

	locked, err := s.locks.CatalogLocked(ctx)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, pkgerrors.New(pkgerrors.CodeEngineLocked, "catalog is locked")
	}

	item := &models.Item{
		ID:               input.ID,
		Name:             strings.TrimSpace(input.Name),
		Rarity:           input.Rarity,
		SupplyCap:        input.SupplyCap,
		Active:           true,
		RoyaltyRecipient: strings.TrimSpace(input.RoyaltyRecipient),
		RoyaltyRateBps:   input.RoyaltyRateBps,
	}

	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, item); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("item %d already registered", input.ID))
			}
			return err
		}
		return s.emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCatalogItemAdded,
			AggregateType: enums.AggregateItem,
			AggregateID:   fmt.Sprintf("%d", item.ID),
			Actor:         &outbox.ActorRef{Caller: actor, Role: "admin"},
			Data: outbox.CatalogItemAddedEvent{
				ItemID:    item.ID,
				Name:      item.Name,
				Rarity:    item.Rarity.String(),
				SupplyCap: item.SupplyCap,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"item_id": item.ID,
			"rarity":  item.Rarity,
		}), "catalog item registered")
	}
	return item, nil
}

func (s *service) Deactivate(ctx context.Context, id uint64) error {
	item, err := s.requireItem(ctx, id)
	if err != nil {
		return err
	}
	if item.Removed {
		return pkgerrors.New(pkgerrors.CodeConflict, "item is removed")
	}
	return s.repo.SetActive(ctx, id, false)
}

func (s *service) Reactivate(ctx context.Context, id uint64) error {
	item, err := s.requireItem(ctx, id)
	if err != nil {
		return err
	}
	if item.Removed {
		return pkgerrors.New(pkgerrors.CodeConflict, "removed items cannot be reactivated")
	}
	return s.repo.SetActive(ctx, id, true)
}

// Remove retires an item permanently. The id stays reserved so history
// referencing it keeps resolving.
func (s *service) Remove(ctx context.Context, id uint64) error {
	if _, err := s.requireItem(ctx, id); err != nil {
		return err
	}
	return s.repo.MarkRemoved(ctx, id)
}

func (s *service) Get(ctx context.Context, id uint64) (*models.Item, error) {
	return s.requireItem(ctx, id)
}

func (s *service) List(ctx context.Context, includeRemoved bool) ([]models.Item, error) {
	return s.repo.List(ctx, includeRemoved)
}

func (s *service) requireItem(ctx context.Context, id uint64) (*models.Item, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("item %d not found", id))
	}
	return item, nil
}
