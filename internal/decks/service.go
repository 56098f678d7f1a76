package decks

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mintforge/packdrop-backend/pkg/db"
	"github.com/mintforge/packdrop-backend/pkg/db/models"
	pkgerrors "github.com/mintforge/packdrop-backend/pkg/errors"
	"github.com/mintforge/packdrop-backend/pkg/logger"
)

// Service exposes deck template administration. Execution of a deck is owned
// by the distribution executor; this service only manages composition.
type Service interface {
	Create(ctx context.Context, input CreateDeckInput) (*models.DeckTemplate, error)
	Get(ctx context.Context, name string) (*models.DeckTemplate, error)
	List(ctx context.Context, activeOnly bool) ([]models.DeckTemplate, error)
	Deactivate(ctx context.Context, name string) error
	UpdatePrice(ctx context.Context, name string, price decimal.Decimal) error
	LockPrice(ctx context.Context, name string) error
}

// DeckSlotInput is one (item, quantity) entry of a new deck.
type DeckSlotInput struct {
	ItemID   uint64
	Quantity int
}

// CreateDeckInput holds the validated payload to create a deck template.
type CreateDeckInput struct {
	Name  string
	Slots []DeckSlotInput
	Price decimal.Decimal
}

type itemReader interface {
	Get(ctx context.Context, id uint64) (*models.Item, error)
}

type priceLockReader interface {
	PriceLocked(ctx context.Context) (bool, error)
}

type service struct {
	repo     Repository
	items    itemReader
	locks    priceLockReader
	maxCards int
	logg     *logger.Logger
}

// NewService constructs a deck service instance.
func NewService(repo Repository, items itemReader, locks priceLockReader, maxCards int, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("deck repository required")
	}
	if items == nil {
		return nil, fmt.Errorf("item reader required")
	}
	if locks == nil {
		return nil, fmt.Errorf("lock reader required")
	}
	if maxCards <= 0 {
		return nil, fmt.Errorf("max cards must be positive")
	}
	return &service{
		repo:     repo,
		items:    items,
		locks:    locks,
		maxCards: maxCards,
		logg:     logg,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateDeckInput) (*models.DeckTemplate, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deck name is required")
	}
	if len(input.Slots) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deck needs at least one slot")
	}
	if input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deck price cannot be negative")
	}

	total := 0
	seen := make(map[uint64]bool, len(input.Slots))
	for _, slot := range input.Slots {
		if slot.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("item %d has zero quantity", slot.ItemID))
		}
		if seen[slot.ItemID] {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("item %d listed twice", slot.ItemID))
		}
		seen[slot.ItemID] = true
		total += slot.Quantity
	}
	if total > s.maxCards {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("deck size %d exceeds maximum %d", total, s.maxCards))
	}

	for _, slot := range input.Slots {
		item, err := s.items.Get(ctx, slot.ItemID)
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("item %d does not exist", slot.ItemID))
			}
			return nil, err
		}
		if item.Removed {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("item %d is removed", slot.ItemID))
		}
	}

	deck := &models.DeckTemplate{
		Name:       name,
		TotalCards: total,
		Price:      input.Price,
		Active:     true,
	}
	for i, slot := range input.Slots {
		deck.Slots = append(deck.Slots, models.DeckSlot{
			DeckName: name,
			Position: i,
			ItemID:   slot.ItemID,
			Quantity: slot.Quantity,
		})
	}

	if err := s.repo.Create(ctx, deck); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("deck %q already exists", name))
		}
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"deck":        name,
			"total_cards": total,
		}), "deck template created")
	}
	return deck, nil
}

func (s *service) Get(ctx context.Context, name string) (*models.DeckTemplate, error) {
	return s.requireDeck(ctx, name)
}

func (s *service) List(ctx context.Context, activeOnly bool) ([]models.DeckTemplate, error) {
	return s.repo.List(ctx, activeOnly)
}

func (s *service) Deactivate(ctx context.Context, name string) error {
	if _, err := s.requireDeck(ctx, name); err != nil {
		return err
	}
	return s.repo.SetActive(ctx, name, false)
}

// UpdatePrice repoints a deck's price unless the template or the global
// price lock pins it.
func (s *service) UpdatePrice(ctx context.Context, name string, price decimal.Decimal) error {
	if price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "deck price cannot be negative")
	}
	deck, err := s.requireDeck(ctx, name)
	if err != nil {
		return err
	}
	if deck.PriceLocked {
		return pkgerrors.New(pkgerrors.CodeEngineLocked, fmt.Sprintf("deck %q price is locked", name))
	}
	locked, err := s.locks.PriceLocked(ctx)
	if err != nil {
		return err
	}
	if locked {
		return pkgerrors.New(pkgerrors.CodeEngineLocked, "prices are locked")
	}
	return s.repo.UpdatePrice(ctx, name, price)
}

// LockPrice pins a deck's price permanently.
func (s *service) LockPrice(ctx context.Context, name string) error {
	if _, err := s.requireDeck(ctx, name); err != nil {
		return err
	}
	return s.repo.SetPriceLocked(ctx, name, true)
}

func (s *service) requireDeck(ctx context.Context, name string) (*models.DeckTemplate, error) {
	deck, err := s.repo.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if deck == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("deck %q not found", name))
	}
	return deck, nil
}
