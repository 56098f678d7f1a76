package decks

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mintforge/packdrop-backend/pkg/db/models"
)

// Repository manages persistence for deck templates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, deck *models.DeckTemplate) error
	FindByName(ctx context.Context, name string) (*models.DeckTemplate, error)
	List(ctx context.Context, activeOnly bool) ([]models.DeckTemplate, error)
	SetActive(ctx context.Context, name string, active bool) error
	UpdatePrice(ctx context.Context, name string, price decimal.Decimal) error
	SetPriceLocked(ctx context.Context, name string, locked bool) error
	IncrementExecuted(ctx context.Context, name string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a deck repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, deck *models.DeckTemplate) error {
	return r.db.WithContext(ctx).Create(deck).Error
}

func (r *repository) FindByName(ctx context.Context, name string) (*models.DeckTemplate, error) {
	var deck models.DeckTemplate
	err := r.db.WithContext(ctx).
		Preload("Slots", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&deck, "name = ?", name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &deck, nil
}

func (r *repository) List(ctx context.Context, activeOnly bool) ([]models.DeckTemplate, error) {
	query := r.db.WithContext(ctx).
		Preload("Slots", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Order("name ASC")
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	var out []models.DeckTemplate
	if err := query.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) SetActive(ctx context.Context, name string, active bool) error {
	return r.db.WithContext(ctx).
		Model(&models.DeckTemplate{}).
		Where("name = ?", name).
		Update("active", active).Error
}

func (r *repository) UpdatePrice(ctx context.Context, name string, price decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.DeckTemplate{}).
		Where("name = ?", name).
		Update("price", price).Error
}

func (r *repository) SetPriceLocked(ctx context.Context, name string, locked bool) error {
	return r.db.WithContext(ctx).
		Model(&models.DeckTemplate{}).
		Where("name = ?", name).
		Update("price_locked", locked).Error
}

func (r *repository) IncrementExecuted(ctx context.Context, name string) error {
	return r.db.WithContext(ctx).
		Model(&models.DeckTemplate{}).
		Where("name = ?", name).
		Update("times_executed", gorm.Expr("times_executed + 1")).Error
}
