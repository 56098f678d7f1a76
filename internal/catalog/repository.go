package catalog

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/mintforge/packdrop-backend/pkg/db/models"
	"github.com/mintforge/packdrop-backend/pkg/enums"
)

// Repository manages persistence for catalog items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, item *models.Item) error
	FindByID(ctx context.Context, id uint64) (*models.Item, error)
	List(ctx context.Context, includeRemoved bool) ([]models.Item, error)
	ListAllocatableByRarity(ctx context.Context, rarity enums.Rarity) ([]models.Item, error)
	SetActive(ctx context.Context, id uint64, active bool) error
	MarkRemoved(ctx context.Context, id uint64) error
	IncrementSupply(ctx context.Context, id uint64, qty uint64) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, item *models.Item) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) FindByID(ctx context.Context, id uint64) (*models.Item, error) {
	var item models.Item
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repository) List(ctx context.Context, includeRemoved bool) ([]models.Item, error) {
	query := r.db.WithContext(ctx).Order("id ASC")
	if !includeRemoved {
		query = query.Where("removed = ?", false)
	}
	var items []models.Item
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ListAllocatableByRarity returns items eligible for selection in a stable
// order: active, not removed, and with supply headroom remaining.
func (r *repository) ListAllocatableByRarity(ctx context.Context, rarity enums.Rarity) ([]models.Item, error) {
	var items []models.Item
	if err := r.db.WithContext(ctx).
		Where("rarity = ? AND active = ? AND removed = ?", rarity, true, false).
		Where("supply_cap = 0 OR current_supply < supply_cap").
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) SetActive(ctx context.Context, id uint64, active bool) error {
	return r.db.WithContext(ctx).
		Model(&models.Item{}).
		Where("id = ?", id).
		Update("active", active).Error
}

func (r *repository) MarkRemoved(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).
		Model(&models.Item{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"removed": true, "active": false}).Error
}

// IncrementSupply bumps current_supply by qty only while the supply cap
// holds. The guard lives in the WHERE clause so concurrent allocations
// cannot both pass a stale read. Returns false when the cap blocks it.
func (r *repository) IncrementSupply(ctx context.Context, id uint64, qty uint64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Item{}).
		Where("id = ? AND active = ? AND removed = ?", id, true, false).
		Where("supply_cap = 0 OR current_supply + ? <= supply_cap", qty).
		Update("current_supply", gorm.Expr("current_supply + ?", qty))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
