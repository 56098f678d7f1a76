package security

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/mintforge/packdrop-backend/pkg/db/models"
)

// Flag names a toggleable security switch.
type Flag string

const (
	FlagPaused        Flag = "paused"
	FlagMintingLocked Flag = "minting_locked"
	FlagPriceLocked   Flag = "price_locked"
	FlagCatalogLocked Flag = "catalog_locked"
)

var flagColumns = map[Flag]string{
	FlagPaused:        "paused",
	FlagMintingLocked: "minting_locked",
	FlagPriceLocked:   "price_locked",
	FlagCatalogLocked: "catalog_locked",
}

// IsValid reports whether the value is a known Flag.
func (f Flag) IsValid() bool {
	_, ok := flagColumns[f]
	return ok
}

// Repository manages the singleton security flags row.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetState(ctx context.Context) (*models.SecurityState, error)
	EnsureState(ctx context.Context) (*models.SecurityState, error)
	SetFlag(ctx context.Context, flag Flag, enabled bool) error
	IncrementExpired(ctx context.Context) error
	IncrementRateLimited(ctx context.Context) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a security repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetState(ctx context.Context) (*models.SecurityState, error) {
	var state models.SecurityState
	if err := r.db.WithContext(ctx).First(&state, "id = ?", models.SecurityStateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

func (r *repository) EnsureState(ctx context.Context) (*models.SecurityState, error) {
	state, err := r.GetState(ctx)
	if err != nil {
		return nil, err
	}
	if state != nil {
		return state, nil
	}
	fresh := &models.SecurityState{ID: models.SecurityStateID}
	if err := r.db.WithContext(ctx).Create(fresh).Error; err != nil {
		return nil, err
	}
	return fresh, nil
}

func (r *repository) SetFlag(ctx context.Context, flag Flag, enabled bool) error {
	column, ok := flagColumns[flag]
	if !ok {
		return errors.New("unknown security flag")
	}
	return r.db.WithContext(ctx).
		Model(&models.SecurityState{}).
		Where("id = ?", models.SecurityStateID).
		Update(column, enabled).Error
}

func (r *repository) IncrementExpired(ctx context.Context) error {
	return r.increment(ctx, "expired_requests")
}

func (r *repository) IncrementRateLimited(ctx context.Context) error {
	return r.increment(ctx, "rate_limited")
}

func (r *repository) increment(ctx context.Context, column string) error {
	return r.db.WithContext(ctx).
		Model(&models.SecurityState{}).
		Where("id = ?", models.SecurityStateID).
		Update(column, gorm.Expr(column+" + 1")).Error
}
