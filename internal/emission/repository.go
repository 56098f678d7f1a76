package emission

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mintforge/packdrop-backend/pkg/db/models"
	"github.com/mintforge/packdrop-backend/pkg/enums"
)

// Repository manages the singleton emission ledger row and caller counters.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetState(ctx context.Context) (*models.EmissionState, error)
	CreateState(ctx context.Context, state *models.EmissionState) error
	Reserve(ctx context.Context, amount int64) (bool, error)
	Release(ctx context.Context, amount int64) (bool, error)
	Commit(ctx context.Context, amount int64, kind enums.EmissionKind, bundles int) (bool, error)
	TouchCaller(ctx context.Context, caller string, kind enums.EmissionKind, now time.Time) error
	FindCaller(ctx context.Context, caller string) (*models.CallerStat, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an emission repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetState(ctx context.Context) (*models.EmissionState, error) {
	var state models.EmissionState
	if err := r.db.WithContext(ctx).First(&state, "id = ?", models.EmissionStateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

func (r *repository) CreateState(ctx context.Context, state *models.EmissionState) error {
	return r.db.WithContext(ctx).Create(state).Error
}

// Reserve holds amount units of headroom for an open pack request. The cap
// guard counts both emitted and already-reserved units, so two requests can
// never promise the same headroom. Returns false when the cap blocks the
// reservation.
func (r *repository) Reserve(ctx context.Context, amount int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.EmissionState{}).
		Where("id = ? AND total_emitted + reserved + ? <= emission_cap", models.EmissionStateID, amount).
		Update("reserved", gorm.Expr("reserved + ?", amount))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Release returns reserved units to the pool, either because the request
// expired or because the fulfillment is about to commit them for real.
// Returns false when the ledger holds fewer reserved units than asked.
func (r *repository) Release(ctx context.Context, amount int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.EmissionState{}).
		Where("id = ? AND reserved >= ?", models.EmissionStateID, amount).
		Update("reserved", gorm.Expr("reserved - ?", amount))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Commit advances the emission counters by amount only while the cap holds.
// The cap guard lives in the WHERE clause so concurrent commits serialize on
// the singleton row instead of racing a stale read. Returns false when the
// cap blocks the commit.
func (r *repository) Commit(ctx context.Context, amount int64, kind enums.EmissionKind, bundles int) (bool, error) {
	updates := map[string]interface{}{
		"total_emitted": gorm.Expr("total_emitted + ?", amount),
	}
	switch kind {
	case enums.EmissionKindPack:
		updates["packs_opened"] = gorm.Expr("packs_opened + ?", bundles)
	case enums.EmissionKindDeck:
		updates["decks_opened"] = gorm.Expr("decks_opened + ?", bundles)
	}

	result := r.db.WithContext(ctx).
		Model(&models.EmissionState{}).
		Where("id = ? AND total_emitted + reserved + ? <= emission_cap", models.EmissionStateID, amount).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) TouchCaller(ctx context.Context, caller string, kind enums.EmissionKind, now time.Time) error {
	packs := int64(0)
	decks := int64(0)
	switch kind {
	case enums.EmissionKindPack:
		packs = 1
	case enums.EmissionKindDeck:
		decks = 1
	}
	stat := models.CallerStat{
		Caller:       caller,
		PacksOpened:  packs,
		DecksOpened:  decks,
		LastActionAt: &now,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "caller"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"packs_opened":   gorm.Expr("packs_opened + ?", packs),
				"decks_opened":   gorm.Expr("decks_opened + ?", decks),
				"last_action_at": now,
			}),
		}).
		Create(&stat).Error
}

func (r *repository) FindCaller(ctx context.Context, caller string) (*models.CallerStat, error) {
	var stat models.CallerStat
	if err := r.db.WithContext(ctx).First(&stat, "caller = ?", caller).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stat, nil
}
