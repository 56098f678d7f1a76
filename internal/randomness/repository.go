package randomness

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mintforge/packdrop-backend/pkg/db/models"
	"github.com/mintforge/packdrop-backend/pkg/enums"
)

// Repository manages persistence for pending randomness requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, req *models.PendingRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PendingRequest, error)
	ListPending(ctx context.Context) ([]models.PendingRequest, error)
	ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]models.PendingRequest, error)
	SaveStatus(ctx context.Context, req *models.PendingRequest) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a randomness repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, req *models.PendingRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PendingRequest, error) {
	var req models.PendingRequest
	if err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (r *repository) ListPending(ctx context.Context) ([]models.PendingRequest, error) {
	var out []models.PendingRequest
	if err := r.db.WithContext(ctx).
		Where("status = ?", enums.RequestStatusPending).
		Order("issued_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]models.PendingRequest, error) {
	var out []models.PendingRequest
	if err := r.db.WithContext(ctx).
		Where("status = ? AND issued_at < ?", enums.RequestStatusPending, cutoff).
		Order("issued_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// SaveStatus persists a status transition. The guard on the current status in
// the WHERE clause makes the flip first-writer-wins under concurrency.
func (r *repository) SaveStatus(ctx context.Context, req *models.PendingRequest) error {
	result := r.db.WithContext(ctx).
		Model(&models.PendingRequest{}).
		Where("id = ? AND status = ?", req.ID, enums.RequestStatusPending).
		Updates(map[string]interface{}{
			"status":      req.Status,
			"resolved_at": req.ResolvedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
