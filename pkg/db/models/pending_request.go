package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mintforge/packdrop-backend/pkg/enums"
)

// PendingRequest is one entry of the randomness request tracker. A request
// transitions at most once out of Pending; ids are never reused.
type PendingRequest struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Requester   string              `gorm:"column:requester;not null;index"`
	BatchSize   int                 `gorm:"column:batch_size;not null"`
	Payment     decimal.Decimal     `gorm:"column:payment;type:numeric(18,8);not null"`
	Status      enums.RequestStatus `gorm:"column:status;type:request_status;not null;default:'pending'"`
	IssuedAt    time.Time           `gorm:"column:issued_at;not null"`
	ResolvedAt  *time.Time          `gorm:"column:resolved_at"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// Expired reports whether the request has been outstanding longer than timeout.
func (p PendingRequest) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(p.IssuedAt) > timeout
}

// Transition flips the request into a terminal status. It is the only place
// status is allowed to change.
func (p *PendingRequest) Transition(next enums.RequestStatus, now time.Time) error {
	if !p.Status.CanTransitionTo(next) {
		return fmt.Errorf("request %s cannot move %s -> %s", p.ID, p.Status, next)
	}
	p.Status = next
	resolved := now
	p.ResolvedAt = &resolved
	return nil
}
