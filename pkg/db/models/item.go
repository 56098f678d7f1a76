package models

import (
	"time"

	"github.com/mintforge/packdrop-backend/pkg/enums"
)

// Item is a catalog record. IDs are assigned by the catalog and never reused;
// removal is terminal. CurrentSupply only ever increases.
type Item struct {
	ID               uint64          `gorm:"column:id;primaryKey"`
	Name             string          `gorm:"column:name;not null"`
	Rarity           enums.Rarity    `gorm:"column:rarity;type:rarity;not null;index"`
	SupplyCap        uint64          `gorm:"column:supply_cap;not null;default:0"`
	CurrentSupply    uint64          `gorm:"column:current_supply;not null;default:0"`
	Active           bool            `gorm:"column:active;not null;default:true"`
	Removed          bool            `gorm:"column:removed;not null;default:false"`
	RoyaltyRecipient string          `gorm:"column:royalty_recipient"`
	RoyaltyRateBps   int             `gorm:"column:royalty_rate_bps;not null;default:0"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// Unbounded reports whether the item has no per-item supply ceiling.
func (i Item) Unbounded() bool {
	return i.SupplyCap == 0
}

// Headroom returns how many more units may be allocated, and whether the
// value is meaningful (false for unbounded items).
func (i Item) Headroom() (uint64, bool) {
	if i.Unbounded() {
		return 0, false
	}
	if i.CurrentSupply >= i.SupplyCap {
		return 0, true
	}
	return i.SupplyCap - i.CurrentSupply, true
}
