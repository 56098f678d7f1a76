package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DeckTemplate is a named fixed-composition bundle. Names are never reused;
// templates are deactivated, not deleted.
type DeckTemplate struct {
	Name          string          `gorm:"column:name;primaryKey"`
	TotalCards    int             `gorm:"column:total_cards;not null"`
	Price         decimal.Decimal `gorm:"column:price;type:numeric(18,8);not null"`
	Active        bool            `gorm:"column:active;not null;default:true"`
	PriceLocked   bool            `gorm:"column:price_locked;not null;default:false"`
	TimesExecuted int64           `gorm:"column:times_executed;not null;default:0"`
	Slots         []DeckSlot      `gorm:"foreignKey:DeckName;references:Name"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// DeckSlot is one (item, quantity) pair of a template, ordered by Position.
type DeckSlot struct {
	ID       uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	DeckName string `gorm:"column:deck_name;not null;index"`
	Position int    `gorm:"column:position;not null"`
	ItemID   uint64 `gorm:"column:item_id;not null"`
	Quantity int    `gorm:"column:quantity;not null"`
}
