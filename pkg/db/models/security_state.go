package models

import "time"

// SecurityState is the singleton flags row read as a precondition gate by
// every state-mutating entry point.
type SecurityState struct {
	ID              int16     `gorm:"column:id;primaryKey"`
	Paused          bool      `gorm:"column:paused;not null;default:false"`
	MintingLocked   bool      `gorm:"column:minting_locked;not null;default:false"`
	PriceLocked     bool      `gorm:"column:price_locked;not null;default:false"`
	CatalogLocked   bool      `gorm:"column:catalog_locked;not null;default:false"`
	ExpiredRequests int64     `gorm:"column:expired_requests;not null;default:0"`
	RateLimited     int64     `gorm:"column:rate_limited;not null;default:0"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// SecurityStateID is the fixed primary key of the singleton row.
const SecurityStateID int16 = 1

// CallerStat tracks per-caller purchase counters and the last purchase time
// used by the rate limiter audit surface.
type CallerStat struct {
	Caller       string     `gorm:"column:caller;primaryKey"`
	PacksOpened  int64      `gorm:"column:packs_opened;not null;default:0"`
	DecksOpened  int64      `gorm:"column:decks_opened;not null;default:0"`
	LastActionAt *time.Time `gorm:"column:last_action_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
