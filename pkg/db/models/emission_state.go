package models

import "time"

// EmissionState is the singleton emission ledger row. TotalEmitted is
// monotonic and must never exceed EmissionCap at any observable point.
// Reserved counts units promised to open pack requests that have not been
// emitted yet; TotalEmitted + Reserved <= EmissionCap holds too.
type EmissionState struct {
	ID           int16     `gorm:"column:id;primaryKey"`
	EmissionCap  int64     `gorm:"column:emission_cap;not null"`
	PackSize     int       `gorm:"column:pack_size;not null"`
	TotalEmitted int64     `gorm:"column:total_emitted;not null;default:0"`
	Reserved     int64     `gorm:"column:reserved;not null;default:0"`
	PacksOpened  int64     `gorm:"column:packs_opened;not null;default:0"`
	DecksOpened  int64     `gorm:"column:decks_opened;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// EmissionStateID is the fixed primary key of the singleton row.
const EmissionStateID int16 = 1

// Remaining returns the headroom not yet emitted or reserved.
func (e EmissionState) Remaining() int64 {
	used := e.TotalEmitted + e.Reserved
	if used >= e.EmissionCap {
		return 0
	}
	return e.EmissionCap - used
}
