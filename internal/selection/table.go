package selection

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/mintforge/packdrop-backend/pkg/enums"
	pkgerrors "github.com/mintforge/packdrop-backend/pkg/errors"
)

// Tier probability bands. The bonus slot checks the ultra-rare bands at
// 1000-scale first (0.5% each), then the coarse 100-scale bands. Regular
// slots use a flat three-band split with a small Rare tail.
const (
	bonusFineScale      = 1000
	bonusSerializedBand = 5  // 0.5%
	bonusMythicalFine   = 10 // a further 0.5%

	coarseScale       = 100
	bonusMythicalBand = 5
	bonusRareBand     = 20
	bonusUncommonBand = 50

	regularRareBand     = 5
	regularUncommonBand = 35
)

// Table is an immutable snapshot of allocatable item ids per tier, in stable
// id order. Build one inside the fulfillment transaction so every slot of a
// batch selects against the same view.
type Table struct {
	pools map[enums.Rarity][]uint64
}

// NewTable builds a selection table from per-tier pools. Pools must already
// be filtered to allocatable items.
func NewTable(pools map[enums.Rarity][]uint64) *Table {
	copied := make(map[enums.Rarity][]uint64, len(pools))
	for rarity, ids := range pools {
		copied[rarity] = append([]uint64(nil), ids...)
	}
	return &Table{pools: copied}
}

// Pool returns the snapshot for one tier.
func (t *Table) Pool(rarity enums.Rarity) []uint64 {
	return t.pools[rarity]
}

// Remove drops an item from a tier pool, typically after it hits its supply
// cap mid-batch, so later slots stop selecting it.
func (t *Table) Remove(rarity enums.Rarity, itemID uint64) {
	pool := t.pools[rarity]
	for i, id := range pool {
		if id == itemID {
			t.pools[rarity] = append(pool[:i:i], pool[i+1:]...)
			return
		}
	}
}

// Empty reports whether no tier has any allocatable item.
func (t *Table) Empty() bool {
	for _, ids := range t.pools {
		if len(ids) > 0 {
			return false
		}
	}
	return true
}

// Selection is one resolved slot.
type Selection struct {
	ItemID uint64
	Rarity enums.Rarity
	// Fallback is set when the rolled tier was exhausted and the fixed
	// fallback chain supplied the item instead.
	Fallback bool
}

// Select maps a random value and slot kind to an item id. The roll picks a
// tier; a derived portion of the same value indexes within the tier pool.
// An exhausted tier falls through the chain starting at the rolled tier and
// moving toward Common, wrapping around to the rarer tiers only once the
// less-rare ones are exhausted too. Only a fully empty table is an error.
func (t *Table) Select(randomValue uint64, bonusSlot bool) (Selection, error) {
	rolled := rollTier(randomValue, bonusSlot)
	order := enums.RarityFallbackOrder
	start := fallbackIndex(rolled)

	for off := 0; off < len(order); off++ {
		rarity := order[(start+off)%len(order)]
		pool := t.pools[rarity]
		if len(pool) == 0 {
			continue
		}
		return Selection{
			ItemID:   pool[indexIn(randomValue, len(pool))],
			Rarity:   rarity,
			Fallback: off > 0,
		}, nil
	}
	return Selection{}, pkgerrors.New(pkgerrors.CodeSupplyExceeded, "no allocatable item in any tier")
}

func fallbackIndex(rarity enums.Rarity) int {
	for i, r := range enums.RarityFallbackOrder {
		if r == rarity {
			return i
		}
	}
	return 0
}

func rollTier(randomValue uint64, bonusSlot bool) enums.Rarity {
	if bonusSlot {
		fine := randomValue % bonusFineScale
		switch {
		case fine < bonusSerializedBand:
			return enums.RaritySerialized
		case fine < bonusMythicalFine:
			return enums.RarityMythical
		}
		coarse := randomValue % coarseScale
		switch {
		case coarse < bonusMythicalBand:
			return enums.RarityMythical
		case coarse < bonusRareBand:
			return enums.RarityRare
		case coarse < bonusUncommonBand:
			return enums.RarityUncommon
		default:
			return enums.RarityCommon
		}
	}

	coarse := randomValue % coarseScale
	switch {
	case coarse < regularRareBand:
		return enums.RarityRare
	case coarse < regularUncommonBand:
		return enums.RarityUncommon
	default:
		return enums.RarityCommon
	}
}

// indexIn derives the within-tier index from the high part of the value so
// it does not correlate with the tier roll.
func indexIn(randomValue uint64, poolSize int) int {
	return int((randomValue / bonusFineScale) % uint64(poolSize))
}

// DeriveSlotValue expands one oracle seed into a per-slot random value. Each
// slot hashes the seed with its index so a single word of randomness covers a
// whole batch deterministically.
func DeriveSlotValue(seed uint64, slot int) uint64 {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], seed)
	binary.BigEndian.PutUint64(buf[8:], uint64(slot))
	sum := sha256.Sum256(buf[:])
	return binary.BigEndian.Uint64(sum[:8])
}

// IsBonusSlot reports whether slot i of a pack is the distinguished last slot.
func IsBonusSlot(slotIndex, packSize int) bool {
	if packSize <= 0 {
		return false
	}
	return slotIndex%packSize == packSize-1
}

// String implements fmt.Stringer for log output.
func (s Selection) String() string {
	return fmt.Sprintf("item=%d rarity=%s fallback=%v", s.ItemID, s.Rarity, s.Fallback)
}
