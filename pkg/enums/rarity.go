package enums

import "fmt"

// Rarity is the ordered tier classification that drives selection odds.
type Rarity string

const (
	RarityCommon     Rarity = "common"
	RarityUncommon   Rarity = "uncommon"
	RarityRare       Rarity = "rare"
	RarityMythical   Rarity = "mythical"
	RaritySerialized Rarity = "serialized"
)

var validRarities = []Rarity{
	RarityCommon,
	RarityUncommon,
	RarityRare,
	RarityMythical,
	RaritySerialized,
}

// RarityFallbackOrder is the fixed chain walked when a tier has no
// allocatable items, rarest first.
var RarityFallbackOrder = []Rarity{
	RaritySerialized,
	RarityMythical,
	RarityRare,
	RarityUncommon,
	RarityCommon,
}

// String implements fmt.Stringer.
func (r Rarity) String() string {
	return string(r)
}

// IsValid reports whether the value is a known Rarity.
func (r Rarity) IsValid() bool {
	for _, candidate := range validRarities {
		if candidate == r {
			return true
		}
	}
	return false
}

// Order returns the tier's position in the Common < ... < Serialized ordering.
func (r Rarity) Order() int {
	for i, candidate := range validRarities {
		if candidate == r {
			return i
		}
	}
	return -1
}

// ParseRarity converts raw input into a Rarity.
func ParseRarity(value string) (Rarity, error) {
	for _, candidate := range validRarities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid rarity %q", value)
}
