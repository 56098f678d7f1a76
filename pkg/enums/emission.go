package enums

import "fmt"

// EmissionKind distinguishes which purchase channel consumed emission headroom.
type EmissionKind string

const (
	EmissionKindPack EmissionKind = "pack"
	EmissionKindDeck EmissionKind = "deck"
)

var validEmissionKinds = []EmissionKind{
	EmissionKindPack,
	EmissionKindDeck,
}

// String implements fmt.Stringer.
func (k EmissionKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known EmissionKind.
func (k EmissionKind) IsValid() bool {
	for _, candidate := range validEmissionKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseEmissionKind converts raw input into an EmissionKind.
func ParseEmissionKind(value string) (EmissionKind, error) {
	for _, candidate := range validEmissionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid emission kind %q", value)
}
