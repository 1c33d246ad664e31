package remix

import (
	"errors"
	"strings"
)

// Tier is a discrete rarity bucket with its own supply cap and trait pool.
// Tiers are ordered: Tier1 < Tier2 < Tier3.
type Tier string

const (
	Tier1 Tier = "tier1"
	Tier2 Tier = "tier2"
	Tier3 Tier = "tier3"
)

// Tiers returns all tiers in ascending rarity order.
// The order matters: weighted rolls and cap checks iterate this slice.
func Tiers() []Tier {
	return []Tier{Tier1, Tier2, Tier3}
}

var ErrInvalidTier = errors.New("remix: invalid tier")

// ParseTier normalizes and validates a tier identifier.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case Tier1:
		return Tier1, nil
	case Tier2:
		return Tier2, nil
	case Tier3:
		return Tier3, nil
	}
	return "", ErrInvalidTier
}

func (t Tier) String() string { return string(t) }

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case Tier1, Tier2, Tier3:
		return true
	}
	return false
}
