package remix

import (
	"errors"
	"strings"
)

// Machine is a user-selected payment option. It determines the price the
// payer must transfer to the treasury and how the tier roll is weighted.
type Machine string

const (
	MachineConveyor Machine = "CONVEYOR"
	MachinePress    Machine = "PRESS"
	MachineFurnace  Machine = "FURNACE"
)

// Machines returns the fixed machine set.
func Machines() []Machine {
	return []Machine{MachineConveyor, MachinePress, MachineFurnace}
}

var ErrInvalidMachine = errors.New("remix: invalid machine")

// ParseMachine normalizes and validates a machine identifier.
func ParseMachine(s string) (Machine, error) {
	switch Machine(strings.ToUpper(strings.TrimSpace(s))) {
	case MachineConveyor:
		return MachineConveyor, nil
	case MachinePress:
		return MachinePress, nil
	case MachineFurnace:
		return MachineFurnace, nil
	}
	return "", ErrInvalidMachine
}

func (m Machine) String() string { return string(m) }

// Valid reports whether m is one of the known machines.
func (m Machine) Valid() bool {
	switch m {
	case MachineConveyor, MachinePress, MachineFurnace:
		return true
	}
	return false
}

// BaseWeights returns the per-tier base weight distribution for m, indexed
// in the same order as Tiers(). Higher-tier machines skew toward rarer tiers.
func (m Machine) BaseWeights() map[Tier]uint64 {
	switch m {
	case MachinePress:
		return map[Tier]uint64{Tier1: 55, Tier2: 35, Tier3: 10}
	case MachineFurnace:
		return map[Tier]uint64{Tier1: 25, Tier2: 45, Tier3: 30}
	default: // CONVEYOR
		return map[Tier]uint64{Tier1: 80, Tier2: 18, Tier3: 2}
	}
}
