package remix

import (
	"errors"
	"fmt"
	"math"
)

// Pricing maps a machine to the lamports the payer must transfer to the
// treasury. PRESS and FURNACE carry statically configured prices; CONVEYOR
// runs in price-discovery mode unless a static override is configured: its
// price is the mint cost actually incurred by the most recent successful
// mint, read from the ledger.

const LamportsPerSOL = 1_000_000_000

var (
	ErrPriceNotConfigured = errors.New("remix: price not configured for machine")
	// ErrNoPriorMint means CONVEYOR's discovered price has no basis yet:
	// no mint has ever succeeded. Configuration error, never guessed around.
	ErrNoPriorMint = errors.New("remix: no prior mint to derive price from")
)

type Pricing struct {
	staticLamports map[Machine]uint64
}

// NewPricing validates the statically configured prices (in SOL) and builds
// the engine. PRESS and FURNACE must be present; CONVEYOR is optional and
// switches that machine to a fixed price when set. A non-positive or
// non-finite price is a fatal configuration error at startup.
func NewPricing(staticSOL map[Machine]float64) (*Pricing, error) {
	static := make(map[Machine]uint64, len(staticSOL))
	for m, sol := range staticSOL {
		if !m.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMachine, m)
		}
		if math.IsNaN(sol) || math.IsInf(sol, 0) || sol <= 0 {
			return nil, fmt.Errorf("remix: invalid price %v for machine %s", sol, m)
		}
		static[m] = uint64(math.Round(sol * LamportsPerSOL))
	}
	for _, m := range []Machine{MachinePress, MachineFurnace} {
		if _, ok := static[m]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrPriceNotConfigured, m)
		}
	}
	return &Pricing{staticLamports: static}, nil
}

// PriceLamports returns the required payment for machine. lastMintCost is
// the cost of the most recent committed mint (ok=false when the ledger is
// empty); it is consulted only for CONVEYOR's discovery mode.
func (p *Pricing) PriceLamports(machine Machine, lastMintCost uint64, hasPrior bool) (uint64, error) {
	if p == nil {
		return 0, ErrPriceNotConfigured
	}
	if !machine.Valid() {
		return 0, ErrInvalidMachine
	}
	if v, ok := p.staticLamports[machine]; ok {
		return v, nil
	}
	if machine != MachineConveyor {
		return 0, fmt.Errorf("%w: %s", ErrPriceNotConfigured, machine)
	}
	if !hasPrior || lastMintCost == 0 {
		return 0, ErrNoPriorMint
	}
	return lastMintCost, nil
}

// Dynamic reports whether machine's price is ledger-derived.
func (p *Pricing) Dynamic(machine Machine) bool {
	if p == nil {
		return false
	}
	_, ok := p.staticLamports[machine]
	return machine == MachineConveyor && !ok
}
