package remix

import (
	"errors"
	"math"
	"testing"
)

func TestNewPricingRequiresStaticMachines(t *testing.T) {
	_, err := NewPricing(map[Machine]float64{MachinePress: 0.5})
	if !errors.Is(err, ErrPriceNotConfigured) {
		t.Fatalf("want ErrPriceNotConfigured, got %v", err)
	}
}

func TestNewPricingRejectsBadPrices(t *testing.T) {
	cases := []float64{0, -1, math.NaN(), math.Inf(1)}
	for _, bad := range cases {
		_, err := NewPricing(map[Machine]float64{MachinePress: bad, MachineFurnace: 1})
		if err == nil {
			t.Fatalf("price %v accepted", bad)
		}
	}
}

func TestPriceLamportsStatic(t *testing.T) {
	p, err := NewPricing(map[Machine]float64{MachinePress: 0.25, MachineFurnace: 1.5})
	if err != nil {
		t.Fatalf("NewPricing: %v", err)
	}

	got, err := p.PriceLamports(MachinePress, 0, false)
	if err != nil {
		t.Fatalf("PriceLamports: %v", err)
	}
	if want := uint64(0.25 * LamportsPerSOL); got != want {
		t.Fatalf("PRESS price = %d, want %d", got, want)
	}
}

func TestPriceLamportsConveyorDiscovery(t *testing.T) {
	p, err := NewPricing(map[Machine]float64{MachinePress: 0.25, MachineFurnace: 1.5})
	if err != nil {
		t.Fatalf("NewPricing: %v", err)
	}
	if !p.Dynamic(MachineConveyor) {
		t.Fatal("CONVEYOR should be dynamic without a static override")
	}

	// No prior mint: configuration error, never a guessed price.
	if _, err := p.PriceLamports(MachineConveyor, 0, false); !errors.Is(err, ErrNoPriorMint) {
		t.Fatalf("want ErrNoPriorMint, got %v", err)
	}

	got, err := p.PriceLamports(MachineConveyor, 12_345_678, true)
	if err != nil {
		t.Fatalf("PriceLamports: %v", err)
	}
	if got != 12_345_678 {
		t.Fatalf("discovered price = %d, want last mint cost", got)
	}
}

func TestPriceLamportsConveyorStaticOverride(t *testing.T) {
	p, err := NewPricing(map[Machine]float64{
		MachineConveyor: 0.1,
		MachinePress:    0.25,
		MachineFurnace:  1.5,
	})
	if err != nil {
		t.Fatalf("NewPricing: %v", err)
	}
	if p.Dynamic(MachineConveyor) {
		t.Fatal("static override should disable discovery mode")
	}
	got, err := p.PriceLamports(MachineConveyor, 999, true)
	if err != nil {
		t.Fatalf("PriceLamports: %v", err)
	}
	if want := uint64(0.1 * LamportsPerSOL); got != want {
		t.Fatalf("CONVEYOR price = %d, want %d", got, want)
	}
}
