package remix

import (
	"fmt"
	"testing"
)

func testCaps() map[Tier]uint64 {
	return map[Tier]uint64{Tier1: 3000, Tier2: 900, Tier3: 100}
}

func newTestRoller(t *testing.T) *Roller {
	t.Helper()
	r, err := NewRoller([]byte("test-roll-secret"))
	if err != nil {
		t.Fatalf("NewRoller: %v", err)
	}
	return r
}

func TestNewRollerRejectsEmptySecret(t *testing.T) {
	if _, err := NewRoller(nil); err != ErrEmptySecret {
		t.Fatalf("want ErrEmptySecret, got %v", err)
	}
}

func TestRollTierDeterministic(t *testing.T) {
	r := newTestRoller(t)
	counts := map[Tier]uint64{}
	caps := testCaps()

	for i := 0; i < 50; i++ {
		sig := fmt.Sprintf("sig-%d", i)
		first, err := r.RollTier(MachinePress, sig, counts, caps)
		if err != nil {
			t.Fatalf("roll %d: %v", i, err)
		}
		second, err := r.RollTier(MachinePress, sig, counts, caps)
		if err != nil {
			t.Fatalf("re-roll %d: %v", i, err)
		}
		if first != second {
			t.Fatalf("sig %q: got %s then %s", sig, first, second)
		}
	}
}

func TestRollTierDiffersAcrossSecrets(t *testing.T) {
	a, _ := NewRoller([]byte("secret-a"))
	b, _ := NewRoller([]byte("secret-b"))
	counts := map[Tier]uint64{}
	caps := testCaps()

	diff := 0
	for i := 0; i < 200; i++ {
		sig := fmt.Sprintf("sig-%d", i)
		ta, _ := a.RollTier(MachineFurnace, sig, counts, caps)
		tb, _ := b.RollTier(MachineFurnace, sig, counts, caps)
		if ta != tb {
			diff++
		}
	}
	if diff == 0 {
		t.Fatal("two different secrets produced identical rolls for 200 signatures")
	}
}

func TestRollTierExcludesSoldOutTier(t *testing.T) {
	r := newTestRoller(t)
	caps := testCaps()
	counts := map[Tier]uint64{Tier1: caps[Tier1]} // tier1 sold out

	for i := 0; i < 500; i++ {
		tier, err := r.RollTier(MachineConveyor, fmt.Sprintf("sig-%d", i), counts, caps)
		if err != nil {
			t.Fatalf("roll %d: %v", i, err)
		}
		if tier == Tier1 {
			t.Fatalf("roll %d returned sold-out tier1", i)
		}
	}
}

func TestRollTierAllSoldOut(t *testing.T) {
	r := newTestRoller(t)
	caps := testCaps()
	counts := map[Tier]uint64{Tier1: caps[Tier1], Tier2: caps[Tier2], Tier3: caps[Tier3]}

	if _, err := r.RollTier(MachineFurnace, "some-signature", counts, caps); err != ErrSoldOut {
		t.Fatalf("want ErrSoldOut, got %v", err)
	}
}

func TestRollTierDistributionSkew(t *testing.T) {
	r := newTestRoller(t)
	counts := map[Tier]uint64{}
	caps := map[Tier]uint64{Tier1: 1 << 60, Tier2: 1 << 60, Tier3: 1 << 60}

	histogram := map[Tier]int{}
	const n = 2000
	for i := 0; i < n; i++ {
		tier, err := r.RollTier(MachineConveyor, fmt.Sprintf("sig-%d", i), counts, caps)
		if err != nil {
			t.Fatalf("roll %d: %v", i, err)
		}
		histogram[tier]++
	}

	// CONVEYOR weights 80/18/2: tier1 must dominate and tier3 must be rare.
	if histogram[Tier1] <= histogram[Tier2] || histogram[Tier2] <= histogram[Tier3] {
		t.Fatalf("unexpected distribution: %v", histogram)
	}
	if histogram[Tier3] > n/10 {
		t.Fatalf("tier3 drawn too often: %d of %d", histogram[Tier3], n)
	}
}

func TestRollTraitsDeterministicAndInPool(t *testing.T) {
	r := newTestRoller(t)

	for i := 0; i < 100; i++ {
		sig := fmt.Sprintf("sig-%d", i)
		for _, tier := range Tiers() {
			ts1, err := r.RollTraits(MachinePress, sig, tier)
			if err != nil {
				t.Fatalf("traits: %v", err)
			}
			ts2, _ := r.RollTraits(MachinePress, sig, tier)
			if ts1 != ts2 {
				t.Fatalf("trait roll not deterministic: %+v vs %+v", ts1, ts2)
			}
			if !contains(finishPools[tier], ts1.Finish) {
				t.Fatalf("finish %q not in %s pool", ts1.Finish, tier)
			}
			if !contains(platingPool, ts1.Plating) {
				t.Fatalf("plating %q not in pool", ts1.Plating)
			}
			if !contains(emblemPool, ts1.Emblem) {
				t.Fatalf("emblem %q not in pool", ts1.Emblem)
			}
		}
	}
}

func TestRollTraitsRejectsInvalidTier(t *testing.T) {
	r := newTestRoller(t)
	if _, err := r.RollTraits(MachinePress, "sig", Tier("tier9")); err != ErrInvalidTier {
		t.Fatalf("want ErrInvalidTier, got %v", err)
	}
}

func contains(pool []string, v string) bool {
	for _, p := range pool {
		if p == v {
			return true
		}
	}
	return false
}
