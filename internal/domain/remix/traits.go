package remix

// Cosmetic traits. Each slot is drawn by an independent domain-separated
// derivation so one trait cannot be predicted from another. The Finish pool
// is tier-specific; Plating and Emblem share one pool across tiers.

type TraitSet struct {
	Finish  string `json:"finish"`
	Plating string `json:"plating"`
	Emblem  string `json:"emblem"`
}

const (
	traitFinishTag  = "trait:finish"
	traitPlatingTag = "trait:plating"
	traitEmblemTag  = "trait:emblem"
)

var finishPools = map[Tier][]string{
	Tier1: {"Raw Steel", "Rust Patina", "Dull Zinc", "Scuffed Iron"},
	Tier2: {"Brushed Chrome", "Gunmetal", "Anodized Blue", "Copper Burnish"},
	Tier3: {"Radiant Gold", "Prismatic", "Molten Core"},
}

var platingPool = []string{
	"None", "Rivet Trim", "Hex Bolt", "Weld Seam", "Plate Armor",
}

var emblemPool = []string{
	"Gear", "Anvil", "Piston", "Flywheel", "Crank", "Spark",
}

// RollTraits derives the cosmetic trait set for an already-rolled tier.
// Deterministic per (signature, machine), same guarantees as RollTier.
func (r *Roller) RollTraits(machine Machine, signature string, tier Tier) (TraitSet, error) {
	if r == nil || len(r.secret) == 0 {
		return TraitSet{}, ErrEmptySecret
	}
	if signature == "" {
		return TraitSet{}, ErrEmptySignature
	}
	if !tier.Valid() {
		return TraitSet{}, ErrInvalidTier
	}

	finishes := finishPools[tier]
	return TraitSet{
		Finish:  finishes[r.draw(traitFinishTag, machine, signature)%uint64(len(finishes))],
		Plating: platingPool[r.draw(traitPlatingTag, machine, signature)%uint64(len(platingPool))],
		Emblem:  emblemPool[r.draw(traitEmblemTag, machine, signature)%uint64(len(emblemPool))],
	}, nil
}
