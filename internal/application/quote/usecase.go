package quote

import (
	"context"
	"errors"
	"fmt"

	"scrapworks/internal/domain/remix"
)

// Usecase serves the read-only pre-payment surface: price quotes and
// supply projection. Pure reads over the ledger snapshot, no side effects,
// safe to call unauthenticated and frequently.
type Usecase struct {
	ledger   remix.LedgerStore
	pricing  *remix.Pricing
	caps     map[remix.Tier]uint64
	treasury string
}

func NewUsecase(ledger remix.LedgerStore, pricing *remix.Pricing, caps map[remix.Tier]uint64, treasury string) (*Usecase, error) {
	if ledger == nil || pricing == nil {
		return nil, errors.New("quote: missing dependency")
	}
	if len(caps) == 0 {
		return nil, errors.New("quote: tier caps not configured")
	}
	if !remix.IsValidPubkey(treasury) {
		return nil, fmt.Errorf("quote: invalid treasury address %q", treasury)
	}
	return &Usecase{ledger: ledger, pricing: pricing, caps: caps, treasury: treasury}, nil
}

// QuoteDTO is what the client needs before paying.
type QuoteDTO struct {
	Treasury       string  `json:"treasury"`
	Machine        string  `json:"machine"`
	Amount         float64 `json:"amount"` // SOL, convenience
	AmountLamports uint64  `json:"amountInBaseUnits"`
}

// TierSupplyDTO is one tier's remaining capacity.
type TierSupplyDTO struct {
	Cap       uint64 `json:"cap"`
	Minted    uint64 `json:"minted"`
	Remaining uint64 `json:"remaining"`
}

// SupplyDTO is the full supply projection.
type SupplyDTO struct {
	PerTier     map[string]TierSupplyDTO `json:"perTier"`
	TotalCap    uint64                   `json:"totalCap"`
	TotalMinted uint64                   `json:"totalMinted"`
}

// ErrAllSoldOut means no tier has remaining capacity; quoting is pointless.
var ErrAllSoldOut = errors.New("quote: all tiers sold out")

// Quote computes the required payment for machine. Fails with ErrAllSoldOut
// when every tier is at cap, remix.ErrInvalidMachine for unknown machines,
// and remix.ErrNoPriorMint when the dynamic price has no basis yet.
func (u *Usecase) Quote(ctx context.Context, machineRaw string) (*QuoteDTO, error) {
	machine, err := remix.ParseMachine(machineRaw)
	if err != nil {
		return nil, err
	}

	counts, err := u.ledger.ReadCounts(ctx)
	if err != nil {
		return nil, err
	}

	soldOut := true
	for _, t := range remix.Tiers() {
		if counts.PerTier[t] < u.caps[t] {
			soldOut = false
			break
		}
	}
	if soldOut {
		return nil, ErrAllSoldOut
	}

	lamports, err := u.pricing.PriceLamports(machine, counts.LastMintCost, counts.HasMint)
	if err != nil {
		return nil, err
	}

	return &QuoteDTO{
		Treasury:       u.treasury,
		Machine:        machine.String(),
		Amount:         float64(lamports) / remix.LamportsPerSOL,
		AmountLamports: lamports,
	}, nil
}

// Supply returns the per-tier projection derived from the ledger.
func (u *Usecase) Supply(ctx context.Context) (*SupplyDTO, error) {
	counts, err := u.ledger.ReadCounts(ctx)
	if err != nil {
		return nil, err
	}

	out := &SupplyDTO{PerTier: make(map[string]TierSupplyDTO, len(u.caps))}
	for _, t := range remix.Tiers() {
		tierCap := u.caps[t]
		minted := counts.PerTier[t]
		remaining := uint64(0)
		if tierCap > minted {
			remaining = tierCap - minted
		}
		out.PerTier[t.String()] = TierSupplyDTO{Cap: tierCap, Minted: minted, Remaining: remaining}
		out.TotalCap += tierCap
		out.TotalMinted += minted
	}
	return out, nil
}
