package remix

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
)

// Deterministic tier roll.
//
// The draw is a weighted selection over Tiers() where the randomness source
// is HMAC-SHA256 keyed by a server-held secret over a domain tag, the machine
// and the payment signature. The secret is mixed in after the signature
// already exists on-chain, so a payer cannot grind signatures to target a
// favorable roll. The same (signature, machine) pair always yields the same
// tier, which makes a retried request land on the same outcome it rolled
// before a failed commit.

const (
	tierRollTag = "tier-roll"
)

var (
	// ErrSoldOut means every tier has reached its cap: total roll weight zero.
	ErrSoldOut = errors.New("remix: all tiers sold out")

	ErrEmptySecret    = errors.New("remix: roll secret is empty")
	ErrEmptySignature = errors.New("remix: roll signature is empty")
)

// Roller derives tiers and traits. It holds only the server secret and is
// free of I/O so properties can be asserted by enumeration.
type Roller struct {
	secret []byte
}

// NewRoller returns a Roller keyed with the server-held secret.
func NewRoller(secret []byte) (*Roller, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	s := make([]byte, len(secret))
	copy(s, secret)
	return &Roller{secret: s}, nil
}

// RollTier draws exactly one tier for (machine, signature).
//
// counts holds the committed entries per tier, caps the configured supply
// caps. A tier whose count has reached its cap contributes zero weight:
// sold-out tiers are excluded, not deprioritized. When all tiers are sold
// out the roll fails with ErrSoldOut; callers check this before any costly
// side effect and the ledger re-checks it again at commit time.
func (r *Roller) RollTier(machine Machine, signature string, counts map[Tier]uint64, caps map[Tier]uint64) (Tier, error) {
	if r == nil || len(r.secret) == 0 {
		return "", ErrEmptySecret
	}
	if signature == "" {
		return "", ErrEmptySignature
	}
	if !machine.Valid() {
		return "", ErrInvalidMachine
	}

	base := machine.BaseWeights()

	var total uint64
	weights := make(map[Tier]uint64, len(base))
	for _, t := range Tiers() {
		w := base[t]
		if counts[t] >= caps[t] {
			w = 0
		}
		weights[t] = w
		total += w
	}
	if total == 0 {
		return "", ErrSoldOut
	}

	pick := r.draw(tierRollTag, machine, signature) % total
	for _, t := range Tiers() {
		w := weights[t]
		if w == 0 {
			continue
		}
		if pick < w {
			return t, nil
		}
		pick -= w
	}
	// unreachable: total covered every weight
	return "", ErrSoldOut
}

// draw produces a uniform uint64 from HMAC(secret, tag || machine || signature).
func (r *Roller) draw(tag string, machine Machine, signature string) uint64 {
	mac := hmac.New(sha256.New, r.secret)
	_, _ = mac.Write([]byte(tag))
	_, _ = mac.Write([]byte{0})
	_, _ = mac.Write([]byte(machine))
	_, _ = mac.Write([]byte{0})
	_, _ = mac.Write([]byte(signature))
	sum := mac.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}
