package remix

import (
	"errors"
	"strings"
	"time"
)

// Entry is one committed remix: a consumed payment signature and a consumed
// source NFT, plus the asset that was issued for them. Entries are written
// exclusively by the ledger's reserveAndCommit step, never speculatively.
type Entry struct {
	Signature   string // payment tx signature (base58, 64-byte sig)
	Payer       string // wallet that paid and receives the issued asset (base58 pubkey)
	SourceMint  string // source NFT mint consumed by this remix (base58 pubkey)
	IssuedMint  string // mint address of the issued remix NFT (base58 pubkey)
	Machine     Machine
	Tier        Tier
	Traits      TraitSet
	Sequence    uint64 // 1-based issue number, names the asset ("Output 007")
	MetadataURI string
	// CostLamports is the lamport balance the mint authority actually spent
	// on this mint. Feeds the CONVEYOR dynamic price.
	CostLamports uint64
	MintedAt     time.Time
}

// Errors
var (
	ErrInvalidSignature  = errors.New("remix: invalid signature")
	ErrInvalidPayer      = errors.New("remix: invalid payer")
	ErrInvalidSourceMint = errors.New("remix: invalid sourceMint")
	ErrInvalidIssuedMint = errors.New("remix: invalid issuedMint")
	ErrInvalidSequence   = errors.New("remix: invalid sequence")
	ErrInvalidMintedAt   = errors.New("remix: invalid mintedAt")
)

// Policy: Solana pubkeys are 32 bytes base58 (observed length 32..44),
// transaction signatures are 64 bytes base58 (typically 87..88; the lower
// bound is kept loose since leading zero bytes shorten the encoding).
var (
	pubkeyMinLen   = 32
	pubkeyMaxLen   = 44
	sigMinLen      = 64
	sigMaxLen      = 88
	base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
)

// NewEntry trims, validates and returns a committable Entry.
func NewEntry(e Entry) (Entry, error) {
	e.Signature = strings.TrimSpace(e.Signature)
	e.Payer = strings.TrimSpace(e.Payer)
	e.SourceMint = strings.TrimSpace(e.SourceMint)
	e.IssuedMint = strings.TrimSpace(e.IssuedMint)
	e.MetadataURI = strings.TrimSpace(e.MetadataURI)
	if err := e.validate(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (e Entry) validate() error {
	if !IsValidSignature(e.Signature) {
		return ErrInvalidSignature
	}
	if !IsValidPubkey(e.Payer) {
		return ErrInvalidPayer
	}
	if !IsValidPubkey(e.SourceMint) {
		return ErrInvalidSourceMint
	}
	if !IsValidPubkey(e.IssuedMint) {
		return ErrInvalidIssuedMint
	}
	if !e.Machine.Valid() {
		return ErrInvalidMachine
	}
	if !e.Tier.Valid() {
		return ErrInvalidTier
	}
	if e.Sequence == 0 {
		return ErrInvalidSequence
	}
	if e.MintedAt.IsZero() {
		return ErrInvalidMintedAt
	}
	return nil
}

// IsValidPubkey reports whether s looks like a base58 32-byte Solana pubkey.
func IsValidPubkey(s string) bool {
	return isBase58(s, pubkeyMinLen, pubkeyMaxLen)
}

// IsValidSignature reports whether s looks like a base58 64-byte signature.
func IsValidSignature(s string) bool {
	return isBase58(s, sigMinLen, sigMaxLen)
}

func isBase58(s string, minLen, maxLen int) bool {
	if len(s) < minLen || len(s) > maxLen {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune(base58Alphabet, r) {
			return false
		}
	}
	return true
}
