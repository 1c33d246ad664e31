package remix

import (
	"context"
	"errors"
)

// Ledger errors shared by every store implementation.
var (
	ErrSignatureConsumed = errors.New("remix: signature already consumed")
	ErrSourceConsumed    = errors.New("remix: source asset already remixed")
	ErrTierCapReached    = errors.New("remix: tier cap reached")
	// ErrLedgerContention means a concurrent commit interfered with this one.
	// The request itself is fine and may be retried.
	ErrLedgerContention = errors.New("remix: ledger commit contention")
	// ErrLedgerCorrupt means persisted state failed to parse. The store must
	// preserve the corrupted data and refuse all further mutation.
	ErrLedgerCorrupt = errors.New("remix: ledger corrupt, mutations refused")
)

// Counts is a snapshot projection of the ledger used for quotes, supply
// display and pre-roll checks. It is advisory: commit decisions are always
// re-validated inside the store's critical section.
type Counts struct {
	PerTier        map[Tier]uint64
	Sequence       uint64 // committed entries so far; next issue is Sequence+1
	LastMintCost   uint64 // lamports spent by the most recent committed mint
	HasMint        bool   // false until the first entry commits
	CollectionMint string // empty until the umbrella collection exists
}

// LedgerStore is the single source of truth for consumption state.
//
// All mutation goes through ReserveAndCommit and SetCollectionMint, which
// every implementation serializes under one process-wide critical section
// (a mutex for the file store, a transaction for Firestore/Postgres).
type LedgerStore interface {
	// CheckAvailable fails fast with ErrSignatureConsumed or
	// ErrSourceConsumed if either identity was already spent.
	CheckAvailable(ctx context.Context, signature, sourceMint string) error

	// ReserveAndCommit atomically re-checks availability, re-checks the tier
	// cap for e.Tier against caps, assigns the next sequence number, writes
	// the entry and persists durably. The returned Entry carries the
	// authoritative sequence.
	ReserveAndCommit(ctx context.Context, e Entry, caps map[Tier]uint64) (Entry, error)

	// ReadCounts returns a snapshot without blocking writers beyond the
	// snapshot read itself.
	ReadCounts(ctx context.Context) (Counts, error)

	// Lookup returns the committed entry for signature, if any.
	Lookup(ctx context.Context, signature string) (Entry, bool, error)

	// SetCollectionMint records the umbrella collection identity. At most
	// one collection is ever recorded; a second call with a different mint
	// is an error.
	SetCollectionMint(ctx context.Context, mint string) error
}
