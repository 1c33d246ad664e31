package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"scrapworks/internal/domain/remix"
)

// =====================================================
// Firestore Remix Ledger
// Implements remix.LedgerStore.
//
// Layout:
//   remixEntries/{signature}   committed entry, one per consumed payment
//   remixSources/{sourceMint}  uniqueness index, value = consuming signature
//   remixMeta/state            {sequence, tierCounts, lastMintCost, collectionMint}
//
// ReserveAndCommit runs inside RunTransaction so both uniqueness checks,
// the tier cap and the sequence bump are decided atomically.
// =====================================================

type RemixLedgerFS struct {
	Client *firestore.Client
}

func NewRemixLedgerFS(client *firestore.Client) *RemixLedgerFS {
	return &RemixLedgerFS{Client: client}
}

func (r *RemixLedgerFS) entries() *firestore.CollectionRef {
	return r.Client.Collection("remixEntries")
}

func (r *RemixLedgerFS) sources() *firestore.CollectionRef {
	return r.Client.Collection("remixSources")
}

func (r *RemixLedgerFS) metaRef() *firestore.DocumentRef {
	return r.Client.Collection("remixMeta").Doc("state")
}

type metaDoc struct {
	Sequence       int64            `firestore:"sequence"`
	TierCounts     map[string]int64 `firestore:"tierCounts"`
	LastMintCost   int64            `firestore:"lastMintCost"`
	CollectionMint string           `firestore:"collectionMint"`
	UpdatedAt      time.Time        `firestore:"updatedAt"`
}

type fsEntryDoc struct {
	Payer        string    `firestore:"payer"`
	SourceMint   string    `firestore:"sourceMint"`
	IssuedMint   string    `firestore:"issuedMint"`
	Machine      string    `firestore:"machine"`
	Tier         string    `firestore:"tier"`
	Finish       string    `firestore:"finish"`
	Plating      string    `firestore:"plating"`
	Emblem       string    `firestore:"emblem"`
	Sequence     int64     `firestore:"sequence"`
	MetadataURI  string    `firestore:"metadataUri"`
	CostLamports int64     `firestore:"costLamports"`
	MintedAt     time.Time `firestore:"mintedAt"`
}

// CheckAvailable implements remix.LedgerStore.
func (r *RemixLedgerFS) CheckAvailable(ctx context.Context, signature, sourceMint string) error {
	if r.Client == nil {
		return errors.New("firestore client is nil")
	}

	_, err := r.entries().Doc(signature).Get(ctx)
	if err == nil {
		return remix.ErrSignatureConsumed
	}
	if grpcstatus.Code(err) != codes.NotFound {
		return err
	}

	_, err = r.sources().Doc(sourceMint).Get(ctx)
	if err == nil {
		return remix.ErrSourceConsumed
	}
	if grpcstatus.Code(err) != codes.NotFound {
		return err
	}
	return nil
}

// ReserveAndCommit implements remix.LedgerStore.
func (r *RemixLedgerFS) ReserveAndCommit(ctx context.Context, e remix.Entry, caps map[remix.Tier]uint64) (remix.Entry, error) {
	if r.Client == nil {
		return remix.Entry{}, errors.New("firestore client is nil")
	}

	var committed remix.Entry
	err := r.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		entryRef := r.entries().Doc(e.Signature)
		sourceRef := r.sources().Doc(e.SourceMint)

		// reads first: Firestore transactions forbid reads after writes
		if _, err := tx.Get(entryRef); err == nil {
			return remix.ErrSignatureConsumed
		} else if grpcstatus.Code(err) != codes.NotFound {
			return err
		}
		if _, err := tx.Get(sourceRef); err == nil {
			return remix.ErrSourceConsumed
		} else if grpcstatus.Code(err) != codes.NotFound {
			return err
		}

		meta, err := r.readMetaTx(tx)
		if err != nil {
			return err
		}
		if uint64(meta.TierCounts[string(e.Tier)]) >= caps[e.Tier] {
			return remix.ErrTierCapReached
		}

		e.Sequence = uint64(meta.Sequence) + 1
		v, err := remix.NewEntry(e)
		if err != nil {
			return err
		}

		if err := tx.Create(entryRef, toFSEntry(v)); err != nil {
			return err
		}
		if err := tx.Create(sourceRef, map[string]any{"signature": v.Signature}); err != nil {
			return err
		}

		if meta.TierCounts == nil {
			meta.TierCounts = map[string]int64{}
		}
		meta.Sequence = int64(v.Sequence)
		meta.TierCounts[string(v.Tier)]++
		meta.LastMintCost = int64(v.CostLamports)
		meta.UpdatedAt = time.Now().UTC()
		if err := tx.Set(r.metaRef(), meta); err != nil {
			return err
		}

		committed = v
		return nil
	})
	if err != nil {
		if grpcstatus.Code(err) == codes.AlreadyExists {
			return remix.Entry{}, remix.ErrSignatureConsumed
		}
		return remix.Entry{}, err
	}
	return committed, nil
}

// ReadCounts implements remix.LedgerStore.
func (r *RemixLedgerFS) ReadCounts(ctx context.Context) (remix.Counts, error) {
	if r.Client == nil {
		return remix.Counts{}, errors.New("firestore client is nil")
	}

	snap, err := r.metaRef().Get(ctx)
	if grpcstatus.Code(err) == codes.NotFound {
		return remix.Counts{PerTier: map[remix.Tier]uint64{}}, nil
	}
	if err != nil {
		return remix.Counts{}, err
	}

	var meta metaDoc
	if err := snap.DataTo(&meta); err != nil {
		return remix.Counts{}, err
	}

	per := make(map[remix.Tier]uint64, len(meta.TierCounts))
	for tier, n := range meta.TierCounts {
		per[remix.Tier(tier)] = uint64(n)
	}
	return remix.Counts{
		PerTier:        per,
		Sequence:       uint64(meta.Sequence),
		LastMintCost:   uint64(meta.LastMintCost),
		HasMint:        meta.Sequence > 0,
		CollectionMint: meta.CollectionMint,
	}, nil
}

// Lookup implements remix.LedgerStore.
func (r *RemixLedgerFS) Lookup(ctx context.Context, signature string) (remix.Entry, bool, error) {
	if r.Client == nil {
		return remix.Entry{}, false, errors.New("firestore client is nil")
	}

	snap, err := r.entries().Doc(signature).Get(ctx)
	if grpcstatus.Code(err) == codes.NotFound {
		return remix.Entry{}, false, nil
	}
	if err != nil {
		return remix.Entry{}, false, err
	}

	var d fsEntryDoc
	if err := snap.DataTo(&d); err != nil {
		return remix.Entry{}, false, err
	}
	return fromFSEntry(signature, d), true, nil
}

// SetCollectionMint implements remix.LedgerStore. Idempotent for the same
// mint; recording a different mint once one exists is an error.
func (r *RemixLedgerFS) SetCollectionMint(ctx context.Context, mint string) error {
	if r.Client == nil {
		return errors.New("firestore client is nil")
	}
	mint = strings.TrimSpace(mint)
	if mint == "" {
		return errors.New("firestore: collection mint is empty")
	}

	return r.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		meta, err := r.readMetaTx(tx)
		if err != nil {
			return err
		}
		if meta.CollectionMint == mint {
			return nil
		}
		if meta.CollectionMint != "" {
			return errors.New("firestore: collection already recorded")
		}
		meta.CollectionMint = mint
		meta.UpdatedAt = time.Now().UTC()
		return tx.Set(r.metaRef(), meta)
	})
}

func (r *RemixLedgerFS) readMetaTx(tx *firestore.Transaction) (metaDoc, error) {
	snap, err := tx.Get(r.metaRef())
	if grpcstatus.Code(err) == codes.NotFound {
		return metaDoc{TierCounts: map[string]int64{}}, nil
	}
	if err != nil {
		return metaDoc{}, err
	}
	var meta metaDoc
	if err := snap.DataTo(&meta); err != nil {
		return metaDoc{}, err
	}
	if meta.TierCounts == nil {
		meta.TierCounts = map[string]int64{}
	}
	return meta, nil
}

func toFSEntry(e remix.Entry) fsEntryDoc {
	return fsEntryDoc{
		Payer:        e.Payer,
		SourceMint:   e.SourceMint,
		IssuedMint:   e.IssuedMint,
		Machine:      string(e.Machine),
		Tier:         string(e.Tier),
		Finish:       e.Traits.Finish,
		Plating:      e.Traits.Plating,
		Emblem:       e.Traits.Emblem,
		Sequence:     int64(e.Sequence),
		MetadataURI:  e.MetadataURI,
		CostLamports: int64(e.CostLamports),
		MintedAt:     e.MintedAt,
	}
}

func fromFSEntry(signature string, d fsEntryDoc) remix.Entry {
	return remix.Entry{
		Signature:  signature,
		Payer:      d.Payer,
		SourceMint: d.SourceMint,
		IssuedMint: d.IssuedMint,
		Machine:    remix.Machine(d.Machine),
		Tier:       remix.Tier(d.Tier),
		Traits: remix.TraitSet{
			Finish:  d.Finish,
			Plating: d.Plating,
			Emblem:  d.Emblem,
		},
		Sequence:     uint64(d.Sequence),
		MetadataURI:  d.MetadataURI,
		CostLamports: uint64(d.CostLamports),
		MintedAt:     d.MintedAt,
	}
}
