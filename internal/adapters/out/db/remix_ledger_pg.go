package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"scrapworks/internal/domain/remix"
)

// =====================================================
// Postgres Remix Ledger
// Implements remix.LedgerStore.
//
// remix_entries: one row per consumed payment. Uniqueness of signature and
// source_mint is enforced by the primary key and a unique constraint, so a
// double spend loses the INSERT race no matter what the application saw.
// remix_meta: single row carrying the collection mint.
// =====================================================

type RemixLedgerPG struct {
	DB *sql.DB
}

func NewRemixLedgerPG(db *sql.DB) *RemixLedgerPG {
	return &RemixLedgerPG{DB: db}
}

const remixSchema = `
CREATE TABLE IF NOT EXISTS remix_entries (
    signature     TEXT PRIMARY KEY,
    payer         TEXT NOT NULL,
    source_mint   TEXT NOT NULL UNIQUE,
    issued_mint   TEXT NOT NULL,
    machine       TEXT NOT NULL,
    tier          TEXT NOT NULL,
    finish        TEXT NOT NULL DEFAULT '',
    plating       TEXT NOT NULL DEFAULT '',
    emblem        TEXT NOT NULL DEFAULT '',
    sequence      BIGINT NOT NULL UNIQUE,
    metadata_uri  TEXT NOT NULL DEFAULT '',
    cost_lamports BIGINT NOT NULL DEFAULT 0,
    minted_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS remix_entries_tier_idx ON remix_entries (tier);

CREATE TABLE IF NOT EXISTS remix_meta (
    id              BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
    collection_mint TEXT NOT NULL DEFAULT '',
    updated_at      TIMESTAMPTZ NOT NULL
);`

// EnsureSchema creates the ledger tables when missing.
func (r *RemixLedgerPG) EnsureSchema(ctx context.Context) error {
	if r.DB == nil {
		return errors.New("db is nil")
	}
	_, err := r.DB.ExecContext(ctx, remixSchema)
	return err
}

// CheckAvailable implements remix.LedgerStore.
func (r *RemixLedgerPG) CheckAvailable(ctx context.Context, signature, sourceMint string) error {
	if r.DB == nil {
		return errors.New("db is nil")
	}

	var bySig, bySource bool
	err := r.DB.QueryRowContext(ctx, `
		SELECT
		    EXISTS (SELECT 1 FROM remix_entries WHERE signature = $1),
		    EXISTS (SELECT 1 FROM remix_entries WHERE source_mint = $2)
	`, signature, sourceMint).Scan(&bySig, &bySource)
	if err != nil {
		return err
	}
	if bySig {
		return remix.ErrSignatureConsumed
	}
	if bySource {
		return remix.ErrSourceConsumed
	}
	return nil
}

// commitAttempts bounds the retry loop for commits that lose a race with a
// concurrent writer (serialization abort or sequence collision).
const commitAttempts = 5

// ReserveAndCommit implements remix.LedgerStore. One serializable
// transaction per attempt: cap check, sequence bump and insert decided
// together; the unique constraints are the last line of defense against a
// concurrent writer that slipped past the check. Two concurrent commits
// with distinct signatures can both read the same MAX(sequence); the loser
// gets a serialization abort or a sequence unique violation and simply
// re-runs with a fresh read, so only genuinely consumed signatures and
// sources ever surface as consumed.
func (r *RemixLedgerPG) ReserveAndCommit(ctx context.Context, e remix.Entry, caps map[remix.Tier]uint64) (remix.Entry, error) {
	if r.DB == nil {
		return remix.Entry{}, errors.New("db is nil")
	}

	var err error
	for attempt := 0; attempt < commitAttempts; attempt++ {
		var v remix.Entry
		v, err = r.reserveAndCommitOnce(ctx, e, caps)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, remix.ErrLedgerContention) {
			return remix.Entry{}, err
		}
	}
	return remix.Entry{}, err
}

func (r *RemixLedgerPG) reserveAndCommitOnce(ctx context.Context, e remix.Entry, caps map[remix.Tier]uint64) (remix.Entry, error) {
	tx, err := r.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return remix.Entry{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var tierCount, maxSeq uint64
	err = tx.QueryRowContext(ctx, `
		SELECT
		    (SELECT COUNT(*) FROM remix_entries WHERE tier = $1),
		    (SELECT COALESCE(MAX(sequence), 0) FROM remix_entries)
	`, string(e.Tier)).Scan(&tierCount, &maxSeq)
	if err != nil {
		return remix.Entry{}, mapPGUniqueErr(err)
	}
	if tierCount >= caps[e.Tier] {
		return remix.Entry{}, remix.ErrTierCapReached
	}

	e.Sequence = maxSeq + 1
	v, err := remix.NewEntry(e)
	if err != nil {
		return remix.Entry{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO remix_entries
		    (signature, payer, source_mint, issued_mint, machine, tier,
		     finish, plating, emblem, sequence, metadata_uri, cost_lamports, minted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		v.Signature, v.Payer, v.SourceMint, v.IssuedMint, string(v.Machine), string(v.Tier),
		v.Traits.Finish, v.Traits.Plating, v.Traits.Emblem,
		int64(v.Sequence), v.MetadataURI, int64(v.CostLamports), v.MintedAt.UTC(),
	)
	if err != nil {
		return remix.Entry{}, mapPGUniqueErr(err)
	}

	if err := tx.Commit(); err != nil {
		return remix.Entry{}, mapPGUniqueErr(err)
	}
	return v, nil
}

// ReadCounts implements remix.LedgerStore.
func (r *RemixLedgerPG) ReadCounts(ctx context.Context) (remix.Counts, error) {
	if r.DB == nil {
		return remix.Counts{}, errors.New("db is nil")
	}

	per := map[remix.Tier]uint64{}
	rows, err := r.DB.QueryContext(ctx, `SELECT tier, COUNT(*) FROM remix_entries GROUP BY tier`)
	if err != nil {
		return remix.Counts{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var tier string
		var n uint64
		if err := rows.Scan(&tier, &n); err != nil {
			return remix.Counts{}, err
		}
		per[remix.Tier(tier)] = n
	}
	if err := rows.Err(); err != nil {
		return remix.Counts{}, err
	}

	var seq, lastCost uint64
	err = r.DB.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence), 0),
		       COALESCE((SELECT cost_lamports FROM remix_entries ORDER BY sequence DESC LIMIT 1), 0)
		FROM remix_entries
	`).Scan(&seq, &lastCost)
	if err != nil {
		return remix.Counts{}, err
	}

	var collection string
	err = r.DB.QueryRowContext(ctx, `SELECT collection_mint FROM remix_meta WHERE id`).Scan(&collection)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return remix.Counts{}, err
	}

	return remix.Counts{
		PerTier:        per,
		Sequence:       seq,
		LastMintCost:   lastCost,
		HasMint:        seq > 0,
		CollectionMint: collection,
	}, nil
}

// Lookup implements remix.LedgerStore.
func (r *RemixLedgerPG) Lookup(ctx context.Context, signature string) (remix.Entry, bool, error) {
	if r.DB == nil {
		return remix.Entry{}, false, errors.New("db is nil")
	}

	var (
		e        remix.Entry
		machine  string
		tier     string
		seq      int64
		cost     int64
		mintedAt time.Time
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT payer, source_mint, issued_mint, machine, tier,
		       finish, plating, emblem, sequence, metadata_uri, cost_lamports, minted_at
		FROM remix_entries WHERE signature = $1
	`, signature).Scan(
		&e.Payer, &e.SourceMint, &e.IssuedMint, &machine, &tier,
		&e.Traits.Finish, &e.Traits.Plating, &e.Traits.Emblem,
		&seq, &e.MetadataURI, &cost, &mintedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return remix.Entry{}, false, nil
	}
	if err != nil {
		return remix.Entry{}, false, err
	}

	e.Signature = signature
	e.Machine = remix.Machine(machine)
	e.Tier = remix.Tier(tier)
	e.Sequence = uint64(seq)
	e.CostLamports = uint64(cost)
	e.MintedAt = mintedAt.UTC()
	return e, true, nil
}

// SetCollectionMint implements remix.LedgerStore.
func (r *RemixLedgerPG) SetCollectionMint(ctx context.Context, mint string) error {
	if r.DB == nil {
		return errors.New("db is nil")
	}
	mint = strings.TrimSpace(mint)
	if mint == "" {
		return errors.New("db: collection mint is empty")
	}

	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO remix_meta (id, collection_mint, updated_at)
		VALUES (TRUE, $1, NOW())
		ON CONFLICT (id) DO UPDATE
		SET collection_mint = EXCLUDED.collection_mint,
		    updated_at      = EXCLUDED.updated_at
		WHERE remix_meta.collection_mint IN ('', EXCLUDED.collection_mint)
	`, mint)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("db: collection already recorded")
	}
	return nil
}

// mapPGUniqueErr translates constraint and concurrency errors into the
// domain's ledger errors. Serialization aborts (40001), deadlocks (40P01)
// and unique violations on anything other than the signature key or the
// source_mint constraint mean a concurrent writer interfered, not that the
// payment was consumed, so they map to ErrLedgerContention.
func mapPGUniqueErr(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	if pqErr.Code == "40001" || pqErr.Code == "40P01" {
		return fmt.Errorf("%w: %v", remix.ErrLedgerContention, err)
	}
	if pqErr.Code != "23505" {
		return err
	}
	switch {
	case strings.Contains(pqErr.Constraint, "source_mint"):
		return remix.ErrSourceConsumed
	case strings.Contains(pqErr.Constraint, "pkey"):
		return remix.ErrSignatureConsumed
	default:
		// sequence collision or an unknown constraint: the row under this
		// signature was never written, retry with a fresh read
		return fmt.Errorf("%w: %v", remix.ErrLedgerContention, err)
	}
}
