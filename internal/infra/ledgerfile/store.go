package ledgerfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"scrapworks/internal/domain/remix"
)

// Store is the file-backed remix.LedgerStore: one JSON document, rewritten
// atomically (write-to-temp-then-rename) on every commit. All mutation is
// serialized under a single mutex, which is the process-wide critical
// section the pipeline relies on.
//
// If the document fails to parse at load, the bytes are preserved as
// <path>.corrupt-<unix> and the store refuses to operate until an operator
// intervenes. A corrupted ledger never silently resets.
type Store struct {
	mu      sync.RWMutex
	path    string
	doc     document
	corrupt bool
}

type document struct {
	// UsedSignatures maps payment signature -> committed entry.
	UsedSignatures map[string]entryDoc `json:"usedSignatures"`
	// UsedSources maps source mint -> the signature that consumed it.
	UsedSources    map[string]string `json:"usedSources"`
	Sequence       uint64            `json:"sequence"`
	CollectionMint string            `json:"collectionMint,omitempty"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

type entryDoc struct {
	Payer        string         `json:"payer"`
	SourceMint   string         `json:"sourceMint"`
	IssuedMint   string         `json:"issuedMint"`
	Machine      string         `json:"machine"`
	Tier         string         `json:"tier"`
	Traits       remix.TraitSet `json:"traits"`
	Sequence     uint64         `json:"sequence"`
	MetadataURI  string         `json:"metadataUri,omitempty"`
	CostLamports uint64         `json:"costLamports"`
	MintedAt     time.Time      `json:"mintedAt"`
}

// New loads (or initializes) the ledger document at path.
//
// A missing file yields an empty ledger. An unparseable file is backed up
// for forensics and the returned store fails closed: every operation
// reports remix.ErrLedgerCorrupt.
func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("ledgerfile: path is empty")
	}

	s := &Store{path: path, doc: emptyDocument()}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("[ledgerfile] no ledger at %s, starting empty", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledgerfile: read %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		backup := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		if werr := os.WriteFile(backup, raw, 0o600); werr != nil {
			log.Printf("[ledgerfile] FAILED to back up corrupt ledger: %v", werr)
		} else {
			log.Printf("[ledgerfile] corrupt ledger backed up to %s", backup)
		}
		s.corrupt = true
		return s, fmt.Errorf("ledgerfile: parse %s: %w (ledger preserved, mutations refused)", path, err)
	}

	if doc.UsedSignatures == nil {
		doc.UsedSignatures = map[string]entryDoc{}
	}
	if doc.UsedSources == nil {
		doc.UsedSources = map[string]string{}
	}
	s.doc = doc
	log.Printf("[ledgerfile] loaded %s entries=%d sequence=%d", path, len(doc.UsedSignatures), doc.Sequence)
	return s, nil
}

func emptyDocument() document {
	return document{
		UsedSignatures: map[string]entryDoc{},
		UsedSources:    map[string]string{},
	}
}

// CheckAvailable implements remix.LedgerStore.
func (s *Store) CheckAvailable(_ context.Context, signature, sourceMint string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.corrupt {
		return remix.ErrLedgerCorrupt
	}
	if _, ok := s.doc.UsedSignatures[signature]; ok {
		return remix.ErrSignatureConsumed
	}
	if _, ok := s.doc.UsedSources[sourceMint]; ok {
		return remix.ErrSourceConsumed
	}
	return nil
}

// ReserveAndCommit implements remix.LedgerStore. Availability and the tier
// cap are re-checked here, inside the critical section, regardless of what
// the caller believed before its mint side effects.
func (s *Store) ReserveAndCommit(_ context.Context, e remix.Entry, caps map[remix.Tier]uint64) (remix.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.corrupt {
		return remix.Entry{}, remix.ErrLedgerCorrupt
	}
	if _, ok := s.doc.UsedSignatures[e.Signature]; ok {
		return remix.Entry{}, remix.ErrSignatureConsumed
	}
	if _, ok := s.doc.UsedSources[e.SourceMint]; ok {
		return remix.Entry{}, remix.ErrSourceConsumed
	}
	if s.tierCountLocked(e.Tier) >= caps[e.Tier] {
		return remix.Entry{}, remix.ErrTierCapReached
	}

	next := s.doc.Sequence + 1
	e.Sequence = next

	committed, err := remix.NewEntry(e)
	if err != nil {
		return remix.Entry{}, err
	}

	// Mutate a copy first so a persist failure leaves memory untouched.
	doc := s.cloneDocLocked()
	doc.UsedSignatures[committed.Signature] = toDoc(committed)
	doc.UsedSources[committed.SourceMint] = committed.Signature
	doc.Sequence = next
	doc.UpdatedAt = time.Now().UTC()

	if err := s.persistLocked(doc); err != nil {
		return remix.Entry{}, err
	}
	s.doc = doc
	return committed, nil
}

// ReadCounts implements remix.LedgerStore.
func (s *Store) ReadCounts(_ context.Context) (remix.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.corrupt {
		return remix.Counts{}, remix.ErrLedgerCorrupt
	}
	return s.countsLocked(), nil
}

// Lookup implements remix.LedgerStore.
func (s *Store) Lookup(_ context.Context, signature string) (remix.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.corrupt {
		return remix.Entry{}, false, remix.ErrLedgerCorrupt
	}
	d, ok := s.doc.UsedSignatures[signature]
	if !ok {
		return remix.Entry{}, false, nil
	}
	return fromDoc(signature, d), true, nil
}

// SetCollectionMint implements remix.LedgerStore. Idempotent for the same
// mint; a different mint once one is recorded is an error.
func (s *Store) SetCollectionMint(_ context.Context, mint string) error {
	mint = strings.TrimSpace(mint)
	if mint == "" {
		return errors.New("ledgerfile: collection mint is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.corrupt {
		return remix.ErrLedgerCorrupt
	}
	if s.doc.CollectionMint == mint {
		return nil
	}
	if s.doc.CollectionMint != "" {
		return fmt.Errorf("ledgerfile: collection already recorded (%s)", s.doc.CollectionMint)
	}

	doc := s.cloneDocLocked()
	doc.CollectionMint = mint
	doc.UpdatedAt = time.Now().UTC()
	if err := s.persistLocked(doc); err != nil {
		return err
	}
	s.doc = doc
	return nil
}

func (s *Store) countsLocked() remix.Counts {
	per := map[remix.Tier]uint64{}
	var lastCost uint64
	var lastSeq uint64
	for _, d := range s.doc.UsedSignatures {
		per[remix.Tier(d.Tier)]++
		if d.Sequence > lastSeq {
			lastSeq = d.Sequence
			lastCost = d.CostLamports
		}
	}
	return remix.Counts{
		PerTier:        per,
		Sequence:       s.doc.Sequence,
		LastMintCost:   lastCost,
		HasMint:        len(s.doc.UsedSignatures) > 0,
		CollectionMint: s.doc.CollectionMint,
	}
}

func (s *Store) tierCountLocked(tier remix.Tier) uint64 {
	var n uint64
	for _, d := range s.doc.UsedSignatures {
		if remix.Tier(d.Tier) == tier {
			n++
		}
	}
	return n
}

func (s *Store) cloneDocLocked() document {
	doc := document{
		UsedSignatures: make(map[string]entryDoc, len(s.doc.UsedSignatures)+1),
		UsedSources:    make(map[string]string, len(s.doc.UsedSources)+1),
		Sequence:       s.doc.Sequence,
		CollectionMint: s.doc.CollectionMint,
		UpdatedAt:      s.doc.UpdatedAt,
	}
	for k, v := range s.doc.UsedSignatures {
		doc.UsedSignatures[k] = v
	}
	for k, v := range s.doc.UsedSources {
		doc.UsedSources[k] = v
	}
	return doc
}

// persistLocked writes doc next to the ledger and renames it into place so
// a crash mid-write can never leave a half-written ledger behind.
func (s *Store) persistLocked(doc document) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("ledgerfile: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("ledgerfile: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("ledgerfile: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("ledgerfile: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ledgerfile: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ledgerfile: rename: %w", err)
	}
	return syncDir(dir)
}

// syncDir fsyncs the ledger's directory so the rename itself is durable; a
// crash right after commit must not roll the ledger back to the old file.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("ledgerfile: open dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("ledgerfile: sync dir: %w", err)
	}
	return nil
}

func toDoc(e remix.Entry) entryDoc {
	return entryDoc{
		Payer:        e.Payer,
		SourceMint:   e.SourceMint,
		IssuedMint:   e.IssuedMint,
		Machine:      string(e.Machine),
		Tier:         string(e.Tier),
		Traits:       e.Traits,
		Sequence:     e.Sequence,
		MetadataURI:  e.MetadataURI,
		CostLamports: e.CostLamports,
		MintedAt:     e.MintedAt,
	}
}

func fromDoc(signature string, d entryDoc) remix.Entry {
	return remix.Entry{
		Signature:    signature,
		Payer:        d.Payer,
		SourceMint:   d.SourceMint,
		IssuedMint:   d.IssuedMint,
		Machine:      remix.Machine(d.Machine),
		Tier:         remix.Tier(d.Tier),
		Traits:       d.Traits,
		Sequence:     d.Sequence,
		MetadataURI:  d.MetadataURI,
		CostLamports: d.CostLamports,
		MintedAt:     d.MintedAt,
	}
}
