package ledgerfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"scrapworks/internal/domain/remix"
)

func tempLedger(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "ledger.json"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func testEntry(i int) remix.Entry {
	// base58-safe padding (no 0, O, I, l)
	sig := fmt.Sprintf("sig%d", i)
	sig += strings.Repeat("A", 87-len(sig))
	pk := func(prefix string) string {
		return prefix + strings.Repeat("B", 40-len(prefix))
	}
	return remix.Entry{
		Signature:  sig,
		Payer:      pk(fmt.Sprintf("payer%d", i)),
		SourceMint: pk(fmt.Sprintf("src%d", i)),
		IssuedMint: pk(fmt.Sprintf("out%d", i)),
		Machine:    remix.MachineConveyor,
		Tier:       remix.Tier1,
		Traits:     remix.TraitSet{Finish: "Raw Steel", Plating: "None", Emblem: "Gear"},
		// Sequence assigned by the store.
		CostLamports: uint64(1000 + i),
		MintedAt:     time.Now().UTC(),
	}
}

func bigCaps() map[remix.Tier]uint64 {
	return map[remix.Tier]uint64{remix.Tier1: 3000, remix.Tier2: 900, remix.Tier3: 100}
}

func TestReserveAndCommitAssignsSequence(t *testing.T) {
	s := tempLedger(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		got, err := s.ReserveAndCommit(ctx, testEntry(i), bigCaps())
		if err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
		if got.Sequence != uint64(i) {
			t.Fatalf("sequence = %d, want %d", got.Sequence, i)
		}
	}

	counts, err := s.ReadCounts(ctx)
	if err != nil {
		t.Fatalf("ReadCounts: %v", err)
	}
	if counts.Sequence != 3 || counts.PerTier[remix.Tier1] != 3 {
		t.Fatalf("counts = %+v", counts)
	}
	if !counts.HasMint || counts.LastMintCost != 1003 {
		t.Fatalf("last mint cost = %d hasMint=%v", counts.LastMintCost, counts.HasMint)
	}
}

func TestSignatureUniqueness(t *testing.T) {
	s := tempLedger(t)
	ctx := context.Background()

	e := testEntry(1)
	if _, err := s.ReserveAndCommit(ctx, e, bigCaps()); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	e2 := testEntry(2)
	e2.Signature = e.Signature
	if _, err := s.ReserveAndCommit(ctx, e2, bigCaps()); !errors.Is(err, remix.ErrSignatureConsumed) {
		t.Fatalf("want ErrSignatureConsumed, got %v", err)
	}
	if err := s.CheckAvailable(ctx, e.Signature, "unusedSourceMint"+strings.Repeat("C", 20)); !errors.Is(err, remix.ErrSignatureConsumed) {
		t.Fatalf("CheckAvailable: want ErrSignatureConsumed, got %v", err)
	}
}

func TestOneRemixPerSource(t *testing.T) {
	s := tempLedger(t)
	ctx := context.Background()

	e := testEntry(1)
	if _, err := s.ReserveAndCommit(ctx, e, bigCaps()); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	e2 := testEntry(2)
	e2.SourceMint = e.SourceMint
	if _, err := s.ReserveAndCommit(ctx, e2, bigCaps()); !errors.Is(err, remix.ErrSourceConsumed) {
		t.Fatalf("want ErrSourceConsumed, got %v", err)
	}
}

func TestTierCapEnforcedAtCommit(t *testing.T) {
	s := tempLedger(t)
	ctx := context.Background()
	caps := map[remix.Tier]uint64{remix.Tier1: 2, remix.Tier2: 1, remix.Tier3: 1}

	for i := 1; i <= 2; i++ {
		if _, err := s.ReserveAndCommit(ctx, testEntry(i), caps); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}
	if _, err := s.ReserveAndCommit(ctx, testEntry(3), caps); !errors.Is(err, remix.ErrTierCapReached) {
		t.Fatalf("want ErrTierCapReached, got %v", err)
	}
}

func TestConcurrentDuplicateSignature(t *testing.T) {
	s := tempLedger(t)
	ctx := context.Background()

	const n = 16
	e := testEntry(1)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.ReserveAndCommit(ctx, e, bigCaps())
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else if !errors.Is(err, remix.ErrSignatureConsumed) && !errors.Is(err, remix.ErrSourceConsumed) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("%d commits succeeded for one signature, want exactly 1", ok)
	}

	counts, _ := s.ReadCounts(ctx)
	if counts.Sequence != 1 {
		t.Fatalf("sequence = %d after duplicate storm, want 1", counts.Sequence)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")
	ctx := context.Background()

	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e := testEntry(1)
	committed, err := s.ReserveAndCommit(ctx, e, bigCaps())
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.SetCollectionMint(ctx, "Co11ection"+strings.Repeat("D", 30)); err != nil {
		t.Fatalf("SetCollectionMint: %v", err)
	}

	reloaded, err := New(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, ok, err := reloaded.Lookup(ctx, e.Signature)
	if err != nil || !ok {
		t.Fatalf("Lookup after reload: ok=%v err=%v", ok, err)
	}
	if got.IssuedMint != committed.IssuedMint || got.Sequence != committed.Sequence {
		t.Fatalf("reloaded entry mismatch: %+v vs %+v", got, committed)
	}
	counts, _ := reloaded.ReadCounts(ctx)
	if counts.CollectionMint == "" {
		t.Fatal("collection mint lost across reload")
	}
}

func TestSetCollectionMintIdempotent(t *testing.T) {
	s := tempLedger(t)
	ctx := context.Background()
	mint := "Co11ection" + strings.Repeat("D", 30)

	if err := s.SetCollectionMint(ctx, mint); err != nil {
		t.Fatalf("first set: %v", err)
	}
	if err := s.SetCollectionMint(ctx, mint); err != nil {
		t.Fatalf("idempotent set: %v", err)
	}
	if err := s.SetCollectionMint(ctx, "Different"+strings.Repeat("E", 30)); err == nil {
		t.Fatal("second collection accepted")
	}
}

func TestCorruptLedgerFailsClosed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	s, err := New(path)
	if err == nil {
		t.Fatal("corrupt ledger loaded without error")
	}
	ctx := context.Background()

	if _, cerr := s.ReserveAndCommit(ctx, testEntry(1), bigCaps()); !errors.Is(cerr, remix.ErrLedgerCorrupt) {
		t.Fatalf("want ErrLedgerCorrupt, got %v", cerr)
	}
	if _, cerr := s.ReadCounts(ctx); !errors.Is(cerr, remix.ErrLedgerCorrupt) {
		t.Fatalf("ReadCounts: want ErrLedgerCorrupt, got %v", cerr)
	}

	// Original preserved plus a forensic backup.
	if _, serr := os.Stat(path); serr != nil {
		t.Fatalf("original ledger removed: %v", serr)
	}
	matches, _ := filepath.Glob(path + ".corrupt-*")
	if len(matches) != 1 {
		t.Fatalf("backup files = %v, want exactly one", matches)
	}
}

func TestPersistedDocumentShape(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")
	ctx := context.Background()

	s, _ := New(path)
	e := testEntry(1)
	if _, err := s.ReserveAndCommit(ctx, e, bigCaps()); err != nil {
		t.Fatalf("commit: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("ledger on disk is not valid JSON: %v", err)
	}
	for _, key := range []string{"usedSignatures", "usedSources", "sequence"} {
		if _, ok := doc[key]; !ok {
			t.Fatalf("persisted document missing %q", key)
		}
	}
}
