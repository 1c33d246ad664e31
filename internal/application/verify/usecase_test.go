package verify

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"scrapworks/internal/domain/remix"
	"scrapworks/internal/infra/ledgerfile"
)

const (
	priceLamports = 250_000_000 // PRESS at 0.25 SOL
)

var (
	tSig      = "TestSig" + strings.Repeat("4", 80)
	tPayer    = "Payer" + strings.Repeat("7", 35)
	tSource   = "Source" + strings.Repeat("8", 34)
	tTreasury = "Treasury" + strings.Repeat("9", 32)
)

// --- fakes -------------------------------------------------------------

type fakePayments struct {
	view *PaymentView
	err  error
	slot uint64
}

func (f *fakePayments) FetchPayment(context.Context, string) (*PaymentView, error) {
	return f.view, f.err
}
func (f *fakePayments) CurrentSlot(context.Context) (uint64, error) { return f.slot, nil }

type fakeWallets struct {
	owns bool
	err  error
}

func (f *fakeWallets) OwnsAsset(context.Context, string, string) (bool, error) {
	return f.owns, f.err
}

type fakeUploader struct {
	blobCalls int32
	jsonCalls int32
	delay     time.Duration
	err       error
}

func (f *fakeUploader) UploadBlob(ctx context.Context, _ []byte, _ string) (string, error) {
	atomic.AddInt32(&f.blobCalls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	return "https://gateway.test/image", nil
}

func (f *fakeUploader) UploadJSON(ctx context.Context, _ any) (string, error) {
	atomic.AddInt32(&f.jsonCalls, 1)
	if f.err != nil {
		return "", f.err
	}
	return "https://gateway.test/metadata", nil
}

type fakeMinter struct {
	mu              sync.Mutex
	mintCalls       int
	collectionCalls int
	mintErrs        []error // consumed one per call, nil afterwards
	balance         uint64
	balanceStep     uint64 // balance drops by this much per mint
}

func (f *fakeMinter) AuthorityBalance(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakeMinter) CreateCollection(context.Context, string, string, string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collectionCalls++
	return "Co11ection" + strings.Repeat("C", 30), "collectionSig", nil
}

func (f *fakeMinter) MintRemix(context.Context, string, string, string, string, string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mintCalls++
	if len(f.mintErrs) > 0 {
		err := f.mintErrs[0]
		f.mintErrs = f.mintErrs[1:]
		if err != nil {
			return "", "", err
		}
	}
	f.balance -= f.balanceStep
	return fmt.Sprintf("Minted%d%s", f.mintCalls, strings.Repeat("M", 30)), "mintSig", nil
}

func (f *fakeMinter) calls() (mints, collections int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mintCalls, f.collectionCalls
}

type fakeAlerter struct {
	mu       sync.Mutex
	subjects []string
}

func (f *fakeAlerter) Send(_ context.Context, subject, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	return nil
}

// commitFailLedger wraps a real store but fails every commit with err,
// simulating the mint-landed-but-unrecorded partial failure.
type commitFailLedger struct {
	remix.LedgerStore
	err error
}

func (c *commitFailLedger) ReserveAndCommit(context.Context, remix.Entry, map[remix.Tier]uint64) (remix.Entry, error) {
	return remix.Entry{}, c.err
}

// --- harness -----------------------------------------------------------

type harness struct {
	uc       *Usecase
	ledger   remix.LedgerStore
	payments *fakePayments
	wallets  *fakeWallets
	uploader *fakeUploader
	minter   *fakeMinter
	alerter  *fakeAlerter
}

func goodPayment() *PaymentView {
	return &PaymentView{
		Slot:     100,
		FeePayer: tPayer,
		Transfers: []Transfer{
			{Source: tPayer, Destination: tTreasury, Lamports: priceLamports},
		},
	}
}

func newHarness(t *testing.T, caps map[remix.Tier]uint64) *harness {
	t.Helper()

	store, err := ledgerfile.New(filepath.Join(t.TempDir(), "ledger.json"))
	if err != nil {
		t.Fatalf("ledgerfile.New: %v", err)
	}
	return newHarnessWithLedger(t, store, caps)
}

func newHarnessWithLedger(t *testing.T, ledger remix.LedgerStore, caps map[remix.Tier]uint64) *harness {
	t.Helper()

	roller, err := remix.NewRoller([]byte("secret"))
	if err != nil {
		t.Fatalf("NewRoller: %v", err)
	}
	pricing, err := remix.NewPricing(map[remix.Machine]float64{
		remix.MachinePress:   0.25,
		remix.MachineFurnace: 1.5,
	})
	if err != nil {
		t.Fatalf("NewPricing: %v", err)
	}

	h := &harness{
		ledger:   ledger,
		payments: &fakePayments{view: goodPayment(), slot: 120},
		wallets:  &fakeWallets{owns: true},
		uploader: &fakeUploader{},
		minter:   &fakeMinter{balance: 10 * remix.LamportsPerSOL, balanceStep: 12_000_000},
		alerter:  &fakeAlerter{},
	}
	h.uc, err = NewUsecase(
		ledger, roller, pricing,
		h.payments, h.wallets, h.uploader, h.minter, h.alerter,
		Config{
			Treasury:   tTreasury,
			Caps:       caps,
			MaxSlotAge: 300,
			RetryBase:  time.Millisecond,
		},
	)
	if err != nil {
		t.Fatalf("NewUsecase: %v", err)
	}
	return h
}

func goodRequest() Request {
	return Request{
		Signature:  tSig,
		Payer:      tPayer,
		SourceMint: tSource,
		Machine:    "PRESS",
		ImageData:  []byte("png-bytes"),
		ImageMime:  "image/png",
	}
}

func bigCaps() map[remix.Tier]uint64 {
	return map[remix.Tier]uint64{remix.Tier1: 3000, remix.Tier2: 900, remix.Tier3: 100}
}

func pipelineErr(t *testing.T, err error) *PipelineError {
	t.Helper()
	var perr *PipelineError
	if !errors.As(err, &perr) {
		t.Fatalf("error is not a PipelineError: %v", err)
	}
	return perr
}

// --- tests -------------------------------------------------------------

func TestRunHappyPath(t *testing.T) {
	h := newHarness(t, bigCaps())

	res, err := h.uc.Run(context.Background(), goodRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !res.Tier.Valid() {
		t.Fatalf("invalid tier %q", res.Tier)
	}
	if res.Sequence != 1 || res.Name != "Output 001" {
		t.Fatalf("sequence/name = %d %q", res.Sequence, res.Name)
	}
	if res.IssuedMint == "" || res.MetadataURI == "" {
		t.Fatalf("missing issue data: %+v", res)
	}

	counts, _ := h.ledger.ReadCounts(context.Background())
	if counts.PerTier[res.Tier] != 1 {
		t.Fatalf("supply for %s = %d, want 1", res.Tier, counts.PerTier[res.Tier])
	}
	if counts.LastMintCost != 12_000_000 {
		t.Fatalf("recorded cost = %d", counts.LastMintCost)
	}
	if counts.CollectionMint == "" {
		t.Fatal("collection not recorded")
	}
}

func TestRunIdempotentRetryIsConflict(t *testing.T) {
	h := newHarness(t, bigCaps())
	ctx := context.Background()

	if _, err := h.uc.Run(ctx, goodRequest()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	blobsAfter := atomic.LoadInt32(&h.uploader.blobCalls)
	mintsAfter, _ := h.minter.calls()

	_, err := h.uc.Run(ctx, goodRequest())
	perr := pipelineErr(t, err)
	if perr.Kind != FailConflict || perr.Code != "signature_consumed" {
		t.Fatalf("got %s/%s, want conflict/signature_consumed", perr.Kind, perr.Code)
	}

	// the conflict discloses the committed outcome for the retried payment
	if perr.Prior == nil {
		t.Fatal("conflict carries no prior outcome")
	}
	if perr.Prior.Sequence != 1 || perr.Prior.Name != "Output 001" {
		t.Fatalf("prior = %+v, want sequence 1 / Output 001", perr.Prior)
	}
	if perr.Prior.IssuedMint == "" || perr.Prior.Tier == "" {
		t.Fatalf("prior missing mint or tier: %+v", perr.Prior)
	}

	// zero additional uploads or mint submissions
	if atomic.LoadInt32(&h.uploader.blobCalls) != blobsAfter {
		t.Fatal("repeat request uploaded again")
	}
	if m, _ := h.minter.calls(); m != mintsAfter {
		t.Fatal("repeat request minted again")
	}
}

func TestRunConcurrentDuplicate(t *testing.T) {
	h := newHarness(t, bigCaps())
	h.uploader.delay = 50 * time.Millisecond // hold the pipeline open

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = h.uc.Run(context.Background(), goodRequest())
		}(i)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		if perr := pipelineErr(t, err); perr.Kind == FailConflict {
			conflicts++
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("successes=%d conflicts=%d, want 1/1", successes, conflicts)
	}

	counts, _ := h.ledger.ReadCounts(context.Background())
	if counts.Sequence != 1 {
		t.Fatalf("ledger has %d entries for one signature", counts.Sequence)
	}
}

func TestRunInsufficientAmount(t *testing.T) {
	h := newHarness(t, bigCaps())
	h.payments.view.Transfers[0].Lamports = priceLamports - 1

	_, err := h.uc.Run(context.Background(), goodRequest())
	perr := pipelineErr(t, err)
	if perr.Kind != FailVerification || perr.Code != "insufficient_payment" {
		t.Fatalf("got %s/%s", perr.Kind, perr.Code)
	}
	if perr.ExpectedLamports != priceLamports || perr.ActualLamports != priceLamports-1 {
		t.Fatalf("disclosure = %d/%d", perr.ExpectedLamports, perr.ActualLamports)
	}

	counts, _ := h.ledger.ReadCounts(context.Background())
	if counts.Sequence != 0 {
		t.Fatal("ledger mutated by rejected request")
	}
	if atomic.LoadInt32(&h.uploader.blobCalls) != 0 {
		t.Fatal("upload attempted for rejected payment")
	}
}

func TestRunSoldOutBeforeSideEffects(t *testing.T) {
	// Every cap already reached by previously committed entries.
	store, err := ledgerfile.New(filepath.Join(t.TempDir(), "ledger.json"))
	if err != nil {
		t.Fatalf("ledgerfile.New: %v", err)
	}
	caps := map[remix.Tier]uint64{remix.Tier1: 1, remix.Tier2: 1, remix.Tier3: 1}
	for i, tier := range remix.Tiers() {
		entry := remix.Entry{
			Signature:  fmt.Sprintf("Seed%d", i+1) + strings.Repeat("5", 82),
			Payer:      tPayer,
			SourceMint: fmt.Sprintf("Seed%d", i+1) + strings.Repeat("6", 35),
			IssuedMint: fmt.Sprintf("Seed%d", i+1) + strings.Repeat("7", 35),
			Machine:    remix.MachinePress,
			Tier:       tier,
			MintedAt:   time.Now().UTC(),
		}
		if _, err := store.ReserveAndCommit(context.Background(), entry, caps); err != nil {
			t.Fatalf("seed %s: %v", tier, err)
		}
	}

	h := newHarnessWithLedger(t, store, caps)
	_, err = h.uc.Run(context.Background(), goodRequest())
	perr := pipelineErr(t, err)
	if perr.Kind != FailConflict || perr.Code != "sold_out" {
		t.Fatalf("got %s/%s", perr.Kind, perr.Code)
	}

	if atomic.LoadInt32(&h.uploader.blobCalls) != 0 || atomic.LoadInt32(&h.uploader.jsonCalls) != 0 {
		t.Fatal("upload attempted after sold out")
	}
	if m, c := h.minter.calls(); m != 0 || c != 0 {
		t.Fatal("mint attempted after sold out")
	}
}

func TestRunTxNotIndexedYetIsRetryable(t *testing.T) {
	h := newHarness(t, bigCaps())
	h.payments.view = nil

	_, err := h.uc.Run(context.Background(), goodRequest())
	perr := pipelineErr(t, err)
	if perr.Kind != FailNotYetAvailable || !perr.Retryable() {
		t.Fatalf("got %s retryable=%v", perr.Kind, perr.Retryable())
	}
	counts, _ := h.ledger.ReadCounts(context.Background())
	if counts.Sequence != 0 {
		t.Fatal("ledger slot consumed by not-yet-indexed tx")
	}
}

func TestRunRejectsWrongFeePayer(t *testing.T) {
	h := newHarness(t, bigCaps())
	h.payments.view.FeePayer = "SomeoneElse" + strings.Repeat("2", 29)

	_, err := h.uc.Run(context.Background(), goodRequest())
	perr := pipelineErr(t, err)
	if perr.Kind != FailVerification || perr.Code != "wrong_fee_payer" {
		t.Fatalf("got %s/%s", perr.Kind, perr.Code)
	}
}

func TestRunRejectsStaleTransaction(t *testing.T) {
	h := newHarness(t, bigCaps())
	h.payments.view.Slot = 100
	h.payments.slot = 100 + 301

	_, err := h.uc.Run(context.Background(), goodRequest())
	perr := pipelineErr(t, err)
	if perr.Code != "tx_stale" {
		t.Fatalf("got %s/%s", perr.Kind, perr.Code)
	}
}

func TestRunRejectsFailedTransaction(t *testing.T) {
	h := newHarness(t, bigCaps())
	h.payments.view.Failed = true

	_, err := h.uc.Run(context.Background(), goodRequest())
	if perr := pipelineErr(t, err); perr.Code != "tx_failed" {
		t.Fatalf("got %s/%s", perr.Kind, perr.Code)
	}
}

func TestRunRejectsNonOwner(t *testing.T) {
	h := newHarness(t, bigCaps())
	h.wallets.owns = false

	_, err := h.uc.Run(context.Background(), goodRequest())
	perr := pipelineErr(t, err)
	if perr.Kind != FailVerification || perr.Code != "not_owner" {
		t.Fatalf("got %s/%s", perr.Kind, perr.Code)
	}
	if perr.Retryable() {
		t.Fatal("ownership failure must not be retryable")
	}
}

func TestRunRetriesExpiredBlockhashOnly(t *testing.T) {
	h := newHarness(t, bigCaps())
	h.minter.mintErrs = []error{errors.New("SendTransaction: Blockhash not found")}

	if _, err := h.uc.Run(context.Background(), goodRequest()); err != nil {
		t.Fatalf("Run after retryable mint error: %v", err)
	}
	if m, _ := h.minter.calls(); m != 2 {
		t.Fatalf("mint calls = %d, want 2 (one retry)", m)
	}
}

func TestRunDoesNotRetryAmbiguousMintError(t *testing.T) {
	h := newHarness(t, bigCaps())
	h.minter.mintErrs = []error{errors.New("confirmation timeout")}

	_, err := h.uc.Run(context.Background(), goodRequest())
	perr := pipelineErr(t, err)
	if perr.Kind != FailTransient {
		t.Fatalf("got %s", perr.Kind)
	}
	if m, _ := h.minter.calls(); m != 1 {
		t.Fatalf("mint calls = %d, ambiguous errors must not be retried", m)
	}
}

func TestRunAlertsOnUnrecordedMint(t *testing.T) {
	store, err := ledgerfile.New(filepath.Join(t.TempDir(), "ledger.json"))
	if err != nil {
		t.Fatalf("ledgerfile.New: %v", err)
	}
	h := newHarnessWithLedger(t, &commitFailLedger{LedgerStore: store, err: errors.New("disk full")}, bigCaps())

	_, err = h.uc.Run(context.Background(), goodRequest())
	if err == nil {
		t.Fatal("commit failure not surfaced")
	}

	h.alerter.mu.Lock()
	defer h.alerter.mu.Unlock()
	if len(h.alerter.subjects) != 1 {
		t.Fatalf("alerts sent = %d, want 1", len(h.alerter.subjects))
	}
}

func TestRunCommitContentionIsRetryable(t *testing.T) {
	store, err := ledgerfile.New(filepath.Join(t.TempDir(), "ledger.json"))
	if err != nil {
		t.Fatalf("ledgerfile.New: %v", err)
	}
	contention := fmt.Errorf("%w: duplicate key value violates unique constraint \"remix_entries_sequence_key\"", remix.ErrLedgerContention)
	h := newHarnessWithLedger(t, &commitFailLedger{LedgerStore: store, err: contention}, bigCaps())

	_, err = h.uc.Run(context.Background(), goodRequest())
	var perr *PipelineError
	if !errors.As(err, &perr) {
		t.Fatalf("want *PipelineError, got %v", err)
	}
	if perr.Kind != FailTransient || perr.Code != "ledger_contention" {
		t.Fatalf("got %s/%s, want transient/ledger_contention", perr.Kind, perr.Code)
	}
	if !perr.Retryable() {
		t.Fatal("commit contention must be retryable")
	}
}

func TestRunValidation(t *testing.T) {
	h := newHarness(t, bigCaps())

	cases := []struct {
		name   string
		mutate func(*Request)
	}{
		{"bad signature", func(r *Request) { r.Signature = "short" }},
		{"bad payer", func(r *Request) { r.Payer = "0x1234" }},
		{"bad source", func(r *Request) { r.SourceMint = "" }},
		{"bad machine", func(r *Request) { r.Machine = "TOASTER" }},
		{"empty image", func(r *Request) { r.ImageData = nil }},
	}
	for _, tc := range cases {
		req := goodRequest()
		tc.mutate(&req)
		_, err := h.uc.Run(context.Background(), req)
		if perr := pipelineErr(t, err); perr.Kind != FailValidation {
			t.Errorf("%s: got %s, want validation", tc.name, perr.Kind)
		}
	}
}
