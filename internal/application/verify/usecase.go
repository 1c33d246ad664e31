package verify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"scrapworks/internal/domain/remix"
)

// Usecase runs the full payment-verification and mint-issuance pipeline:
//
//	in-flight dedup -> ledger check -> payment verify -> ownership verify
//	-> tier roll -> upload -> collection bootstrap -> mint -> ledger commit
//
// The ledger commit is the only mutation and happens last; everything before
// it is side-effect free on our own state, so a failed request consumes
// nothing.
type Usecase struct {
	ledger   remix.LedgerStore
	roller   *remix.Roller
	pricing  *remix.Pricing
	payments PaymentPort
	wallets  OwnershipPort
	uploader UploaderPort
	minter   MinterPort
	alerter  AlertPort // optional

	cfg Config

	inflight *inflightGuard
	now      func() time.Time
}

// Config carries the validated pipeline settings.
type Config struct {
	Treasury       string
	Caps           map[remix.Tier]uint64
	MaxSlotAge     uint64 // payment older than this many slots is stale
	Symbol         string // token symbol, e.g. "SCRAP"
	CollectionName string
	// CollectionMint overrides ledger-recorded collection bootstrap when an
	// externally created collection should be reused.
	CollectionMint string

	MintAttempts int
	RetryBase    time.Duration
}

// NewUsecase wires the pipeline. alerter may be nil (log-only degradation).
func NewUsecase(
	ledger remix.LedgerStore,
	roller *remix.Roller,
	pricing *remix.Pricing,
	payments PaymentPort,
	wallets OwnershipPort,
	uploader UploaderPort,
	minter MinterPort,
	alerter AlertPort,
	cfg Config,
) (*Usecase, error) {
	if ledger == nil || roller == nil || pricing == nil || payments == nil ||
		wallets == nil || uploader == nil || minter == nil {
		return nil, errors.New("verify: missing dependency")
	}
	if !remix.IsValidPubkey(strings.TrimSpace(cfg.Treasury)) {
		return nil, fmt.Errorf("verify: invalid treasury address %q", cfg.Treasury)
	}
	if len(cfg.Caps) == 0 {
		return nil, errors.New("verify: tier caps not configured")
	}
	if cfg.MaxSlotAge == 0 {
		cfg.MaxSlotAge = 300 // ~2 minutes of slots
	}
	if cfg.MintAttempts == 0 {
		cfg.MintAttempts = 3
	}
	if cfg.RetryBase == 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.Symbol == "" {
		cfg.Symbol = "SCRAP"
	}
	if cfg.CollectionName == "" {
		cfg.CollectionName = "Scrapworks Remixes"
	}
	return &Usecase{
		ledger:   ledger,
		roller:   roller,
		pricing:  pricing,
		payments: payments,
		wallets:  wallets,
		uploader: uploader,
		minter:   minter,
		alerter:  alerter,
		cfg:      cfg,
		inflight: newInflightGuard(),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Request is one client verification request. Fully validated before the
// pipeline touches the ledger or the chain.
type Request struct {
	Signature  string
	Payer      string
	SourceMint string
	Machine    string
	ImageData  []byte
	ImageMime  string
}

// Result is the successful pipeline outcome.
type Result struct {
	Tier        remix.Tier     `json:"tier"`
	Traits      remix.TraitSet `json:"traits"`
	IssuedMint  string         `json:"issuedAsset"`
	Name        string         `json:"name"`
	MetadataURI string         `json:"metadataUri"`
	Sequence    uint64         `json:"sequence"`
}

// Run executes the pipeline. Any returned error is a *PipelineError.
func (u *Usecase) Run(ctx context.Context, req Request) (*Result, error) {
	sig := strings.TrimSpace(req.Signature)
	payer := strings.TrimSpace(req.Payer)
	source := strings.TrimSpace(req.SourceMint)

	// 1) validation, before any side effect
	if !remix.IsValidSignature(sig) {
		return nil, failValidation("bad_signature", "signature is not a valid transaction signature")
	}
	if !remix.IsValidPubkey(payer) {
		return nil, failValidation("bad_payer", "payer is not a valid address")
	}
	if !remix.IsValidPubkey(source) {
		return nil, failValidation("bad_source", "sourceAsset is not a valid address")
	}
	machine, err := remix.ParseMachine(req.Machine)
	if err != nil {
		return nil, failValidation("bad_machine", "unknown machine")
	}
	if len(req.ImageData) == 0 {
		return nil, failValidation("bad_image", "imageData is empty")
	}
	mime := req.ImageMime
	if mime == "" {
		mime = "image/png"
	}

	// 2) in-flight dedup, before any expensive work
	if !u.inflight.enter(sig, source) {
		return nil, failConflict("already_processing", "request for this signature or asset is already in progress", nil)
	}
	defer u.inflight.leave(sig, source)

	// 3) fast ledger check (re-validated at commit)
	if err := u.ledger.CheckAvailable(ctx, sig, source); err != nil {
		return nil, u.attachPrior(ctx, sig, mapLedgerErr(err))
	}

	counts, err := u.ledger.ReadCounts(ctx)
	if err != nil {
		return nil, mapLedgerErr(err)
	}

	// 4) required price for the chosen machine
	price, err := u.pricing.PriceLamports(machine, counts.LastMintCost, counts.HasMint)
	if err != nil {
		if errors.Is(err, remix.ErrNoPriorMint) {
			return nil, failFatal("price_unavailable", "dynamic price has no basis yet", err)
		}
		return nil, failValidation("bad_machine", "unknown machine")
	}

	// 5) payment verification
	if perr := u.verifyPayment(ctx, sig, payer, price); perr != nil {
		return nil, perr
	}

	// 6) ownership verification
	owns, err := u.wallets.OwnsAsset(ctx, payer, source)
	if err != nil {
		return nil, failTransient("ownership_check_failed", "could not read token accounts", err)
	}
	if !owns {
		// pass/fail only: no detail about which accounts were checked
		return nil, failVerification("not_owner", "payer does not hold the source asset")
	}

	// 7) tier roll, before any costly side effect
	tier, err := u.roller.RollTier(machine, sig, counts.PerTier, u.cfg.Caps)
	if err != nil {
		if errors.Is(err, remix.ErrSoldOut) {
			return nil, failConflict("sold_out", "all tiers are sold out", err)
		}
		return nil, failFatal("roll_failed", "tier roll failed", err)
	}
	traits, err := u.roller.RollTraits(machine, sig, tier)
	if err != nil {
		return nil, failFatal("roll_failed", "trait roll failed", err)
	}

	// 8) upload image + metadata
	name := fmt.Sprintf("Output %03d", counts.Sequence+1)
	imageURI, err := u.uploader.UploadBlob(ctx, req.ImageData, mime)
	if err != nil {
		return nil, failTransient("upload_failed", "image upload failed", err)
	}
	meta := buildMetadata(name, u.cfg.Symbol, imageURI, mime, source, machine, tier, traits)
	metadataURI, err := u.uploader.UploadJSON(ctx, meta)
	if err != nil {
		return nil, failTransient("upload_failed", "metadata upload failed", err)
	}

	// 9) collection bootstrap (idempotent)
	collection, perr := u.ensureCollection(ctx, counts.CollectionMint)
	if perr != nil {
		return nil, perr
	}

	// 10) mint, with cost measurement around it
	balBefore, balErr := u.minter.AuthorityBalance(ctx)
	if balErr != nil {
		log.Printf("[verify] WARN: balance before mint unavailable: %v", balErr)
	}

	var issuedMint, mintSig string
	mintErr := withBackoff(ctx, u.cfg.MintAttempts, u.cfg.RetryBase, definitelyNotLanded, func(ctx context.Context) error {
		var merr error
		issuedMint, mintSig, merr = u.minter.MintRemix(ctx, payer, collection, name, u.cfg.Symbol, metadataURI)
		return merr
	})
	if mintErr != nil {
		if definitelyNotLanded(mintErr) {
			return nil, failTransient("mint_failed", "mint submission expired, retry", mintErr)
		}
		return nil, failTransient("mint_failed", "mint submission failed", mintErr)
	}

	var cost uint64
	if balErr == nil {
		if balAfter, err := u.minter.AuthorityBalance(ctx); err == nil && balBefore > balAfter {
			cost = balBefore - balAfter
		}
	}

	// 11) ledger commit: small and fast, immediately after the mint landed
	entry := remix.Entry{
		Signature:    sig,
		Payer:        payer,
		SourceMint:   source,
		IssuedMint:   issuedMint,
		Machine:      machine,
		Tier:         tier,
		Traits:       traits,
		MetadataURI:  metadataURI,
		CostLamports: cost,
		MintedAt:     u.now(),
	}
	committed, err := u.ledger.ReserveAndCommit(ctx, entry, u.cfg.Caps)
	if err != nil {
		// The mint is on-chain but unrecorded: this must never be lost.
		u.reportUnrecordedMint(ctx, sig, issuedMint, mintSig, err)
		return nil, u.attachPrior(ctx, sig, mapLedgerErr(err))
	}

	log.Printf("[verify] committed seq=%d tier=%s machine=%s mint=%s sig=%s",
		committed.Sequence, tier, machine, issuedMint, mintSig)

	return &Result{
		Tier:        tier,
		Traits:      traits,
		IssuedMint:  issuedMint,
		Name:        fmt.Sprintf("Output %03d", committed.Sequence),
		MetadataURI: metadataURI,
		Sequence:    committed.Sequence,
	}, nil
}

// verifyPayment checks the claimed payment against the chain: found, not
// failed, fresh, fee payer matches, and a direct transfer payer->treasury
// covering the price.
func (u *Usecase) verifyPayment(ctx context.Context, sig, payer string, price uint64) *PipelineError {
	view, err := u.payments.FetchPayment(ctx, sig)
	if err != nil {
		return failTransient("chain_unreachable", "could not fetch transaction", err)
	}
	if view == nil {
		return failNotYet("transaction not indexed yet, retry shortly")
	}
	if view.Failed {
		return failVerification("tx_failed", "payment transaction failed on-chain")
	}

	current, err := u.payments.CurrentSlot(ctx)
	if err != nil {
		return failTransient("chain_unreachable", "could not read current slot", err)
	}
	if current > view.Slot && current-view.Slot > u.cfg.MaxSlotAge {
		return failVerification("tx_stale", "payment transaction is too old")
	}

	if view.FeePayer != payer {
		return failVerification("wrong_fee_payer", "payer is not the transaction fee payer")
	}

	// Highest direct payer->treasury transfer; balance deltas don't count.
	var best uint64
	for _, t := range view.Transfers {
		if t.Source == payer && t.Destination == u.cfg.Treasury && t.Lamports > best {
			best = t.Lamports
		}
	}
	if best < price {
		return failAmount(price, best)
	}
	return nil
}

// ensureCollection returns the collection mint to use, creating the
// umbrella collection at most once. An externally configured collection
// always wins; otherwise the ledger-recorded one is reused; only when
// neither exists is a new collection minted and recorded.
func (u *Usecase) ensureCollection(ctx context.Context, recorded string) (string, *PipelineError) {
	if u.cfg.CollectionMint != "" {
		return u.cfg.CollectionMint, nil
	}
	if recorded != "" {
		return recorded, nil
	}

	var mint string
	err := withBackoff(ctx, u.cfg.MintAttempts, u.cfg.RetryBase, definitelyNotLanded, func(ctx context.Context) error {
		var cerr error
		mint, _, cerr = u.minter.CreateCollection(ctx, u.cfg.CollectionName, u.cfg.Symbol, "")
		return cerr
	})
	if err != nil {
		return "", failTransient("collection_failed", "collection bootstrap failed", err)
	}

	if err := u.ledger.SetCollectionMint(ctx, mint); err != nil {
		// Lost the race: a concurrent request recorded a collection first.
		// Reuse theirs; ours stays an orphan owned by the authority.
		counts, rerr := u.ledger.ReadCounts(ctx)
		if rerr == nil && counts.CollectionMint != "" {
			log.Printf("[verify] collection race lost, reusing %s (orphan %s)", counts.CollectionMint, mint)
			return counts.CollectionMint, nil
		}
		return "", failFatal("collection_failed", "could not record collection", err)
	}
	return mint, nil
}

func (u *Usecase) reportUnrecordedMint(ctx context.Context, paySig, issuedMint, mintSig string, cause error) {
	log.Printf("[verify] CRITICAL: mint landed but ledger commit failed: paymentSig=%s issuedMint=%s mintSig=%s err=%v",
		paySig, issuedMint, mintSig, cause)
	if u.alerter == nil {
		return
	}
	body := fmt.Sprintf(
		"A mint landed on-chain without a ledger record and needs manual reconciliation.\n\npayment signature: %s\nissued mint: %s\nmint signature: %s\ncommit error: %v\n",
		paySig, issuedMint, mintSig, cause,
	)
	if err := u.alerter.Send(ctx, "scrapworks: unrecorded mint needs reconciliation", body); err != nil {
		log.Printf("[verify] alert send failed: %v", err)
	}
}

// attachPrior fills perr.Prior with the committed entry when the conflict
// is a consumed signature, so the requester who paid can recover its
// result from the conflict response instead of losing it.
func (u *Usecase) attachPrior(ctx context.Context, sig string, perr *PipelineError) *PipelineError {
	if perr.Code != "signature_consumed" {
		return perr
	}
	e, ok, err := u.ledger.Lookup(ctx, sig)
	if err != nil || !ok {
		return perr
	}
	perr.Prior = &PriorOutcome{
		Tier:        string(e.Tier),
		IssuedMint:  e.IssuedMint,
		Name:        fmt.Sprintf("Output %03d", e.Sequence),
		MetadataURI: e.MetadataURI,
		Sequence:    e.Sequence,
	}
	return perr
}

func mapLedgerErr(err error) *PipelineError {
	switch {
	case errors.Is(err, remix.ErrSignatureConsumed):
		return failConflict("signature_consumed", "this payment was already used", err)
	case errors.Is(err, remix.ErrSourceConsumed):
		return failConflict("source_consumed", "this asset was already remixed", err)
	case errors.Is(err, remix.ErrTierCapReached):
		return failConflict("sold_out", "tier filled while this request was processing", err)
	case errors.Is(err, remix.ErrLedgerContention):
		return failTransient("ledger_contention", "a concurrent commit interfered, retry", err)
	case errors.Is(err, remix.ErrLedgerCorrupt):
		return failFatal("ledger_corrupt", "ledger is unavailable", err)
	default:
		return failFatal("ledger_error", "ledger operation failed", err)
	}
}
