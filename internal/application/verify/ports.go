package verify

import "context"

// Ports the verify pipeline depends on. Implementations live under
// internal/infra and internal/adapters/out; tests use fakes.

// Transfer is one direct system-program transfer inside a payment
// transaction. Direct instructions only: balance deltas are spoofable by
// unrelated transfers touching the treasury in the same transaction.
type Transfer struct {
	Source      string
	Destination string
	Lamports    uint64
}

// PaymentView is everything the verifier needs about a claimed payment.
type PaymentView struct {
	Failed    bool
	Slot      uint64
	FeePayer  string
	Transfers []Transfer
}

// PaymentPort fetches claimed payment transactions from the chain.
type PaymentPort interface {
	// FetchPayment returns (nil, nil) when the signature is not indexed
	// yet; the pipeline maps that to a retryable condition.
	FetchPayment(ctx context.Context, signature string) (*PaymentView, error)
	CurrentSlot(ctx context.Context) (uint64, error)
}

// OwnershipPort confirms current on-chain holdings.
type OwnershipPort interface {
	OwnsAsset(ctx context.Context, owner, mint string) (bool, error)
}

// UploaderPort pins the remix image and metadata to durable storage.
type UploaderPort interface {
	UploadBlob(ctx context.Context, data []byte, mime string) (string, error)
	UploadJSON(ctx context.Context, doc any) (string, error)
}

// MinterPort issues NFTs with the cached mint authority.
type MinterPort interface {
	AuthorityBalance(ctx context.Context) (uint64, error)
	CreateCollection(ctx context.Context, name, symbol, uri string) (mint, signature string, err error)
	MintRemix(ctx context.Context, ownerWallet, collectionMint, name, symbol, uri string) (mint, signature string, err error)
}

// AlertPort notifies an operator about states needing manual reconciliation
// (a mint that landed on-chain without a ledger record). Optional; a nil
// alerter degrades to log-only.
type AlertPort interface {
	Send(ctx context.Context, subject, body string) error
}
