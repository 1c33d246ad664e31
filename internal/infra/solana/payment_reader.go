package solana

import (
	"context"
	"errors"
	"strings"

	"scrapworks/internal/application/verify"
)

// PaymentReader adapts the JSON-RPC client to verify.PaymentPort: it
// fetches a claimed payment transaction in a shape the verifier can check
// without knowing RPC details.
type PaymentReader struct {
	Client RPCClient
}

var _ verify.PaymentPort = (*PaymentReader)(nil)

func NewPaymentReader(client RPCClient) *PaymentReader {
	return &PaymentReader{Client: client}
}

// FetchPayment returns (nil, nil) when the signature is not indexed yet.
func (r *PaymentReader) FetchPayment(ctx context.Context, signature string) (*verify.PaymentView, error) {
	if r == nil || r.Client == nil {
		return nil, errors.New("solana payment reader: client not configured")
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return nil, errors.New("solana payment reader: signature is empty")
	}

	res, err := r.Client.GetTransaction(ctx, signature)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}

	view := &verify.PaymentView{
		Failed:   res.Failed(),
		Slot:     res.Slot,
		FeePayer: res.FeePayer(),
	}
	for _, in := range res.Transaction.Message.Instructions {
		if src, dst, lamports, ok := in.SystemTransfer(); ok {
			view.Transfers = append(view.Transfers, verify.Transfer{
				Source:      src,
				Destination: dst,
				Lamports:    lamports,
			})
		}
	}
	return view, nil
}

// CurrentSlot returns the chain's current slot for the max-age bound.
func (r *PaymentReader) CurrentSlot(ctx context.Context) (uint64, error) {
	if r == nil || r.Client == nil {
		return 0, errors.New("solana payment reader: client not configured")
	}
	return r.Client.GetSlot(ctx)
}
