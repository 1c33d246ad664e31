package verify

import (
	"context"
	"strings"
	"time"
)

// Retry policy for chain submissions. The one dangerous decision, which
// errors are safe to retry, lives in definitelyNotLanded and nowhere else.

// definitelyNotLanded reports whether err is a recognized chain error that
// guarantees the submission was rejected before it could land. Only these
// are safe to retry for a non-idempotent mint: anything ambiguous (timeouts,
// connection drops mid-confirm) must NOT be retried, because the mint may
// already exist on-chain.
func definitelyNotLanded(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "blockhash not found") ||
		strings.Contains(msg, "blockhashnotfound") ||
		strings.Contains(msg, "block height exceeded")
}

// withBackoff runs op up to attempts times, sleeping base, 2*base, 4*base...
// between tries, and only when classify says the previous failure is safe
// to retry. Context cancellation stops the loop immediately.
func withBackoff(ctx context.Context, attempts int, base time.Duration, classify func(error) bool, op func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	delay := base
	for i := 0; i < attempts; i++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if !classify(err) || i == attempts-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
