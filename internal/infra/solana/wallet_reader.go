package solana

import (
	"context"
	"fmt"
	"strings"
)

// OnchainWalletReader answers the ownership question for the verify
// pipeline: does this wallet currently hold exactly one non-fractional unit
// of this mint? Client-supplied "I own this" claims are never trusted; the
// answer always comes from account enumeration.
type OnchainWalletReader struct {
	Client RPCClient
}

func NewOnchainWalletReader(client RPCClient) *OnchainWalletReader {
	return &OnchainWalletReader{Client: client}
}

// OwnsAsset enumerates the owner's token accounts across both token-program
// variants (Tokenkeg and Token-2022) and reports whether mint appears with
// amount "1" and zero decimals.
func (r *OnchainWalletReader) OwnsAsset(ctx context.Context, owner, mint string) (bool, error) {
	if r == nil || r.Client == nil {
		return false, fmt.Errorf("solana wallet reader: client not configured")
	}
	owner = strings.TrimSpace(owner)
	mint = strings.TrimSpace(mint)
	if owner == "" {
		return false, fmt.Errorf("solana wallet reader: owner is empty")
	}
	if mint == "" {
		return false, fmt.Errorf("solana wallet reader: mint is empty")
	}

	for _, programID := range []string{TokenProgramID, Token2022ProgramID} {
		res, err := r.Client.GetTokenAccountsByOwner(ctx, owner, programID)
		if err != nil {
			return false, err
		}
		for _, v := range res.Value {
			info := v.Account.Data.Parsed.Info
			if strings.TrimSpace(info.Mint) != mint {
				continue
			}
			if info.TokenAmount.Amount == "1" && info.TokenAmount.Decimals == 0 {
				return true, nil
			}
		}
	}
	return false, nil
}

// ListOwnedTokenMints returns a deduplicated list of mints with non-zero
// balance across both token programs. Kept for the devnet smoke tool.
func (r *OnchainWalletReader) ListOwnedTokenMints(ctx context.Context, owner string) ([]string, error) {
	if r == nil || r.Client == nil {
		return nil, fmt.Errorf("solana wallet reader: client not configured")
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, fmt.Errorf("solana wallet reader: owner is empty")
	}

	seen := make(map[string]struct{})
	var out []string
	for _, programID := range []string{TokenProgramID, Token2022ProgramID} {
		res, err := r.Client.GetTokenAccountsByOwner(ctx, owner, programID)
		if err != nil {
			return nil, err
		}
		for _, v := range res.Value {
			mint := strings.TrimSpace(v.Account.Data.Parsed.Info.Mint)
			if mint == "" || v.Account.Data.Parsed.Info.TokenAmount.Amount == "0" {
				continue
			}
			if _, ok := seen[mint]; ok {
				continue
			}
			seen[mint] = struct{}{}
			out = append(out, mint)
		}
	}
	return out, nil
}
