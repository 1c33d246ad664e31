package solana

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	smpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/blocto/solana-go-sdk/types"
)

// MintAuthority is the one wallet allowed to create the collection and mint
// remix NFTs. It is loaded exactly once at startup and cached read-only for
// the process lifetime; nothing ever mutates it afterwards.
type MintAuthority struct {
	Account types.Account
}

// LoadMintAuthority restores the solana-keygen keypair (JSON [u8;64]) from
// one of, in order:
//
//  1. Secret Manager, when secretName is a full version path like
//     "projects/<PROJECT_ID>/secrets/<SECRET_ID>/versions/latest"
//  2. a local keypair file (devnet convenience), when keypairFile is set.
func LoadMintAuthority(ctx context.Context, secretName, keypairFile string) (*MintAuthority, error) {
	secretName = strings.TrimSpace(secretName)
	keypairFile = strings.TrimSpace(keypairFile)

	var raw []byte
	switch {
	case secretName != "":
		data, err := AccessSecret(ctx, secretName)
		if err != nil {
			return nil, err
		}
		raw = data
		log.Printf("[mint_authority] keypair loaded from secret manager")
	case keypairFile != "":
		data, err := os.ReadFile(keypairFile)
		if err != nil {
			return nil, fmt.Errorf("read keypair file %s: %w", keypairFile, err)
		}
		raw = data
		log.Printf("[mint_authority] keypair loaded from file %s", keypairFile)
	default:
		return nil, fmt.Errorf("mint authority not configured (need secret name or keypair file)")
	}

	key, err := decodeKeypairJSON(raw)
	if err != nil {
		return nil, err
	}
	acc, err := types.AccountFromBytes(key)
	if err != nil {
		return nil, fmt.Errorf("restore account from keypair: %w", err)
	}
	return &MintAuthority{Account: acc}, nil
}

// AccessSecret reads one Secret Manager version payload. name must be the
// full version path ("projects/.../secrets/.../versions/latest").
func AccessSecret(ctx context.Context, name string) ([]byte, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("secretmanager.NewClient: %w", err)
	}
	defer client.Close()

	resp, err := client.AccessSecretVersion(ctx, &smpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return nil, fmt.Errorf("access secret version %s: %w", name, err)
	}
	return resp.Payload.Data, nil
}

// decodeKeypairJSON accepts the solana-keygen output format: a JSON array of
// 64 byte values ([int,...]).
func decodeKeypairJSON(raw []byte) ([]byte, error) {
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return nil, fmt.Errorf("unmarshal keypair json: %w", err)
	}
	if len(ints) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("unexpected keypair length: got %d, want %d", len(ints), ed25519.PrivateKeySize)
	}
	b := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("keypair byte out of range at index %d: %d", i, v)
		}
		b[i] = byte(v)
	}
	return b, nil
}
