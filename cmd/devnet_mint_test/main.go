// Manual devnet smoke test for the mint path: loads the authority keypair,
// creates (or reuses) a collection, mints one remix NFT to OWNER_WALLET and
// verifies it shows up via getTokenAccountsByOwner.
//
// Usage:
//
//	MINT_KEYPAIR_FILE=devnet-authority.json OWNER_WALLET=<pubkey> \
//	  go run ./cmd/devnet_mint_test
package main

import (
	"context"
	"log"
	"os"
	"time"

	"scrapworks/internal/infra/solana"
)

func main() {
	ctx := context.Background()

	owner := os.Getenv("OWNER_WALLET")
	if owner == "" {
		log.Fatal("OWNER_WALLET is required")
	}

	authority, err := solana.LoadMintAuthority(ctx,
		os.Getenv("MINT_KEY_SECRET_NAME"), os.Getenv("MINT_KEYPAIR_FILE"))
	if err != nil {
		log.Fatalf("load mint authority: %v", err)
	}
	log.Printf("[smoke] authority = %s", authority.Account.PublicKey.ToBase58())

	minter := solana.NewMintClient(solana.DevnetEndpoint, authority)

	balance, err := minter.AuthorityBalance(ctx)
	if err != nil {
		log.Fatalf("authority balance: %v", err)
	}
	log.Printf("[smoke] authority balance = %d lamports", balance)

	collection := os.Getenv("COLLECTION_MINT")
	if collection == "" {
		mint, sig, err := minter.CreateCollection(ctx, "Scrapworks Smoke", "SCRAP", "")
		if err != nil {
			log.Fatalf("create collection: %v", err)
		}
		collection = mint
		log.Printf("[smoke] collection created: mint=%s sig=%s", mint, sig)
	}

	mint, sig, err := minter.MintRemix(ctx, owner, collection, "Output 001", "SCRAP", "https://example.com/metadata.json")
	if err != nil {
		log.Fatalf("mint remix: %v", err)
	}
	log.Printf("[smoke] minted: mint=%s sig=%s", mint, sig)

	// confirmation lag before reading ownership back
	time.Sleep(20 * time.Second)

	rpc := solana.NewJSONRPCClient([]string{solana.DevnetEndpoint}, 15*time.Second)
	reader := solana.NewOnchainWalletReader(rpc)

	owns, err := reader.OwnsAsset(ctx, owner, mint)
	if err != nil {
		log.Fatalf("ownership check: %v", err)
	}
	log.Printf("[smoke] owner holds minted asset: %v", owns)

	mints, err := reader.ListOwnedTokenMints(ctx, owner)
	if err != nil {
		log.Fatalf("list owned mints: %v", err)
	}
	log.Printf("[smoke] owner token mints (%d): %v", len(mints), mints)
}
