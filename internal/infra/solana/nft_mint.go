package solana

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/blocto/solana-go-sdk/client"
	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/associated_token_account"
	"github.com/blocto/solana-go-sdk/program/metaplex/token_metadata"
	"github.com/blocto/solana-go-sdk/program/system"
	"github.com/blocto/solana-go-sdk/program/token"
	"github.com/blocto/solana-go-sdk/types"
)

// MintClient issues remix NFTs with the cached mint authority. Every mint
// is a 1-of-1: decimals 0, amount 1, MasterEdition MaxSupply 1.
type MintClient struct {
	RPC       *client.Client
	Authority *MintAuthority
}

// NewMintClient wires the blocto RPC client and the authority wallet.
func NewMintClient(rpcURL string, authority *MintAuthority) *MintClient {
	u := strings.TrimSpace(rpcURL)
	if u == "" {
		u = DevnetEndpoint
	}
	return &MintClient{
		RPC:       client.NewClient(u),
		Authority: authority,
	}
}

// AuthorityBalance returns the authority wallet's lamports. The orchestrator
// samples it before and after a mint to measure the cost actually incurred.
func (c *MintClient) AuthorityBalance(ctx context.Context) (uint64, error) {
	if c == nil || c.RPC == nil || c.Authority == nil {
		return 0, fmt.Errorf("mint client: not configured")
	}
	return c.RPC.GetBalance(ctx, c.Authority.Account.PublicKey.ToBase58())
}

// CreateCollection mints the umbrella collection NFT, owned by the mint
// authority. Called at most once per deployment; the resulting mint address
// is recorded in the ledger and reused forever after.
func (c *MintClient) CreateCollection(ctx context.Context, name, symbol, uri string) (mintAddr string, signature string, err error) {
	if c == nil || c.RPC == nil || c.Authority == nil {
		return "", "", fmt.Errorf("mint client: not configured")
	}
	owner := c.Authority.Account.PublicKey
	return c.mintOne(ctx, owner, name, symbol, uri, nil)
}

// MintRemix mints one remix NFT to ownerWallet, tagged as a member of
// collectionMint in its metadata.
func (c *MintClient) MintRemix(ctx context.Context, ownerWallet, collectionMint, name, symbol, uri string) (mintAddr string, signature string, err error) {
	if c == nil || c.RPC == nil || c.Authority == nil {
		return "", "", fmt.Errorf("mint client: not configured")
	}
	ownerWallet = strings.TrimSpace(ownerWallet)
	if ownerWallet == "" {
		return "", "", fmt.Errorf("mint client: owner wallet is empty")
	}

	var collection *token_metadata.Collection
	if cm := strings.TrimSpace(collectionMint); cm != "" {
		collection = &token_metadata.Collection{
			Verified: false,
			Key:      common.PublicKeyFromString(cm),
		}
	}
	owner := common.PublicKeyFromString(ownerWallet)
	return c.mintOne(ctx, owner, name, symbol, uri, collection)
}

// mintOne builds and submits the full mint transaction: create + init mint
// account, metadata, owner ATA, mint 1, master edition.
func (c *MintClient) mintOne(
	ctx context.Context,
	owner common.PublicKey,
	name, symbol, uri string,
	collection *token_metadata.Collection,
) (string, string, error) {
	feePayer := c.Authority.Account
	mint := types.NewAccount()

	ata, _, err := common.FindAssociatedTokenAddress(owner, mint.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("FindAssociatedTokenAddress: %w", err)
	}
	metadataPubkey, err := token_metadata.GetTokenMetaPubkey(mint.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("GetTokenMetaPubkey: %w", err)
	}
	masterEditionPubkey, err := token_metadata.GetMasterEdition(mint.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("GetMasterEdition: %w", err)
	}

	mintRent, err := c.RPC.GetMinimumBalanceForRentExemption(ctx, token.MintAccountSize)
	if err != nil {
		return "", "", fmt.Errorf("GetMinimumBalanceForRentExemption: %w", err)
	}
	recent, err := c.RPC.GetLatestBlockhash(ctx)
	if err != nil {
		return "", "", fmt.Errorf("GetLatestBlockhash: %w", err)
	}

	maxSupply := uint64(1)

	tx, err := types.NewTransaction(types.NewTransactionParam{
		Signers: []types.Account{mint, feePayer},
		Message: types.NewMessage(types.NewMessageParam{
			FeePayer:        feePayer.PublicKey,
			RecentBlockhash: recent.Blockhash,
			Instructions: []types.Instruction{
				// 1) create the mint account
				system.CreateAccount(system.CreateAccountParam{
					From:     feePayer.PublicKey,
					New:      mint.PublicKey,
					Owner:    common.TokenProgramID,
					Lamports: mintRent,
					Space:    token.MintAccountSize,
				}),
				// 2) init mint (decimals = 0)
				token.InitializeMint(token.InitializeMintParam{
					Decimals:   0,
					Mint:       mint.PublicKey,
					MintAuth:   feePayer.PublicKey,
					FreezeAuth: &feePayer.PublicKey,
				}),
				// 3) Metaplex metadata
				token_metadata.CreateMetadataAccountV3(
					token_metadata.CreateMetadataAccountV3Param{
						Metadata:                metadataPubkey,
						Mint:                    mint.PublicKey,
						MintAuthority:           feePayer.PublicKey,
						UpdateAuthority:         feePayer.PublicKey,
						Payer:                   feePayer.PublicKey,
						UpdateAuthorityIsSigner: true,
						IsMutable:               true,
						Data: token_metadata.DataV2{
							Name:                 name,
							Symbol:               symbol,
							Uri:                  uri,
							SellerFeeBasisPoints: 0,
							Creators: &[]token_metadata.Creator{
								{
									Address:  feePayer.PublicKey,
									Verified: true,
									Share:    100,
								},
							},
							Collection: collection,
						},
						CollectionDetails: nil,
					},
				),
				// 4) owner ATA
				associated_token_account.CreateAssociatedTokenAccount(
					associated_token_account.CreateAssociatedTokenAccountParam{
						Funder:                 feePayer.PublicKey,
						Owner:                  owner,
						Mint:                   mint.PublicKey,
						AssociatedTokenAccount: ata,
					},
				),
				// 5) mint exactly one
				token.MintTo(token.MintToParam{
					Mint:   mint.PublicKey,
					To:     ata,
					Auth:   feePayer.PublicKey,
					Amount: 1,
				}),
				// 6) MasterEdition v3 (MaxSupply = 1)
				token_metadata.CreateMasterEditionV3(
					token_metadata.CreateMasterEditionParam{
						Edition:         masterEditionPubkey,
						Mint:            mint.PublicKey,
						UpdateAuthority: feePayer.PublicKey,
						MintAuthority:   feePayer.PublicKey,
						Metadata:        metadataPubkey,
						Payer:           feePayer.PublicKey,
						MaxSupply:       &maxSupply,
					},
				),
			},
		}),
	})
	if err != nil {
		return "", "", fmt.Errorf("NewTransaction: %w", err)
	}

	sig, err := c.RPC.SendTransaction(ctx, tx)
	if err != nil {
		return "", "", fmt.Errorf("SendTransaction: %w", err)
	}

	log.Printf("[nft_mint] minted name=%q mint=%s sig=%s", name, mint.PublicKey.ToBase58(), sig)
	return mint.PublicKey.ToBase58(), sig, nil
}
