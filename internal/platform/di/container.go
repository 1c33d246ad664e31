package di

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	httpin "scrapworks/internal/adapters/in/http"
	pgledger "scrapworks/internal/adapters/out/db"
	fsledger "scrapworks/internal/adapters/out/firestore"
	"scrapworks/internal/adapters/out/gcs"
	"scrapworks/internal/adapters/out/mail"
	"scrapworks/internal/application/quote"
	"scrapworks/internal/application/verify"
	"scrapworks/internal/domain/remix"
	"scrapworks/internal/infra/arweave"
	"scrapworks/internal/infra/config"
	"scrapworks/internal/infra/database"
	firestoreinfra "scrapworks/internal/infra/firestore"
	"scrapworks/internal/infra/ledgerfile"
	"scrapworks/internal/infra/solana"
)

// Container bundles everything main.go needs. The goal is to keep main.go
// as thin as possible: Build wires it, RouterDeps hands it to the router,
// Close releases it.
type Container struct {
	Config *config.Config

	QuoteUC  *quote.Usecase
	VerifyUC *verify.Usecase

	cleanupFn []func()
}

// Close releases external resources in reverse wiring order.
func (c *Container) Close() {
	for i := len(c.cleanupFn) - 1; i >= 0; i-- {
		c.cleanupFn[i]()
	}
}

// RouterDeps adapts the container for the HTTP router.
func (c *Container) RouterDeps() httpin.RouterDeps {
	return httpin.RouterDeps{
		QuoteUC:       c.QuoteUC,
		VerifyUC:      c.VerifyUC,
		DebugErrors:   c.Config.DebugErrors,
		AllowedOrigin: c.Config.AllowedOrigin,
	}
}

// NewContainer builds the full dependency graph from the environment.
func NewContainer(ctx context.Context) (*Container, error) {
	cfg := config.Load()
	c := &Container{Config: cfg}

	// domain services
	secret, err := loadRollSecret(ctx, cfg)
	if err != nil {
		return nil, err
	}
	roller, err := remix.NewRoller(secret)
	if err != nil {
		return nil, err
	}

	prices := map[remix.Machine]float64{
		remix.MachinePress:   cfg.PressPriceSOL,
		remix.MachineFurnace: cfg.FurnacePriceSOL,
	}
	if cfg.ConveyorPriceSOL > 0 {
		prices[remix.MachineConveyor] = cfg.ConveyorPriceSOL
	}
	pricing, err := remix.NewPricing(prices)
	if err != nil {
		return nil, err
	}

	caps := map[remix.Tier]uint64{
		remix.Tier1: cfg.Tier1Cap,
		remix.Tier2: cfg.Tier2Cap,
		remix.Tier3: cfg.Tier3Cap,
	}

	// ledger backend
	ledger, err := c.buildLedger(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// chain reads
	if len(cfg.RPCEndpoints) == 0 {
		return nil, fmt.Errorf("di: no solana rpc endpoints configured")
	}
	rpc := solana.NewJSONRPCClient(cfg.RPCEndpoints, 15*time.Second)
	payments := solana.NewPaymentReader(rpc)
	wallets := solana.NewOnchainWalletReader(rpc)

	// chain writes
	authority, err := solana.LoadMintAuthority(ctx, cfg.MintKeySecretName, cfg.MintKeypairFile)
	if err != nil {
		return nil, fmt.Errorf("di: mint authority: %w", err)
	}
	minter := solana.NewMintClient(cfg.RPCEndpoints[0], authority)

	// uploads
	uploader, err := c.buildUploader(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// alerts (optional)
	var alerter verify.AlertPort
	if cfg.AlertingEnabled() {
		alerter = mail.NewAlertMailer(cfg.SendGridAPIKey, cfg.AlertFromEmail, cfg.AlertToEmail)
	} else {
		log.Printf("[di] alert mail not configured, reconciliation alerts are log-only")
	}

	c.VerifyUC, err = verify.NewUsecase(ledger, roller, pricing, payments, wallets, uploader, minter, alerter, verify.Config{
		Treasury:       cfg.TreasuryAddress,
		Caps:           caps,
		MaxSlotAge:     cfg.MaxSlotAge,
		Symbol:         cfg.TokenSymbol,
		CollectionName: cfg.CollectionName,
		CollectionMint: cfg.CollectionMint,
	})
	if err != nil {
		return nil, err
	}

	c.QuoteUC, err = quote.NewUsecase(ledger, pricing, caps, cfg.TreasuryAddress)
	if err != nil {
		return nil, err
	}

	log.Printf("[di] wired: ledger=%s rpc=%v caps=%d/%d/%d",
		cfg.LedgerBackend, cfg.RPCEndpoints, cfg.Tier1Cap, cfg.Tier2Cap, cfg.Tier3Cap)
	return c, nil
}

func (c *Container) buildLedger(ctx context.Context, cfg *config.Config) (remix.LedgerStore, error) {
	switch cfg.LedgerBackend {
	case "file":
		store, err := ledgerfile.New(cfg.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("di: file ledger: %w", err)
		}
		return store, nil

	case "firestore":
		if cfg.FirestoreProjectID == "" {
			return nil, fmt.Errorf("di: FIRESTORE_PROJECT_ID required for firestore ledger")
		}
		wrapper, err := firestoreinfra.NewClient(ctx, cfg.FirestoreProjectID, cfg.FirestoreCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("di: firestore client: %w", err)
		}
		c.cleanupFn = append(c.cleanupFn, func() { _ = wrapper.Close() })
		return fsledger.NewRemixLedgerFS(wrapper.Client), nil

	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("di: DATABASE_URL required for postgres ledger")
		}
		conn, err := database.NewConnection(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("di: postgres: %w", err)
		}
		c.cleanupFn = append(c.cleanupFn, func() { _ = conn.Close() })
		store := pgledger.NewRemixLedgerPG(conn.Client)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("di: postgres schema: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("di: unknown ledger backend %q", cfg.LedgerBackend)
	}
}

func (c *Container) buildUploader(ctx context.Context, cfg *config.Config) (verify.UploaderPort, error) {
	if cfg.ArweaveBaseURL != "" {
		return arweave.NewHTTPUploader(cfg.ArweaveBaseURL, cfg.ArweaveAPIKey), nil
	}
	if cfg.GCSBucket == "" {
		return nil, fmt.Errorf("di: no uploader configured (need ARWEAVE_BASE_URL or GCS_BUCKET)")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("di: storage client: %w", err)
	}
	c.cleanupFn = append(c.cleanupFn, func() { _ = client.Close() })
	up := gcs.NewRemixUploaderGCS(client, cfg.GCSBucket)
	if cfg.GCSPublicBase != "" {
		up.PublicBaseURL = cfg.GCSPublicBase
	}
	log.Printf("[di] uploader = gcs bucket=%s", cfg.GCSBucket)
	return up, nil
}

// loadRollSecret resolves the tier-roll HMAC key: Secret Manager when a
// resource name is configured, ROLL_SECRET otherwise. The secret gates the
// fairness of every draw, so an empty value is a startup error.
func loadRollSecret(ctx context.Context, cfg *config.Config) ([]byte, error) {
	if cfg.RollSecretName != "" {
		data, err := solana.AccessSecret(ctx, cfg.RollSecretName)
		if err != nil {
			return nil, fmt.Errorf("di: roll secret: %w", err)
		}
		return data, nil
	}
	if s := strings.TrimSpace(cfg.RollSecret); s != "" {
		return []byte(s), nil
	}
	return nil, fmt.Errorf("di: roll secret not configured (ROLL_SECRET or ROLL_SECRET_NAME)")
}
