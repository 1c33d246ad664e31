package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds every environment-driven setting for the service.
type Config struct {
	Port string

	// TreasuryAddress receives remix payments; quotes point clients at it
	// and verification requires a direct transfer to it.
	TreasuryAddress string

	// Machine prices in SOL. CONVEYOR is priced dynamically from the last
	// recorded mint cost; ConveyorPriceSOL, when > 0, overrides that.
	PressPriceSOL    float64
	FurnacePriceSOL  float64
	ConveyorPriceSOL float64

	// Tier caps. Totals are fixed at deploy time and never raised at runtime.
	Tier1Cap uint64
	Tier2Cap uint64
	Tier3Cap uint64

	// RollSecret keys the tier/trait derivation. Prefer RollSecretName
	// (Secret Manager resource, full version path) in production; ROLL_SECRET
	// is the local-dev fallback.
	RollSecret     string
	RollSecretName string

	// Solana RPC. Endpoints is the ordered failover list for reads; the
	// first entry is used for writes.
	RPCEndpoints []string
	MaxSlotAge   uint64

	// Mint authority keypair: Secret Manager resource or a local JSON file.
	MintKeySecretName string
	MintKeypairFile   string

	// Collection settings. CollectionMint reuses an existing collection
	// instead of bootstrapping one.
	CollectionMint string
	CollectionName string
	TokenSymbol    string

	// Ledger backend: "file" (default), "firestore" or "postgres".
	LedgerBackend            string
	LedgerPath               string
	FirestoreProjectID       string
	FirestoreCredentialsFile string
	DatabaseURL              string

	// Asset storage: Arweave wrapper with a GCS fallback.
	ArweaveBaseURL string
	ArweaveAPIKey  string
	GCSBucket      string
	GCSPublicBase  string

	// Reconciliation alerts via SendGrid. All three must be set to enable.
	SendGridAPIKey string
	AlertFromEmail string
	AlertToEmail   string

	// AllowedOrigin is the CORS origin for the browser client.
	AllowedOrigin string

	// DebugErrors widens HTTP error responses with internal detail.
	DebugErrors bool
}

// Load reads the environment and returns the assembled Config.
func Load() *Config {
	cfg := &Config{
		Port: getenvDefault("PORT", "8080"),

		TreasuryAddress: os.Getenv("TREASURY_ADDRESS"),

		PressPriceSOL:    getenvFloat("PRESS_PRICE_SOL", 0.25),
		FurnacePriceSOL:  getenvFloat("FURNACE_PRICE_SOL", 1.5),
		ConveyorPriceSOL: getenvFloat("CONVEYOR_PRICE_SOL", 0),

		Tier1Cap: getenvUint("TIER1_CAP", 3000),
		Tier2Cap: getenvUint("TIER2_CAP", 900),
		Tier3Cap: getenvUint("TIER3_CAP", 100),

		RollSecret:     os.Getenv("ROLL_SECRET"),
		RollSecretName: os.Getenv("ROLL_SECRET_NAME"),

		RPCEndpoints: splitList(getenvDefault("SOLANA_RPC_ENDPOINTS", "https://api.devnet.solana.com")),
		MaxSlotAge:   getenvUint("MAX_PAYMENT_SLOT_AGE", 300),

		MintKeySecretName: os.Getenv("MINT_KEY_SECRET_NAME"),
		MintKeypairFile:   os.Getenv("MINT_KEYPAIR_FILE"),

		CollectionMint: os.Getenv("COLLECTION_MINT"),
		CollectionName: getenvDefault("COLLECTION_NAME", "Scrapworks Remixes"),
		TokenSymbol:    getenvDefault("TOKEN_SYMBOL", "SCRAP"),

		LedgerBackend:            getenvDefault("LEDGER_BACKEND", "file"),
		LedgerPath:               getenvDefault("LEDGER_PATH", "data/remix-ledger.json"),
		FirestoreProjectID:       getenvDefault("FIRESTORE_PROJECT_ID", os.Getenv("GCP_PROJECT_ID")),
		FirestoreCredentialsFile: os.Getenv("FIRESTORE_CREDENTIALS_FILE"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),

		ArweaveBaseURL: os.Getenv("ARWEAVE_BASE_URL"),
		ArweaveAPIKey:  os.Getenv("ARWEAVE_API_KEY"),
		GCSBucket:      os.Getenv("GCS_BUCKET"),
		GCSPublicBase:  os.Getenv("GCS_PUBLIC_BASE_URL"),

		SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		AlertFromEmail: os.Getenv("ALERT_FROM_EMAIL"),
		AlertToEmail:   os.Getenv("ALERT_TO_EMAIL"),

		AllowedOrigin: getenvDefault("ALLOWED_ORIGIN", "*"),

		DebugErrors: os.Getenv("DEBUG_ERRORS") == "1",
	}
	return cfg
}

// AlertingEnabled reports whether the SendGrid reconciliation alerts are
// fully configured.
func (c *Config) AlertingEnabled() bool {
	return c.SendGridAPIKey != "" && c.AlertFromEmail != "" && c.AlertToEmail != ""
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] %s=%q is not a number, using %v", key, v, def)
		return def
	}
	return f
}

func getenvUint(key string, def uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		log.Printf("[config] %s=%q is not a non-negative integer, using %d", key, v, def)
		return def
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
