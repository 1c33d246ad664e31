package httpin

import (
	"net/http"

	"scrapworks/internal/adapters/in/http/handlers"
	"scrapworks/internal/adapters/in/http/middleware"
	"scrapworks/internal/application/quote"
	"scrapworks/internal/application/verify"
)

// RouterDeps collects the usecases injected from main.go.
type RouterDeps struct {
	QuoteUC  *quote.Usecase
	VerifyUC *verify.Usecase

	// DebugErrors widens error bodies with internal detail (dev only).
	DebugErrors bool
	// AllowedOrigin is the CORS origin; empty disables the CORS headers.
	AllowedOrigin string
}

// NewRouter sets up HTTP routing for all endpoints.
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()

	// Health check (always on, mounted before anything heavy)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if deps.QuoteUC != nil {
		mux.Handle("/quote", handlers.NewQuoteHandler(deps.QuoteUC))
		mux.Handle("/supply", handlers.NewSupplyHandler(deps.QuoteUC))
	}
	if deps.VerifyUC != nil {
		mux.Handle("/verify", handlers.NewVerifyHandler(deps.VerifyUC, deps.DebugErrors))
	}

	var h http.Handler = mux
	h = middleware.Recover(h)
	if deps.AllowedOrigin != "" {
		h = middleware.CORS(deps.AllowedOrigin, h)
	}
	return h
}
