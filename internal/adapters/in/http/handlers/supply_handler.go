package handlers

import (
	"log"
	"net/http"

	"scrapworks/internal/application/quote"
)

// SupplyHandler serves GET /supply.
type SupplyHandler struct {
	uc *quote.Usecase
}

func NewSupplyHandler(uc *quote.Usecase) http.Handler {
	return &SupplyHandler{uc: uc}
}

func (h *SupplyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || r.URL.Path != "/supply" {
		methodNotAllowed(w)
		return
	}

	s, err := h.uc.Supply(r.Context())
	if err != nil {
		log.Printf("[supply] error: %v", err)
		writeErr(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
		return
	}

	// Hot unauthenticated read; a few seconds of staleness is acceptable.
	w.Header().Set("Cache-Control", "public, max-age=5")
	writeJSON(w, http.StatusOK, s)
}
