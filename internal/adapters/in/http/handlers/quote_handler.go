package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"scrapworks/internal/application/quote"
	"scrapworks/internal/domain/remix"
)

// QuoteHandler serves POST /quote.
type QuoteHandler struct {
	uc *quote.Usecase
}

func NewQuoteHandler(uc *quote.Usecase) http.Handler {
	return &QuoteHandler{uc: uc}
}

func (h *QuoteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/quote":
		h.post(w, r)
	default:
		methodNotAllowed(w)
	}
}

// POST /quote {machine}
func (h *QuoteHandler) post(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Machine string `json:"machine"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid JSON body"})
		return
	}

	q, err := h.uc.Quote(r.Context(), req.Machine)
	if err != nil {
		writeQuoteErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func writeQuoteErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, remix.ErrInvalidMachine):
		writeErr(w, http.StatusBadRequest, errorBody{Error: "bad_machine", Message: "unknown machine"})
	case errors.Is(err, quote.ErrAllSoldOut):
		writeErr(w, http.StatusConflict, errorBody{Error: "sold_out", Message: "all tiers are sold out"})
	case errors.Is(err, remix.ErrNoPriorMint):
		log.Printf("[quote] dynamic price has no basis: %v", err)
		writeErr(w, http.StatusInternalServerError, errorBody{Error: "price_unavailable", Message: "price not available yet"})
	default:
		log.Printf("[quote] error: %v", err)
		writeErr(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
	}
}
