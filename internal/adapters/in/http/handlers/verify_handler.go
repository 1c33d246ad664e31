package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"scrapworks/internal/application/verify"
)

// VerifyHandler serves POST /verify, the full payment-to-mint pipeline.
type VerifyHandler struct {
	uc    *verify.Usecase
	debug bool
}

func NewVerifyHandler(uc *verify.Usecase, debug bool) http.Handler {
	return &VerifyHandler{uc: uc, debug: debug}
}

func (h *VerifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/verify":
		h.post(w, r)
	default:
		methodNotAllowed(w)
	}
}

type verifyRequest struct {
	Signature   string `json:"signature"`
	Payer       string `json:"payer"`
	SourceAsset string `json:"sourceAsset"`
	Machine     string `json:"machine"`
	ImageData   string `json:"imageData"` // base64, data-URL prefix tolerated
	ImageMime   string `json:"imageMime,omitempty"`
}

// POST /verify
func (h *VerifyHandler) post(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid JSON body"})
		return
	}

	image, mime, err := decodeImage(req.ImageData, req.ImageMime)
	if err != nil {
		writeErr(w, http.StatusBadRequest, errorBody{Error: "bad_image", Message: "imageData is not valid base64"})
		return
	}

	res, err := h.uc.Run(r.Context(), verify.Request{
		Signature:  req.Signature,
		Payer:      req.Payer,
		SourceMint: req.SourceAsset,
		Machine:    req.Machine,
		ImageData:  image,
		ImageMime:  mime,
	})
	if err != nil {
		h.writeVerifyErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// decodeImage accepts raw base64 or a canvas-style data URL
// ("data:image/png;base64,...") and returns the bytes plus a mime hint.
func decodeImage(data, mime string) ([]byte, string, error) {
	if rest, ok := strings.CutPrefix(data, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", errors.New("malformed data URL")
		}
		if mime == "" {
			mime = strings.TrimSuffix(header, ";base64")
		}
		data = payload
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return nil, "", err
	}
	return raw, mime, nil
}

func (h *VerifyHandler) writeVerifyErr(w http.ResponseWriter, err error) {
	var perr *verify.PipelineError
	if !errors.As(err, &perr) {
		log.Printf("[verify] unclassified error: %v", err)
		writeErr(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
		return
	}

	body := errorBody{
		Error:            perr.Code,
		Message:          perr.Message,
		Retryable:        perr.Retryable(),
		ExpectedLamports: perr.ExpectedLamports,
		ActualLamports:   perr.ActualLamports,
		Prior:            perr.Prior,
	}
	if h.debug {
		body.Detail = perr.Error()
	}
	writeErr(w, statusFor(perr), body)
}

func statusFor(perr *verify.PipelineError) int {
	switch perr.Kind {
	case verify.FailValidation:
		return http.StatusBadRequest
	case verify.FailNotYetAvailable:
		// indexing lag: the same request succeeds once the tx is visible
		return http.StatusTooEarly
	case verify.FailConflict:
		return http.StatusConflict
	case verify.FailVerification:
		if perr.Code == "not_owner" {
			return http.StatusForbidden
		}
		return http.StatusPaymentRequired
	case verify.FailTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
