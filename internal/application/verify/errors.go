package verify

import "fmt"

// FailureKind classifies every error leaving the pipeline. Raw internal
// error detail never crosses the boundary unmapped; handlers translate
// kinds to status codes and keep messages terse unless debug mode is on.
type FailureKind string

const (
	// FailValidation: malformed input, client-fixable, no side effects.
	FailValidation FailureKind = "validation"
	// FailNotYetAvailable: transaction not indexed yet; retry shortly.
	FailNotYetAvailable FailureKind = "not_yet_available"
	// FailConflict: signature/source consumed, in-flight duplicate, sold out.
	FailConflict FailureKind = "conflict"
	// FailVerification: wrong amount, wrong parties, ownership not held.
	FailVerification FailureKind = "verification"
	// FailTransient: infrastructure failure after internal retries; the
	// client may retry with the same inputs.
	FailTransient FailureKind = "transient"
	// FailFatal: configuration error or corrupted ledger; fail closed.
	FailFatal FailureKind = "fatal"
)

// PipelineError is the single error type the pipeline exposes.
type PipelineError struct {
	Kind    FailureKind
	Code    string // stable machine-readable code, e.g. "signature_consumed"
	Message string // terse, safe to return to the client

	// Amount mismatch disclosure for payment debugging; zero otherwise.
	// Ownership failures never carry detail beyond pass/fail.
	ExpectedLamports uint64
	ActualLamports   uint64

	// Prior is the committed outcome behind a signature_consumed conflict,
	// so a client retrying its own request can recover what it paid for.
	Prior *PriorOutcome

	cause error
}

// PriorOutcome mirrors the Result fields of an already committed entry.
type PriorOutcome struct {
	Tier        string `json:"tier"`
	IssuedMint  string `json:"issuedAsset"`
	Name        string `json:"name"`
	MetadataURI string `json:"metadataUri"`
	Sequence    uint64 `json:"sequence"`
}

func (e *PipelineError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Kind, e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s/%s: %s", e.Kind, e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.cause }

// Retryable reports whether the client may usefully retry the same request.
func (e *PipelineError) Retryable() bool {
	return e.Kind == FailNotYetAvailable || e.Kind == FailTransient
}

func failValidation(code, msg string) *PipelineError {
	return &PipelineError{Kind: FailValidation, Code: code, Message: msg}
}

func failConflict(code, msg string, cause error) *PipelineError {
	return &PipelineError{Kind: FailConflict, Code: code, Message: msg, cause: cause}
}

func failVerification(code, msg string) *PipelineError {
	return &PipelineError{Kind: FailVerification, Code: code, Message: msg}
}

func failAmount(expected, actual uint64) *PipelineError {
	return &PipelineError{
		Kind:             FailVerification,
		Code:             "insufficient_payment",
		Message:          "payment amount below required price",
		ExpectedLamports: expected,
		ActualLamports:   actual,
	}
}

func failNotYet(msg string) *PipelineError {
	return &PipelineError{Kind: FailNotYetAvailable, Code: "tx_not_found", Message: msg}
}

func failTransient(code, msg string, cause error) *PipelineError {
	return &PipelineError{Kind: FailTransient, Code: code, Message: msg, cause: cause}
}

func failFatal(code, msg string, cause error) *PipelineError {
	return &PipelineError{Kind: FailFatal, Code: code, Message: msg, cause: cause}
}
