package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// Solana Devnet RPC endpoint (default)
const DevnetEndpoint = "https://api.devnet.solana.com"

// SPL token program variants. Ownership checks enumerate both.
const (
	TokenProgramID     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
)

// ErrAllEndpointsFailed means every configured RPC endpoint failed for one
// call. Callers treat this as a retryable service failure, distinct from a
// definitive RPC answer.
var ErrAllEndpointsFailed = errors.New("solana rpc: all endpoints failed")

// RPCClient defines the minimal Solana RPC reads the pipeline needs.
type RPCClient interface {
	// GetTransaction returns nil when the signature is not yet indexed.
	GetTransaction(ctx context.Context, signature string) (*GetTransactionResult, error)
	GetSlot(ctx context.Context) (uint64, error)
	GetBalance(ctx context.Context, address string) (uint64, error)
	// GetTokenAccountsByOwner calls `getTokenAccountsByOwner` with
	// params: [owner, {"programId": programID}, {"encoding":"jsonParsed","commitment":"finalized"}]
	GetTokenAccountsByOwner(ctx context.Context, owner string, programID string) (GetTokenAccountsByOwnerResult, error)
}

// JSONRPCClient is a simple HTTP JSON-RPC client for Solana with failover
// across a configured endpoint list. Each call walks the list in order; a
// response (even an RPC-level error) from any endpoint ends the walk.
type JSONRPCClient struct {
	Endpoints []string
	HTTP      *http.Client
}

// NewJSONRPCClient creates a Solana JSON-RPC client over the given
// endpoints. An empty list falls back to devnet.
func NewJSONRPCClient(endpoints []string, timeout time.Duration) *JSONRPCClient {
	eps := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		if e = strings.TrimSpace(e); e != "" {
			eps = append(eps, e)
		}
	}
	if len(eps) == 0 {
		eps = []string{DevnetEndpoint}
	}
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &JSONRPCClient{
		Endpoints: eps,
		HTTP:      &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// call tries each endpoint until one answers. Transport failures advance to
// the next endpoint; an RPC-level error is a definitive answer and returned
// as-is.
func (c *JSONRPCClient) call(ctx context.Context, method string, params any, out any) error {
	if c == nil || len(c.Endpoints) == 0 || c.HTTP == nil {
		return errors.New("solana rpc: client not configured")
	}

	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("solana rpc: marshal request: %w", err)
	}

	var lastErr error
	for _, endpoint := range c.Endpoints {
		definitive, err := c.callOne(ctx, endpoint, reqBody, out)
		if err == nil {
			return nil
		}
		if definitive {
			// RPC-level answer from the node, do not fail over
			return err
		}
		log.Printf("[solana_rpc] endpoint failed method=%s endpoint=%s err=%v", method, endpoint, err)
		lastErr = err
	}
	return fmt.Errorf("%w: %v", ErrAllEndpointsFailed, lastErr)
}

// callOne performs the request against one endpoint. definitive=true means
// the node itself answered (success or RPC error) and failover would not
// change the outcome.
func (c *JSONRPCClient) callOne(ctx context.Context, endpoint string, reqBody []byte, out any) (definitive bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return false, fmt.Errorf("solana rpc: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false, fmt.Errorf("solana rpc: http do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("solana rpc: http status=%d", resp.StatusCode)
	}

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return false, fmt.Errorf("solana rpc: decode response: %w", err)
	}
	if rr.Error != nil {
		return true, fmt.Errorf("solana rpc: error code=%d message=%s", rr.Error.Code, rr.Error.Message)
	}
	if out != nil && len(rr.Result) > 0 {
		if err := json.Unmarshal(rr.Result, out); err != nil {
			return true, fmt.Errorf("solana rpc: unmarshal result: %w", err)
		}
	}
	return true, nil
}

// ----------------------------------------------------------------------
// getTransaction (jsonParsed)
// ----------------------------------------------------------------------

// GetTransactionResult is the decoded `result` object for getTransaction
// with encoding=jsonParsed. A nil result from the node means "not indexed
// yet" and is surfaced as a nil pointer, not an error.
type GetTransactionResult struct {
	Slot uint64 `json:"slot"`
	Meta *struct {
		Err any `json:"err"`
	} `json:"meta"`
	Transaction struct {
		Message struct {
			AccountKeys []struct {
				Pubkey string `json:"pubkey"`
				Signer bool   `json:"signer"`
			} `json:"accountKeys"`
			Instructions []ParsedInstruction `json:"instructions"`
		} `json:"message"`
	} `json:"transaction"`
}

// ParsedInstruction is one jsonParsed instruction. Only the system-program
// transfer shape is interpreted; everything else stays raw.
type ParsedInstruction struct {
	Program   string          `json:"program"`
	ProgramID string          `json:"programId"`
	Parsed    json.RawMessage `json:"parsed"`
}

// SystemTransfer extracts a parsed system-program transfer, if this
// instruction is one.
func (i ParsedInstruction) SystemTransfer() (source, destination string, lamports uint64, ok bool) {
	if i.Program != "system" || len(i.Parsed) == 0 {
		return "", "", 0, false
	}
	var parsed struct {
		Type string `json:"type"`
		Info struct {
			Source      string `json:"source"`
			Destination string `json:"destination"`
			Lamports    uint64 `json:"lamports"`
		} `json:"info"`
	}
	if err := json.Unmarshal(i.Parsed, &parsed); err != nil {
		return "", "", 0, false
	}
	if parsed.Type != "transfer" {
		return "", "", 0, false
	}
	return parsed.Info.Source, parsed.Info.Destination, parsed.Info.Lamports, true
}

// FeePayer returns the transaction's fee payer (first account key, which is
// always the fee payer on Solana).
func (r *GetTransactionResult) FeePayer() string {
	if r == nil || len(r.Transaction.Message.AccountKeys) == 0 {
		return ""
	}
	return r.Transaction.Message.AccountKeys[0].Pubkey
}

// Failed reports whether the transaction landed but errored on-chain.
func (r *GetTransactionResult) Failed() bool {
	return r != nil && r.Meta != nil && r.Meta.Err != nil
}

func (c *JSONRPCClient) GetTransaction(ctx context.Context, signature string) (*GetTransactionResult, error) {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return nil, errors.New("solana rpc: signature is empty")
	}

	params := []any{
		signature,
		map[string]any{
			"encoding":                       "jsonParsed",
			"commitment":                     "confirmed",
			"maxSupportedTransactionVersion": 0,
		},
	}

	var out json.RawMessage
	if err := c.call(ctx, "getTransaction", params, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 || string(out) == "null" {
		return nil, nil // not indexed yet
	}
	var res GetTransactionResult
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, fmt.Errorf("solana rpc: unmarshal transaction: %w", err)
	}
	return &res, nil
}

// ----------------------------------------------------------------------
// getSlot / getBalance
// ----------------------------------------------------------------------

func (c *JSONRPCClient) GetSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	if err := c.call(ctx, "getSlot", []any{map[string]any{"commitment": "confirmed"}}, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

func (c *JSONRPCClient) GetBalance(ctx context.Context, address string) (uint64, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return 0, errors.New("solana rpc: address is empty")
	}
	var out struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, "getBalance", []any{address, map[string]any{"commitment": "confirmed"}}, &out); err != nil {
		return 0, err
	}
	return out.Value, nil
}

// ----------------------------------------------------------------------
// getTokenAccountsByOwner (jsonParsed)
// ----------------------------------------------------------------------

// GetTokenAccountsByOwnerResult is the decoded `result` object for
// getTokenAccountsByOwner (jsonParsed).
type GetTokenAccountsByOwnerResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value []struct {
		Pubkey  string `json:"pubkey"`
		Account struct {
			Data struct {
				Program string `json:"program"`
				Parsed  struct {
					Info struct {
						Mint        string `json:"mint"`
						Owner       string `json:"owner"`
						TokenAmount struct {
							Amount   string `json:"amount"` // string integer
							Decimals int    `json:"decimals"`
						} `json:"tokenAmount"`
					} `json:"info"`
					Type string `json:"type"`
				} `json:"parsed"`
				Space uint64 `json:"space"`
			} `json:"data"`
			Owner string `json:"owner"`
		} `json:"account"`
	} `json:"value"`
}

func (c *JSONRPCClient) GetTokenAccountsByOwner(ctx context.Context, owner string, programID string) (GetTokenAccountsByOwnerResult, error) {
	var out GetTokenAccountsByOwnerResult

	owner = strings.TrimSpace(owner)
	if owner == "" {
		return out, errors.New("solana rpc: owner is empty")
	}
	if programID == "" {
		programID = TokenProgramID
	}

	params := []any{
		owner,
		map[string]any{
			"programId": programID,
		},
		map[string]any{
			"commitment": "finalized",
			"encoding":   "jsonParsed",
		},
	}

	if err := c.call(ctx, "getTokenAccountsByOwner", params, &out); err != nil {
		return GetTokenAccountsByOwnerResult{}, err
	}
	return out, nil
}
