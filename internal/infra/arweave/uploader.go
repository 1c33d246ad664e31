package arweave

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// HTTPUploader talks to an Irys uploader service (Cloud Run wrapper) that
// pins blobs and JSON to Arweave and returns gateway URIs. The service is a
// black box here: bad credentials fail permanently, rate limits transiently.
type HTTPUploader struct {
	client  *http.Client
	baseURL string
	apiKey  string // optional bearer token (IRYS_SERVICE_API_KEY)
}

// NewHTTPUploader builds the Arweave/Irys uploader client.
func NewHTTPUploader(baseURL, apiKey string) *HTTPUploader {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return &HTTPUploader{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// UploadBlob uploads raw bytes (the remix image) and returns its URI.
func (u *HTTPUploader) UploadBlob(ctx context.Context, data []byte, mime string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("blob is empty")
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	return u.post(ctx, "/upload", data, mime)
}

// UploadJSON uploads a metadata document and returns its URI.
func (u *HTTPUploader) UploadJSON(ctx context.Context, doc any) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return u.post(ctx, "/upload/json", raw, "application/json")
}

func (u *HTTPUploader) post(ctx context.Context, path string, body []byte, mime string) (string, error) {
	if u.baseURL == "" {
		return "", fmt.Errorf("baseURL is empty; arweave endpoint not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mime)
	if u.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.apiKey)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		log.Printf("[arweave] http request FAILED path=%s err=%v", path, err)
		return "", fmt.Errorf("upload to arweave: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[arweave] upload FAILED path=%s status=%d body=%s", path, resp.StatusCode, string(bodyBytes))
		return "", fmt.Errorf("upload failed: status=%d body=%s", resp.StatusCode, string(bodyBytes))
	}

	var res struct {
		URI string `json:"uri"` // e.g. "https://gateway.irys.xyz/xxxx"
	}
	if err := json.Unmarshal(bodyBytes, &res); err != nil {
		log.Printf("[arweave] decode upload response FAILED err=%v body=%s", err, string(bodyBytes))
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if res.URI == "" {
		return "", fmt.Errorf("upload response has empty uri")
	}

	log.Printf("[arweave] upload OK path=%s uri=%s", path, res.URI)
	return res.URI, nil
}
