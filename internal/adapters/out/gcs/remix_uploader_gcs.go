package gcs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
)

// RemixUploaderGCS is the GCS-backed uploader used when no Arweave endpoint
// is configured. Objects are content-addressed under remixes/ so repeated
// uploads of the same bytes land on the same public URL.
//
// Public access assumes the bucket carries IAM "allUsers: Storage Object
// Viewer" (uniform access), same as the rest of our public buckets.
type RemixUploaderGCS struct {
	Client *storage.Client
	Bucket string
	// Optional: if empty, uses https://storage.googleapis.com
	PublicBaseURL string
}

func NewRemixUploaderGCS(client *storage.Client, bucket string) *RemixUploaderGCS {
	return &RemixUploaderGCS{
		Client:        client,
		Bucket:        strings.TrimSpace(bucket),
		PublicBaseURL: "https://storage.googleapis.com",
	}
}

// UploadBlob stores the remix image bytes and returns a public URL.
func (r *RemixUploaderGCS) UploadBlob(ctx context.Context, data []byte, mime string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("remix_uploader_gcs: blob is empty")
	}
	ext := "bin"
	switch mime {
	case "image/png":
		ext = "png"
	case "image/jpeg":
		ext = "jpg"
	}
	object := fmt.Sprintf("remixes/images/%s.%s", contentHash(data), ext)
	return r.write(ctx, object, data, mime)
}

// UploadJSON stores a metadata document and returns a public URL.
func (r *RemixUploaderGCS) UploadJSON(ctx context.Context, doc any) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("remix_uploader_gcs: marshal metadata: %w", err)
	}
	object := fmt.Sprintf("remixes/metadata/%s.json", contentHash(raw))
	return r.write(ctx, object, raw, "application/json")
}

func (r *RemixUploaderGCS) write(ctx context.Context, object string, data []byte, mime string) (string, error) {
	if r == nil || r.Client == nil {
		return "", errors.New("remix_uploader_gcs: storage client is nil")
	}
	if r.Bucket == "" {
		return "", errors.New("remix_uploader_gcs: bucket is empty")
	}

	w := r.Client.Bucket(r.Bucket).Object(object).NewWriter(ctx)
	w.ContentType = mime
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("remix_uploader_gcs: write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("remix_uploader_gcs: close %s: %w", object, err)
	}

	base := strings.TrimSpace(r.PublicBaseURL)
	if base == "" {
		base = "https://storage.googleapis.com"
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(base, "/"), r.Bucket, object), nil
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}
