package arweave

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestUploadBlob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key123" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "image/png" {
			t.Errorf("content type = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "png-bytes" {
			t.Errorf("body = %q", body)
		}
		fmt.Fprint(w, `{"uri":"https://gateway.irys.xyz/abc"}`)
	}))
	defer srv.Close()

	uri, err := NewHTTPUploader(srv.URL, "key123").UploadBlob(context.Background(), []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("UploadBlob: %v", err)
	}
	if uri != "https://gateway.irys.xyz/abc" {
		t.Fatalf("uri = %q", uri)
	}
}

func TestUploadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload/json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"name":"Output 001"`) {
			t.Errorf("body = %s", body)
		}
		fmt.Fprint(w, `{"uri":"https://gateway.irys.xyz/meta"}`)
	}))
	defer srv.Close()

	doc := map[string]string{"name": "Output 001"}
	uri, err := NewHTTPUploader(srv.URL, "").UploadJSON(context.Background(), doc)
	if err != nil {
		t.Fatalf("UploadJSON: %v", err)
	}
	if uri != "https://gateway.irys.xyz/meta" {
		t.Fatalf("uri = %q", uri)
	}
}

func TestUploadFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := NewHTTPUploader(srv.URL, "").UploadBlob(context.Background(), []byte("x"), ""); err == nil {
		t.Fatal("rate-limited upload did not error")
	}
}

func TestUploadEmptyBlob(t *testing.T) {
	if _, err := NewHTTPUploader("http://unused", "").UploadBlob(context.Background(), nil, ""); err == nil {
		t.Fatal("empty blob accepted")
	}
}

func TestUploadMissingURI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	if _, err := NewHTTPUploader(srv.URL, "").UploadBlob(context.Background(), []byte("x"), ""); err == nil {
		t.Fatal("empty uri accepted")
	}
}
