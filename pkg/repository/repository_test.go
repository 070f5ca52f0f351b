package repository

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/terrycain/s3-read-proxy/pkg/e"
	"github.com/terrycain/s3-read-proxy/pkg/s"
	"github.com/terrycain/s3-read-proxy/pkg/sourceapi"
)

func newTestResolver(t *testing.T, handler http.HandlerFunc) *Resolver {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := sourceapi.New(server.URL, "test-bearer", "")
	if err != nil {
		t.Fatalf("unexpected error building client: %v", err)
	}
	return New(client)
}

func TestResolve_S3Binding(t *testing.T) {
	r := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"kind": "s3",
			"s3": {"region": "us-east-1", "bucket": "my-bucket", "key_prefix": "/datasets/acme/"}
		}`))
	})

	binding, err := r.Resolve(context.Background(), "acme", "photos")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if binding.Kind != s.BackendKindS3 {
		t.Fatalf("expected S3 binding")
	}
	if binding.S3.BasePrefix != "datasets/acme" {
		t.Fatalf("expected normalized prefix, got %q", binding.S3.BasePrefix)
	}
}

func TestResolve_UnknownRepositoryIsNoSuchBucket(t *testing.T) {
	r := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := r.Resolve(context.Background(), "acme", "missing")
	classified, ok := e.As(err)
	if !ok || classified.Kind != e.KindNoSuchBucket {
		t.Fatalf("expected NoSuchBucket, got %v", err)
	}
}
