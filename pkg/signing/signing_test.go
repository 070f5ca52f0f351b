package signing

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/terrycain/s3-read-proxy/pkg/e"
)

func newSignedRequest(t *testing.T, method, target string) (*http.Request, time.Time) {
	t.Helper()
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	amzDate := now.Format(amzDateFormat)

	req := httptest.NewRequest(method, target, nil)
	req.Host = "proxy.example.com"
	req.Header.Set("x-amz-date", amzDate)
	req.Header.Set("x-amz-content-sha256", UnsignedPayload)

	signedHeaders := []string{"host", "x-amz-date", "x-amz-content-sha256"}
	auth := Sign(req, "AKIDEXAMPLE", "secret", amzDate, FixedRegion, FixedService, signedHeaders, UnsignedPayload)
	req.Header.Set("Authorization", auth)

	return req, now
}

func TestVerify_RoundTripSucceeds(t *testing.T) {
	req, now := newSignedRequest(t, http.MethodGet, "/acme/photos/a.jpg")
	auth, ok := ParseAuthorizationHeader(req.Header.Get("Authorization"))
	if !ok {
		t.Fatalf("expected Authorization header to parse")
	}

	if err := Verify(req, auth, "secret", now); err != nil {
		t.Fatalf("expected verification to succeed, got %v", err)
	}
}

func TestVerify_FlippedSignatureByteFails(t *testing.T) {
	req, now := newSignedRequest(t, http.MethodGet, "/acme/photos/a.jpg")
	auth, ok := ParseAuthorizationHeader(req.Header.Get("Authorization"))
	if !ok {
		t.Fatalf("expected Authorization header to parse")
	}
	// Flip the last hex digit of the signature.
	sig := []byte(auth.Signature)
	if sig[len(sig)-1] == '0' {
		sig[len(sig)-1] = '1'
	} else {
		sig[len(sig)-1] = '0'
	}
	auth.Signature = string(sig)

	err := Verify(req, auth, "secret", now)
	assertErrKind(t, err, e.KindSignatureDoesNotMatch)
}

func TestVerify_FlippedPathByteFails(t *testing.T) {
	req, now := newSignedRequest(t, http.MethodGet, "/acme/photos/a.jpg")
	auth, ok := ParseAuthorizationHeader(req.Header.Get("Authorization"))
	if !ok {
		t.Fatalf("expected Authorization header to parse")
	}
	req.URL.Path = "/acme/photos/b.jpg"

	err := Verify(req, auth, "secret", now)
	assertErrKind(t, err, e.KindSignatureDoesNotMatch)
}

func TestVerify_FlippedQueryByteFails(t *testing.T) {
	req, now := newSignedRequest(t, http.MethodGet, "/acme?list-type=2&prefix=photos/")
	auth, ok := ParseAuthorizationHeader(req.Header.Get("Authorization"))
	if !ok {
		t.Fatalf("expected Authorization header to parse")
	}
	req.URL.RawQuery = "list-type=2&prefix=other/"

	err := Verify(req, auth, "secret", now)
	assertErrKind(t, err, e.KindSignatureDoesNotMatch)
}

func TestVerify_ClockSkewRejected(t *testing.T) {
	req, now := newSignedRequest(t, http.MethodGet, "/acme/photos/a.jpg")
	auth, ok := ParseAuthorizationHeader(req.Header.Get("Authorization"))
	if !ok {
		t.Fatalf("expected Authorization header to parse")
	}

	err := Verify(req, auth, "secret", now.Add(20*time.Minute))
	assertErrKind(t, err, e.KindRequestTimeTooSkewed)
}

func TestVerify_WrongRegionRejected(t *testing.T) {
	req, now := newSignedRequest(t, http.MethodGet, "/acme/photos/a.jpg")
	auth, ok := ParseAuthorizationHeader(req.Header.Get("Authorization"))
	if !ok {
		t.Fatalf("expected Authorization header to parse")
	}
	auth.Region = "eu-west-1"

	err := Verify(req, auth, "secret", now)
	assertErrKind(t, err, e.KindSignatureDoesNotMatch)
}

// TestCanonicalURI_DoubleDecodeRegression guards against the historical bug
// class where a path segment containing %20 or + was decoded zero or two
// times before canonicalization, producing a signature mismatch. S3 decodes
// the raw path exactly once, then percent-encodes it exactly once (the
// documented exception to SigV4's generic double-encode rule) — so "%20"
// round-trips to "%20" (space, re-encoded) and the literal "+" is encoded to
// "%2B" rather than being left alone or double-escaped to "%2520"/"%252B".
func TestCanonicalURI_DoubleDecodeRegression(t *testing.T) {
	got := CanonicalURI("/acme/repo/a%20b+c.jpg")
	want := "/acme/repo/a%20b%2Bc.jpg"
	if got != want {
		t.Fatalf("CanonicalURI(%q) = %q, want %q", "/acme/repo/a%20b+c.jpg", got, want)
	}
}

// TestParseAuthorizationHeader_EmptyAccessKeyID guards §8's boundary case: a
// request signed with an empty access key id must still parse (so the
// identity resolver, not the header parser, is the one that rejects it with
// InvalidAccessKeyId) rather than falling through as a generic malformed header.
func TestParseAuthorizationHeader_EmptyAccessKeyID(t *testing.T) {
	header := "AWS4-HMAC-SHA256 Credential=/20240115/us-east-1/s3/aws4_request, SignedHeaders=host;x-amz-date, Signature=" +
		"deadbeef00000000000000000000000000000000000000000000000000000000"
	auth, ok := ParseAuthorizationHeader(header)
	if !ok {
		t.Fatalf("expected header with empty access key id to still parse")
	}
	if auth.AccessKeyID != "" {
		t.Fatalf("expected empty access key id, got %q", auth.AccessKeyID)
	}
}

func assertErrKind(t *testing.T, err error, want e.Kind) {
	t.Helper()
	classified, ok := e.As(err)
	if !ok {
		t.Fatalf("expected a classified error, got %v", err)
	}
	if classified.Kind != want {
		t.Fatalf("expected kind %v, got %v", want, classified.Kind)
	}
}
