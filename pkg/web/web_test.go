package web

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/terrycain/s3-read-proxy/pkg/backend"
	"github.com/terrycain/s3-read-proxy/pkg/e"
	"github.com/terrycain/s3-read-proxy/pkg/identity"
	"github.com/terrycain/s3-read-proxy/pkg/repository"
	"github.com/terrycain/s3-read-proxy/pkg/s"
	"github.com/terrycain/s3-read-proxy/pkg/signing"
	"github.com/terrycain/s3-read-proxy/pkg/sourceapi"
)

// fakeBackend is an in-memory backend.Backend used to drive the handlers
// without a real S3/Azure dependency.
type fakeBackend struct {
	objects map[string]fakeObject
	pages   map[string]s.ListPage
}

type fakeObject struct {
	body        string
	contentType string
	etag        string
}

func (f *fakeBackend) Head(_ context.Context, key string) (s.ObjectDescriptor, error) {
	obj, ok := f.objects[key]
	if !ok {
		return s.ObjectDescriptor{}, e.ErrNoSuchKey
	}
	return s.ObjectDescriptor{
		Key: key, ContentType: obj.contentType, ContentLength: int64(len(obj.body)),
		ETag: obj.etag, LastModified: time.Unix(0, 0).UTC(),
	}, nil
}

func (f *fakeBackend) Get(_ context.Context, key string, rng s.RangeSpec) (s.ObjectBody, error) {
	obj, ok := f.objects[key]
	if !ok {
		return s.ObjectBody{}, e.ErrNoSuchKey
	}
	size := int64(len(obj.body))
	resolved, err := backend.ResolveRange(rng, size)
	if err != nil {
		return s.ObjectBody{}, err
	}
	body := obj.body[resolved.Start : resolved.End+1]
	return s.ObjectBody{
		ObjectDescriptor: s.ObjectDescriptor{
			Key: key, ContentType: obj.contentType, ContentLength: size,
			ETag: obj.etag, LastModified: time.Unix(0, 0).UTC(),
		},
		Partial: backend.IsRanged(rng),
		Range:   resolved,
		Body:    io.NopCloser(strings.NewReader(body)),
	}, nil
}

func (f *fakeBackend) List(_ context.Context, prefix, _ string, _ string, _ int) (s.ListPage, error) {
	page, ok := f.pages[prefix]
	if !ok {
		return s.ListPage{Prefix: prefix}, nil
	}
	return page, nil
}

func newTestHandlers(t *testing.T, fb *fakeBackend, credentialJSON, bindingJSON string) *Handlers {
	t.Helper()

	identityServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(credentialJSON))
	}))
	t.Cleanup(identityServer.Close)

	repoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(bindingJSON))
	}))
	t.Cleanup(repoServer.Close)

	identityClient, err := sourceapi.New(identityServer.URL, "bearer", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	repoClient, err := sourceapi.New(repoServer.URL, "bearer", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	registry := backend.NewRegistry(
		func(s.BackendBinding) (backend.Backend, error) { return fb, nil },
		func(s.BackendBinding) (backend.Backend, error) { return fb, nil },
	)

	return &Handlers{
		Identity:   identity.New(identityClient),
		Repository: repository.New(repoClient),
		Backends:   registry,
	}
}

const testAccessKeyID = "AKIDEXAMPLE"
const testSecretKey = "secret"

func signedRequest(t *testing.T, method, rawURL string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, rawURL, nil)
	req.Host = "proxy.example.com"

	now := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	amzDate := now.Format("20060102T150405Z")

	req.Header.Set("x-amz-date", amzDate)
	req.Header.Set("x-amz-content-sha256", signing.UnsignedPayload)
	req.Header.Set("Host", req.Host)

	signedHeaders := []string{"host", "x-amz-date"}
	auth := signing.Sign(req, testAccessKeyID, testSecretKey, amzDate, signing.FixedRegion, signing.FixedService, signedHeaders, signing.UnsignedPayload)
	req.Header.Set("Authorization", auth)
	return req
}

func fixedNow() time.Time {
	return time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
}

func TestGetObject_Success(t *testing.T) {
	fb := &fakeBackend{objects: map[string]fakeObject{
		"a.txt": {body: "hello world", contentType: "text/plain", etag: "abc123"},
	}}
	h := newTestHandlers(t, fb,
		`{"access_key_id":"AKIDEXAMPLE","secret_access_key":"secret","principal_id":"p1","permitted_repositories":[{"account_id":"acme","repository_id":"photos"}]}`,
		`{"kind":"s3","s3":{"region":"us-east-1","bucket":"bucket","key_prefix":"","access_key":"","secret_key":"","endpoint_url":""}}`,
	)
	h.Now = fixedNow

	router := GetRouter("", *h, false)

	req := signedRequest(t, http.MethodGet, "/acme/photos/a.txt")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "hello world" {
		t.Fatalf("unexpected body: %q", w.Body.String())
	}
	if w.Header().Get("ETag") != `"abc123"` {
		t.Fatalf("unexpected ETag: %q", w.Header().Get("ETag"))
	}
}

func TestGetObject_RangeRequest(t *testing.T) {
	fb := &fakeBackend{objects: map[string]fakeObject{
		"a.txt": {body: "hello world", contentType: "text/plain", etag: "abc123"},
	}}
	h := newTestHandlers(t, fb,
		`{"access_key_id":"AKIDEXAMPLE","secret_access_key":"secret","principal_id":"p1","permitted_repositories":[{"account_id":"acme","repository_id":"photos"}]}`,
		`{"kind":"s3","s3":{"region":"us-east-1","bucket":"bucket"}}`,
	)
	h.Now = fixedNow
	router := GetRouter("", *h, false)

	req := signedRequest(t, http.MethodGet, "/acme/photos/a.txt")
	req.Header.Set("Range", "bytes=0-4")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "hello" {
		t.Fatalf("unexpected body: %q", w.Body.String())
	}
	if w.Header().Get("Content-Range") != "bytes 0-4/11" {
		t.Fatalf("unexpected Content-Range: %q", w.Header().Get("Content-Range"))
	}
}

func TestGetObject_NotFound(t *testing.T) {
	fb := &fakeBackend{objects: map[string]fakeObject{}}
	h := newTestHandlers(t, fb,
		`{"access_key_id":"AKIDEXAMPLE","secret_access_key":"secret","principal_id":"p1","permitted_repositories":[{"account_id":"acme","repository_id":"photos"}]}`,
		`{"kind":"s3","s3":{"region":"us-east-1","bucket":"bucket"}}`,
	)
	h.Now = fixedNow
	router := GetRouter("", *h, false)

	req := signedRequest(t, http.MethodGet, "/acme/photos/missing.txt")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	var body xmlError
	if err := xml.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response body is not valid error XML: %v", err)
	}
	if body.Code != "NoSuchKey" {
		t.Fatalf("expected NoSuchKey, got %q", body.Code)
	}
}

func TestGetObject_RepositoryNotPermitted(t *testing.T) {
	fb := &fakeBackend{}
	h := newTestHandlers(t, fb,
		`{"access_key_id":"AKIDEXAMPLE","secret_access_key":"secret","principal_id":"p1","permitted_repositories":[]}`,
		`{"kind":"s3","s3":{"region":"us-east-1","bucket":"bucket"}}`,
	)
	h.Now = fixedNow
	router := GetRouter("", *h, false)

	req := signedRequest(t, http.MethodGet, "/acme/photos/a.txt")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetObject_BadSignatureRejected(t *testing.T) {
	fb := &fakeBackend{objects: map[string]fakeObject{"a.txt": {body: "x"}}}
	h := newTestHandlers(t, fb,
		`{"access_key_id":"AKIDEXAMPLE","secret_access_key":"secret","principal_id":"p1","permitted_repositories":[{"account_id":"acme","repository_id":"photos"}]}`,
		`{"kind":"s3","s3":{"region":"us-east-1","bucket":"bucket"}}`,
	)
	h.Now = fixedNow
	router := GetRouter("", *h, false)

	req := signedRequest(t, http.MethodGet, "/acme/photos/a.txt")
	req.Header.Set("Authorization", strings.Replace(req.Header.Get("Authorization"), "Signature=", "Signature=ff", 1))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHeadObject_Success(t *testing.T) {
	fb := &fakeBackend{objects: map[string]fakeObject{
		"a.txt": {body: "hello world", contentType: "text/plain", etag: "abc123"},
	}}
	h := newTestHandlers(t, fb,
		`{"access_key_id":"AKIDEXAMPLE","secret_access_key":"secret","principal_id":"p1","permitted_repositories":[{"account_id":"acme","repository_id":"photos"}]}`,
		`{"kind":"s3","s3":{"region":"us-east-1","bucket":"bucket"}}`,
	)
	h.Now = fixedNow
	router := GetRouter("", *h, false)

	req := signedRequest(t, http.MethodHead, "/acme/photos/a.txt")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("expected empty body on HEAD, got %q", w.Body.String())
	}
}

func TestListObjects_RepositoryScoped(t *testing.T) {
	fb := &fakeBackend{pages: map[string]s.ListPage{
		"2024/": {
			Contents: []s.ListEntry{{Key: "2024/a.jpg", Size: 10, ETag: "e1", LastModified: time.Unix(0, 0).UTC()}},
		},
	}}
	h := newTestHandlers(t, fb,
		`{"access_key_id":"AKIDEXAMPLE","secret_access_key":"secret","principal_id":"p1","permitted_repositories":[{"account_id":"acme","repository_id":"photos"}]}`,
		`{"kind":"s3","s3":{"region":"us-east-1","bucket":"bucket"}}`,
	)
	h.Now = fixedNow
	router := GetRouter("", *h, false)

	req := signedRequest(t, http.MethodGet, "/acme?list-type=2&prefix=photos%2F2024%2F")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result xmlListBucketResult
	if err := xml.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid listing XML: %v", err)
	}
	if len(result.Contents) != 1 || result.Contents[0].Key != "photos/2024/a.jpg" {
		t.Fatalf("unexpected contents: %+v", result.Contents)
	}
	if result.Contents[0].ETag != `"e1"` {
		t.Fatalf("expected ETag to be quoted per S3 convention, got %q", result.Contents[0].ETag)
	}
}

func TestListObjects_AccountLevelEnumeratesPermittedRepos(t *testing.T) {
	fb := &fakeBackend{}
	h := newTestHandlers(t, fb,
		`{"access_key_id":"AKIDEXAMPLE","secret_access_key":"secret","principal_id":"p1","permitted_repositories":[{"account_id":"acme","repository_id":"photos"},{"account_id":"acme","repository_id":"videos"}]}`,
		`{"kind":"s3","s3":{"region":"us-east-1","bucket":"bucket"}}`,
	)
	h.Now = fixedNow
	router := GetRouter("", *h, false)

	req := signedRequest(t, http.MethodGet, "/acme?list-type=2&prefix=")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var result xmlListBucketResult
	if err := xml.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid listing XML: %v", err)
	}
	if len(result.CommonPrefixes) != 2 {
		t.Fatalf("expected 2 common prefixes, got %+v", result.CommonPrefixes)
	}
	if len(result.Contents) != 0 {
		t.Fatalf("expected no object entries in account-level listing, got %+v", result.Contents)
	}
}

func TestHealthCheckEndpoint_Unauthenticated(t *testing.T) {
	h := &Handlers{}
	router := GetRouter("", *h, false)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", w.Body.String())
	}
}

// TestGetObject_EmptyAccessKeyIDRejectedBeforeUpstreamCall covers §8's
// boundary case end to end: a request signed with an empty access key id
// gets 403 InvalidAccessKeyId without the identity server ever being hit.
func TestGetObject_EmptyAccessKeyIDRejectedBeforeUpstreamCall(t *testing.T) {
	called := false
	identityServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(identityServer.Close)
	identityClient, err := sourceapi.New(identityServer.URL, "bearer", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := &Handlers{Identity: identity.New(identityClient), Now: fixedNow}
	router := GetRouter("", *h, false)

	req := signedRequest(t, http.MethodGet, "/acme/photos/a.txt")
	req.Header.Set("Authorization", strings.Replace(req.Header.Get("Authorization"), "Credential=AKIDEXAMPLE/", "Credential=/", 1))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
	var body xmlError
	if err := xml.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response body is not valid error XML: %v", err)
	}
	if body.Code != "InvalidAccessKeyId" {
		t.Fatalf("expected InvalidAccessKeyId, got %q", body.Code)
	}
	if called {
		t.Fatalf("expected no upstream identity call for an empty access key id")
	}
}

func TestGetObject_MissingAuthorizationHeader(t *testing.T) {
	h := &Handlers{}
	router := GetRouter("", *h, false)

	req := httptest.NewRequest(http.MethodGet, "/acme/photos/a.txt", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}
