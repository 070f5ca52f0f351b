// Package web implements the S3-shaped read-only HTTP surface: SigV4
// authentication, object GET/HEAD, and ListObjectsV2-style listing, dispatched
// through the identity/repository resolvers onto the S3/Azure backends.
package web

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/terrycain/s3-read-proxy/pkg/backend"
	"github.com/terrycain/s3-read-proxy/pkg/e"
	"github.com/terrycain/s3-read-proxy/pkg/identity"
	"github.com/terrycain/s3-read-proxy/pkg/metrics"
	"github.com/terrycain/s3-read-proxy/pkg/repository"
	"github.com/terrycain/s3-read-proxy/pkg/s"
)

// Handlers holds the resolvers and backend registry the route handlers
// dispatch through. Now defaults to time.Now and is only ever overridden in
// tests, to keep SigV4 clock-skew checks deterministic.
type Handlers struct {
	Identity   *identity.Resolver
	Repository *repository.Resolver
	Backends   *backend.Registry

	Now func() time.Time
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func backendKindLabel(kind s.BackendKind) string {
	if kind == s.BackendKindAzure {
		return "azure"
	}
	return "s3"
}

func withBackendLatency(kind s.BackendKind, operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.ObserveBackendLatency(backendKindLabel(kind), operation, time.Since(start))
	return err
}

// writeObjectHeaders sets the response headers common to GET and HEAD,
// per §4.5: content metadata plus x-amz-meta-* for every user metadata entry.
func writeObjectHeaders(c *gin.Context, obj s.ObjectDescriptor) {
	if obj.ContentType != "" {
		c.Header("Content-Type", obj.ContentType)
	}
	if obj.ContentEncoding != "" {
		c.Header("Content-Encoding", obj.ContentEncoding)
	}
	if obj.ETag != "" {
		c.Header("ETag", `"`+strings.Trim(obj.ETag, `"`)+`"`)
	}
	if !obj.LastModified.IsZero() {
		c.Header("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	}
	for k, v := range obj.UserMetadata {
		c.Header("x-amz-meta-"+k, v)
	}
}

// resolveObject performs the shared resolve+permission-check+backend-lookup
// sequence for GetObject/HeadObject: §4.6 steps 3-5.
func (h *Handlers) resolveObject(c *gin.Context) (s.BackendBinding, backend.Backend, string, bool) {
	account := c.Param("account")
	repo := c.Param("repo")
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		writeError(c, e.ErrInvalidRequest)
		return s.BackendBinding{}, nil, "", false
	}

	cred := credentialFrom(c)
	ref := s.RepositoryRef{AccountID: account, RepositoryID: repo}
	if !cred.Permits(ref) {
		writeError(c, e.ErrAccessDenied)
		return s.BackendBinding{}, nil, "", false
	}

	binding, err := h.Repository.Resolve(c.Request.Context(), account, repo)
	if err != nil {
		writeError(c, err)
		return s.BackendBinding{}, nil, "", false
	}

	be, err := h.Backends.Get(binding)
	if err != nil {
		writeError(c, e.ErrInternalError.Wrap(err))
		return s.BackendBinding{}, nil, "", false
	}

	return binding, be, key, true
}

// GetObject serves GET /{account}/{repo}/{key...}.
func (h *Handlers) GetObject(c *gin.Context) {
	binding, be, key, ok := h.resolveObject(c)
	if !ok {
		return
	}

	var rangeSpec s.RangeSpec
	if hdr := c.GetHeader("Range"); hdr != "" {
		if parsed, ok := backend.ParseRangeHeader(hdr); ok {
			rangeSpec = parsed
		}
	}

	var obj s.ObjectBody
	err := withBackendLatency(binding.Kind, "get", func() error {
		var getErr error
		obj, getErr = be.Get(c.Request.Context(), key, rangeSpec)
		return getErr
	})
	if err != nil {
		writeError(c, err)
		return
	}
	defer obj.Body.Close()

	writeObjectHeaders(c, obj.ObjectDescriptor)
	c.Header(RequestIDHeader, requestIDFrom(c))

	if obj.Partial {
		c.Header("Content-Range", FormatContentRange(obj.Range))
		c.Header("Accept-Ranges", "bytes")
		c.Status(http.StatusPartialContent)
	} else {
		c.Status(http.StatusOK)
	}
	c.Header("Content-Length", contentLengthOf(obj))

	_, _ = io.Copy(c.Writer, obj.Body)
}

// HeadObject serves HEAD /{account}/{repo}/{key...}.
func (h *Handlers) HeadObject(c *gin.Context) {
	binding, be, key, ok := h.resolveObject(c)
	if !ok {
		return
	}

	var desc s.ObjectDescriptor
	err := withBackendLatency(binding.Kind, "head", func() error {
		var headErr error
		desc, headErr = be.Head(c.Request.Context(), key)
		return headErr
	})
	if err != nil {
		writeError(c, err)
		return
	}

	writeObjectHeaders(c, desc)
	c.Header(RequestIDHeader, requestIDFrom(c))
	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Length", strconv.FormatInt(desc.ContentLength, 10))
	c.Status(http.StatusOK)
}

func contentLengthOf(obj s.ObjectBody) string {
	n := obj.ContentLength
	if obj.Partial {
		n = obj.Range.End - obj.Range.Start + 1
	}
	return strconv.FormatInt(n, 10)
}
