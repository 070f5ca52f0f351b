package signing

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/terrycain/s3-read-proxy/pkg/e"
)

const maxClockSkew = 15 * time.Minute

// requestHeaders adapts an *http.Request so CanonicalHeaders can see "host"
// alongside the regular header map, matching what a client actually signed.
type requestHeaders struct {
	r *http.Request
}

func (h requestHeaders) Values(key string) []string {
	if key == "host" {
		host := h.r.Host
		if host == "" {
			host = h.r.Header.Get("Host")
		}
		return []string{host}
	}
	return h.r.Header.Values(http.CanonicalHeaderKey(key))
}

// Verify checks an inbound request's SigV4 Authorization against secretAccessKey.
// auth must be the already-parsed Authorization header for this request,
// typically obtained from ParseAuthorizationHeader. now is injected for testability.
func Verify(r *http.Request, auth *ParsedAuthorization, secretAccessKey string, now time.Time) error {
	amzDateHeader := r.Header.Get("x-amz-date")
	if amzDateHeader == "" {
		return e.ErrInvalidRequest.Wrap(fmt.Errorf("missing x-amz-date header"))
	}
	amzDate, err := time.Parse(amzDateFormat, amzDateHeader)
	if err != nil {
		return e.ErrInvalidRequest.Wrap(fmt.Errorf("malformed x-amz-date: %w", err))
	}
	if skew := now.Sub(amzDate); skew > maxClockSkew || skew < -maxClockSkew {
		return e.ErrRequestTimeTooSkewed
	}

	if auth.Region != FixedRegion || auth.Service != FixedService {
		return e.ErrSignatureDoesNotMatch
	}

	headers := requestHeaders{r}
	hasHost, hasDate := false, false
	for _, name := range auth.SignedHeaders {
		switch name {
		case "host":
			hasHost = true
		case "x-amz-date":
			hasDate = true
		}
		values := headers.Values(name)
		if len(values) == 0 || values[0] == "" {
			return e.ErrInvalidRequest.Wrap(fmt.Errorf("signed header %q absent from request", name))
		}
	}
	if !hasHost || !hasDate {
		return e.ErrInvalidRequest.Wrap(fmt.Errorf("authorization must sign host and x-amz-date"))
	}

	payloadHash := r.Header.Get("x-amz-content-sha256")
	if payloadHash == "" {
		return e.ErrInvalidRequest.Wrap(fmt.Errorf("missing x-amz-content-sha256 header"))
	}

	canonicalURI := CanonicalURI(r.URL.EscapedPath())
	canonicalQuery := CanonicalQueryString(r.URL.RawQuery)
	canonicalHeaders, signedHeadersJoined := CanonicalHeaders(headers, auth.SignedHeaders)

	canonicalRequest := CanonicalRequest(r.Method, canonicalURI, canonicalQuery, canonicalHeaders, signedHeadersJoined, payloadHash)
	scope := Scope(auth.Date, auth.Region, auth.Service)
	stringToSign := StringToSign(amzDateHeader, scope, HashCanonicalRequest(canonicalRequest))

	signingKey := DeriveSigningKey(secretAccessKey, auth.Date, auth.Region, auth.Service)
	expected := Signature(signingKey, stringToSign)

	if subtle.ConstantTimeCompare([]byte(expected), []byte(auth.Signature)) != 1 {
		return e.ErrSignatureDoesNotMatch
	}
	return nil
}
