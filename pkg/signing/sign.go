package signing

import (
	"fmt"
	"net/http"
)

// Sign computes a SigV4 Authorization header value for r, signing exactly the
// headers named in signedHeaders. It exists for tests exercising the
// canonicalization round-trip law; outbound calls to S3 and Azure are signed
// by their own SDKs.
func Sign(r *http.Request, accessKeyID, secretAccessKey, amzDate, region, service string, signedHeaders []string, payloadHash string) string {
	date := amzDate[:8]
	headers := requestHeaders{r}
	canonicalURI := CanonicalURI(r.URL.EscapedPath())
	canonicalQuery := CanonicalQueryString(r.URL.RawQuery)
	canonicalHeaders, signedHeadersJoined := CanonicalHeaders(headers, signedHeaders)

	canonicalRequest := CanonicalRequest(r.Method, canonicalURI, canonicalQuery, canonicalHeaders, signedHeadersJoined, payloadHash)
	scope := Scope(date, region, service)
	stringToSign := StringToSign(amzDate, scope, HashCanonicalRequest(canonicalRequest))

	signingKey := DeriveSigningKey(secretAccessKey, date, region, service)
	signature := Signature(signingKey, stringToSign)

	return fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		accessKeyID, scope, signedHeadersJoined, signature,
	)
}
