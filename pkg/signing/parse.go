package signing

import (
	"regexp"
	"strings"
)

// authorizationPattern matches the AWS4-HMAC-SHA256 Authorization header
// shape. The access key id group allows an empty match (unlike the other
// scope segments) so a request signed with an empty access key id — §8's
// "empty access key id -> 403 InvalidAccessKeyId before any upstream call"
// boundary case — still parses far enough for the identity resolver to reject
// it with the right error, instead of failing here as a generic malformed header.
var authorizationPattern = regexp.MustCompile(
	`^AWS4-HMAC-SHA256\s+Credential=([^/]*)/(\d{8})/([^/]+)/([^/]+)/aws4_request,\s*SignedHeaders=([^,]+),\s*Signature=([a-f0-9]+)$`,
)

// ParsedAuthorization is the decomposed Authorization header of an inbound request.
type ParsedAuthorization struct {
	AccessKeyID   string
	Date          string // yyyymmdd
	Region        string
	Service       string
	SignedHeaders []string
	Signature     string
}

// ParseAuthorizationHeader parses the SigV4 Authorization header value. It
// returns false if the header does not match the expected shape at all.
func ParseAuthorizationHeader(header string) (*ParsedAuthorization, bool) {
	m := authorizationPattern.FindStringSubmatch(strings.TrimSpace(header))
	if m == nil {
		return nil, false
	}
	return &ParsedAuthorization{
		AccessKeyID:   m[1],
		Date:          m[2],
		Region:        m[3],
		Service:       m[4],
		SignedHeaders: strings.Split(m[5], ";"),
		Signature:     m[6],
	}, true
}
