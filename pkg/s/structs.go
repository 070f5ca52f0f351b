// Package s holds the domain structs shared across the resolver, cache and
// backend packages.
package s

import "time"

// RepositoryRef names one repository within the virtual namespace.
type RepositoryRef struct {
	AccountID    string
	RepositoryID string
}

// CredentialRecord is what the identity resolver returns for an access key id.
type CredentialRecord struct {
	AccessKeyID           string
	SecretAccessKey       string
	PrincipalID           string
	PermittedRepositories map[RepositoryRef]struct{}
}

// Permits reports whether the credential record grants read access to ref.
func (c CredentialRecord) Permits(ref RepositoryRef) bool {
	_, ok := c.PermittedRepositories[ref]
	return ok
}

// BackendKind tags which concrete backend a BackendBinding points at.
type BackendKind int

const (
	BackendKindS3 BackendKind = iota
	BackendKindAzure
)

// S3Coordinates locates a repository's objects inside an S3 bucket.
type S3Coordinates struct {
	Region          string
	Bucket          string
	BasePrefix      string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // non-empty for S3-compatible endpoints other than AWS
}

// AzureCoordinates locates a repository's objects inside an Azure Blob container.
type AzureCoordinates struct {
	AccountName string
	Container   string
	BasePrefix  string
	// SharedKeyOrSAS is the account's shared key, or (if it contains "sig=")
	// a SAS token query string; either way it may be absent for a public
	// container, matching the "keys may be absent -> anonymous" invariant.
	SharedKeyOrSAS string
}

// BackendBinding is the resolved routing decision for one repository: which
// backend to talk to, and under which prefix its objects live.
type BackendBinding struct {
	AccountID    string
	RepositoryID string
	Kind         BackendKind
	S3           S3Coordinates
	Azure        AzureCoordinates
}

// RangeKind tags which shape of byte range a client asked for.
type RangeKind int

const (
	RangeNone RangeKind = iota
	RangeSuffix
	RangeFromOffset
	RangeClosed
)

// RangeSpec is a parsed `Range: bytes=...` header, not yet clamped to an
// object's actual size.
type RangeSpec struct {
	Kind   RangeKind
	Start  int64 // valid for FromOffset, Closed
	End    int64 // valid for Closed
	Suffix int64 // valid for Suffix
}

// ResolvedRange is a RangeSpec clamped against a known object size, ready to
// be handed to a backend's Get call and rendered into a Content-Range header.
type ResolvedRange struct {
	Start int64
	End   int64 // inclusive
	Total int64
}

// ObjectDescriptor is the metadata a backend returns for Head/Get, independent
// of whether the caller asked for a range.
type ObjectDescriptor struct {
	Key             string
	ContentType     string
	ContentEncoding string
	ContentLength   int64
	ETag            string
	LastModified    time.Time
	StorageClass    string
	UserMetadata    map[string]string
}

// ObjectBody pairs an ObjectDescriptor with the byte stream satisfying a Get,
// and whether the response represents a partial (206) read.
type ObjectBody struct {
	ObjectDescriptor
	Partial bool
	Range   ResolvedRange
	Body    ReadCloser
}

// ReadCloser avoids importing io solely for a one-line alias in call sites
// that only need to know this is a stream they must Close.
type ReadCloser = interface {
	Read(p []byte) (n int, err error)
	Close() error
}

// ListEntry is a single object returned by a listing call.
type ListEntry struct {
	Key          string
	LastModified time.Time
	ETag         string
	Size         int64
	StorageClass string
}

// CommonPrefix is a synthetic "directory" returned by a delimited listing.
type CommonPrefix struct {
	Prefix string
}

// ListPage is one page of a ListObjectsV2-shaped listing.
type ListPage struct {
	Name                  string
	Prefix                string
	Delimiter             string
	KeyCount              int
	MaxKeys               int
	IsTruncated           bool
	Contents              []ListEntry
	CommonPrefixes        []CommonPrefix
	ContinuationToken     string
	NextContinuationToken string
}
