// Package backend defines the uniform {head, get, list} capability contract
// implemented by the S3 and Azure Blob backends.
package backend

import (
	"context"

	"github.com/terrycain/s3-read-proxy/pkg/s"
)

// MinMaxKeys, MaxMaxKeys and DefaultMaxKeys bound a listing page size.
const (
	MinMaxKeys     = 1
	MaxMaxKeys     = 1000
	DefaultMaxKeys = 1000
)

//go:generate mockgen -source=backend.go -destination=mock_backend/mock_backend.go -package=mock_backend

// Backend is the capability set a repository's resolved binding is dispatched
// against. Implementations never mutate backend state; every method is a
// read.
type Backend interface {
	// Head returns the descriptor for key, or a classified *e.Error
	// (NoSuchKey, AccessDenied, ServiceUnavailable, ...) if it cannot.
	Head(ctx context.Context, key string) (s.ObjectDescriptor, error)

	// Get streams key, honoring rng. The returned ObjectBody's Body must be
	// closed by the caller.
	Get(ctx context.Context, key string, rng s.RangeSpec) (s.ObjectBody, error)

	// List returns one page of a delimited listing under prefix.
	List(ctx context.Context, prefix, delimiter, continuationToken string, maxKeys int) (s.ListPage, error)
}

// ClampMaxKeys applies the §4.5 clamping rule: 0 means "use the default",
// anything above the ceiling is clamped down to it.
func ClampMaxKeys(maxKeys int) int {
	if maxKeys <= 0 {
		return DefaultMaxKeys
	}
	if maxKeys > MaxMaxKeys {
		return MaxMaxKeys
	}
	return maxKeys
}

// JoinPrefix joins a base prefix (already normalized, no leading/trailing
// slash) with a user-supplied key using exactly one '/' separator.
func JoinPrefix(basePrefix, key string) string {
	if basePrefix == "" {
		return key
	}
	return basePrefix + "/" + key
}

// StripPrefix removes basePrefix (and the single separating '/') from key, so
// clients see keys relative to the virtual bucket root. It is a no-op if key
// does not actually carry the prefix.
func StripPrefix(basePrefix, key string) string {
	if basePrefix == "" {
		return key
	}
	withSlash := basePrefix + "/"
	if len(key) > len(withSlash) && key[:len(withSlash)] == withSlash {
		return key[len(withSlash):]
	}
	if key == basePrefix {
		return ""
	}
	return key
}
