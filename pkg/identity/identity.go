// Package identity resolves an access key id to a credential record, caching
// successful lookups and coalescing concurrent ones.
package identity

import (
	"context"
	"net/url"
	"time"

	"github.com/terrycain/s3-read-proxy/pkg/e"
	"github.com/terrycain/s3-read-proxy/pkg/metrics"
	"github.com/terrycain/s3-read-proxy/pkg/rescache"
	"github.com/terrycain/s3-read-proxy/pkg/s"
	"github.com/terrycain/s3-read-proxy/pkg/sourceapi"
)

// DefaultTTL and DefaultCapacity are the identity resolution cache's knobs,
// deliberately split from the single uniform TTL the metadata client this
// was distilled from used for every cache.
const (
	DefaultTTL      = 60 * time.Second
	DefaultCapacity = 10000
)

type credentialResponse struct {
	AccessKeyID           string `json:"access_key_id"`
	SecretAccessKey       string `json:"secret_access_key"`
	PrincipalID           string `json:"principal_id"`
	PermittedRepositories []struct {
		AccountID    string `json:"account_id"`
		RepositoryID string `json:"repository_id"`
	} `json:"permitted_repositories"`
}

// Resolver implements resolve_identity(access_key_id).
type Resolver struct {
	client *sourceapi.Client
	cache  *rescache.Cache[s.CredentialRecord]
}

// New builds a Resolver backed by client, with its own resolution cache.
func New(client *sourceapi.Client) *Resolver {
	return &Resolver{
		client: client,
		cache:  rescache.NewNamed[s.CredentialRecord]("identity", DefaultCapacity, DefaultTTL),
	}
}

// Resolve returns the credential record for accessKeyID. An empty
// accessKeyID is rejected immediately with InvalidAccessKeyId, without
// calling upstream or touching the cache — deliberately, since the upstream
// service this was distilled from instead caches an empty-credential
// sentinel for this case, which would let an empty key "succeed" against a
// stale cache entry.
func (r *Resolver) Resolve(ctx context.Context, accessKeyID string) (s.CredentialRecord, error) {
	if accessKeyID == "" {
		return s.CredentialRecord{}, e.ErrInvalidAccessKeyID
	}

	return r.cache.Get(ctx, accessKeyID, func(ctx context.Context) (s.CredentialRecord, error) {
		return r.fetch(ctx, accessKeyID)
	})
}

func (r *Resolver) fetch(ctx context.Context, accessKeyID string) (s.CredentialRecord, error) {
	start := time.Now()
	defer func() { metrics.ObserveResolverLatency("identity", time.Since(start)) }()

	var resp credentialResponse
	found, err := r.client.GetJSON(ctx, "/v1/credentials/"+url.PathEscape(accessKeyID), &resp)
	if err != nil {
		return s.CredentialRecord{}, e.ErrServiceUnavailable.Wrap(err)
	}
	if !found {
		return s.CredentialRecord{}, e.ErrInvalidAccessKeyID
	}

	permitted := make(map[s.RepositoryRef]struct{}, len(resp.PermittedRepositories))
	for _, p := range resp.PermittedRepositories {
		permitted[s.RepositoryRef{AccountID: p.AccountID, RepositoryID: p.RepositoryID}] = struct{}{}
	}

	return s.CredentialRecord{
		AccessKeyID:           resp.AccessKeyID,
		SecretAccessKey:       resp.SecretAccessKey,
		PrincipalID:           resp.PrincipalID,
		PermittedRepositories: permitted,
	}, nil
}
