// Package repository resolves {account_id, repository_id} to the
// BackendBinding describing which backend serves that repository.
package repository

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/terrycain/s3-read-proxy/pkg/e"
	"github.com/terrycain/s3-read-proxy/pkg/metrics"
	"github.com/terrycain/s3-read-proxy/pkg/rescache"
	"github.com/terrycain/s3-read-proxy/pkg/s"
	"github.com/terrycain/s3-read-proxy/pkg/sourceapi"
)

// DefaultTTL and DefaultCapacity are the repository resolution cache's knobs.
// The longer TTL relative to identity resolution reflects that backend
// bindings change far less often than credentials.
const (
	DefaultTTL      = 300 * time.Second
	DefaultCapacity = 10000
)

type backendBindingResponse struct {
	Kind string `json:"kind"` // "s3" or "azure"
	S3   *struct {
		Region      string `json:"region"`
		Bucket      string `json:"bucket"`
		KeyPrefix   string `json:"key_prefix"`
		AccessKey   string `json:"access_key"`
		SecretKey   string `json:"secret_key"`
		EndpointURL string `json:"endpoint_url"`
	} `json:"s3"`
	Azure *struct {
		AccountName     string `json:"account_name"`
		Container       string `json:"container"`
		BlobPrefix      string `json:"blob_prefix"`
		SASOrAccountKey string `json:"sas_or_account_key"`
	} `json:"azure"`
}

// Resolver implements resolve_repository(account_id, repository_id).
type Resolver struct {
	client *sourceapi.Client
	cache  *rescache.Cache[s.BackendBinding]
}

// New builds a Resolver backed by client, with its own resolution cache.
func New(client *sourceapi.Client) *Resolver {
	return &Resolver{
		client: client,
		cache:  rescache.NewNamed[s.BackendBinding]("repository", DefaultCapacity, DefaultTTL),
	}
}

func cacheKey(accountID, repositoryID string) string {
	return accountID + "/" + repositoryID
}

// Resolve returns the BackendBinding for {accountID, repositoryID}.
func (r *Resolver) Resolve(ctx context.Context, accountID, repositoryID string) (s.BackendBinding, error) {
	key := cacheKey(accountID, repositoryID)
	return r.cache.Get(ctx, key, func(ctx context.Context) (s.BackendBinding, error) {
		return r.fetch(ctx, accountID, repositoryID)
	})
}

func (r *Resolver) fetch(ctx context.Context, accountID, repositoryID string) (s.BackendBinding, error) {
	start := time.Now()
	defer func() { metrics.ObserveResolverLatency("repository", time.Since(start)) }()

	path := fmt.Sprintf("/v1/repositories/%s/%s", url.PathEscape(accountID), url.PathEscape(repositoryID))

	var resp backendBindingResponse
	found, err := r.client.GetJSON(ctx, path, &resp)
	if err != nil {
		return s.BackendBinding{}, e.ErrServiceUnavailable.Wrap(err)
	}
	if !found {
		return s.BackendBinding{}, e.ErrNoSuchBucket
	}

	binding := s.BackendBinding{AccountID: accountID, RepositoryID: repositoryID}

	switch resp.Kind {
	case "s3":
		if resp.S3 == nil || resp.S3.Bucket == "" || resp.S3.Region == "" {
			return s.BackendBinding{}, e.ErrInternalError.Wrap(fmt.Errorf("repository binding missing required S3 fields"))
		}
		binding.Kind = s.BackendKindS3
		binding.S3 = s.S3Coordinates{
			Region:          resp.S3.Region,
			Bucket:          resp.S3.Bucket,
			BasePrefix:      normalizePrefix(resp.S3.KeyPrefix),
			AccessKeyID:     resp.S3.AccessKey,
			SecretAccessKey: resp.S3.SecretKey,
			Endpoint:        resp.S3.EndpointURL,
		}
	case "azure":
		if resp.Azure == nil || resp.Azure.AccountName == "" || resp.Azure.Container == "" {
			return s.BackendBinding{}, e.ErrInternalError.Wrap(fmt.Errorf("repository binding missing required Azure fields"))
		}
		binding.Kind = s.BackendKindAzure
		binding.Azure = s.AzureCoordinates{
			AccountName:    resp.Azure.AccountName,
			Container:      resp.Azure.Container,
			BasePrefix:     normalizePrefix(resp.Azure.BlobPrefix),
			SharedKeyOrSAS: resp.Azure.SASOrAccountKey,
		}
	default:
		return s.BackendBinding{}, e.ErrInternalError.Wrap(fmt.Errorf("unknown backend kind %q", resp.Kind))
	}

	return binding, nil
}

// normalizePrefix strips leading and trailing slashes, so joining with a
// user key always uses exactly one '/' separator.
func normalizePrefix(prefix string) string {
	return strings.Trim(prefix, "/")
}
