// Package azureblob implements the backend.Backend contract against an Azure
// Blob Storage container, reusing the azblob SDK the cache server this was
// adapted from already depended on for block-blob uploads.
package azureblob

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/terrycain/s3-read-proxy/pkg/backend"
	"github.com/terrycain/s3-read-proxy/pkg/e"
	"github.com/terrycain/s3-read-proxy/pkg/s"
)

const metaPrefix = "x-ms-meta-"

// Backend streams HEAD/GET/LIST against one Azure Blob container + prefix.
type Backend struct {
	container  azblob.ContainerClient
	basePrefix string
}

// New builds a Backend for binding. An empty SharedKeyOrSAS falls back to
// anonymous public-container access, matching the "keys may be absent"
// invariant shared with S3Coordinates.
func New(binding s.AzureCoordinates) (*Backend, error) {
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", binding.AccountName)

	var client azblob.ServiceClient
	switch {
	case binding.SharedKeyOrSAS == "":
		anonClient, err := azblob.NewServiceClientWithNoCredential(serviceURL, &azblob.ClientOptions{})
		if err != nil {
			return nil, fmt.Errorf("building anonymous azure service client: %w", err)
		}
		client = anonClient
	case strings.Contains(binding.SharedKeyOrSAS, "sig="):
		sasClient, err := azblob.NewServiceClientWithNoCredential(serviceURL+"?"+binding.SharedKeyOrSAS, &azblob.ClientOptions{})
		if err != nil {
			return nil, fmt.Errorf("building SAS-authenticated azure service client: %w", err)
		}
		client = sasClient
	default:
		creds, err := azblob.NewSharedKeyCredential(binding.AccountName, binding.SharedKeyOrSAS)
		if err != nil {
			return nil, fmt.Errorf("building azure shared key credential: %w", err)
		}
		keyClient, err := azblob.NewServiceClientWithSharedKey(serviceURL, creds, &azblob.ClientOptions{})
		if err != nil {
			return nil, fmt.Errorf("building azure service client: %w", err)
		}
		client = keyClient
	}

	return &Backend{
		container:  client.NewContainerClient(binding.Container),
		basePrefix: binding.BasePrefix,
	}, nil
}

func (b *Backend) blobName(key string) string {
	return backend.JoinPrefix(b.basePrefix, key)
}

// Head implements backend.Backend.
func (b *Backend) Head(ctx context.Context, key string) (s.ObjectDescriptor, error) {
	blobClient := b.container.NewBlobClient(b.blobName(key))
	out, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		return s.ObjectDescriptor{}, mapError(err, true)
	}
	return descriptorFromProperties(key, out.BlobGetPropertiesResponse), nil
}

// Get implements backend.Backend.
func (b *Backend) Get(ctx context.Context, key string, rng s.RangeSpec) (s.ObjectBody, error) {
	blobClient := b.container.NewBlobClient(b.blobName(key))

	// Same two-call shape as the S3 backend: a HEAD is needed to learn size
	// before a Suffix/FromOffset range can be resolved.
	head, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		return s.ObjectBody{}, mapError(err, true)
	}
	size := derefInt64(head.ContentLength)

	resolved, err := backend.ResolveRange(rng, size)
	if err != nil {
		return s.ObjectBody{}, err
	}

	opts := &azblob.DownloadBlobOptions{}
	if backend.IsRanged(rng) {
		offset := resolved.Start
		count := resolved.End - resolved.Start + 1
		opts.Offset = &offset
		opts.Count = &count
	}

	out, err := blobClient.Download(ctx, opts)
	if err != nil {
		return s.ObjectBody{}, mapError(err, true)
	}

	return s.ObjectBody{
		ObjectDescriptor: descriptorFromDownload(key, out.BlobDownloadResponse),
		Partial:          backend.IsRanged(rng),
		Range:            resolved,
		Body:             out.Body(nil),
	}, nil
}

// List implements backend.Backend. Azure's hierarchical listing maps
// BlobPrefixes -> CommonPrefixes and BlobItems -> Contents; IsTruncated
// follows from whether a NextMarker is present, per §4.5.2.
func (b *Backend) List(ctx context.Context, prefix, delimiter, continuationToken string, maxKeys int) (s.ListPage, error) {
	maxKeys = backend.ClampMaxKeys(maxKeys)
	fullPrefix := backend.JoinPrefix(b.basePrefix, prefix)

	opts := &azblob.ContainerListBlobHierarchySegmentOptions{
		Prefix:     &fullPrefix,
		Maxresults: int32Ptr(int32(maxKeys)),
	}
	if continuationToken != "" {
		marker := decodeContinuationToken(continuationToken)
		opts.Marker = &marker
	}

	pager := b.container.ListBlobsHierarchy(delimiter, opts)
	if !pager.NextPage(ctx) {
		if err := pager.Err(); err != nil {
			return s.ListPage{}, mapError(err, false)
		}
		return s.ListPage{Prefix: prefix, Delimiter: delimiter, MaxKeys: maxKeys}, nil
	}

	resp := pager.PageResponse()
	page := s.ListPage{
		Prefix:    prefix,
		Delimiter: delimiter,
		MaxKeys:   maxKeys,
	}

	for _, item := range resp.Segment.BlobItems {
		if item == nil {
			continue
		}
		page.Contents = append(page.Contents, s.ListEntry{
			Key:          backend.StripPrefix(b.basePrefix, derefString(item.Name)),
			LastModified: derefTime(item.Properties.LastModified),
			ETag:         trimETag(derefString(item.Properties.Etag)),
			Size:         derefInt64(item.Properties.ContentLength),
			StorageClass: string(derefAccessTier(item.Properties.AccessTier)),
		})
	}
	for _, p := range resp.Segment.BlobPrefixes {
		if p == nil {
			continue
		}
		page.CommonPrefixes = append(page.CommonPrefixes, s.CommonPrefix{
			Prefix: backend.StripPrefix(b.basePrefix, derefString(p.Name)),
		})
	}
	page.KeyCount = len(page.Contents)

	if resp.NextMarker != nil && *resp.NextMarker != "" {
		page.IsTruncated = true
		page.NextContinuationToken = encodeContinuationToken(*resp.NextMarker)
	}

	return page, nil
}

func descriptorFromProperties(key string, out azblob.BlobGetPropertiesResponse) s.ObjectDescriptor {
	return s.ObjectDescriptor{
		Key:             key,
		ContentType:     derefString(out.ContentType),
		ContentEncoding: derefString(out.ContentEncoding),
		ContentLength:   derefInt64(out.ContentLength),
		ETag:            trimETag(derefString(out.ETag)),
		LastModified:    derefTime(out.LastModified),
		UserMetadata:    userMetadata(out.Metadata),
	}
}

func descriptorFromDownload(key string, out azblob.BlobDownloadResponse) s.ObjectDescriptor {
	return s.ObjectDescriptor{
		Key:             key,
		ContentType:     derefString(out.ContentType),
		ContentEncoding: derefString(out.ContentEncoding),
		ContentLength:   derefInt64(out.ContentLength),
		ETag:            trimETag(derefString(out.ETag)),
		LastModified:    derefTime(out.LastModified),
		UserMetadata:    userMetadata(out.Metadata),
	}
}

// userMetadata lowercases azure metadata keys and strips the x-ms-meta-
// prefix a client would otherwise see echoed back verbatim, normalizing to
// the common ObjectDescriptor shape §4.5.2 requires. It is exposed for the
// request pipeline, which surfaces these as x-amz-meta-* response headers.
func userMetadata(md map[string]string) map[string]string {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		key := strings.TrimPrefix(strings.ToLower(k), metaPrefix)
		out[key] = v
	}
	return out
}

// mapError classifies an azblob SDK error. forReadPath is true for HEAD/GET,
// where an unrecognized error is treated as NotFound, matching the S3
// backend's "never mask a missing object as a 500" rule; on List it is
// ServiceUnavailable.
func mapError(err error, forReadPath bool) error {
	var storageErr *azblob.StorageError
	if !asStorageError(err, &storageErr) {
		if forReadPath {
			return e.ErrNoSuchKey.Wrap(err)
		}
		return e.ErrServiceUnavailable.Wrap(err)
	}

	switch storageErr.ErrorCode {
	case azblob.StorageErrorCodeBlobNotFound, azblob.StorageErrorCodeContainerNotFound:
		return e.ErrNoSuchKey.Wrap(storageErr)
	case azblob.StorageErrorCodeInvalidRange:
		return e.ErrInvalidRange.Wrap(storageErr)
	case azblob.StorageErrorCodeAuthenticationFailed, azblob.StorageErrorCodeInsufficientAccountPermissions:
		return e.ErrAccessDenied.Wrap(storageErr)
	}

	if resp := storageErr.Response(); resp != nil {
		switch resp.StatusCode {
		case 403:
			return e.ErrAccessDenied.Wrap(storageErr)
		case 404:
			return e.ErrNoSuchKey.Wrap(storageErr)
		case 416:
			return e.ErrInvalidRange.Wrap(storageErr)
		}
	}

	if forReadPath {
		return e.ErrNoSuchKey.Wrap(storageErr)
	}
	return e.ErrServiceUnavailable.Wrap(storageErr)
}

func asStorageError(err error, target **azblob.StorageError) bool {
	se, ok := err.(*azblob.StorageError)
	if !ok {
		return false
	}
	*target = se
	return true
}

// encodeContinuationToken/decodeContinuationToken re-encode Azure's opaque
// marker so the client only ever sees tokens drawn from the S3 continuation
// token alphabet, per §4.5.2.
func encodeContinuationToken(marker string) string {
	return base64.URLEncoding.EncodeToString([]byte(marker))
}

func decodeContinuationToken(token string) string {
	decoded, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		// A token that didn't come from encodeContinuationToken (e.g. hand
		// crafted by a test) is passed through unmodified.
		return token
	}
	return string(decoded)
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefInt64(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func derefTime(p *time.Time) time.Time {
	if p == nil {
		return time.Time{}
	}
	return *p
}

func derefAccessTier(p *azblob.AccessTier) azblob.AccessTier {
	if p == nil {
		return ""
	}
	return *p
}

func int32Ptr(v int32) *int32 { return &v }

// trimETag strips any surrounding quotes Azure's SDK leaves on, so
// ObjectDescriptor.ETag is always bare hex, matching the S3 backend and
// letting the request pipeline quote it exactly once when rendering headers.
func trimETag(tag string) string {
	return strings.Trim(tag, `"`)
}
