// Package s3backend implements the backend.Backend contract against an S3
// bucket, reusing the aws-sdk-go v1 session/client the object-store client
// this was adapted from already depended on.
package s3backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/terrycain/s3-read-proxy/pkg/backend"
	"github.com/terrycain/s3-read-proxy/pkg/e"
	"github.com/terrycain/s3-read-proxy/pkg/s"
)

// Backend streams HEAD/GET/LIST against one S3 bucket + prefix.
type Backend struct {
	client     *s3.S3
	bucket     string
	basePrefix string
}

// New builds a Backend for binding. An empty AccessKeyID makes requests
// anonymous (unsigned), matching how the S3 coordinates' key fields
// "may be absent → anonymous" per the BackendBinding contract.
func New(binding s.S3Coordinates) (*Backend, error) {
	cfg := aws.Config{Region: aws.String(binding.Region)}
	if binding.Endpoint != "" {
		cfg.Endpoint = aws.String(binding.Endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if binding.AccessKeyID != "" {
		cfg.Credentials = credentials.NewStaticCredentials(binding.AccessKeyID, binding.SecretAccessKey, "")
	} else {
		cfg.Credentials = credentials.AnonymousCredentials
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("creating S3 session: %w", err)
	}

	return &Backend{
		client:     s3.New(sess),
		bucket:     binding.Bucket,
		basePrefix: binding.BasePrefix,
	}, nil
}

func (b *Backend) objectKey(key string) string {
	return backend.JoinPrefix(b.basePrefix, key)
}

// Head implements backend.Backend.
func (b *Backend) Head(ctx context.Context, key string) (s.ObjectDescriptor, error) {
	out, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		return s.ObjectDescriptor{}, mapError(err, true)
	}
	return descriptorFromHead(key, out), nil
}

// Get implements backend.Backend.
func (b *Backend) Get(ctx context.Context, key string, rng s.RangeSpec) (s.ObjectBody, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	}

	// A HEAD first is needed to learn the object's size so a Suffix/FromOffset
	// range can be resolved against it before asking S3 for exact bytes.
	head, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{Bucket: input.Bucket, Key: input.Key})
	if err != nil {
		return s.ObjectBody{}, mapError(err, true)
	}
	size := aws.Int64Value(head.ContentLength)

	resolved, err := backend.ResolveRange(rng, size)
	if err != nil {
		return s.ObjectBody{}, err
	}
	if backend.IsRanged(rng) {
		input.Range = aws.String(backend.ToHTTPRangeHeader(resolved))
	}

	out, err := b.client.GetObjectWithContext(ctx, input)
	if err != nil {
		return s.ObjectBody{}, mapError(err, true)
	}

	return s.ObjectBody{
		ObjectDescriptor: descriptorFromGet(key, out),
		Partial:          backend.IsRanged(rng),
		Range:            resolved,
		Body:             out.Body,
	}, nil
}

// List implements backend.Backend.
func (b *Backend) List(ctx context.Context, prefix, delimiter, continuationToken string, maxKeys int) (s.ListPage, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucket),
		Prefix:  aws.String(backend.JoinPrefix(b.basePrefix, prefix)),
		MaxKeys: aws.Int64(int64(backend.ClampMaxKeys(maxKeys))),
	}
	if delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}
	if continuationToken != "" {
		input.ContinuationToken = aws.String(continuationToken)
	}

	out, err := b.client.ListObjectsV2WithContext(ctx, input)
	if err != nil {
		return s.ListPage{}, mapError(err, false)
	}

	page := s.ListPage{
		Prefix:      prefix,
		Delimiter:   delimiter,
		KeyCount:    int(aws.Int64Value(out.KeyCount)),
		MaxKeys:     int(aws.Int64Value(out.MaxKeys)),
		IsTruncated: aws.BoolValue(out.IsTruncated),
	}
	if out.NextContinuationToken != nil {
		page.NextContinuationToken = aws.StringValue(out.NextContinuationToken)
	}
	for _, obj := range out.Contents {
		page.Contents = append(page.Contents, s.ListEntry{
			Key:          backend.StripPrefix(b.basePrefix, aws.StringValue(obj.Key)),
			LastModified: aws.TimeValue(obj.LastModified),
			ETag:         strings.Trim(aws.StringValue(obj.ETag), `"`),
			Size:         aws.Int64Value(obj.Size),
			StorageClass: aws.StringValue(obj.StorageClass),
		})
	}
	for _, cp := range out.CommonPrefixes {
		page.CommonPrefixes = append(page.CommonPrefixes, s.CommonPrefix{
			Prefix: backend.StripPrefix(b.basePrefix, aws.StringValue(cp.Prefix)),
		})
	}

	return page, nil
}

func descriptorFromHead(key string, out *s3.HeadObjectOutput) s.ObjectDescriptor {
	return s.ObjectDescriptor{
		Key:             key,
		ContentType:     aws.StringValue(out.ContentType),
		ContentEncoding: aws.StringValue(out.ContentEncoding),
		ContentLength:   aws.Int64Value(out.ContentLength),
		ETag:            strings.Trim(aws.StringValue(out.ETag), `"`),
		LastModified:    aws.TimeValue(out.LastModified),
		StorageClass:    aws.StringValue(out.StorageClass),
		UserMetadata:    lowerKeys(out.Metadata),
	}
}

func descriptorFromGet(key string, out *s3.GetObjectOutput) s.ObjectDescriptor {
	return s.ObjectDescriptor{
		Key:             key,
		ContentType:     aws.StringValue(out.ContentType),
		ContentEncoding: aws.StringValue(out.ContentEncoding),
		ContentLength:   aws.Int64Value(out.ContentLength),
		ETag:            strings.Trim(aws.StringValue(out.ETag), `"`),
		LastModified:    aws.TimeValue(out.LastModified),
		StorageClass:    aws.StringValue(out.StorageClass),
		UserMetadata:    lowerKeys(out.Metadata),
	}
}

// lowerKeys normalizes the SDK's user metadata map (which S3 returns with
// the first letter capitalized, e.g. "Sha256") to the lowercase keys the
// pipeline renders as x-amz-meta-* headers.
func lowerKeys(md map[string]*string) map[string]string {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[strings.ToLower(k)] = aws.StringValue(v)
	}
	return out
}

// mapError classifies an aws-sdk-go error. forReadPath is true for HEAD/GET,
// where an unrecognized SDK error is treated as NoSuchKey rather than
// InternalError to avoid masking missing objects as 500s.
func mapError(err error, forReadPath bool) error {
	aerr, ok := err.(awserr.Error)
	if !ok {
		if forReadPath {
			return e.ErrNoSuchKey.Wrap(err)
		}
		return e.ErrServiceUnavailable.Wrap(err)
	}

	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return e.ErrNoSuchKey.Wrap(aerr)
	case s3.ErrCodeNoSuchBucket:
		return e.ErrNoSuchBucket.Wrap(aerr)
	}

	if reqErr, ok := err.(awserr.RequestFailure); ok {
		switch reqErr.StatusCode() {
		case 403:
			return e.ErrAccessDenied.Wrap(aerr)
		case 404:
			return e.ErrNoSuchKey.Wrap(aerr)
		case 416:
			return e.ErrInvalidRange.Wrap(aerr)
		}
	}

	if forReadPath {
		return e.ErrNoSuchKey.Wrap(aerr)
	}
	return e.ErrServiceUnavailable.Wrap(aerr)
}
