// Package s3 implements blobstore.Store on top of an S3 compatible bucket.
package s3

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"

	"github.com/yurykabanov/sweeper/pkg/blobstore"
)

// S3 accepts at most this many keys per DeleteObjects call.
const maxDeleteBatch = 1000

type Config struct {
	Bucket string

	// Region defaults to us-east-1.
	Region string

	// Endpoint overrides the AWS endpoint, e.g. "http://localhost:9000" for MinIO.
	Endpoint string

	// Static credentials; the default credential chain is used when empty.
	AccessKeyID     string
	SecretAccessKey string

	UsePathStyle bool

	// Prefix is prepended to every blob key.
	Prefix string
}

type client interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

type Store struct {
	client client
	bucket string
	prefix string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket name is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "s3: unable to load AWS config")
	}

	c := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
		o.DisableLogOutputChecksumValidationSkipped = true
	})

	return newWithClient(c, cfg.Bucket, cfg.Prefix), nil
}

func newWithClient(c client, bucket, prefix string) *Store {
	return &Store{
		client: c,
		bucket: bucket,
		prefix: prefix,
	}
}

func (s *Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *Store) DeleteObjects(ctx context.Context, keys []string) (blobstore.DeleteResult, error) {
	var result blobstore.DeleteResult

	sizes := make(map[string]int64, len(keys))
	var existing []string

	// Sizes have to be captured before deletion, S3 doesn't report them afterwards.
	for _, key := range keys {
		out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.objectKey(key)),
		})
		if err != nil {
			wrapped := s.wrapError(ctx, "Head", key, err)

			switch {
			case errors.Is(wrapped, blobstore.ErrNotFound):
				result.Deleted = append(result.Deleted, key)
			case errors.Is(wrapped, blobstore.ErrUnavailable):
				return result, wrapped
			default:
				result.Errors = append(result.Errors, wrapped)
			}

			continue
		}

		sizes[key] = aws.ToInt64(out.ContentLength)
		existing = append(existing, key)
	}

	for start := 0; start < len(existing); start += maxDeleteBatch {
		end := start + maxDeleteBatch
		if end > len(existing) {
			end = len(existing)
		}

		if err := s.deleteBatch(ctx, existing[start:end], sizes, &result); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (s *Store) deleteBatch(ctx context.Context, batch []string, sizes map[string]int64, result *blobstore.DeleteResult) error {
	byObjectKey := make(map[string]string, len(batch))
	ids := make([]types.ObjectIdentifier, 0, len(batch))

	for _, key := range batch {
		objectKey := s.objectKey(key)
		byObjectKey[objectKey] = key
		ids = append(ids, types.ObjectIdentifier{Key: aws.String(objectKey)})
	}

	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{
			Objects: ids,
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		wrapped := s.wrapError(ctx, "DeleteObjects", batch[0], err)
		if errors.Is(wrapped, blobstore.ErrUnavailable) {
			return wrapped
		}

		for _, key := range batch {
			result.Errors = append(result.Errors, &blobstore.ObjectError{Op: "Delete", Key: key, Err: err})
		}
		return nil
	}

	failed := make(map[string]bool, len(out.Errors))
	for _, e := range out.Errors {
		key := byObjectKey[aws.ToString(e.Key)]
		failed[key] = true

		result.Errors = append(result.Errors, &blobstore.ObjectError{
			Op:  "Delete",
			Key: key,
			Err: fmt.Errorf("%s: %s", aws.ToString(e.Code), aws.ToString(e.Message)),
		})
	}

	for _, key := range batch {
		if failed[key] {
			continue
		}

		result.Deleted = append(result.Deleted, key)
		result.FreedBytes += sizes[key]
	}

	return nil
}

func (s *Store) wrapError(ctx context.Context, op, key string, err error) error {
	if ctx.Err() != nil {
		return &blobstore.ObjectError{Op: op, Key: key, Err: ctx.Err()}
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return &blobstore.ObjectError{Op: op, Key: key, Err: blobstore.ErrNotFound}
	}

	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return &blobstore.ObjectError{Op: op, Key: key, Err: blobstore.ErrNotFound}
	}

	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return &blobstore.ObjectError{Op: op, Key: key, Err: blobstore.ErrUnavailable}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusNotFound:
			return &blobstore.ObjectError{Op: op, Key: key, Err: blobstore.ErrNotFound}
		case http.StatusForbidden:
			return &blobstore.ObjectError{Op: op, Key: key, Err: blobstore.ErrAccessDenied}
		case http.StatusServiceUnavailable:
			return &blobstore.ObjectError{Op: op, Key: key, Err: blobstore.ErrUnavailable}
		}
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return &blobstore.ObjectError{Op: op, Key: key, Err: blobstore.ErrUnavailable}
	}

	return &blobstore.ObjectError{Op: op, Key: key, Err: err}
}
