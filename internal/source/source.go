// Package source opens campaign inputs (recipient lists, templates and
// attachments) from the local filesystem or from S3.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// s3Scheme prefixes locations that live in an S3 bucket.
const s3Scheme = "s3://"

var (
	// ErrNotFound indicates the location does not exist.
	ErrNotFound = errors.New("source not found")

	// ErrNoS3Client indicates an s3:// location was requested without an S3 client.
	ErrNoS3Client = errors.New("s3 location requested but no S3 client is configured")
)

// Opener opens a named input for reading.
type Opener interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// GetObjectAPI is the subset of the S3 client used by Resolver.
// Used for testing with mock implementations.
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Resolver opens local paths directly and s3://bucket/key locations
// through an S3 client.
type Resolver struct {
	s3 GetObjectAPI
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithS3 enables s3:// locations.
func WithS3(client GetObjectAPI) Option {
	return func(r *Resolver) {
		r.s3 = client
	}
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// S3Config holds the settings needed to build an S3 client.
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Client builds an S3 client from the default AWS credential chain,
// or from static credentials when both keys are set.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg), nil
}

// Open opens the location for reading. Missing inputs are reported
// as ErrNotFound regardless of backend.
func (r *Resolver) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if bucket, key, ok := ParseS3(location); ok {
		return r.openS3(ctx, bucket, key)
	}

	f, err := os.Open(location)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}
		return nil, fmt.Errorf("failed to open %s: %w", location, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", location, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, location)
	}

	return f, nil
}

func (r *Resolver) openS3(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if r.s3 == nil {
		return nil, ErrNoS3Client
	}

	out, err := r.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, bucket, key)
		}
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}

	return out.Body, nil
}

// isS3NotFound reports whether an S3 API error means the object or bucket is absent.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return false
}

// ParseS3 splits an s3://bucket/key location.
func ParseS3(location string) (bucket, key string, ok bool) {
	if !strings.HasPrefix(location, s3Scheme) {
		return "", "", false
	}
	rest := strings.TrimPrefix(location, s3Scheme)
	bucket, key, found := strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// IsS3 reports whether the location refers to S3.
func IsS3(location string) bool {
	return strings.HasPrefix(location, s3Scheme)
}

// Base returns the last element of the location, used as a display file name.
func Base(location string) string {
	if _, key, ok := ParseS3(location); ok {
		return path.Base(key)
	}
	return filepath.Base(location)
}

// ReadAll opens the location and reads it fully.
func ReadAll(ctx context.Context, o Opener, location string) ([]byte, error) {
	rc, err := o.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", location, err)
	}
	return data, nil
}
