package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/acreage/leadline/internal/config"
)

// Source opens one roll location. Implementations are registered on the
// ingestor by URL scheme.
type Source interface {
	Scheme() string
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// FileSource reads rolls from local disk. It serves plain paths and
// file:// URLs.
type FileSource struct{}

func (FileSource) Scheme() string { return "file" }

func (FileSource) Open(_ context.Context, location string) (io.ReadCloser, error) {
	f, err := os.Open(strings.TrimPrefix(location, "file://"))
	if err != nil {
		return nil, fmt.Errorf("open roll: %w", err)
	}
	return f, nil
}

// s3API is the slice of the S3 client the source calls.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source streams rolls from s3://bucket/key URLs.
type S3Source struct {
	api s3API
}

// NewS3Source builds an S3 source from the ingest credentials. When no
// static keys are configured the default AWS credential chain applies,
// so instance roles keep working.
func NewS3Source(ctx context.Context, cfg appconfig.IngestConfig) (*S3Source, error) {
	region := cfg.S3Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("ingest: load aws config: %w", err)
	}
	return &S3Source{api: s3.NewFromConfig(awsCfg)}, nil
}

func (s *S3Source) Scheme() string { return "s3" }

func (s *S3Source) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, key, err := splitS3URL(location)
	if err != nil {
		return nil, err
	}
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch roll %s: %w", location, err)
	}
	return out.Body, nil
}

func splitS3URL(location string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 url: %q", location)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed s3 url %q, want s3://bucket/key", location)
	}
	return bucket, key, nil
}
