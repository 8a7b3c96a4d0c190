// Package s3 stores objects in an Amazon S3 bucket, or any endpoint that
// speaks the S3 API, through aws-sdk-go-v2.
package s3

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/poiesic/archivist/objectstore"
)

// DefaultRegion is used when Config.Region is empty.
const DefaultRegion = "eu-west-1"

// Config selects the bucket and how to reach it.
type Config struct {
	Bucket string
	Region string
	// Profile names a shared config profile; empty uses the default chain.
	Profile string
	// Endpoint overrides the S3 endpoint and switches to path-style
	// addressing.
	Endpoint string
	// AccessKey and SecretKey, when both set, replace the default
	// credential chain.
	AccessKey string
	SecretKey string
	// SSEAlgorithm requests server-side encryption, e.g. "AES256" or "aws:kms".
	SSEAlgorithm string
}

// Store is an objectstore.Store backed by S3.
type Store struct {
	client *s3.Client
	bucket string
	sse    types.ServerSideEncryption
	logger *slog.Logger
}

var _ objectstore.Store = (*Store)(nil)

// New loads AWS configuration for cfg and returns a Store.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, objectstore.ErrBucketRequired
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if logger == nil {
		logger = slog.Default()
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
			// Many S3-compatible servers reject the newer default checksums.
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}
	})

	logger.Debug("s3 store ready", "bucket", cfg.Bucket, "region", cfg.Region, "endpoint", cfg.Endpoint)
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		sse:    types.ServerSideEncryption(cfg.SSEAlgorithm),
		logger: logger,
	}, nil
}

// Put uploads body to key in a single PutObject call.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	}
	if s.sse != "" {
		input.ServerSideEncryption = s.sse
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	s.logger.Debug("S3 put object", "key", key, "size", size)
	return nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *Store) Close() error {
	return nil
}
