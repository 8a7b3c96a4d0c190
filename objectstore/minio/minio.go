// Package minio stores objects on MinIO or another S3-compatible server
// through minio-go.
package minio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/poiesic/archivist/objectstore"
)

// Config selects the server, credentials and bucket.
type Config struct {
	// Endpoint is a URL ("https://minio:9000") or a bare host:port.
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Store is an objectstore.Store on a MinIO server.
type Store struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

var _ objectstore.Store = (*Store)(nil)

// New creates a Store. It does not contact the server.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint required")
	}
	if cfg.Bucket == "" {
		return nil, objectstore.ErrBucketRequired
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio credentials required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	endpoint, useSSL := cfg.Endpoint, cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Store{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// Put uploads size bytes from body to key.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	info, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	if info.Size != size {
		return fmt.Errorf("%w: %s stored %d of %d bytes", objectstore.ErrSizeMismatch, key, info.Size, size)
	}
	s.logger.Debug("minio put object", "key", key, "size", size)
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
