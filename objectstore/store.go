package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	// ErrNotFound is returned by backends that can read back a missing key.
	ErrNotFound = errors.New("object not found")

	// ErrSizeMismatch is returned when a body is not the declared size.
	ErrSizeMismatch = errors.New("object body does not match declared size")

	// ErrBucketRequired is returned when a remote backend has no bucket.
	ErrBucketRequired = errors.New("bucket required")
)

// Store durably stores an object under a caller-chosen key. A successful Put
// means the object is stored.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64) error
	Close() error
}

// PutBytes stores data under key.
func PutBytes(ctx context.Context, s Store, key string, data []byte) error {
	return s.Put(ctx, key, bytes.NewReader(data), int64(len(data)))
}

// PutFile streams the file at path to key and returns the bytes stored.
func PutFile(ctx context.Context, s Store, key, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if err := s.Put(ctx, key, f, info.Size()); err != nil {
		return 0, fmt.Errorf("put %s: %w", key, err)
	}
	return info.Size(), nil
}
