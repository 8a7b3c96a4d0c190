package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/archivist/objectstore"
)

const objectPrefix = "obj:"

// Store is an objectstore.Store kept in BadgerDB.
type Store struct {
	backend *Backend
	now     func() time.Time
}

var _ objectstore.Store = (*Store)(nil)

// Open opens a store in dir.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	backend, err := OpenBackend(dir, false, logger)
	if err != nil {
		return nil, err
	}
	return &Store{backend: backend, now: time.Now}, nil
}

// OpenMemory opens a store that lives only in memory.
func OpenMemory(logger *slog.Logger) (*Store, error) {
	backend, err := OpenBackend("", true, logger)
	if err != nil {
		return nil, err
	}
	return &Store{backend: backend, now: time.Now}, nil
}

func objectKey(key string) []byte {
	return []byte(objectPrefix + key)
}

// Digest returns the blake2b-256 digest stored alongside a payload.
func Digest(payload []byte) []byte {
	h, _ := blake2b.New(32, nil)
	h.Write(payload)
	return h.Sum(nil)
}

// Put reads exactly size bytes from body and stores them under key,
// replacing any existing object.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if size < 0 {
		return fmt.Errorf("%w: negative size %d", objectstore.ErrSizeMismatch, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(body, payload); err != nil {
		return fmt.Errorf("%w: %v", objectstore.ErrSizeMismatch, err)
	}

	obj := &Object{
		Key:      key,
		Size:     size,
		Digest:   Digest(payload),
		StoredAt: s.now().UTC(),
		Payload:  payload,
	}
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return tx.Set(objectKey(key), marshalObject(obj))
	}, true)
	if err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	s.backend.logger.Debug("stored object", "key", key, "size", size)
	return nil
}

// Get returns the object stored under key after checking its digest.
func (s *Store) Get(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var obj *Object
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(objectKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return objectstore.ErrNotFound
		}
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		obj, err = unmarshalObject(data)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(obj.Digest, Digest(obj.Payload)) {
		return nil, fmt.Errorf("object %s is corrupt: digest mismatch", key)
	}
	return obj, nil
}

// Keys returns every stored key with the given prefix, in key order.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = objectKey(prefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, string(iter.Item().Key()[len(objectPrefix):]))
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.backend.Close()
}
