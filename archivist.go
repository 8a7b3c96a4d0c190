// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package archivist

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/poiesic/archivist/catalog"
	"github.com/poiesic/archivist/config"
	"github.com/poiesic/archivist/core"
	"github.com/poiesic/archivist/credentials"
	"github.com/poiesic/archivist/objectstore"
	badgerstore "github.com/poiesic/archivist/objectstore/badger"
	miniostore "github.com/poiesic/archivist/objectstore/minio"
	s3store "github.com/poiesic/archivist/objectstore/s3"
)

// Archivist ties the catalog, the credential store and the object store
// together for the CLI commands.
type Archivist struct {
	cfg        *config.Config
	tokens     *credentials.Store
	store      objectstore.Store
	httpClient *http.Client
	progress   io.Writer
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures an Archivist.
type Option func(*Archivist)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archivist) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithStore uploads to store instead of the one cfg describes. The caller
// keeps ownership and closes it.
func WithStore(store objectstore.Store) Option {
	return func(a *Archivist) {
		a.store = store
	}
}

// WithHTTPClient sets the HTTP client used for catalog calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *Archivist) {
		a.httpClient = hc
	}
}

// WithProgressWriter sets where ingest progress is reported. Default is
// os.Stderr; nil disables progress.
func WithProgressWriter(w io.Writer) Option {
	return func(a *Archivist) {
		a.progress = w
	}
}

// WithClock replaces time.Now, used to name default outcome logs.
func WithClock(now func() time.Time) Option {
	return func(a *Archivist) {
		if now != nil {
			a.now = now
		}
	}
}

// New validates cfg and opens the credential store.
func New(cfg *config.Config, opts ...Option) (*Archivist, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, &core.InputError{Msg: "invalid configuration", Err: err}
	}

	a := &Archivist{
		cfg:      cfg,
		progress: os.Stderr,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	tokens, err := credentials.NewStore(cfg.CredentialsDir)
	if err != nil {
		return nil, err
	}
	a.tokens = tokens
	return a, nil
}

// Config returns the configuration in use.
func (a *Archivist) Config() *config.Config {
	return a.cfg
}

// Catalog returns a client for server, or for the configured server when
// server is empty.
func (a *Archivist) Catalog(server string) (*catalog.Client, error) {
	if server == "" {
		server = a.cfg.Server
	}
	if server == "" {
		return nil, core.NewInputError("no server URI given")
	}
	opts := []catalog.Option{catalog.WithLogger(a.logger)}
	if a.httpClient != nil {
		opts = append(opts, catalog.WithHTTPClient(a.httpClient))
	}
	return catalog.New(server, a.tokens, opts...)
}

// Login stores token for server.
func (a *Archivist) Login(server, token string) error {
	if server == "" {
		server = a.cfg.Server
	}
	if server == "" || token == "" {
		return core.NewInputError("login needs a server URI and a token")
	}
	if err := a.tokens.Set(server, token); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	a.logger.Info("stored token", "server", server, "file", a.tokens.Path(server))
	return nil
}

// CheckHash reports whether the catalog already holds a resource with hash.
func (a *Archivist) CheckHash(ctx context.Context, server, hash string) (bool, error) {
	client, err := a.Catalog(server)
	if err != nil {
		return false, err
	}
	return client.CheckHashExists(ctx, hash)
}

// ListBlobs returns the blobs of collection that match filter.
func (a *Archivist) ListBlobs(ctx context.Context, server, collection string, filter catalog.BlobFilter) ([]core.Blob, error) {
	client, err := a.Catalog(server)
	if err != nil {
		return nil, err
	}
	return client.ListBlobs(ctx, collection, filter)
}

// DeleteCollection deletes collection, first deleting its blobs when
// deleteBlobs is set. It returns the number of blobs deleted.
func (a *Archivist) DeleteCollection(ctx context.Context, server, collection string, deleteBlobs bool) (int, error) {
	if collection == "" {
		return 0, core.NewInputError("no collection given")
	}
	client, err := a.Catalog(server)
	if err != nil {
		return 0, err
	}

	deleted := 0
	if deleteBlobs {
		deleted, err = client.DeleteAllBlobs(ctx, collection)
		if err != nil {
			return deleted, err
		}
		a.logger.Info("deleted blobs", "collection", collection, "count", deleted)
	}
	if err := client.DeleteCollection(ctx, collection); err != nil {
		return deleted, err
	}
	a.logger.Info("deleted collection", "collection", collection)
	return deleted, nil
}

// OpenStore opens the object store cfg describes.
func OpenStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (objectstore.Store, error) {
	switch cfg.Kind {
	case config.StoreS3:
		store, err := s3store.New(ctx, s3store.Config{
			Bucket:       cfg.Bucket,
			Region:       cfg.Region,
			Profile:      cfg.Profile,
			Endpoint:     cfg.Endpoint,
			AccessKey:    cfg.AccessKey,
			SecretKey:    cfg.SecretKey,
			SSEAlgorithm: cfg.SSEAlgorithm,
		}, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreMinio:
		store, err := miniostore.New(miniostore.Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			UseSSL:    cfg.UseSSL,
		}, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreLocal:
		store, err := badgerstore.Open(cfg.LocalDir, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, core.NewInputError("unknown store %q", cfg.Kind)
	}
}
