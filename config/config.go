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

// Package config holds archivist's settings: defaults, an optional TOML
// file, and overrides applied from command-line flags.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/poiesic/archivist/core"
)

// Object store kinds.
const (
	StoreS3    = "s3"
	StoreMinio = "minio"
	StoreLocal = "local"
)

// Config holds everything a command needs besides its own arguments.
type Config struct {
	// Server is the catalog base URI, e.g. "https://giant.example.com".
	Server string `toml:"server"`

	// Format selects tsv or json command output.
	// Default: "tsv"
	Format string `toml:"format"`

	// CredentialsDir overrides the token directory (~/.giant-utils).
	CredentialsDir string `toml:"credentials_dir"`

	Log     LogConfig     `toml:"log"`
	Ingest  IngestConfig  `toml:"ingest"`
	Store   StoreConfig   `toml:"store"`
	Metrics MetricsConfig `toml:"metrics"`
}

// LogConfig configures diagnostic logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: "info"
	Level string `toml:"level"`
	// Format is console or json. Default: "console"
	Format string `toml:"format"`
}

// IngestConfig configures upload runs.
type IngestConfig struct {
	// Concurrency is the number of files uploaded at once. Default: 128
	Concurrency int `toml:"concurrency"`
	// ProgressInterval reports progress every N files. Default: 100
	ProgressInterval int `toml:"progress_interval"`
	// Languages used when none are given on the command line.
	Languages []string `toml:"languages"`
	// LogFormat is the outcome log format, tsv or json. Default: "tsv"
	LogFormat string `toml:"log_format"`
}

// StoreConfig selects and configures the object store.
type StoreConfig struct {
	// Kind is s3, minio or local. Default: "s3"
	Kind         string `toml:"kind"`
	Bucket       string `toml:"bucket"`
	Region       string `toml:"region"`
	Profile      string `toml:"profile"`
	Endpoint     string `toml:"endpoint"`
	AccessKey    string `toml:"access_key"`
	SecretKey    string `toml:"secret_key"`
	UseSSL       bool   `toml:"use_ssl"`
	SSEAlgorithm string `toml:"sse_algorithm"`
	// LocalDir is the BadgerDB directory for the local store.
	LocalDir string `toml:"local_dir"`
}

// MetricsConfig configures the metrics textfile.
type MetricsConfig struct {
	// File receives run metrics in Prometheus text format when set.
	File string `toml:"file"`
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithServer sets the catalog base URI.
func WithServer(server string) ConfigOption {
	return func(c *Config) {
		c.Server = server
	}
}

// WithFormat sets the output format.
func WithFormat(format string) ConfigOption {
	return func(c *Config) {
		c.Format = format
	}
}

// WithConcurrency sets the upload concurrency.
func WithConcurrency(n int) ConfigOption {
	return func(c *Config) {
		c.Ingest.Concurrency = n
	}
}

// WithStoreKind selects the object store.
func WithStoreKind(kind string) ConfigOption {
	return func(c *Config) {
		c.Store.Kind = kind
	}
}

// WithBucket sets the object store bucket.
func WithBucket(bucket string) ConfigOption {
	return func(c *Config) {
		c.Store.Bucket = bucket
	}
}

// DefaultConfig returns a Config with defaults for uploading to S3.
func DefaultConfig() *Config {
	return &Config{
		Format: "tsv",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Ingest: IngestConfig{
			Concurrency:      128,
			ProgressInterval: 100,
			LogFormat:        "tsv",
		},
		Store: StoreConfig{
			Kind:   StoreS3,
			Region: "eu-west-1",
		},
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Load reads a TOML file over the defaults. An empty path returns the
// defaults. Unknown keys are an error so typos don't pass silently.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, &core.InputError{Msg: "cannot read config file " + path, Err: err}
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, core.NewInputError("unknown keys in config file %s: %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// Validate checks the settings every command shares. Store settings are
// checked by ValidateStore, since only ingest needs them.
func (c *Config) Validate() error {
	if _, err := core.ParseFormat(c.Format); err != nil {
		return fmt.Errorf("config: format: %w", err)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: invalid log level %q: must be one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("config: invalid log format %q: must be console or json", c.Log.Format)
	}
	if c.Ingest.Concurrency < 1 {
		return errors.New("config: concurrency must be greater than 0")
	}
	if c.Ingest.ProgressInterval < 1 {
		return errors.New("config: progress interval must be greater than 0")
	}
	if _, err := core.ParseFormat(c.Ingest.LogFormat); err != nil {
		return fmt.Errorf("config: log format: %w", err)
	}
	if _, err := core.ParseLanguages(c.Ingest.Languages); err != nil {
		return fmt.Errorf("config: languages: %w", err)
	}
	return nil
}

// ValidateStore checks the object store settings.
func (c *Config) ValidateStore() error {
	s := c.Store
	switch s.Kind {
	case StoreS3:
		if s.Bucket == "" {
			return errors.New("config: bucket is required for the s3 store")
		}
		if (s.AccessKey == "") != (s.SecretKey == "") {
			return errors.New("config: access key and secret key must be given together")
		}
	case StoreMinio:
		if s.Bucket == "" || s.Endpoint == "" {
			return errors.New("config: bucket and endpoint are required for the minio store")
		}
		if s.AccessKey == "" || s.SecretKey == "" {
			return errors.New("config: access key and secret key are required for the minio store")
		}
	case StoreLocal:
		if s.LocalDir == "" {
			return errors.New("config: local store directory is required")
		}
	default:
		return fmt.Errorf("config: unknown store %q: must be one of s3, minio, local", s.Kind)
	}
	return nil
}
