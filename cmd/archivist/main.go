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


package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/poiesic/archivist"
	"github.com/poiesic/archivist/catalog"
	"github.com/poiesic/archivist/config"
	"github.com/poiesic/archivist/core"
	"github.com/poiesic/archivist/filehash"
	"github.com/poiesic/archivist/logging"
	"github.com/poiesic/archivist/output"
	"github.com/urfave/cli/v2"
)

const (
	configKey  = "config"
	logSyncKey = "log-sync"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "archivist",
		Usage: "Bulk upload directories into a content archive",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format (tsv, json)",
				Value: "tsv",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Diagnostic log format (console, json)",
				Value: "console",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a TOML config file",
				EnvVars: []string{"ARCHIVIST_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "credentials-dir",
				Usage: "Directory holding auth tokens (default ~/.giant-utils)",
			},
		},
		Before: setup,
		After:  teardown,
		// Errors reach main, which picks the exit code.
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			{
				Name:      "hash",
				Usage:     "Print the content hash of a file",
				ArgsUsage: "<path>",
				Action:    hashCommand,
			},
			{
				Name:   "login",
				Usage:  "Store an auth token for a server",
				Action: loginCommand,
				Flags: []cli.Flag{
					uriFlag(),
					&cli.StringFlag{
						Name:     "token",
						Usage:    "Auth token issued by the server",
						Required: true,
						EnvVars:  []string{"ARCHIVIST_TOKEN"},
					},
				},
			},
			{
				Name:   "check-hash",
				Usage:  "Check whether the archive holds a resource with a hash",
				Action: checkHashCommand,
				Flags: []cli.Flag{
					uriFlag(),
					&cli.StringFlag{
						Name:     "hash",
						Usage:    "Content hash as printed by the hash command",
						Required: true,
					},
				},
			},
			{
				Name:   "check-file",
				Usage:  "Hash a file and check whether the archive holds it",
				Action: checkFileCommand,
				Flags: []cli.Flag{
					uriFlag(),
					&cli.StringFlag{
						Name:     "path",
						Usage:    "File to check",
						Required: true,
					},
				},
			},
			{
				Name:   "ingest",
				Usage:  "Upload a directory into an ingestion, resuming from a previous log",
				Action: ingestCommand,
				Flags:  ingestFlags(),
			},
			{
				Name:   "list-blobs",
				Usage:  "List the blobs of a collection",
				Action: listBlobsCommand,
				Flags: []cli.Flag{
					uriFlag(),
					&cli.StringFlag{
						Name:     "collection",
						Usage:    "Collection name",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "filter",
						Usage: "Which blobs to list (all, in-multiple)",
						Value: "all",
					},
				},
			},
			{
				Name:   "delete-collection",
				Usage:  "Delete a collection, optionally with its blobs",
				Action: deleteCollectionCommand,
				Flags: []cli.Flag{
					uriFlag(),
					&cli.StringFlag{
						Name:     "collection",
						Usage:    "Collection name",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "delete-blobs",
						Usage: "Delete every blob of the collection first",
					},
				},
			},
		},
	}
}

func uriFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "uri",
		Aliases: []string{"u"},
		Usage:   "Server URI, e.g. https://archive.example.com (default from config)",
	}
}

func ingestFlags() []cli.Flag {
	return []cli.Flag{
		uriFlag(),
		&cli.StringFlag{
			Name:     "ingestion-uri",
			Aliases:  []string{"i"},
			Usage:    "Target as collection/ingestion",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "path",
			Aliases:  []string{"p"},
			Usage:    "Directory to upload",
			Required: true,
		},
		&cli.StringSliceFlag{
			Name:  "languages",
			Usage: "Languages of the documents (comma separated)",
		},
		&cli.StringFlag{
			Name:  "progress-from",
			Usage: "Outcome log of a previous run; its successes are skipped",
		},
		&cli.StringFlag{
			Name:  "progress-format",
			Usage: "Format of --progress-from (tsv, json); inferred from the extension by default",
		},
		&cli.StringFlag{
			Name:  "log-file",
			Usage: "Outcome log for this run (default ingestion-<millis>.<ext>)",
		},
		&cli.IntFlag{
			Name:  "concurrency",
			Usage: "Number of files uploaded at once",
			Value: 128,
		},
		&cli.IntFlag{
			Name:  "report-interval",
			Usage: "Report progress every N files",
			Value: 100,
		},
		&cli.StringFlag{
			Name:  "store",
			Usage: "Object store (s3, minio, local)",
			Value: config.StoreS3,
		},
		&cli.StringFlag{
			Name:  "bucket",
			Usage: "Bucket receiving uploads",
		},
		&cli.StringFlag{
			Name:  "region",
			Usage: "S3 region",
			Value: "eu-west-1",
		},
		&cli.StringFlag{
			Name:  "profile",
			Usage: "AWS shared config profile",
		},
		&cli.StringFlag{
			Name:  "endpoint",
			Usage: "Custom S3 or MinIO endpoint URL",
		},
		&cli.StringFlag{
			Name:    "access-key",
			Usage:   "Static access key (s3, minio)",
			EnvVars: []string{"ARCHIVIST_ACCESS_KEY"},
		},
		&cli.StringFlag{
			Name:    "secret-key",
			Usage:   "Static secret key (s3, minio)",
			EnvVars: []string{"ARCHIVIST_SECRET_KEY"},
		},
		&cli.StringFlag{
			Name:  "sse-algorithm",
			Usage: "S3 server-side encryption (AES256, aws:kms)",
		},
		&cli.StringFlag{
			Name:  "local-store-dir",
			Usage: "BadgerDB directory for the local store",
		},
		&cli.StringFlag{
			Name:  "metrics-file",
			Usage: "Write run metrics in Prometheus text format to this file",
		},
	}
}

// setup loads the config, applies global flags and installs the logger.
func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(err, output.ExitUsage)
	}
	if c.IsSet("format") {
		cfg.Format = c.String("format")
		// Outcome logs follow the output format unless a config file chose one.
		cfg.Ingest.LogFormat = cfg.Format
	}
	if c.IsSet("log-level") || cfg.Log.Level == "" {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") || cfg.Log.Format == "" {
		cfg.Log.Format = c.String("log-format")
	}
	if c.IsSet("credentials-dir") {
		cfg.CredentialsDir = c.String("credentials-dir")
	}
	if err := cfg.Validate(); err != nil {
		return cli.Exit(err, output.ExitUsage)
	}

	sync, err := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return cli.Exit(err, output.ExitUsage)
	}

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]interface{}{}
	}
	c.App.Metadata[configKey] = cfg
	c.App.Metadata[logSyncKey] = sync
	return nil
}

func teardown(c *cli.Context) error {
	if sync, ok := c.App.Metadata[logSyncKey].(func() error); ok {
		// Syncing stderr fails on some terminals; nothing to report.
		_ = sync()
	}
	return nil
}

func configFrom(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.DefaultConfig()
}

func newArchivist(c *cli.Context, cfg *config.Config) (*archivist.Archivist, error) {
	a, err := archivist.New(cfg, archivist.WithProgressWriter(c.App.ErrWriter))
	if err != nil {
		return nil, fail(err, output.ExitUsage)
	}
	return a, nil
}

func newPrinter(c *cli.Context, cfg *config.Config) *output.Printer {
	format, err := core.ParseFormat(cfg.Format)
	if err != nil {
		format = core.FormatTSV
	}
	return output.NewPrinter(c.App.Writer, format)
}

// fail wraps err with the exit code for its category.
func fail(err error, fallback int) error {
	if err == nil {
		return nil
	}
	var exit cli.ExitCoder
	if errors.As(err, &exit) {
		return err
	}
	return cli.Exit(err, output.ExitCode(err, fallback))
}

func exitCode(err error) int {
	var exit cli.ExitCoder
	if errors.As(err, &exit) {
		return exit.ExitCode()
	}
	// Flag parsing and missing required flags.
	return output.ExitUsage
}

func hashCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("hash needs a file path", output.ExitUsage)
	}
	result, err := filehash.HashFile(path)
	if err != nil {
		return fail(fmt.Errorf("failed to hash file: %w", err), output.ExitHash)
	}
	return fail(newPrinter(c, configFrom(c)).Hash(result), output.ExitSerialization)
}

func loginCommand(c *cli.Context) error {
	cfg := configFrom(c)
	a, err := newArchivist(c, cfg)
	if err != nil {
		return err
	}
	if err := a.Login(c.String("uri"), c.String("token")); err != nil {
		return fail(err, output.ExitSetAuthToken)
	}
	return nil
}

func checkHashCommand(c *cli.Context) error {
	cfg := configFrom(c)
	a, err := newArchivist(c, cfg)
	if err != nil {
		return err
	}
	exists, err := a.CheckHash(c.Context, c.String("uri"), c.String("hash"))
	if err != nil {
		return fail(err, output.ExitAPI)
	}
	return fail(newPrinter(c, cfg).Exists(exists), output.ExitSerialization)
}

func checkFileCommand(c *cli.Context) error {
	cfg := configFrom(c)
	a, err := newArchivist(c, cfg)
	if err != nil {
		return err
	}
	result, err := filehash.HashFile(c.String("path"))
	if err != nil {
		return fail(fmt.Errorf("failed to hash file: %w", err), output.ExitHash)
	}
	exists, err := a.CheckHash(c.Context, c.String("uri"), result.Hash)
	if err != nil {
		return fail(err, output.ExitAPI)
	}
	return fail(newPrinter(c, cfg).FileCheck(output.FileCheck{
		Hash:   result.Hash,
		Path:   result.Path,
		Exists: exists,
	}), output.ExitSerialization)
}

func listBlobsCommand(c *cli.Context) error {
	cfg := configFrom(c)
	filter, err := catalog.ParseBlobFilter(c.String("filter"))
	if err != nil {
		return fail(err, output.ExitUsage)
	}
	a, err := newArchivist(c, cfg)
	if err != nil {
		return err
	}
	blobs, err := a.ListBlobs(c.Context, c.String("uri"), c.String("collection"), filter)
	if err != nil {
		return fail(err, output.ExitAPI)
	}
	return fail(newPrinter(c, cfg).Blobs(blobs), output.ExitSerialization)
}

func deleteCollectionCommand(c *cli.Context) error {
	cfg := configFrom(c)
	a, err := newArchivist(c, cfg)
	if err != nil {
		return err
	}
	collection := c.String("collection")
	deleted, err := a.DeleteCollection(c.Context, c.String("uri"), collection, c.Bool("delete-blobs"))
	if err != nil {
		return fail(err, output.ExitAPI)
	}
	return fail(newPrinter(c, cfg).CollectionDeletion(output.CollectionDeletion{
		Collection:   collection,
		DeletedBlobs: deleted,
	}), output.ExitSerialization)
}

func ingestCommand(c *cli.Context) error {
	cfg := configFrom(c)
	applyIngestFlags(c, cfg)

	ingestionURI, err := core.ParseURI(c.String("ingestion-uri"))
	if err != nil {
		return fail(err, output.ExitUsage)
	}
	languages, err := core.ParseLanguages(c.StringSlice("languages"))
	if err != nil {
		return fail(&core.InputError{Msg: "invalid --languages", Err: err}, output.ExitUsage)
	}
	var progressFormat core.Format
	if name := c.String("progress-format"); name != "" {
		if progressFormat, err = core.ParseFormat(name); err != nil {
			return fail(&core.InputError{Msg: "invalid --progress-format", Err: err}, output.ExitUsage)
		}
	}

	a, err := newArchivist(c, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := a.Ingest(ctx, archivist.IngestRequest{
		Server:         c.String("uri"),
		IngestionURI:   ingestionURI,
		Path:           c.String("path"),
		Languages:      languages,
		ProgressFrom:   c.String("progress-from"),
		ProgressFormat: progressFormat,
		LogFile:        c.String("log-file"),
	})
	if err != nil {
		return fail(fmt.Errorf("ingestion failed: %w", err), output.ExitPipeline)
	}

	if err := newPrinter(c, cfg).Stats(result.Stats); err != nil {
		return fail(err, output.ExitSerialization)
	}
	if result.Stats.Interrupted {
		return cli.Exit(fmt.Sprintf("ingestion interrupted, resume with --progress-from %s", result.LogFile), output.ExitPipeline)
	}
	return nil
}

// applyIngestFlags copies ingest flags over the config. Flags left at their
// defaults don't override values from a config file.
func applyIngestFlags(c *cli.Context, cfg *config.Config) {
	setInt := func(name string, dst *int) {
		if c.IsSet(name) {
			*dst = c.Int(name)
		}
	}
	setString := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}

	setInt("concurrency", &cfg.Ingest.Concurrency)
	setInt("report-interval", &cfg.Ingest.ProgressInterval)
	setString("store", &cfg.Store.Kind)
	setString("bucket", &cfg.Store.Bucket)
	setString("region", &cfg.Store.Region)
	setString("profile", &cfg.Store.Profile)
	setString("endpoint", &cfg.Store.Endpoint)
	setString("access-key", &cfg.Store.AccessKey)
	setString("secret-key", &cfg.Store.SecretKey)
	setString("sse-algorithm", &cfg.Store.SSEAlgorithm)
	setString("local-store-dir", &cfg.Store.LocalDir)
	setString("metrics-file", &cfg.Metrics.File)
}
