package ingestion

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
)

// isUploadable reports whether a walked entry is a regular file. Symlinks,
// directories and special files are never uploaded.
func isUploadable(d fs.DirEntry) bool {
	return d != nil && d.Type().IsRegular()
}

// countFiles counts uploadable files under root for progress reporting.
// Errors are ignored; the real walk reports them.
func countFiles(root string) int {
	n := 0
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && isUploadable(d) {
			n++
		}
		return nil
	})
	return n
}

// walkFiles calls fn for every uploadable file under root, in lexical order.
// An error reading root itself is returned. Errors below root are logged and
// the affected entry or subtree is skipped. The walk stops with ctx.Err()
// once ctx is done, or with the first error fn returns.
func walkFiles(ctx context.Context, root string, logger *slog.Logger, fn func(path string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			logger.Warn("failed to read path, skipping", "path", path, "err", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !isUploadable(d) {
			return nil
		}
		return fn(path)
	})
}
