package pipeline

import (
	"context"
	"io/fs"
	"path/filepath"
)

// walkFiles streams every regular file under root to fn, in
// lexicographic walk order. The walk stops silently once limit files
// have been seen, and propagates fn's error or context cancellation.
// Unreadable directory entries are skipped rather than failing the
// scan.
func walkFiles(ctx context.Context, root string, limit int, fn func(path string) error) error {
	var seen int

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if limit > 0 && seen >= limit {
			return filepath.SkipAll
		}
		seen++

		return fn(path)
	})
}
