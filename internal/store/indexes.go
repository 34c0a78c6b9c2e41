package store

import (
	"context"

	"github.com/datallboy/datascan/internal/infra/logger"
)

// EnsurePipelineIndexes sets up uniqueness indexes best-effort.
//
// datasets(dataset_id) backs dataset lookups; files(dataset_id, relpath)
// backs listing and idempotent upserts. If legacy rows contain
// duplicates the unique variant fails, so we fall back to a non-unique
// index and let upsert semantics carry idempotence.
func (s *PersistentStore) EnsurePipelineIndexes(ctx context.Context, log *logger.Logger) {
	if _, err := s.db.ExecContext(ctx,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_dataset_id ON datasets(dataset_id)`,
	); err != nil {
		log.Warn("Could not create unique index datasets(dataset_id): %v", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_dataset_relpath ON files(dataset_id, relpath)`,
	); err != nil {
		log.Warn("Could not create unique index files(dataset_id, relpath): %v", err)
		if _, err := s.db.ExecContext(ctx,
			`CREATE INDEX IF NOT EXISTS idx_dataset_relpath ON files(dataset_id, relpath)`,
		); err != nil {
			log.Warn("Could not create non-unique index files(dataset_id, relpath): %v", err)
		}
	}
}
