package store

import (
	"context"
	"fmt"

	"github.com/datallboy/datascan/internal/domain"
)

const fileColumns = `dataset_id, relpath, abspath, kind, modality, size_bytes, ndim, dims, modality_model, meta, created_at`

// DeleteDatasetFiles drops every file row for a dataset. The analyze
// stage calls this first so a restarted run converges to the same
// terminal state.
func (s *PersistentStore) DeleteDatasetFiles(ctx context.Context, datasetID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE dataset_id = ?`, datasetID)
	return err
}

// BulkUpsertFiles performs one unordered bulk upsert keyed by
// (dataset_id, relpath). A failing op is counted and skipped; the rest
// of the batch still lands. Only transaction-level failures propagate
// to the caller.
func (s *PersistentStore) BulkUpsertFiles(ctx context.Context, datasetID string, records []*domain.FileRecord) (domain.BulkWriteResult, error) {
	var res domain.BulkWriteResult
	if len(records) == 0 {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	// Reuse a single DBO instance for efficiency
	var dbo fileDBO

	for _, rec := range records {
		if rec.RelPath == "" {
			continue
		}

		if err := dbo.FromDomain(rec); err != nil {
			res.Failed++
			if res.FirstError == "" {
				res.FirstError = err.Error()
			}
			continue
		}

		// Update-then-insert keeps upserts working even when the
		// unique index could not be created over legacy duplicates.
		r, err := tx.ExecContext(ctx, `
			UPDATE files
			SET abspath = ?, kind = ?, modality = ?, size_bytes = ?,
			    ndim = ?, dims = ?, modality_model = ?, meta = ?, created_at = ?
			WHERE dataset_id = ? AND relpath = ?`,
			dbo.AbsPath, dbo.Kind, dbo.Modality, dbo.SizeBytes,
			dbo.NDim, dbo.Dims, dbo.ModalityModel, dbo.Meta, dbo.CreatedAt,
			datasetID, dbo.RelPath,
		)
		if err != nil {
			res.Failed++
			if res.FirstError == "" {
				res.FirstError = err.Error()
			}
			continue
		}

		if n, _ := r.RowsAffected(); n > 0 {
			res.Updated += int(n)
			continue
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO files (`+fileColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			datasetID, dbo.RelPath, dbo.AbsPath, dbo.Kind, dbo.Modality,
			dbo.SizeBytes, dbo.NDim, dbo.Dims, dbo.ModalityModel, dbo.Meta,
			dbo.CreatedAt,
		)
		if err != nil {
			res.Failed++
			if res.FirstError == "" {
				res.FirstError = err.Error()
			}
			continue
		}
		res.Upserted++
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("bulk upsert commit failed: %w", err)
	}

	return res, nil
}

// CountDatasetFiles returns the number of file rows for a dataset.
func (s *PersistentStore) CountDatasetFiles(ctx context.Context, datasetID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files WHERE dataset_id = ?`, datasetID,
	).Scan(&n)
	return n, err
}

// ListDatasetFiles returns file records for a dataset ordered by
// relpath for stable pagination.
func (s *PersistentStore) ListDatasetFiles(ctx context.Context, datasetID string, limit int) ([]*domain.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fileColumns+`
		FROM files
		WHERE dataset_id = ?
		ORDER BY relpath ASC
		LIMIT ?`, datasetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dataset files: %w", err)
	}
	defer rows.Close()

	var records []*domain.FileRecord
	for rows.Next() {
		var dbo fileDBO
		err := rows.Scan(
			&dbo.DatasetID, &dbo.RelPath, &dbo.AbsPath, &dbo.Kind, &dbo.Modality,
			&dbo.SizeBytes, &dbo.NDim, &dbo.Dims, &dbo.ModalityModel, &dbo.Meta,
			&dbo.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		rec, err := dbo.ToDomain()
		if err != nil {
			continue
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
