package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/datallboy/datascan/internal/domain"
)

const datasetColumns = `dataset_id, name, source_url, original_request_url, team_id, owner_user_id, status, created_at, summary, meta`

// CreateDataset inserts a new dataset row. The caller is expected to
// have set status=processing and meta.stage=enqueued before the job is
// handed to the pipeline.
func (s *PersistentStore) CreateDataset(ctx context.Context, ds *domain.Dataset) error {
	var dbo datasetDBO
	if err := dbo.FromDomain(ds); err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO datasets (`+datasetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dbo.DatasetID, dbo.Name, dbo.SourceURL, dbo.OriginalRequestURL,
		dbo.TeamID, dbo.OwnerUserID, dbo.Status, dbo.CreatedAt,
		dbo.Summary, dbo.Meta,
	)
	return err
}

// GetDataset returns nil, nil when the dataset does not exist.
func (s *PersistentStore) GetDataset(ctx context.Context, datasetID string) (*domain.Dataset, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+datasetColumns+`
		FROM datasets
		WHERE dataset_id = ? LIMIT 1`, datasetID)

	var dbo datasetDBO
	err := row.Scan(
		&dbo.DatasetID, &dbo.Name, &dbo.SourceURL, &dbo.OriginalRequestURL,
		&dbo.TeamID, &dbo.OwnerUserID, &dbo.Status, &dbo.CreatedAt,
		&dbo.Summary, &dbo.Meta,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch dataset: %w", err)
	}

	return dbo.ToDomain()
}

// ListDatasets returns the most recently created datasets first.
func (s *PersistentStore) ListDatasets(ctx context.Context, limit int) ([]*domain.Dataset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+datasetColumns+`
		FROM datasets
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	var datasets []*domain.Dataset
	for rows.Next() {
		var dbo datasetDBO
		err := rows.Scan(
			&dbo.DatasetID, &dbo.Name, &dbo.SourceURL, &dbo.OriginalRequestURL,
			&dbo.TeamID, &dbo.OwnerUserID, &dbo.Status, &dbo.CreatedAt,
			&dbo.Summary, &dbo.Meta,
		)
		if err != nil {
			return nil, err
		}

		ds, err := dbo.ToDomain()
		if err != nil {
			// Corrupt JSON in one row should not hide the rest
			continue
		}
		datasets = append(datasets, ds)
	}

	return datasets, rows.Err()
}

// ListProcessingDatasets returns jobs for datasets stuck in
// status=processing, newest first, for startup recovery.
func (s *PersistentStore) ListProcessingDatasets(ctx context.Context, limit int) ([]domain.PipelineJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dataset_id, source_url
		FROM datasets
		WHERE status = ?
		ORDER BY created_at DESC
		LIMIT ?`, string(domain.StatusProcessing), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing datasets: %w", err)
	}
	defer rows.Close()

	var jobs []domain.PipelineJob
	for rows.Next() {
		var job domain.PipelineJob
		if err := rows.Scan(&job.DatasetID, &job.URL); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// MarkProcessing records the prepare stage start.
func (s *PersistentStore) MarkProcessing(ctx context.Context, datasetID string) error {
	return s.updateMeta(ctx, datasetID, string(domain.StatusProcessing), nil, func(m *domain.DatasetMeta) {
		m.Stage = domain.StagePrepare
	})
}

// SetPrepareResult records provider and URL resolution after a
// successful prepare, moving the dataset into the analyze stage.
func (s *PersistentStore) SetPrepareResult(ctx context.Context, datasetID, provider, originalURL, resolvedURL string) error {
	return s.updateMeta(ctx, datasetID, "", nil, func(m *domain.DatasetMeta) {
		m.Ingest.Provider = provider
		m.Resolution.OriginalURL = originalURL
		m.Resolution.ResolvedURL = resolvedURL
		m.Stage = domain.StageAnalyzeFiles
	})
}

// FinalizeDataset writes the summary, the finalize stage and the ready
// status in a single update.
func (s *PersistentStore) FinalizeDataset(ctx context.Context, datasetID string, summary domain.Summary) error {
	return s.updateMeta(ctx, datasetID, string(domain.StatusReady), &summary, func(m *domain.DatasetMeta) {
		m.Stage = domain.StageFinalize
	})
}

// MarkFailed records the terminal failure state with a diagnostic.
// No partial summary is written.
func (s *PersistentStore) MarkFailed(ctx context.Context, datasetID, lastError string) error {
	return s.updateMeta(ctx, datasetID, string(domain.StatusFailed), nil, func(m *domain.DatasetMeta) {
		m.Stage = domain.StageFailed
		m.LastError = lastError
	})
}

// updateMeta applies a read-modify-write on the meta JSON column,
// optionally updating status and summary in the same statement. The
// single-consumer queue guarantees only one writer per dataset, so the
// read-modify-write cannot race with itself.
func (s *PersistentStore) updateMeta(ctx context.Context, datasetID, status string, summary *domain.Summary, mutate func(*domain.DatasetMeta)) error {
	var metaJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT meta FROM datasets WHERE dataset_id = ? LIMIT 1`, datasetID,
	).Scan(&metaJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("dataset %s not found", datasetID)
		}
		return err
	}

	var meta domain.DatasetMeta
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			// Start fresh rather than fail the whole stage transition
			meta = domain.DatasetMeta{}
		}
	}

	mutate(&meta)

	encoded, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode meta: %w", err)
	}

	switch {
	case status != "" && summary != nil:
		summaryJSON, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("failed to encode summary: %w", err)
		}
		_, err = s.db.ExecContext(ctx,
			`UPDATE datasets SET meta = ?, status = ?, summary = ? WHERE dataset_id = ?`,
			string(encoded), status, string(summaryJSON), datasetID)
		return err
	case status != "":
		_, err = s.db.ExecContext(ctx,
			`UPDATE datasets SET meta = ?, status = ? WHERE dataset_id = ?`,
			string(encoded), status, datasetID)
		return err
	default:
		_, err = s.db.ExecContext(ctx,
			`UPDATE datasets SET meta = ? WHERE dataset_id = ?`,
			string(encoded), datasetID)
		return err
	}
}
