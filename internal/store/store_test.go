package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/datallboy/datascan/internal/domain"
	"github.com/datallboy/datascan/internal/infra/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *PersistentStore {
	t.Helper()

	s, err := NewPersistentStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	log, err := logger.New("", logger.LevelError, false)
	require.NoError(t, err)
	s.EnsurePipelineIndexes(context.Background(), log)

	return s
}

func testDataset(id string) *domain.Dataset {
	return &domain.Dataset{
		DatasetID:          id,
		Name:               "chest scans",
		SourceURL:          "https://h/data.zip",
		OriginalRequestURL: "https://h/data.zip",
		Status:             domain.StatusProcessing,
		CreatedAt:          time.Now().UTC().Truncate(time.Second),
		Meta:               domain.DatasetMeta{Stage: domain.StageEnqueued},
	}
}

func TestDatasetLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDataset(ctx, testDataset("ds1")))

	ds, err := s.GetDataset(ctx, "ds1")
	require.NoError(t, err)
	require.NotNil(t, ds)
	assert.Equal(t, domain.StatusProcessing, ds.Status)
	assert.Equal(t, domain.StageEnqueued, ds.Meta.Stage)

	require.NoError(t, s.MarkProcessing(ctx, "ds1"))
	ds, err = s.GetDataset(ctx, "ds1")
	require.NoError(t, err)
	assert.Equal(t, domain.StagePrepare, ds.Meta.Stage)

	require.NoError(t, s.SetPrepareResult(ctx, "ds1", "http", "https://h/data.zip", "https://h/files/data.zip"))
	ds, err = s.GetDataset(ctx, "ds1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageAnalyzeFiles, ds.Meta.Stage)
	assert.Equal(t, "http", ds.Meta.Ingest.Provider)
	assert.Equal(t, "https://h/files/data.zip", ds.Meta.Resolution.ResolvedURL)

	summary := domain.Summary{
		TotalFiles:     3,
		ScheduledFiles: 3,
		ModalityCounts: map[string]int{"CT": 3},
	}
	require.NoError(t, s.FinalizeDataset(ctx, "ds1", summary))
	ds, err = s.GetDataset(ctx, "ds1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, ds.Status)
	assert.Equal(t, domain.StageFinalize, ds.Meta.Stage)
	assert.Equal(t, 3, ds.Summary.TotalFiles)
	// Resolution survives the finalize meta rewrite
	assert.Equal(t, "http", ds.Meta.Ingest.Provider)
}

func TestMarkFailed(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDataset(ctx, testDataset("ds1")))
	require.NoError(t, s.MarkFailed(ctx, "ds1", "download too large"))

	ds, err := s.GetDataset(ctx, "ds1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, ds.Status)
	assert.Equal(t, domain.StageFailed, ds.Meta.Stage)
	assert.Equal(t, "download too large", ds.Meta.LastError)
	assert.Equal(t, 0, ds.Summary.TotalFiles, "no partial summary on failure")
}

func TestGetDatasetMissing(t *testing.T) {
	s := testStore(t)

	ds, err := s.GetDataset(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Nil(t, ds)
}

func TestListProcessingDatasets(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	older := testDataset("ds-old")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.CreateDataset(ctx, older))
	require.NoError(t, s.CreateDataset(ctx, testDataset("ds-new")))

	done := testDataset("ds-done")
	require.NoError(t, s.CreateDataset(ctx, done))
	require.NoError(t, s.FinalizeDataset(ctx, "ds-done", domain.Summary{}))

	jobs, err := s.ListProcessingDatasets(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "ds-new", jobs[0].DatasetID, "newest first")
	assert.Equal(t, "https://h/data.zip", jobs[0].URL)
}

func fileRecord(datasetID, relpath string) *domain.FileRecord {
	return &domain.FileRecord{
		DatasetID: datasetID,
		RelPath:   relpath,
		AbsPath:   "/data/" + relpath,
		Kind:      domain.KindImage,
		Modality:  "CT",
		SizeBytes: 100,
		NDim:      2,
		Dims:      []int{64, 64},
		CreatedAt: time.Now().UTC(),
		ModalityModel: domain.ModalityModel{
			Pred: "CT", Confidence: 0.7, Version: "v1.0.0", Method: "cnn+heuristics",
		},
	}
}

func TestBulkUpsertFiles(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDataset(ctx, testDataset("ds1")))

	res, err := s.BulkUpsertFiles(ctx, "ds1", []*domain.FileRecord{
		fileRecord("ds1", "a/x.png"),
		fileRecord("ds1", "a/y.png"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Upserted)
	assert.Equal(t, 0, res.Failed)

	// Same relpath again becomes an update, not a duplicate
	again := fileRecord("ds1", "a/x.png")
	again.Modality = "MR"
	res, err = s.BulkUpsertFiles(ctx, "ds1", []*domain.FileRecord{again})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	n, err := s.CountDatasetFiles(ctx, "ds1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	files, err := s.ListDatasetFiles(ctx, "ds1", 100)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a/x.png", files[0].RelPath)
	assert.Equal(t, "MR", files[0].Modality)
	assert.Equal(t, []int{64, 64}, files[0].Dims)
	assert.Equal(t, 2, files[0].NDim)
}

func TestDeleteDatasetFiles(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDataset(ctx, testDataset("ds1")))

	_, err := s.BulkUpsertFiles(ctx, "ds1", []*domain.FileRecord{fileRecord("ds1", "x.png")})
	require.NoError(t, err)

	require.NoError(t, s.DeleteDatasetFiles(ctx, "ds1"))

	n, err := s.CountDatasetFiles(ctx, "ds1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
