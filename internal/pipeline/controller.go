package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/datallboy/datascan/internal/domain"
	"github.com/datallboy/datascan/internal/infra/config"
	"github.com/datallboy/datascan/internal/infra/logger"
	"github.com/datallboy/datascan/internal/ingest"
)

// FileStore is the slice of the store the batch writer needs.
type FileStore interface {
	BulkUpsertFiles(ctx context.Context, datasetID string, records []*domain.FileRecord) (domain.BulkWriteResult, error)
}

// Store is the persistence surface the controller drives a dataset
// through. *store.PersistentStore satisfies it.
type Store interface {
	FileStore
	MarkProcessing(ctx context.Context, datasetID string) error
	SetPrepareResult(ctx context.Context, datasetID, provider, originalURL, resolvedURL string) error
	DeleteDatasetFiles(ctx context.Context, datasetID string) error
	FinalizeDataset(ctx context.Context, datasetID string, summary domain.Summary) error
	MarkFailed(ctx context.Context, datasetID, lastError string) error
	ListProcessingDatasets(ctx context.Context, limit int) ([]domain.PipelineJob, error)
}

// Preparer materialises a dataset locally. *ingest.Preparer satisfies
// it.
type Preparer interface {
	Prepare(ctx context.Context, datasetID, url string) (ingest.PrepareResult, error)
}

// Analyzer produces one descriptor per file. *analyze.Analyzer
// satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, datasetID, scanRoot, path string, now time.Time) (*domain.FileRecord, error)
}

// Controller runs one dataset through prepare, analyze and finalize.
// A single controller instance is shared by the queue consumer; each
// Run call owns its dataset exclusively.
type Controller struct {
	cfg      *config.Config
	store    Store
	preparer Preparer
	analyzer Analyzer
	log      *logger.Logger
}

func NewController(cfg *config.Config, store Store, preparer Preparer, analyzer Analyzer, log *logger.Logger) *Controller {
	return &Controller{
		cfg:      cfg,
		store:    store,
		preparer: preparer,
		analyzer: analyzer,
		log:      log,
	}
}

// Run executes the full pipeline for one job. Failures mark the
// dataset failed with the error preserved; shutdown cancellation
// leaves the dataset in its current state for recovery to pick up.
func (c *Controller) Run(ctx context.Context, job domain.PipelineJob) {
	start := time.Now()
	c.log.Info("pipeline: dataset %s starting (%s)", job.DatasetID, job.URL)

	if err := c.run(ctx, job); err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.log.Warn("pipeline: dataset %s interrupted by shutdown", job.DatasetID)
			return
		}

		c.log.Error("pipeline: dataset %s failed: %v", job.DatasetID, err)
		if markErr := c.store.MarkFailed(context.WithoutCancel(ctx), job.DatasetID, err.Error()); markErr != nil {
			c.log.Error("pipeline: failed to mark dataset %s failed: %v", job.DatasetID, markErr)
		}
		return
	}

	c.log.Info("pipeline: dataset %s ready in %s", job.DatasetID, time.Since(start).Round(time.Millisecond))
}

func (c *Controller) run(ctx context.Context, job domain.PipelineJob) error {
	if err := c.store.MarkProcessing(ctx, job.DatasetID); err != nil {
		return fmt.Errorf("failed to mark dataset processing: %w", err)
	}

	prep, err := c.preparer.Prepare(ctx, job.DatasetID, job.URL)
	if err != nil {
		return err
	}

	if err := c.store.SetPrepareResult(ctx, job.DatasetID, prep.Provider, prep.OriginalURL, prep.ResolvedURL); err != nil {
		return fmt.Errorf("failed to record prepare result: %w", err)
	}

	summary, err := c.analyzeFiles(ctx, job.DatasetID, prep.ScanRoot)
	if err != nil {
		return err
	}

	if err := c.store.FinalizeDataset(ctx, job.DatasetID, summary); err != nil {
		return fmt.Errorf("failed to finalize dataset: %w", err)
	}
	return nil
}

// analysisResult pairs a descriptor with the only error Analyze can
// return, a cancellation.
type analysisResult struct {
	rec *domain.FileRecord
	err error
}

// analyzeFiles walks the scan root, fans file analysis out to the
// analyzer and streams the descriptors to the batch writer. Scheduled
// counters are taken at walk time so truncation by the file cap stays
// observable next to the completed totals.
func (c *Controller) analyzeFiles(ctx context.Context, datasetID, scanRoot string) (domain.Summary, error) {
	// Re-analysis starts from a clean slate.
	if err := c.store.DeleteDatasetFiles(ctx, datasetID); err != nil {
		return domain.Summary{}, fmt.Errorf("failed to clear previous file index: %w", err)
	}

	batchSize := c.cfg.Pipeline.BatchSize
	flushEvery := time.Duration(c.cfg.Pipeline.FlushSeconds * float64(time.Second))

	writeCh := make(chan *domain.FileRecord, batchSize*4)
	writer := newBatchWriter(c.store, c.log, datasetID, batchSize, flushEvery)
	go writer.run(ctx, writeCh)

	// Keep at most twice the analysis concurrency in flight so a slow
	// writer applies backpressure to the walk.
	maxOutstanding := c.cfg.Pipeline.FileConcurrency * 2
	if maxOutstanding < 1 {
		maxOutstanding = 1
	}
	results := make(chan analysisResult, maxOutstanding)

	summary := newSummaryBuilder()
	outstanding := 0
	now := time.Now().UTC()

	collect := func() error {
		res := <-results
		outstanding--
		if res.err != nil {
			return res.err
		}
		summary.noteCompleted(res.rec)
		return c.publish(ctx, writer, writeCh, res.rec)
	}

	walkErr := walkFiles(ctx, scanRoot, c.cfg.MaxFilesPerDataset, func(path string) error {
		for outstanding >= maxOutstanding {
			if err := collect(); err != nil {
				return err
			}
		}

		summary.noteScheduled(path)
		outstanding++
		go func() {
			rec, err := c.analyzer.Analyze(ctx, datasetID, scanRoot, path, now)
			results <- analysisResult{rec: rec, err: err}
		}()
		return nil
	})

	// Drain in-flight analyses even on walk failure so the analyzer
	// goroutines never block on the results channel.
	var drainErr error
	for outstanding > 0 {
		if err := collect(); err != nil && drainErr == nil {
			drainErr = err
		}
	}

	close(writeCh)
	<-writer.done

	if walkErr != nil {
		return domain.Summary{}, fmt.Errorf("file walk failed: %w", walkErr)
	}
	if drainErr != nil {
		return domain.Summary{}, drainErr
	}
	if writer.Err() != nil {
		return domain.Summary{}, fmt.Errorf("%w: %v", domain.ErrBatchWriterCrashed, writer.Err())
	}

	return summary.build(), nil
}

// publish hands one descriptor to the writer, aborting if the writer
// already terminated.
func (c *Controller) publish(ctx context.Context, writer *batchWriter, writeCh chan<- *domain.FileRecord, rec *domain.FileRecord) error {
	select {
	case <-writer.done:
		return domain.ErrBatchWriterCrashed
	default:
	}

	select {
	case writeCh <- rec:
		return nil
	case <-writer.done:
		return domain.ErrBatchWriterCrashed
	case <-ctx.Done():
		return ctx.Err()
	}
}
