package pipeline

import (
	"context"
	"time"

	"github.com/datallboy/datascan/internal/domain"
	"github.com/datallboy/datascan/internal/infra/logger"
)

// batchWriter drains analyzed descriptors off a channel and persists
// them in bulk. It flushes when the batch is full, when no descriptor
// has arrived within flushEvery, or when the channel closes. Partial
// write failures are logged and skipped; a transaction-level failure
// terminates the writer, which the controller observes through done.
type batchWriter struct {
	store      FileStore
	log        *logger.Logger
	datasetID  string
	batchSize  int
	flushEvery time.Duration

	done chan struct{}
	err  error
}

func newBatchWriter(store FileStore, log *logger.Logger, datasetID string, batchSize int, flushEvery time.Duration) *batchWriter {
	if batchSize < 1 {
		batchSize = 1
	}
	if flushEvery <= 0 {
		flushEvery = time.Second
	}
	return &batchWriter{
		store:      store,
		log:        log,
		datasetID:  datasetID,
		batchSize:  batchSize,
		flushEvery: flushEvery,
		done:       make(chan struct{}),
	}
}

// run consumes ch until it closes. Call in its own goroutine; done is
// closed on exit, and Err reports the terminating failure, if any.
func (w *batchWriter) run(ctx context.Context, ch <-chan *domain.FileRecord) {
	defer close(w.done)

	batch := make([]*domain.FileRecord, 0, w.batchSize)
	timer := time.NewTimer(w.flushEvery)
	defer timer.Stop()

	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				w.err = w.flush(ctx, &batch)
				return
			}
			batch = append(batch, rec)
			if len(batch) >= w.batchSize {
				if err := w.flush(ctx, &batch); err != nil {
					w.err = err
					return
				}
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.flushEvery)
		case <-timer.C:
			if err := w.flush(ctx, &batch); err != nil {
				w.err = err
				return
			}
			timer.Reset(w.flushEvery)
		}
	}
}

// Err is valid once done is closed.
func (w *batchWriter) Err() error {
	return w.err
}

func (w *batchWriter) flush(ctx context.Context, batch *[]*domain.FileRecord) error {
	if len(*batch) == 0 {
		return nil
	}

	res, err := w.store.BulkUpsertFiles(ctx, w.datasetID, *batch)
	if err != nil {
		w.log.Error("pipeline: batch write failed for dataset %s: %v", w.datasetID, err)
		return err
	}
	if res.Failed > 0 {
		// Individual upsert failures are tolerated; the files simply
		// stay absent from the index.
		w.log.Warn("pipeline: %d of %d file upserts failed for dataset %s (first: %v)",
			res.Failed, len(*batch), w.datasetID, res.FirstError)
	}

	*batch = (*batch)[:0]
	return nil
}
