package pipeline

import (
	"context"

	"github.com/datallboy/datascan/internal/infra/logger"
)

// recoveryLimit caps how many interrupted datasets a restart picks
// back up; anything older stays processing until re-ingested.
const recoveryLimit = 200

// RecoverInterrupted re-enqueues datasets left in processing by a
// previous run, newest first. Each restarts from prepare; re-analysis
// clears any partial file index first.
func RecoverInterrupted(ctx context.Context, store Store, queue *Queue, log *logger.Logger) error {
	jobs, err := store.ListProcessingDatasets(ctx, recoveryLimit)
	if err != nil {
		return err
	}

	var requeued int
	for _, job := range jobs {
		if job.URL == "" {
			log.Warn("pipeline: dataset %s has no source URL, cannot recover", job.DatasetID)
			continue
		}
		if err := queue.Enqueue(job.DatasetID, job.URL); err != nil {
			return err
		}
		requeued++
	}

	if requeued > 0 {
		log.Info("pipeline: recovered %d interrupted dataset(s)", requeued)
	}
	return nil
}
