package pipeline

import (
	"context"
	"sync"

	"github.com/datallboy/datascan/internal/domain"
	"github.com/datallboy/datascan/internal/infra/logger"
)

// Runner executes one pipeline job to completion. *Controller
// satisfies it.
type Runner interface {
	Run(ctx context.Context, job domain.PipelineJob)
}

// Queue is an unbounded in-memory FIFO with a single consumer, so at
// most one dataset is in the pipeline at a time and per-dataset work
// never interleaves.
type Queue struct {
	mu      sync.Mutex
	jobs    []domain.PipelineJob
	enabled bool
	runner  Runner
	log     *logger.Logger

	newJobChan chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewQueue(enabled bool, runner Runner, log *logger.Logger) *Queue {
	return &Queue{
		enabled:    enabled,
		runner:     runner,
		log:        log,
		newJobChan: make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Enqueue appends a job and wakes the consumer. Jobs are rejected when
// the pipeline is disabled so datasets are never accepted and then
// silently never processed.
func (q *Queue) Enqueue(datasetID, url string) error {
	if !q.enabled {
		return domain.ErrPipelineDisabled
	}

	q.mu.Lock()
	q.jobs = append(q.jobs, domain.PipelineJob{DatasetID: datasetID, URL: url})
	q.mu.Unlock()

	select {
	case q.newJobChan <- struct{}{}:
	default:
		// Signal already pending
	}
	return nil
}

// Start launches the consumer goroutine. Idempotent; a no-op when the
// pipeline is disabled.
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		if !q.enabled {
			q.log.Warn("pipeline: disabled, datasets will not be processed")
			close(q.done)
			return
		}

		runCtx, cancel := context.WithCancel(ctx)
		q.cancel = cancel
		go q.consume(runCtx)
	})
}

// Stop cancels the running job, if any, and waits for the consumer to
// exit. Idempotent, and safe without a prior Start.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		if q.cancel != nil {
			q.cancel()
			return
		}
		// Consumer never launched; unblock the wait below.
		q.startOnce.Do(func() { close(q.done) })
	})
	<-q.done
}

// Len reports the number of jobs waiting, excluding the one running.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *Queue) consume(ctx context.Context) {
	defer close(q.done)

	for {
		job, ok := q.pop()
		if !ok {
			select {
			case <-q.newJobChan:
				continue
			case <-ctx.Done():
				return
			}
		}

		q.runner.Run(ctx, job)

		if ctx.Err() != nil {
			return
		}
	}
}

func (q *Queue) pop() (domain.PipelineJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return domain.PipelineJob{}, false
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, true
}
