package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/datallboy/datascan/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFileStore struct {
	mu      sync.Mutex
	batches [][]*domain.FileRecord
	fail    error
	partial int
}

func (f *fakeFileStore) BulkUpsertFiles(ctx context.Context, datasetID string, records []*domain.FileRecord) (domain.BulkWriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail != nil {
		return domain.BulkWriteResult{}, f.fail
	}

	batch := make([]*domain.FileRecord, len(records))
	copy(batch, records)
	f.batches = append(f.batches, batch)

	res := domain.BulkWriteResult{Upserted: len(records) - f.partial, Failed: f.partial}
	if f.partial > 0 {
		res.FirstError = "constraint violation"
	}
	return res, nil
}

func (f *fakeFileStore) batchSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()

	sizes := make([]int, 0, len(f.batches))
	for _, b := range f.batches {
		sizes = append(sizes, len(b))
	}
	return sizes
}

func recordN(n int) []*domain.FileRecord {
	recs := make([]*domain.FileRecord, n)
	for i := range recs {
		recs[i] = &domain.FileRecord{RelPath: "f", AbsPath: "f.png", Kind: domain.KindImage}
	}
	return recs
}

func TestBatchWriterFlushesOnBatchSize(t *testing.T) {
	store := &fakeFileStore{}
	w := newBatchWriter(store, testLogger(t), "ds", 3, time.Minute)

	ch := make(chan *domain.FileRecord)
	go w.run(context.Background(), ch)

	for _, rec := range recordN(7) {
		ch <- rec
	}
	close(ch)
	<-w.done

	require.NoError(t, w.Err())
	assert.Equal(t, []int{3, 3, 1}, store.batchSizes())
}

func TestBatchWriterFlushesOnClose(t *testing.T) {
	store := &fakeFileStore{}
	w := newBatchWriter(store, testLogger(t), "ds", 100, time.Minute)

	ch := make(chan *domain.FileRecord)
	go w.run(context.Background(), ch)

	for _, rec := range recordN(2) {
		ch <- rec
	}
	close(ch)
	<-w.done

	require.NoError(t, w.Err())
	assert.Equal(t, []int{2}, store.batchSizes())
}

func TestBatchWriterFlushesOnTimeout(t *testing.T) {
	store := &fakeFileStore{}
	w := newBatchWriter(store, testLogger(t), "ds", 100, 20*time.Millisecond)

	ch := make(chan *domain.FileRecord)
	go w.run(context.Background(), ch)

	ch <- recordN(1)[0]

	assert.Eventually(t, func() bool {
		return len(store.batchSizes()) == 1
	}, time.Second, 5*time.Millisecond, "idle flush should fire before the channel closes")

	close(ch)
	<-w.done
	require.NoError(t, w.Err())
}

func TestBatchWriterTerminatesOnStoreFailure(t *testing.T) {
	boom := errors.New("disk full")
	store := &fakeFileStore{fail: boom}
	w := newBatchWriter(store, testLogger(t), "ds", 1, time.Minute)

	ch := make(chan *domain.FileRecord, 1)
	go w.run(context.Background(), ch)

	ch <- recordN(1)[0]
	<-w.done

	assert.ErrorIs(t, w.Err(), boom)
}

func TestBatchWriterToleratesPartialFailures(t *testing.T) {
	store := &fakeFileStore{partial: 1}
	w := newBatchWriter(store, testLogger(t), "ds", 2, time.Minute)

	ch := make(chan *domain.FileRecord)
	go w.run(context.Background(), ch)

	for _, rec := range recordN(4) {
		ch <- rec
	}
	close(ch)
	<-w.done

	require.NoError(t, w.Err())
	assert.Equal(t, []int{2, 2}, store.batchSizes())
}
