package utils

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// WorkerPool manages a fixed set of goroutines draining a job queue
type WorkerPool[J, R any] struct {
	NumWorkers int
	JobQueue   chan J
	Results    chan R
	wg         sync.WaitGroup
	started    bool
	closed     bool
	mu         sync.Mutex
}

// NewWorkerPool creates a new worker pool with specified number of workers
func NewWorkerPool[J, R any](numWorkers int, jobBufferSize int, resultBufferSize int) *WorkerPool[J, R] {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	return &WorkerPool[J, R]{
		NumWorkers: numWorkers,
		JobQueue:   make(chan J, jobBufferSize),
		Results:    make(chan R, resultBufferSize),
	}
}

// StartWorkers starts the worker goroutines with the given work function.
// workFunc receives the index of the worker running it, so callers can keep
// per-worker state.
func (wp *WorkerPool[J, R]) StartWorkers(workFunc func(workerID int, job J) R) {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.started {
		return
	}

	wp.started = true
	wp.wg.Add(wp.NumWorkers)

	for i := 0; i < wp.NumWorkers; i++ {
		go wp.worker(i, workFunc)
	}
}

// worker processes jobs from the job queue
func (wp *WorkerPool[J, R]) worker(id int, workFunc func(int, J) R) {
	defer wp.wg.Done()

	for job := range wp.JobQueue {
		wp.Results <- workFunc(id, job)
	}
}

// SubmitJob adds a job to the job queue
func (wp *WorkerPool[J, R]) SubmitJob(job J) {
	wp.JobQueue <- job
}

// Shutdown closes the job queue. Results is closed once every worker has
// drained the queue, so consumers can simply range over it.
func (wp *WorkerPool[J, R]) Shutdown() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.closed {
		return
	}
	wp.closed = true
	close(wp.JobQueue)

	go func() {
		wp.wg.Wait()
		close(wp.Results)
	}()
}

// ProgressTracker tracks progress of concurrent operations
type ProgressTracker struct {
	Total     int64
	Processed int64
	StartTime time.Time
	Name      string
	Log       logrus.FieldLogger
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(total int64, name string, log logrus.FieldLogger) *ProgressTracker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ProgressTracker{
		Total:     total,
		StartTime: time.Now(),
		Name:      name,
		Log:       log,
	}
}

// Increment increments the processed count atomically
func (pt *ProgressTracker) Increment() {
	processed := atomic.AddInt64(&pt.Processed, 1)
	total := atomic.LoadInt64(&pt.Total)

	// Log progress every 100 items or at completion
	if processed%100 == 0 || processed == total {
		elapsed := time.Since(pt.StartTime)
		pt.Log.WithFields(logrus.Fields{
			"processed": processed,
			"total":     total,
			"percent":   percentage(processed, total),
			"rate":      float64(processed) / elapsed.Seconds(),
		}).Debug(pt.Name)
	}
}

// SetTotal replaces the expected number of items.
func (pt *ProgressTracker) SetTotal(total int64) {
	atomic.StoreInt64(&pt.Total, total)
}

// GetProgress returns the current progress
func (pt *ProgressTracker) GetProgress() (int64, int64, float64) {
	processed := atomic.LoadInt64(&pt.Processed)
	total := atomic.LoadInt64(&pt.Total)
	return processed, total, percentage(processed, total)
}

func percentage(processed, total int64) float64 {
	if total == 0 {
		return 100
	}
	return float64(processed) / float64(total) * 100
}

// ParallelProcessor provides utilities for parallel processing
type ParallelProcessor struct {
	NumWorkers int
	Log        logrus.FieldLogger
}

// NewParallelProcessor creates a new parallel processor
func NewParallelProcessor(numWorkers int, log logrus.FieldLogger) *ParallelProcessor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &ParallelProcessor{
		NumWorkers: numWorkers,
		Log:        log,
	}
}

// ProcessBatch applies workFunc to every item in parallel and returns the
// results in input order.
func ProcessBatch[J, R any](pp *ParallelProcessor, items []J, workFunc func(workerID int, item J) R, progressName string) []R {
	if len(items) == 0 {
		return []R{}
	}

	tracker := NewProgressTracker(int64(len(items)), progressName, pp.Log)

	type indexed struct {
		index  int
		result R
	}
	wp := NewWorkerPool[int, indexed](pp.NumWorkers, len(items), len(items))

	wp.StartWorkers(func(workerID int, i int) indexed {
		result := workFunc(workerID, items[i])
		tracker.Increment()
		return indexed{index: i, result: result}
	})

	for i := range items {
		wp.SubmitJob(i)
	}
	wp.Shutdown()

	results := make([]R, len(items))
	for r := range wp.Results {
		results[r.index] = r.result
	}

	pp.Log.WithField("items", len(items)).Debugf("%s: completed", progressName)
	return results
}
