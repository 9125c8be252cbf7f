package plagiarism

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

var (
	// ErrQueueFull indicates the aggregation queue is saturated
	ErrQueueFull = errors.New("plagiarism queue is full")
	// ErrClosed indicates the worker no longer accepts submissions
	ErrClosed = errors.New("plagiarism worker is closed")
)

// Job identifies a submission to aggregate
type Job struct {
	SubmissionID string
	StudentID    string
	ProblemID    string
}

// Handler aggregates one submission
type Handler func(ctx context.Context, job Job) error

// Stats reports worker counters
type Stats struct {
	Enqueued  int64
	Completed int64
	Failed    int64
	Rejected  int64
}

// Worker runs aggregation off the request path on a fixed pool of goroutines
type Worker struct {
	handler Handler
	queue   chan Job
	workers int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	enqueued  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// NewWorker creates a worker pool; call Start to begin processing
func NewWorker(handler Handler, workers, queueSize int) *Worker {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 64
	}
	return &Worker{
		handler: handler,
		queue:   make(chan Job, queueSize),
		workers: workers,
	}
}

// Start launches the pool. Jobs keep running until Stop drains the queue.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx)
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	for job := range w.queue {
		if err := w.handler(ctx, job); err != nil {
			w.failed.Add(1)
			log.Error().Err(err).Str("submission_id", job.SubmissionID).Msg("plagiarism aggregation failed")
			continue
		}
		w.completed.Add(1)
	}
}

// Enqueue schedules a submission without blocking the caller
func (w *Worker) Enqueue(job Job) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.rejected.Add(1)
		return ErrClosed
	}
	select {
	case w.queue <- job:
		w.enqueued.Add(1)
		return nil
	default:
		w.rejected.Add(1)
		log.Warn().Str("submission_id", job.SubmissionID).Msg("plagiarism queue full, dropping job")
		return ErrQueueFull
	}
}

// Stop stops accepting jobs and waits for queued ones to finish or ctx to end
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.wg.Wait()
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Stats returns a snapshot of the worker counters
func (w *Worker) Stats() Stats {
	return Stats{
		Enqueued:  w.enqueued.Load(),
		Completed: w.completed.Load(),
		Failed:    w.failed.Load(),
		Rejected:  w.rejected.Load(),
	}
}
