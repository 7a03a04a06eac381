// Package jobqueue generalizes the teacher's buffered-channel +
// fixed-goroutine-pool ingestion worker into a standalone abstraction
// with its own bounded backpressure and graceful shutdown via
// golang.org/x/sync/errgroup, replacing the teacher's bare
// `for i := 0; i < 4; i++ { go s.worker(i) }` loop with one that can be
// drained cleanly on shutdown.
package jobqueue

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Job is one unit of asynchronous work, identified for logging.
type Job struct {
	ID string
	Fn func(ctx context.Context)
}

// Queue is a bounded in-process job queue with a fixed worker pool.
// The teacher's own comment on its channel field already calls this a
// stand-in for a broker like Redis Streams, SQS, or NATS; this repo
// keeps that same in-process default and treats a broker-backed queue
// as an out-of-scope swap-in behind the same Submit/Run shape.
type Queue struct {
	jobs    chan Job
	workers int
}

// New creates a Queue with the given buffer capacity and worker count.
func New(capacity, workers int) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	if workers <= 0 {
		workers = 4
	}
	return &Queue{jobs: make(chan Job, capacity), workers: workers}
}

// Submit enqueues a job without blocking. It reports false if the
// queue is full, letting the caller apply its own backpressure policy
// (HTTP 429/503 at the upload boundary).
func (q *Queue) Submit(job Job) bool {
	select {
	case q.jobs <- job:
		return true
	default:
		return false
	}
}

// SubmitWait enqueues a job, blocking until a slot frees up or ctx
// expires. The upload handler uses this with a short request-side
// deadline so a saturated queue surfaces as 503 instead of silently
// dropping work.
func (q *Queue) SubmitWait(ctx context.Context, job Job) bool {
	select {
	case q.jobs <- job:
		return true
	case <-ctx.Done():
		return false
	}
}

// Run starts the worker pool and blocks until ctx is canceled, then
// drains in-flight workers before returning.
func (q *Queue) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		workerID := i
		g.Go(func() error {
			q.worker(ctx, workerID)
			return nil
		})
	}
	<-ctx.Done()
	close(q.jobs)
	return g.Wait()
}

func (q *Queue) worker(ctx context.Context, id int) {
	slog.Info("jobqueue: worker started", "worker_id", id)
	for {
		select {
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			job.Fn(ctx)
		case <-ctx.Done():
			return
		}
	}
}
