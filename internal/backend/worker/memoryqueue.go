package worker

import (
	"context"
	"sync"
)

type queuedJob struct {
	job     Job
	attempt int
}

// MemoryQueue is a bounded in-process queue
type MemoryQueue struct {
	jobs      chan queuedJob
	done      chan struct{}
	closeOnce sync.Once
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoryQueue{
		jobs: make(chan queuedJob, capacity),
		done: make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job, attempt int) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.jobs <- queuedJob{job: job, attempt: attempt}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (Delivery, error) {
	select {
	case queued := <-q.jobs:
		return Delivery{Job: queued.job, Attempt: queued.attempt}, nil
	case <-q.done:
		return Delivery{}, ErrQueueClosed
	case <-ctx.Done():
		return Delivery{}, ctx.Err()
	}
}

func (q *MemoryQueue) Depth() int {
	return len(q.jobs)
}

func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
