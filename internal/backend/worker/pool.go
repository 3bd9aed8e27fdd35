package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Handler runs one job. Errors wrapped with Permanent are not retried.
type Handler func(ctx context.Context, job Job, attempt int) error

// ExhaustedHandler is called once a job has failed for the last time
type ExhaustedHandler func(ctx context.Context, job Job, err error)

// PoolConfig controls concurrency and retries
type PoolConfig struct {
	Workers     int           `yaml:"workers"`
	MaxAttempts int           `yaml:"maxAttempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

// Pool consumes a queue with a fixed number of workers
type Pool struct {
	queue       Queue
	handler     Handler
	onExhausted ExhaustedHandler
	cfg         PoolConfig
}

func NewPool(queue Queue, handler Handler, onExhausted ExhaustedHandler, cfg PoolConfig) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return &Pool{queue: queue, handler: handler, onExhausted: onExhausted, cfg: cfg}
}

// Run blocks until ctx is cancelled or the queue is closed
func (p *Pool) Run(ctx context.Context) error {
	slog.Info("starting worker pool", "workers", p.cfg.Workers, "max_attempts", p.cfg.MaxAttempts)
	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		id := i
		group.Go(func() error {
			p.loop(ctx, id)
			return nil
		})
	}
	err := group.Wait()
	slog.Info("worker pool stopped")
	return err
}

func (p *Pool) loop(ctx context.Context, id int) {
	for {
		delivery, err := p.queue.Dequeue(ctx)
		if errors.Is(err, ErrQueueClosed) || ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Warn("failed to dequeue job", "worker", id, "error", err)
			select {
			case <-time.After(100 * time.Millisecond):
			case <-ctx.Done():
				return
			}
			continue
		}
		p.handle(ctx, id, delivery)
	}
}

func (p *Pool) handle(ctx context.Context, id int, delivery Delivery) {
	job := delivery.Job
	start := time.Now()
	err := p.handler(ctx, job, delivery.Attempt)
	if ctx.Err() != nil {
		// leave the delivery unacknowledged so a durable queue hands it out again
		return
	}

	if err == nil {
		p.ack(ctx, delivery)
		slog.Debug("job done", "worker", id, "image_id", job.ImageID, "kind", job.Kind,
			"duration_ms", time.Since(start).Milliseconds())
		return
	}

	next := delivery.Attempt + 1
	if IsPermanent(err) || next >= p.cfg.MaxAttempts {
		p.ack(ctx, delivery)
		slog.Error("job failed", "image_id", job.ImageID, "kind", job.Kind, "attempt", delivery.Attempt, "error", err)
		if p.onExhausted != nil {
			p.onExhausted(ctx, job, err)
		}
		return
	}

	// the delivery is acknowledged once its retry is queued, so a job is
	// never dropped between the two
	backoff := p.cfg.Backoff << delivery.Attempt
	slog.Warn("job failed, retrying", "image_id", job.ImageID, "attempt", delivery.Attempt, "backoff_ms", backoff.Milliseconds(), "error", err)
	time.AfterFunc(backoff, func() {
		if ctx.Err() != nil {
			return
		}
		requeueErr := p.queue.Enqueue(context.Background(), job, next)
		p.ack(context.Background(), delivery)
		if requeueErr != nil {
			slog.Error("failed to requeue job", "image_id", job.ImageID, "error", requeueErr)
			if p.onExhausted != nil {
				p.onExhausted(context.Background(), job, requeueErr)
			}
		}
	})
}

func (p *Pool) ack(ctx context.Context, delivery Delivery) {
	if err := delivery.Ack(ctx); err != nil {
		slog.Warn("failed to acknowledge job", "image_id", delivery.Job.ImageID, "error", err)
	}
}
