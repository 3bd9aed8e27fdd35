package worker

import (
	"context"
	"errors"
)

var (
	// ErrQueueFull is returned when a job cannot be accepted without blocking
	ErrQueueFull = errors.New("job queue is full")
	// ErrQueueClosed is returned once a queue has been closed
	ErrQueueClosed = errors.New("job queue is closed")
)

// JobKind selects the work a job performs on an image
type JobKind string

const (
	// KindProcess runs the full normalize, resize and compress pipeline
	KindProcess JobKind = "process"
	// KindConvert re-encodes the original into a target format
	KindConvert JobKind = "convert"
)

// Job identifies an image and the work to do on it. Everything else is read
// from storage when the job runs.
type Job struct {
	ImageID      string  `json:"imageId"`
	Kind         JobKind `json:"kind"`
	TargetFormat string  `json:"targetFormat,omitempty"`
	Quality      float64 `json:"quality,omitempty"`
}

// Delivery is a job handed to a consumer
type Delivery struct {
	Job     Job
	Attempt int
	ack     func(ctx context.Context) error
}

// Ack marks the delivery as handled so it is not delivered again
func (d Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// Queue hands jobs from producers to the worker pool
type Queue interface {
	// Enqueue adds a job without blocking. It fails with ErrQueueFull when at capacity.
	Enqueue(ctx context.Context, job Job, attempt int) error
	// Dequeue blocks until a job is available, the context ends or the queue is closed
	Dequeue(ctx context.Context) (Delivery, error)
	// Depth reports the number of jobs waiting or in flight
	Depth() int
	Close() error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
