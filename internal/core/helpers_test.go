package core

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"

	"github.com/jo-hoe/imagepress/internal/backend/blobstore"
	"github.com/jo-hoe/imagepress/internal/backend/database"
	"github.com/jo-hoe/imagepress/internal/backend/events"
	"github.com/jo-hoe/imagepress/internal/backend/worker"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]events.Type, len(p.events))
	for i, event := range p.events {
		types[i] = event.Type
	}
	return types
}

type testService struct {
	*CoreService
	queue     *worker.MemoryQueue
	publisher *recordingPublisher
}

func newTestService(t *testing.T) *testService {
	t.Helper()
	return newTestServiceWithCapacity(t, 100)
}

func newTestServiceWithCapacity(t *testing.T, capacity int) *testService {
	t.Helper()
	config := DefaultConfig()
	databaseService, err := database.NewDatabase(context.Background(), "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	queue := worker.NewMemoryQueue(capacity)
	publisher := &recordingPublisher{}
	service := NewCoreService(config, Dependencies{
		Database: databaseService,
		Blobs:    blobstore.NewDatabaseStore(databaseService),
		Queue:    queue,
		Events:   publisher,
	})
	t.Cleanup(func() { _ = service.Close() })
	return &testService{CoreService: service, queue: queue, publisher: publisher}
}

// drain runs every queued job in the calling goroutine, giving up on a job
// after its first failure
func (s *testService) drain(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for s.queue.Depth() > 0 {
		delivery, err := s.queue.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if err := s.HandleJob(ctx, delivery.Job, delivery.Attempt); err != nil {
			s.handleExhausted(ctx, delivery.Job, err)
		}
		if err := delivery.Ack(ctx); err != nil && !errors.Is(err, worker.ErrQueueClosed) {
			t.Fatalf("Ack: %v", err)
		}
	}
}

func gradientImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / max(1, w-1)),
				G: uint8(y * 255 / max(1, h-1)),
				B: 96,
				A: 255,
			})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, gradientImage(w, h)); err != nil {
		t.Fatalf("failed to encode PNG: %v", err)
	}
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradientImage(w, h), &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("failed to encode JPEG: %v", err)
	}
	return buf.Bytes()
}

func decodeDimensions(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	return cfg.Width, cfg.Height
}
