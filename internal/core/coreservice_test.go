package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jo-hoe/imagepress/internal/backend/worker"
)

func TestRunWorkers_ProcessesQueuedImages(t *testing.T) {
	service := newTestService(t)
	service.config.Queue.Workers = 2
	service.config.Queue.Backoff = time.Millisecond

	added := addOne(t, service, sessionOwner, "a.jpg", jpegBytes(t, 64, 64))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.RunWorkers(ctx) }()

	deadline := time.Now().Add(10 * time.Second)
	for {
		image, err := service.GetImage(context.Background(), sessionOwner, added.ID)
		if err != nil {
			t.Fatalf("GetImage: %v", err)
		}
		if image.Status == "completed" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("image not completed in time, status %s", image.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not stop after cancellation")
	}
}

func TestRequeueStranded_RecoversImagesAfterRestart(t *testing.T) {
	first := newTestService(t)
	ctx := context.Background()
	removed := addOne(t, first, sessionOwner, "a.jpg", jpegBytes(t, 64, 64))
	converting := addOne(t, first, sessionOwner, "b.png", pngBytes(t, 32, 32))
	first.drain(t)
	if _, err := first.ConvertImage(ctx, sessionOwner, converting.ID, "jpg", 0); err != nil {
		t.Fatalf("ConvertImage: %v", err)
	}
	if err := first.RemoveImage(ctx, sessionOwner, removed.ID); err != nil {
		t.Fatalf("RemoveImage: %v", err)
	}
	again := addOne(t, first, sessionOwner, "c.jpg", jpegBytes(t, 48, 48))

	// a new service on the same storage: the in-memory jobs are gone
	queue := worker.NewMemoryQueue(10)
	restarted := &testService{
		CoreService: NewCoreService(first.config, Dependencies{
			Database: first.databaseService,
			Blobs:    first.blobs,
			Queue:    queue,
			Events:   first.publisher,
		}),
		queue:     queue,
		publisher: first.publisher,
	}
	if _, err := restarted.RetryImage(ctx, sessionOwner, again.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("RetryImage on a pending image error = %v, want ErrInvalidTransition", err)
	}

	requeued, err := restarted.RequeueStranded(ctx)
	if err != nil {
		t.Fatalf("RequeueStranded: %v", err)
	}
	if requeued != 2 {
		t.Fatalf("requeued %d images, want 2", requeued)
	}
	restarted.drain(t)

	for id, wantName := range map[string]string{again.ID: "c.jpg", converting.ID: "b.jpg"} {
		image, err := restarted.GetImage(ctx, sessionOwner, id)
		if err != nil {
			t.Fatalf("GetImage: %v", err)
		}
		if image.Status != "completed" || image.OutputName != wantName {
			t.Errorf("image %s: status %s output %s, want completed %s", id, image.Status, image.OutputName, wantName)
		}
	}
}

func TestHandleJob_SkipsJobForFinishedImage(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	added := addOne(t, service, sessionOwner, "a.jpg", jpegBytes(t, 64, 64))
	service.drain(t)
	before, _ := service.GetImage(ctx, sessionOwner, added.ID)

	if err := service.HandleJob(ctx, worker.Job{ImageID: added.ID, Kind: worker.KindProcess}, 0); err != nil {
		t.Fatalf("HandleJob: %v", err)
	}
	after, _ := service.GetImage(ctx, sessionOwner, added.ID)
	if after.Status != "completed" || !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Errorf("finished image was touched: %s at %v, before %v", after.Status, after.UpdatedAt, before.UpdatedAt)
	}
}

func TestPing(t *testing.T) {
	service := newTestService(t)
	if !service.Ping(context.Background()) {
		t.Error("expected database to be reachable")
	}
}
