package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/jo-hoe/imagepress/internal/backend/blobstore"
	"github.com/jo-hoe/imagepress/internal/backend/commands"
	"github.com/jo-hoe/imagepress/internal/backend/database"
	"github.com/jo-hoe/imagepress/internal/backend/events"
	"github.com/jo-hoe/imagepress/internal/backend/upload"
	"github.com/jo-hoe/imagepress/internal/backend/worker"
)

var sessionOwner = Owner{SessionID: "session-1"}

func addOne(t *testing.T, service *testService, owner Owner, name string, data []byte) *ProcessedImage {
	t.Helper()
	result, err := service.AddImages(context.Background(), owner, []UploadedFile{{Name: name, Data: data}}, DefaultProcessOptions())
	if err != nil {
		t.Fatalf("AddImages: %v", err)
	}
	if len(result.Accepted) != 1 {
		t.Fatalf("expected 1 accepted image, got %d (rejected %+v)", len(result.Accepted), result.Rejected)
	}
	return result.Accepted[0]
}

func TestAddImages_ProcessesToCompletion(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	added := addOne(t, service, sessionOwner, "photo.jpg", jpegBytes(t, 320, 200))
	if added.Status != "pending" {
		t.Fatalf("expected pending after upload, got %s", added.Status)
	}
	if added.Width != 320 || added.Height != 200 {
		t.Errorf("expected 320x200, got %dx%d", added.Width, added.Height)
	}

	service.drain(t)

	image, err := service.GetImage(ctx, sessionOwner, added.ID)
	if err != nil {
		t.Fatalf("GetImage: %v", err)
	}
	if image.Status != "completed" {
		t.Fatalf("expected completed, got %s (error %v)", image.Status, image.Error)
	}
	if image.CompressedSize == nil || image.CompressionRatio == nil {
		t.Fatal("expected compressed size and ratio to be set")
	}
	if image.Error != nil {
		t.Errorf("expected no error, got %q", *image.Error)
	}
	if image.OutputName != "photo.jpg" {
		t.Errorf("expected output name photo.jpg, got %s", image.OutputName)
	}

	download, err := service.DownloadImage(ctx, sessionOwner, added.ID)
	if err != nil {
		t.Fatalf("DownloadImage: %v", err)
	}
	if int64(len(download.Data)) != *image.CompressedSize {
		t.Errorf("download size %d does not match compressed size %d", len(download.Data), *image.CompressedSize)
	}
	if download.ContentType != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %s", download.ContentType)
	}

	if got := service.publisher.types(); len(got) != 1 || got[0] != events.ImageCompleted {
		t.Errorf("expected one completed event, got %v", got)
	}
}

func TestAddImages_RejectsInvalidFilesWithoutFailingBatch(t *testing.T) {
	service := newTestService(t)
	files := []UploadedFile{
		{Name: "ok.png", Data: pngBytes(t, 40, 40)},
		{Name: "notes.txt", Data: []byte("plain text")},
		{Name: "broken.jpg", Data: []byte("not really a jpeg")},
	}

	result, err := service.AddImages(context.Background(), sessionOwner, files, DefaultProcessOptions())
	if err != nil {
		t.Fatalf("AddImages: %v", err)
	}
	if len(result.Accepted) != 1 || result.Accepted[0].OriginalName != "ok.png" {
		t.Fatalf("expected only ok.png to be accepted, got %+v", result.Accepted)
	}
	if len(result.Rejected) != 2 {
		t.Fatalf("expected 2 rejections, got %+v", result.Rejected)
	}
	if result.Rejected[0].Reason != "Unsupported file format" {
		t.Errorf("unexpected reason for notes.txt: %q", result.Rejected[0].Reason)
	}
	if result.Rejected[1].Reason != "Failed to load image" {
		t.Errorf("unexpected reason for broken.jpg: %q", result.Rejected[1].Reason)
	}
}

func TestAddImages_EnforcesWorkspaceLimit(t *testing.T) {
	service := newTestService(t)
	service.limits = upload.Limits{MaxFiles: 2, MaxFileSize: upload.DefaultMaxFileSize}
	ctx := context.Background()

	addOne(t, service, sessionOwner, "a.png", pngBytes(t, 10, 10))
	addOne(t, service, sessionOwner, "b.png", pngBytes(t, 10, 10))

	_, err := service.AddImages(ctx, sessionOwner, []UploadedFile{{Name: "c.png", Data: pngBytes(t, 10, 10)}}, DefaultProcessOptions())
	if !errors.Is(err, upload.ErrTooManyFiles) {
		t.Fatalf("expected ErrTooManyFiles, got %v", err)
	}

	// another owner has its own workspace
	other := Owner{SessionID: "session-2"}
	addOne(t, service, other, "c.png", pngBytes(t, 10, 10))
}

func TestAddImages_InvalidInput(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	files := []UploadedFile{{Name: "a.png", Data: pngBytes(t, 10, 10)}}

	if _, err := service.AddImages(ctx, Owner{}, files, DefaultProcessOptions()); !errors.Is(err, ErrInvalidOwner) {
		t.Errorf("expected ErrInvalidOwner, got %v", err)
	}
	if _, err := service.AddImages(ctx, sessionOwner, files, ProcessOptions{CompressionPreset: "tiny"}); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("expected ErrInvalidOptions, got %v", err)
	}
}

func TestAddImages_QueueFullMarksImageFailed(t *testing.T) {
	service := newTestServiceWithCapacity(t, 1)
	files := []UploadedFile{
		{Name: "a.png", Data: pngBytes(t, 10, 10)},
		{Name: "b.png", Data: pngBytes(t, 10, 10)},
	}

	result, err := service.AddImages(context.Background(), sessionOwner, files, DefaultProcessOptions())
	if !errors.Is(err, worker.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if len(result.Accepted) != 2 {
		t.Fatalf("expected both images to be stored, got %d", len(result.Accepted))
	}
	if result.Accepted[0].Status != "pending" {
		t.Errorf("expected first image pending, got %s", result.Accepted[0].Status)
	}
	second := result.Accepted[1]
	if second.Status != "error" || second.Error == nil {
		t.Fatalf("expected second image to be failed, got %s", second.Status)
	}

	// the failed image can be retried once there is room
	service.drain(t)
	retried, err := service.RetryImage(context.Background(), sessionOwner, second.ID)
	if err != nil {
		t.Fatalf("RetryImage: %v", err)
	}
	if retried.Status != "processing" || retried.Error != nil {
		t.Errorf("expected processing without error, got %s %v", retried.Status, retried.Error)
	}
	service.drain(t)
	image, _ := service.GetImage(context.Background(), sessionOwner, second.ID)
	if image.Status != "completed" {
		t.Errorf("expected completed after retry, got %s", image.Status)
	}
}

func TestGetImage_ScopedToOwner(t *testing.T) {
	service := newTestService(t)
	added := addOne(t, service, sessionOwner, "a.png", pngBytes(t, 10, 10))

	_, err := service.GetImage(context.Background(), Owner{SessionID: "intruder"}, added.ID)
	if !errors.Is(err, ErrImageNotFound) {
		t.Fatalf("expected ErrImageNotFound, got %v", err)
	}
	if err := service.RemoveImage(context.Background(), Owner{SessionID: "intruder"}, added.ID); !errors.Is(err, ErrImageNotFound) {
		t.Fatalf("expected ErrImageNotFound on remove, got %v", err)
	}
}

func TestRemoveImage_DeletesBlobsAndSkipsQueuedJob(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	added := addOne(t, service, sessionOwner, "a.png", pngBytes(t, 10, 10))

	if err := service.RemoveImage(ctx, sessionOwner, added.ID); err != nil {
		t.Fatalf("RemoveImage: %v", err)
	}
	if _, _, err := service.blobs.Get(ctx, blobstore.Key(added.ID, blobstore.Original)); !errors.Is(err, blobstore.ErrNotFound) {
		t.Errorf("expected original blob to be gone, got %v", err)
	}

	service.drain(t)
	images, err := service.ListImages(ctx, sessionOwner)
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if len(images) != 0 {
		t.Errorf("expected empty workspace, got %d images", len(images))
	}
	if got := service.publisher.types(); len(got) != 0 {
		t.Errorf("expected no events for removed image, got %v", got)
	}
}

func TestMoveImage(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	a := addOne(t, service, sessionOwner, "a.png", pngBytes(t, 10, 10))
	b := addOne(t, service, sessionOwner, "b.png", pngBytes(t, 10, 10))
	c := addOne(t, service, sessionOwner, "c.png", pngBytes(t, 10, 10))

	ids := func(images []*ProcessedImage) string {
		names := make([]string, len(images))
		for i, image := range images {
			names[i] = image.OriginalName
		}
		return strings.Join(names, ",")
	}

	tests := []struct {
		name    string
		move    func() ([]*ProcessedImage, error)
		want    string
		wantErr error
	}{
		{"last to front", func() ([]*ProcessedImage, error) { return service.MoveImage(ctx, sessionOwner, c.ID, "") }, "c.png,a.png,b.png", nil},
		{"front after b", func() ([]*ProcessedImage, error) { return service.MoveImage(ctx, sessionOwner, c.ID, b.ID) }, "a.png,b.png,c.png", nil},
		{"shift up", func() ([]*ProcessedImage, error) { return service.ShiftImage(ctx, sessionOwner, b.ID, true) }, "b.png,a.png,c.png", nil},
		{"shift down", func() ([]*ProcessedImage, error) { return service.ShiftImage(ctx, sessionOwner, b.ID, false) }, "a.png,b.png,c.png", nil},
		{"shift past end", func() ([]*ProcessedImage, error) { return service.ShiftImage(ctx, sessionOwner, c.ID, false) }, "a.png,b.png,c.png", nil},
		{"after itself", func() ([]*ProcessedImage, error) { return service.MoveImage(ctx, sessionOwner, a.ID, a.ID) }, "", ErrInvalidOptions},
		{"unknown anchor", func() ([]*ProcessedImage, error) { return service.MoveImage(ctx, sessionOwner, a.ID, "missing") }, "", ErrImageNotFound},
		{"unknown image", func() ([]*ProcessedImage, error) { return service.MoveImage(ctx, sessionOwner, "missing", "") }, "", ErrImageNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			images, err := tt.move()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := ids(images); got != tt.want {
				t.Errorf("order = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestConvertImage(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	added := addOne(t, service, sessionOwner, "diagram.png", pngBytes(t, 64, 48))

	if _, err := service.ConvertImage(ctx, sessionOwner, added.ID, "jpg", 0.9); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition while pending, got %v", err)
	}
	service.drain(t)

	if _, err := service.ConvertImage(ctx, sessionOwner, added.ID, "svg", 0.9); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions for svg target, got %v", err)
	}

	converting, err := service.ConvertImage(ctx, sessionOwner, added.ID, "jpg", 0)
	if err != nil {
		t.Fatalf("ConvertImage: %v", err)
	}
	if converting.Status != "processing" || converting.TargetFormat == nil || *converting.TargetFormat != "jpg" {
		t.Fatalf("expected processing with target jpg, got %s %v", converting.Status, converting.TargetFormat)
	}
	service.drain(t)

	image, err := service.GetImage(ctx, sessionOwner, added.ID)
	if err != nil {
		t.Fatalf("GetImage: %v", err)
	}
	if image.Status != "completed" || image.OutputName != "diagram.jpg" {
		t.Fatalf("expected completed diagram.jpg, got %s %s", image.Status, image.OutputName)
	}
	download, err := service.DownloadImage(ctx, sessionOwner, added.ID)
	if err != nil {
		t.Fatalf("DownloadImage: %v", err)
	}
	if download.ContentType != "image/jpeg" || download.Name != "diagram.jpg" {
		t.Errorf("unexpected download %s %s", download.Name, download.ContentType)
	}
	if w, h := decodeDimensions(t, download.Data); w != 64 || h != 48 {
		t.Errorf("expected 64x48, got %dx%d", w, h)
	}
}

func TestHandleJob_MissingOriginalFailsImage(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	added := addOne(t, service, sessionOwner, "a.png", pngBytes(t, 10, 10))

	if err := service.blobs.DeletePrefix(ctx, blobstore.Prefix(added.ID)); err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}
	delivery, err := service.queue.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	err = service.HandleJob(ctx, delivery.Job, delivery.Attempt)
	if !worker.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	service.handleExhausted(ctx, delivery.Job, err)

	image, _ := service.GetImage(ctx, sessionOwner, added.ID)
	if image.Status != "error" || image.Error == nil || *image.Error != "Processing failed" {
		t.Fatalf("expected error status with message, got %s %v", image.Status, image.Error)
	}
	if got := service.publisher.types(); len(got) != 1 || got[0] != events.ImageFailed {
		t.Errorf("expected one failed event, got %v", got)
	}
}

func TestComplete_RemovedImageDropsStoredBlobs(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	added := addOne(t, service, sessionOwner, "a.png", pngBytes(t, 10, 10))
	image, err := service.databaseService.GetImageByID(ctx, added.ID)
	if err != nil {
		t.Fatalf("GetImageByID: %v", err)
	}

	if err := service.RemoveImage(ctx, sessionOwner, added.ID); err != nil {
		t.Fatalf("RemoveImage: %v", err)
	}
	result := &PipelineResult{Data: pngBytes(t, 10, 10), Format: commands.FormatPNG, OutputName: "a.png"}
	if _, err := service.complete(ctx, image, result); !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("complete error = %v, want ErrNotFound", err)
	}

	for _, variant := range []blobstore.Variant{blobstore.Compressed, blobstore.CompressedPreview} {
		if _, _, err := service.blobs.Get(ctx, blobstore.Key(added.ID, variant)); !errors.Is(err, blobstore.ErrNotFound) {
			t.Errorf("blob %s of removed image: error = %v, want ErrNotFound", variant, err)
		}
	}
}

func TestReprocessImages(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	added := addOne(t, service, sessionOwner, "wide.jpg", jpegBytes(t, 800, 400))
	service.drain(t)

	failed := addOne(t, service, sessionOwner, "failed.jpg", jpegBytes(t, 800, 400))
	for _, status := range []database.ImageStatus{database.StatusProcessing, database.StatusError} {
		if _, err := service.databaseService.TransitionImage(ctx, failed.ID, database.ImageUpdate{Status: status, Error: "broken"}); err != nil {
			t.Fatalf("TransitionImage(%s): %v", status, err)
		}
	}
	waiting := addOne(t, service, sessionOwner, "waiting.jpg", jpegBytes(t, 800, 400))

	opts := ProcessOptions{CompressionPreset: "auto", ResizePreset: "custom", Width: 200, MaintainAspectRatio: true}
	requeued, err := service.ReprocessImages(ctx, sessionOwner, opts)
	if err != nil {
		t.Fatalf("ReprocessImages: %v", err)
	}
	statuses := map[string]string{}
	for _, image := range requeued {
		statuses[image.ID] = image.Status
	}
	if len(statuses) != 2 || statuses[added.ID] != "processing" || statuses[waiting.ID] != "pending" {
		t.Fatalf("expected the completed and the pending image, got %v", statuses)
	}
	service.drain(t)

	for _, id := range []string{added.ID, waiting.ID} {
		download, err := service.DownloadImage(ctx, sessionOwner, id)
		if err != nil {
			t.Fatalf("DownloadImage: %v", err)
		}
		if w, h := decodeDimensions(t, download.Data); w != 200 || h != 100 {
			t.Errorf("%s: expected 200x100 after reprocessing, got %dx%d", download.Name, w, h)
		}
	}
	image, err := service.GetImage(ctx, sessionOwner, failed.ID)
	if err != nil {
		t.Fatalf("GetImage: %v", err)
	}
	if image.Status != "error" {
		t.Errorf("failed image should stay failed, got %s", image.Status)
	}
}

func TestPreview(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	added := addOne(t, service, sessionOwner, "big.png", pngBytes(t, 900, 300))

	// compressed falls back to the original preview until the job ran
	preview, err := service.Preview(ctx, sessionOwner, added.ID, true)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if preview.ContentType != "image/jpeg" {
		t.Errorf("expected image/jpeg preview, got %s", preview.ContentType)
	}
	if w, h := decodeDimensions(t, preview.Data); w != 400 || h != 133 {
		t.Errorf("expected 400x133 preview, got %dx%d", w, h)
	}

	service.drain(t)
	if _, _, err := service.blobs.Get(ctx, blobstore.Key(added.ID, blobstore.CompressedPreview)); err != nil {
		t.Fatalf("expected compressed preview to be stored: %v", err)
	}
	if _, err := service.Preview(ctx, sessionOwner, added.ID, true); err != nil {
		t.Fatalf("Preview compressed: %v", err)
	}
}

func TestDownloadZip(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.DownloadZip(ctx, sessionOwner); !errors.Is(err, ErrNoImagesReady) {
		t.Fatalf("expected ErrNoImagesReady for empty workspace, got %v", err)
	}

	addOne(t, service, sessionOwner, "same.jpg", jpegBytes(t, 50, 50))
	addOne(t, service, sessionOwner, "same.jpg", jpegBytes(t, 60, 60))
	if _, err := service.DownloadZip(ctx, sessionOwner); !errors.Is(err, ErrNoImagesReady) {
		t.Fatalf("expected ErrNoImagesReady before processing, got %v", err)
	}
	service.drain(t)
	addOne(t, service, sessionOwner, "later.jpg", jpegBytes(t, 50, 50))

	download, err := service.DownloadZip(ctx, sessionOwner)
	if err != nil {
		t.Fatalf("DownloadZip: %v", err)
	}
	if download.Name != ArchiveName || download.ContentType != "application/zip" {
		t.Errorf("unexpected archive %s %s", download.Name, download.ContentType)
	}

	reader, err := zip.NewReader(bytes.NewReader(download.Data), int64(len(download.Data)))
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	var names []string
	for _, file := range reader.File {
		names = append(names, file.Name)
		rc, err := file.Open()
		if err != nil {
			t.Fatalf("failed to open %s: %v", file.Name, err)
		}
		if _, err := io.ReadAll(rc); err != nil {
			t.Fatalf("failed to read %s: %v", file.Name, err)
		}
		_ = rc.Close()
	}
	if got := strings.Join(names, ","); got != "same.jpg,same (1).jpg" {
		t.Errorf("unexpected archive entries %s", got)
	}
}
