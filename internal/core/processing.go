package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jo-hoe/imagepress/internal/backend/blobstore"
	"github.com/jo-hoe/imagepress/internal/backend/commands"
	"github.com/jo-hoe/imagepress/internal/backend/database"
	"github.com/jo-hoe/imagepress/internal/backend/events"
	"github.com/jo-hoe/imagepress/internal/backend/worker"
)

const (
	processingFailedMessage = "Processing failed"
	conversionFailedMessage = "Conversion failed"
)

// HandleJob runs one queued job. Errors marked permanent are not retried;
// the image is marked failed once the pool gives up on the job.
func (service *CoreService) HandleJob(ctx context.Context, job worker.Job, attempt int) error {
	started := time.Now()
	image, err := service.databaseService.GetImageByID(ctx, job.ImageID)
	if errors.Is(err, database.ErrNotFound) {
		slog.Info("skipping job for removed image", "image_id", job.ImageID, "kind", job.Kind)
		return nil
	}
	if err != nil {
		return err
	}
	if image.Status.IsTerminal() {
		// every action that queues work on a finished image moves it to
		// processing first, so this job is a leftover duplicate
		slog.Info("skipping job for finished image", "image_id", image.ID, "kind", job.Kind, "status", image.Status)
		return nil
	}

	if image.Status != database.StatusProcessing {
		image, err = service.databaseService.TransitionImage(ctx, image.ID, database.ImageUpdate{Status: database.StatusProcessing})
		if errors.Is(err, database.ErrInvalidTransition) {
			return worker.Permanent(err)
		}
		if errors.Is(err, database.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
	}

	var result *PipelineResult
	switch job.Kind {
	case worker.KindConvert:
		result, err = service.convert(ctx, image, job)
	default:
		result, err = service.process(ctx, image)
	}
	if err != nil {
		slog.Warn("job failed", "image_id", image.ID, "kind", job.Kind, "attempt", attempt, "error", err)
		return err
	}

	completed, err := service.complete(ctx, image, result)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	compressedSize := int64(len(result.Data))
	service.metrics.JobCompleted(string(job.Kind), time.Since(started), completed.OriginalSize, compressedSize)
	service.recordHistory(ctx, completed, result)
	service.publish(ctx, events.Event{
		Type:             events.ImageCompleted,
		ImageID:          completed.ID,
		UserID:           completed.UserID,
		OriginalName:     completed.OriginalName,
		OutputName:       completed.OutputName,
		Format:           string(result.Format),
		OriginalSize:     completed.OriginalSize,
		CompressedSize:   compressedSize,
		CompressionRatio: commands.CompressionRatio(completed.OriginalSize, compressedSize),
	})
	slog.Info("job completed",
		"image_id", completed.ID,
		"kind", job.Kind,
		"original_size_bytes", completed.OriginalSize,
		"output_size_bytes", compressedSize,
		"output_size", commands.FormatFileSize(compressedSize),
		"duration_ms", time.Since(started).Milliseconds())
	return nil
}

func (service *CoreService) process(ctx context.Context, image *database.Image) (*PipelineResult, error) {
	original, _, err := service.blobs.Get(ctx, blobstore.Key(image.ID, blobstore.Original))
	if err != nil {
		return nil, service.missingBlob(image.ID, err)
	}

	opts := DefaultProcessOptions()
	if image.Options != "" {
		if err := json.Unmarshal([]byte(image.Options), &opts); err != nil {
			return nil, worker.Permanent(fmt.Errorf("failed to decode options of %s: %w", image.ID, err))
		}
	}

	result, err := RunPipeline(ctx, service.config.Pipeline, image.OriginalName, original, opts)
	if err != nil {
		return nil, worker.Permanent(err)
	}
	return result, nil
}

// convert re-encodes the latest result of an image, or its original when no
// result exists yet
func (service *CoreService) convert(ctx context.Context, image *database.Image, job worker.Job) (*PipelineResult, error) {
	target, err := parseTargetFormat(job.TargetFormat)
	if err != nil {
		return nil, worker.Permanent(err)
	}

	source, _, err := service.blobs.Get(ctx, blobstore.Key(image.ID, blobstore.Compressed))
	if errors.Is(err, blobstore.ErrNotFound) {
		source, _, err = service.blobs.Get(ctx, blobstore.Key(image.ID, blobstore.Original))
	}
	if err != nil {
		return nil, service.missingBlob(image.ID, err)
	}

	result, err := RunConversion(ctx, service.config.Pipeline, image.OriginalName, source, target, job.Quality)
	if err != nil {
		return nil, worker.Permanent(err)
	}
	return result, nil
}

// missingBlob makes a vanished payload permanent; other storage errors are retried
func (service *CoreService) missingBlob(id string, err error) error {
	if errors.Is(err, blobstore.ErrNotFound) {
		return worker.Permanent(fmt.Errorf("payload of %s is missing: %w", id, err))
	}
	return fmt.Errorf("failed to load payload of %s: %w", id, err)
}

// complete stores the result and its preview and marks the image completed
func (service *CoreService) complete(ctx context.Context, image *database.Image, result *PipelineResult) (*database.Image, error) {
	if err := service.blobs.Put(ctx, blobstore.Key(image.ID, blobstore.Compressed), result.Format.MIMEType(), result.Data); err != nil {
		return nil, err
	}
	preview, err := commands.Preview(result.Data, service.config.Pipeline.PreviewSize)
	if err != nil {
		slog.Warn("failed to render result preview", "image_id", image.ID, "error", err)
	} else if err := service.blobs.Put(ctx, blobstore.Key(image.ID, blobstore.CompressedPreview), "image/jpeg", preview); err != nil {
		return nil, err
	}

	size := int64(len(result.Data))
	ratio := commands.CompressionRatio(image.OriginalSize, size)
	outputName := result.OutputName
	update := database.ImageUpdate{
		Status:           database.StatusCompleted,
		OutputName:       &outputName,
		CompressedSize:   &size,
		CompressionRatio: &ratio,
	}
	completed, err := service.databaseService.TransitionImage(ctx, image.ID, update)
	if errors.Is(err, database.ErrInvalidTransition) {
		return nil, worker.Permanent(err)
	}
	if errors.Is(err, database.ErrNotFound) {
		// removed while the pipeline ran; drop what was just stored
		if derr := service.blobs.DeletePrefix(ctx, blobstore.Prefix(image.ID)); derr != nil {
			slog.Error("failed to delete blobs of removed image", "image_id", image.ID, "error", derr)
		}
	}
	return completed, err
}

// recordHistory keeps a history entry for signed in users. Failures are
// logged only; the image result is already stored.
func (service *CoreService) recordHistory(ctx context.Context, image *database.Image, result *PipelineResult) {
	if image.UserID == "" {
		return
	}
	opts := DefaultProcessOptions()
	_ = json.Unmarshal([]byte(image.Options), &opts)

	size := int64(len(result.Data))
	_, err := service.databaseService.SaveCompressionHistory(ctx, database.CompressionHistory{
		UserID:           image.UserID,
		OriginalFileName: image.OriginalName,
		OriginalSize:     image.OriginalSize,
		CompressedSize:   size,
		OriginalFormat:   image.Format,
		TargetFormat:     image.TargetFormat,
		CompressionRatio: commands.CompressionRatio(image.OriginalSize, size),
		Preset:           opts.CompressionPreset,
	})
	if err != nil {
		slog.Error("failed to save compression history", "image_id", image.ID, "user_id", image.UserID, "error", err)
	}
}

// RequeueStranded queues a job for every image left pending or processing,
// for queues that lose their jobs on shutdown. It runs before the workers
// and the API start. Images that cannot be queued are marked failed so they
// can be retried.
func (service *CoreService) RequeueStranded(ctx context.Context) (int, error) {
	images, err := service.databaseService.ListUnfinishedImages(ctx)
	if err != nil {
		return 0, err
	}
	requeued := 0
	for _, image := range images {
		job := worker.Job{ImageID: image.ID, Kind: worker.KindProcess}
		if image.Status == database.StatusProcessing && image.TargetFormat != nil && *image.TargetFormat != "" {
			job = worker.Job{ImageID: image.ID, Kind: worker.KindConvert, TargetFormat: *image.TargetFormat, Quality: convertQuality}
		}
		if err := service.enqueue(ctx, job); err != nil {
			if _, ferr := service.failQueued(ctx, image.ID); ferr != nil {
				slog.Error("failed to mark unqueued image", "image_id", image.ID, "error", ferr)
			}
			continue
		}
		requeued++
	}
	if requeued > 0 {
		slog.Info("requeued unfinished images", "count", requeued, "unfinished", len(images))
	}
	return requeued, nil
}

// handleExhausted marks an image failed after its job ran out of attempts
func (service *CoreService) handleExhausted(ctx context.Context, job worker.Job, cause error) {
	service.metrics.JobFailed(string(job.Kind))

	message := processingFailedMessage
	if job.Kind == worker.KindConvert {
		message = conversionFailedMessage
	}
	image, err := service.databaseService.TransitionImage(ctx, job.ImageID, database.ImageUpdate{
		Status: database.StatusError,
		Error:  message,
	})
	if errors.Is(err, database.ErrNotFound) || errors.Is(err, database.ErrInvalidTransition) {
		return
	}
	if err != nil {
		slog.Error("failed to mark image as failed", "image_id", job.ImageID, "error", err)
		return
	}

	slog.Error("job exhausted", "image_id", image.ID, "kind", job.Kind, "error", cause)
	service.publish(ctx, events.Event{
		Type:         events.ImageFailed,
		ImageID:      image.ID,
		UserID:       image.UserID,
		OriginalName: image.OriginalName,
		Format:       image.Format,
		OriginalSize: image.OriginalSize,
		Error:        message,
	})
}

func (service *CoreService) publish(ctx context.Context, event events.Event) {
	event.OccurredAt = time.Now().UTC()
	if err := service.events.Publish(ctx, event); err != nil {
		slog.Warn("failed to publish event", "type", event.Type, "image_id", event.ImageID, "error", err)
	}
}
