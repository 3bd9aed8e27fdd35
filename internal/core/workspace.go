package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jo-hoe/imagepress/internal/backend/archive"
	"github.com/jo-hoe/imagepress/internal/backend/blobstore"
	"github.com/jo-hoe/imagepress/internal/backend/commands"
	"github.com/jo-hoe/imagepress/internal/backend/database"
	"github.com/jo-hoe/imagepress/internal/backend/upload"
	"github.com/jo-hoe/imagepress/internal/backend/worker"
)

const (
	// ArchiveName is the file name of a workspace download
	ArchiveName = "compressed-images.zip"

	queueFullMessage = "Processing queue is full, please retry"
)

// AddImages validates a batch, stores every acceptable file as a pending
// image and queues it for processing. Invalid files are reported in the
// result without failing the batch. When the queue is full the affected
// images are marked as failed and worker.ErrQueueFull is returned alongside
// the result.
func (service *CoreService) AddImages(ctx context.Context, owner Owner, files []UploadedFile, opts ProcessOptions) (*AddResult, error) {
	if !owner.Valid() {
		return nil, ErrInvalidOwner
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	encodedOptions, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}

	current, err := service.databaseService.CountImages(ctx, owner.Key())
	if err != nil {
		return nil, err
	}
	if err := service.limits.ValidateFileCount(current, len(files)); err != nil {
		service.metrics.ImageRejected("too_many_files")
		return nil, err
	}

	result := &AddResult{Accepted: []*ProcessedImage{}, Rejected: []Rejection{}}
	var queueErr error
	for _, file := range files {
		image, rejection, err := service.addImage(ctx, owner, file, string(encodedOptions))
		if err != nil {
			return result, err
		}
		if rejection != nil {
			result.Rejected = append(result.Rejected, *rejection)
			continue
		}

		if err := service.enqueue(ctx, worker.Job{ImageID: image.ID, Kind: worker.KindProcess}); err != nil {
			if !errors.Is(err, worker.ErrQueueFull) {
				return result, err
			}
			queueErr = err
			if failed, failErr := service.failQueued(ctx, image.ID); failErr == nil {
				image = failed
			}
		}
		service.metrics.ImageUploaded()
		result.Accepted = append(result.Accepted, newProcessedImage(image))
	}

	slog.Info("images added", "owner", owner.Key(), "accepted", len(result.Accepted), "rejected", len(result.Rejected))
	return result, queueErr
}

func (service *CoreService) addImage(ctx context.Context, owner Owner, file UploadedFile, options string) (*database.Image, *Rejection, error) {
	format, err := service.limits.ValidateFile(file.Name, file.Data)
	if err != nil {
		service.metrics.ImageRejected(rejectionReason(err))
		return nil, &Rejection{FileName: file.Name, Reason: err.Error()}, nil
	}

	width, height, err := commands.Dimensions(file.Data)
	if err != nil {
		service.metrics.ImageRejected("unreadable")
		return nil, &Rejection{FileName: file.Name, Reason: "Failed to load image"}, nil
	}
	preview, err := commands.Preview(file.Data, service.config.Pipeline.PreviewSize)
	if err != nil {
		service.metrics.ImageRejected("unreadable")
		return nil, &Rejection{FileName: file.Name, Reason: "Failed to load image"}, nil
	}

	image, err := service.databaseService.CreateImage(ctx, database.Image{
		OwnerID:      owner.Key(),
		UserID:       owner.UserID,
		OriginalName: file.Name,
		OriginalSize: int64(len(file.Data)),
		Format:       string(format),
		Width:        width,
		Height:       height,
		Options:      options,
	})
	if err != nil {
		return nil, nil, err
	}

	contentType := format.MIMEType()
	if sniffed, ok := commands.SniffFormat(file.Data); ok {
		contentType = sniffed.MIMEType()
	}
	if err := service.blobs.Put(ctx, blobstore.Key(image.ID, blobstore.Original), contentType, file.Data); err != nil {
		service.discard(ctx, owner, image.ID)
		return nil, nil, err
	}
	if err := service.blobs.Put(ctx, blobstore.Key(image.ID, blobstore.Preview), "image/jpeg", preview); err != nil {
		service.discard(ctx, owner, image.ID)
		return nil, nil, err
	}
	return image, nil, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, upload.ErrFileTooLarge):
		return "too_large"
	case errors.Is(err, upload.ErrUnsupportedFormat):
		return "unsupported_format"
	default:
		return "invalid"
	}
}

func (service *CoreService) enqueue(ctx context.Context, job worker.Job) error {
	err := service.queue.Enqueue(ctx, job, 0)
	if errors.Is(err, worker.ErrQueueFull) {
		service.metrics.QueueRejected()
		slog.Warn("job queue full", "image_id", job.ImageID, "kind", job.Kind)
	}
	return err
}

// failQueued marks an image that could not be queued as failed so the
// client can retry it
func (service *CoreService) failQueued(ctx context.Context, id string) (*database.Image, error) {
	return service.databaseService.TransitionImage(ctx, id, database.ImageUpdate{
		Status: database.StatusError,
		Error:  queueFullMessage,
	})
}

func (service *CoreService) discard(ctx context.Context, owner Owner, id string) {
	if err := service.databaseService.DeleteImage(ctx, owner.Key(), id); err != nil && !errors.Is(err, database.ErrNotFound) {
		slog.Error("failed to discard image", "image_id", id, "error", err)
	}
	if err := service.blobs.DeletePrefix(ctx, blobstore.Prefix(id)); err != nil {
		slog.Error("failed to discard image blobs", "image_id", id, "error", err)
	}
}

// ListImages returns the workspace in display order
func (service *CoreService) ListImages(ctx context.Context, owner Owner) ([]*ProcessedImage, error) {
	images, err := service.databaseService.ListImages(ctx, owner.Key())
	if err != nil {
		return nil, err
	}
	return newProcessedImages(images), nil
}

func (service *CoreService) GetImage(ctx context.Context, owner Owner, id string) (*ProcessedImage, error) {
	image, err := service.getImage(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	return newProcessedImage(image), nil
}

func (service *CoreService) getImage(ctx context.Context, owner Owner, id string) (*database.Image, error) {
	image, err := service.databaseService.GetImage(ctx, owner.Key(), id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrImageNotFound
	}
	return image, err
}

// RemoveImage deletes an image and its payloads. A job still running for it
// finds the image gone and stops.
func (service *CoreService) RemoveImage(ctx context.Context, owner Owner, id string) error {
	err := service.databaseService.DeleteImage(ctx, owner.Key(), id)
	if errors.Is(err, database.ErrNotFound) {
		return ErrImageNotFound
	}
	if err != nil {
		return err
	}
	if err := service.blobs.DeletePrefix(ctx, blobstore.Prefix(id)); err != nil {
		slog.Error("failed to delete image blobs", "image_id", id, "error", err)
	}
	return nil
}

// MoveImage places id directly after afterID, or first when afterID is empty
func (service *CoreService) MoveImage(ctx context.Context, owner Owner, id, afterID string) ([]*ProcessedImage, error) {
	if id == afterID {
		return nil, fmt.Errorf("%w: cannot move an image after itself", ErrInvalidOptions)
	}
	images, err := service.databaseService.ListImages(ctx, owner.Key())
	if err != nil {
		return nil, err
	}

	existing := make(map[string]string, len(images))
	order := make([]string, 0, len(images))
	for _, image := range images {
		existing[image.ID] = image.Rank
		if image.ID != id {
			order = append(order, image.ID)
		}
	}
	if _, ok := existing[id]; !ok {
		return nil, ErrImageNotFound
	}

	position := 0
	if afterID != "" {
		position = -1
		for i, other := range order {
			if other == afterID {
				position = i + 1
				break
			}
		}
		if position < 0 {
			return nil, ErrImageNotFound
		}
	}
	order = append(order[:position], append([]string{id}, order[position:]...)...)

	if err := service.databaseService.UpdateImageRanks(ctx, owner.Key(), database.Reorder(existing, order)); err != nil {
		return nil, err
	}
	return service.ListImages(ctx, owner)
}

// ShiftImage moves an image one position up or down. Moving past either end
// leaves the order unchanged.
func (service *CoreService) ShiftImage(ctx context.Context, owner Owner, id string, up bool) ([]*ProcessedImage, error) {
	images, err := service.databaseService.ListImages(ctx, owner.Key())
	if err != nil {
		return nil, err
	}
	idx := -1
	for i, image := range images {
		if image.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrImageNotFound
	}

	switch {
	case up && idx > 0:
		afterID := ""
		if idx > 1 {
			afterID = images[idx-2].ID
		}
		return service.MoveImage(ctx, owner, id, afterID)
	case !up && idx < len(images)-1:
		return service.MoveImage(ctx, owner, id, images[idx+1].ID)
	}
	return newProcessedImages(images), nil
}

// ConvertImage re-encodes an image into targetFormat in the background. The
// image switches to processing immediately.
func (service *CoreService) ConvertImage(ctx context.Context, owner Owner, id, targetFormat string, quality float64) (*ProcessedImage, error) {
	target, err := parseTargetFormat(targetFormat)
	if err != nil {
		return nil, err
	}
	if quality < 0 || quality > 1 {
		return nil, fmt.Errorf("%w: quality must be between 0 and 1", ErrInvalidOptions)
	}
	if quality == 0 {
		quality = convertQuality
	}
	if err := service.requireFinished(ctx, owner, id); err != nil {
		return nil, err
	}

	targetName := string(target)
	image, err := service.databaseService.TransitionImage(ctx, id, database.ImageUpdate{
		Status:       database.StatusProcessing,
		TargetFormat: &targetName,
	})
	if err != nil {
		return nil, err
	}
	return service.queueOrFail(ctx, image, worker.Job{ImageID: id, Kind: worker.KindConvert, TargetFormat: targetName, Quality: quality})
}

// RetryImage runs the processing pipeline again for a finished image
func (service *CoreService) RetryImage(ctx context.Context, owner Owner, id string) (*ProcessedImage, error) {
	if err := service.requireFinished(ctx, owner, id); err != nil {
		return nil, err
	}
	clearTarget := ""
	image, err := service.databaseService.TransitionImage(ctx, id, database.ImageUpdate{
		Status:       database.StatusProcessing,
		TargetFormat: &clearTarget,
	})
	if err != nil {
		return nil, err
	}
	return service.queueOrFail(ctx, image, worker.Job{ImageID: id, Kind: worker.KindProcess})
}

// ReprocessImages applies new options to every pending or completed image in
// the workspace. Pending images keep their queued job and pick up the new
// options when it runs; completed images are queued again. Images that are
// running or failed are left alone.
func (service *CoreService) ReprocessImages(ctx context.Context, owner Owner, opts ProcessOptions) ([]*ProcessedImage, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}
	options := string(encoded)

	images, err := service.databaseService.ListImages(ctx, owner.Key())
	if err != nil {
		return nil, err
	}
	requeued := make([]*ProcessedImage, 0, len(images))
	var queueErr error
	for _, image := range images {
		switch image.Status {
		case database.StatusPending:
			updated, err := service.databaseService.UpdatePendingOptions(ctx, image.ID, options)
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, database.ErrNotFound) {
				continue
			}
			if err != nil {
				return requeued, err
			}
			requeued = append(requeued, newProcessedImage(updated))
		case database.StatusCompleted:
			clearTarget := ""
			updated, err := service.databaseService.TransitionImage(ctx, image.ID, database.ImageUpdate{
				Status:       database.StatusProcessing,
				Options:      &options,
				TargetFormat: &clearTarget,
			})
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, database.ErrNotFound) {
				continue
			}
			if err != nil {
				return requeued, err
			}
			processed, err := service.queueOrFail(ctx, updated, worker.Job{ImageID: image.ID, Kind: worker.KindProcess})
			if err != nil && !errors.Is(err, worker.ErrQueueFull) {
				return requeued, err
			}
			if err != nil {
				queueErr = err
			}
			requeued = append(requeued, processed)
		}
	}
	return requeued, queueErr
}

// requireFinished rejects work on an image that is still queued or running
func (service *CoreService) requireFinished(ctx context.Context, owner Owner, id string) error {
	image, err := service.getImage(ctx, owner, id)
	if err != nil {
		return err
	}
	if !image.Status.IsTerminal() {
		return fmt.Errorf("%w: image %s is %s", ErrInvalidTransition, id, image.Status)
	}
	return nil
}

func (service *CoreService) queueOrFail(ctx context.Context, image *database.Image, job worker.Job) (*ProcessedImage, error) {
	err := service.enqueue(ctx, job)
	if err == nil {
		return newProcessedImage(image), nil
	}
	failed, failErr := service.databaseService.TransitionImage(ctx, image.ID, database.ImageUpdate{
		Status: database.StatusError,
		Error:  queueFullMessage,
	})
	if failErr != nil {
		slog.Error("failed to mark unqueued image", "image_id", image.ID, "error", failErr)
		return newProcessedImage(image), err
	}
	return newProcessedImage(failed), err
}

// DownloadImage returns the compressed image, or the original while no
// compressed version exists
func (service *CoreService) DownloadImage(ctx context.Context, owner Owner, id string) (*Download, error) {
	image, err := service.getImage(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	variant, name := blobstore.Original, image.OriginalName
	if image.CompressedSize != nil {
		variant, name = blobstore.Compressed, image.OutputName
	}
	data, contentType, err := service.blobs.Get(ctx, blobstore.Key(id, variant))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s of %s: %w", variant, id, err)
	}
	return &Download{Name: name, ContentType: contentType, Data: data}, nil
}

// Preview returns the JPEG thumbnail of the original or of the compressed
// result, falling back to the original while no result exists
func (service *CoreService) Preview(ctx context.Context, owner Owner, id string, compressed bool) (*Download, error) {
	if _, err := service.getImage(ctx, owner, id); err != nil {
		return nil, err
	}
	if compressed {
		data, contentType, err := service.blobs.Get(ctx, blobstore.Key(id, blobstore.CompressedPreview))
		if err == nil {
			return &Download{Name: id + "-compressed.jpg", ContentType: contentType, Data: data}, nil
		}
		if !errors.Is(err, blobstore.ErrNotFound) {
			return nil, err
		}
	}
	data, contentType, err := service.blobs.Get(ctx, blobstore.Key(id, blobstore.Preview))
	if err != nil {
		return nil, fmt.Errorf("failed to load preview of %s: %w", id, err)
	}
	return &Download{Name: id + ".jpg", ContentType: contentType, Data: data}, nil
}

// DownloadZip packs every completed image of the workspace into one archive
func (service *CoreService) DownloadZip(ctx context.Context, owner Owner) (*Download, error) {
	images, err := service.databaseService.ListImages(ctx, owner.Key())
	if err != nil {
		return nil, err
	}

	var entries []archive.Entry
	for _, image := range images {
		if image.Status != database.StatusCompleted {
			continue
		}
		data, _, err := service.blobs.Get(ctx, blobstore.Key(image.ID, blobstore.Compressed))
		if err != nil {
			return nil, fmt.Errorf("failed to load result of %s: %w", image.ID, err)
		}
		entries = append(entries, archive.Entry{
			Name:         image.OutputName,
			Data:         data,
			OriginalSize: image.OriginalSize,
			ModTime:      image.UpdatedAt,
		})
	}
	if len(entries) == 0 {
		return nil, ErrNoImagesReady
	}

	var buf bytes.Buffer
	if err := archive.Write(&buf, entries, archive.Options{}); err != nil {
		return nil, err
	}
	return &Download{Name: ArchiveName, ContentType: "application/zip", Data: buf.Bytes()}, nil
}
