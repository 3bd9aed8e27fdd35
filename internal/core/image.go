package core

import (
	"errors"
	"time"

	"github.com/jo-hoe/imagepress/internal/backend/database"
)

var (
	ErrImageNotFound  = errors.New("image not found")
	ErrPresetNotFound = errors.New("preset not found")
	ErrUserNotFound   = errors.New("user not found")
	ErrInvalidOptions = errors.New("invalid options")
	ErrNoImagesReady  = errors.New("no images ready")
	ErrInvalidOwner   = errors.New("missing workspace owner")
	// ErrInvalidTransition is returned when an image is not in a state that allows the action
	ErrInvalidTransition = database.ErrInvalidTransition
)

// ProcessedImage is the workspace view of an image
type ProcessedImage struct {
	ID               string    `json:"id"`
	OriginalName     string    `json:"originalName"`
	OutputName       string    `json:"outputName"`
	OriginalSize     int64     `json:"originalSize"`
	CompressedSize   *int64    `json:"compressedSize"`
	CompressionRatio *int      `json:"compressionRatio"`
	Format           string    `json:"format"`
	TargetFormat     *string   `json:"targetFormat"`
	Width            int       `json:"width"`
	Height           int       `json:"height"`
	Status           string    `json:"status"`
	Error            *string   `json:"error"`
	Rank             string    `json:"rank"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func newProcessedImage(image *database.Image) *ProcessedImage {
	processed := &ProcessedImage{
		ID:               image.ID,
		OriginalName:     image.OriginalName,
		OutputName:       image.OutputName,
		OriginalSize:     image.OriginalSize,
		CompressedSize:   image.CompressedSize,
		CompressionRatio: image.CompressionRatio,
		Format:           image.Format,
		TargetFormat:     image.TargetFormat,
		Width:            image.Width,
		Height:           image.Height,
		Status:           string(image.Status),
		Rank:             image.Rank,
		CreatedAt:        image.CreatedAt,
		UpdatedAt:        image.UpdatedAt,
	}
	if image.Error != "" {
		message := image.Error
		processed.Error = &message
	}
	return processed
}

func newProcessedImages(images []*database.Image) []*ProcessedImage {
	processed := make([]*ProcessedImage, len(images))
	for i, image := range images {
		processed[i] = newProcessedImage(image)
	}
	return processed
}

// UploadedFile is one file of an upload batch
type UploadedFile struct {
	Name string
	Data []byte
}

// Rejection explains why a file of a batch was not accepted
type Rejection struct {
	FileName string `json:"fileName"`
	Reason   string `json:"reason"`
}

// AddResult reports the outcome of an upload batch
type AddResult struct {
	Accepted []*ProcessedImage `json:"accepted"`
	Rejected []Rejection       `json:"rejected"`
}

// Download is a file ready to be sent to a client
type Download struct {
	Name        string
	ContentType string
	Data        []byte
}
