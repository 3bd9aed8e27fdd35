package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Type names what happened to an image
type Type string

const (
	ImageCompleted Type = "image.completed"
	ImageFailed    Type = "image.failed"
)

// Event describes the outcome of a processing job
type Event struct {
	Type             Type      `json:"type"`
	ImageID          string    `json:"imageId"`
	UserID           string    `json:"userId,omitempty"`
	OriginalName     string    `json:"originalName"`
	OutputName       string    `json:"outputName,omitempty"`
	Format           string    `json:"format,omitempty"`
	OriginalSize     int64     `json:"originalSize"`
	CompressedSize   int64     `json:"compressedSize,omitempty"`
	CompressionRatio int       `json:"compressionRatio,omitempty"`
	Error            string    `json:"error,omitempty"`
	OccurredAt       time.Time `json:"occurredAt"`
}

// Publisher delivers events to interested parties
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Config selects a publisher
type Config struct {
	Type  string      `yaml:"type"`
	Kafka KafkaConfig `yaml:"kafka"`
}

// NewPublisher builds the configured publisher; an empty type logs events
func NewPublisher(cfg Config) (Publisher, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "log":
		return LogPublisher{}, nil
	case "kafka":
		return NewKafkaPublisher(cfg.Kafka)
	default:
		return nil, fmt.Errorf("unsupported events type: %s", cfg.Type)
	}
}

// LogPublisher writes events to the structured log
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, event Event) error {
	slog.Info("image event", "type", event.Type, "image_id", event.ImageID,
		"original_size_bytes", event.OriginalSize, "compressed_size_bytes", event.CompressedSize, "error", event.Error)
	return nil
}

func (LogPublisher) Close() error { return nil }
