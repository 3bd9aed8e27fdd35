package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when no blob exists under a key
var ErrNotFound = errors.New("blob not found")

// Store persists image payloads by key
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, string, error)
	DeletePrefix(ctx context.Context, prefix string) error
}

// Variant names one of the payloads kept for an image
type Variant string

const (
	Original          Variant = "original"
	Compressed        Variant = "compressed"
	Preview           Variant = "preview"
	CompressedPreview Variant = "compressed-preview"
)

// Key returns the storage key of an image variant
func Key(imageID string, variant Variant) string {
	return Prefix(imageID) + string(variant)
}

// Prefix returns the key prefix shared by all variants of an image
func Prefix(imageID string) string {
	return "images/" + imageID + "/"
}

// Config selects and configures a Store
type Config struct {
	Type string   `yaml:"type"`
	S3   S3Config `yaml:"s3"`
}

// NewStore builds the configured store. The database store needs blobs, the
// S3 store does not.
func NewStore(ctx context.Context, cfg Config, blobs BlobDatabase) (Store, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "database":
		if blobs == nil {
			return nil, fmt.Errorf("database blob store requires a database")
		}
		return NewDatabaseStore(blobs), nil
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
