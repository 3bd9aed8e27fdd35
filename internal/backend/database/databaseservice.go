package database

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a row does not exist or is not visible to the caller
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when an image status change is not allowed
	ErrInvalidTransition = errors.New("invalid status transition")
)

// DatabaseService is the persistence boundary of the service
type DatabaseService interface {
	Migrate(ctx context.Context) error
	DoesDatabaseExist(ctx context.Context) bool
	Close() error

	GetUser(ctx context.Context, id string) (*User, error)
	UpsertUser(ctx context.Context, user User) (*User, error)

	SaveCompressionHistory(ctx context.Context, entry CompressionHistory) (*CompressionHistory, error)
	GetUserCompressionHistory(ctx context.Context, userID string, limit int) ([]*CompressionHistory, error)

	CreatePreset(ctx context.Context, preset SavedPreset) (*SavedPreset, error)
	GetUserPresets(ctx context.Context, userID string) ([]*SavedPreset, error)
	GetPreset(ctx context.Context, userID, id string) (*SavedPreset, error)
	UpdatePreset(ctx context.Context, userID, id string, update PresetUpdate) (*SavedPreset, error)
	DeletePreset(ctx context.Context, userID, id string) error

	// CreateImage stores a pending image ranked after the owner's last image
	CreateImage(ctx context.Context, image Image) (*Image, error)
	GetImage(ctx context.Context, ownerID, id string) (*Image, error)
	GetImageByID(ctx context.Context, id string) (*Image, error)
	ListImages(ctx context.Context, ownerID string) ([]*Image, error)
	ListUnfinishedImages(ctx context.Context) ([]*Image, error)
	CountImages(ctx context.Context, ownerID string) (int, error)
	// TransitionImage applies update if the status change is allowed from the stored status
	TransitionImage(ctx context.Context, id string, update ImageUpdate) (*Image, error)
	UpdatePendingOptions(ctx context.Context, id, options string) (*Image, error)
	UpdateImageRanks(ctx context.Context, ownerID string, ranks map[string]string) error
	DeleteImage(ctx context.Context, ownerID, id string) error

	BlobDatabase
}

// BlobDatabase stores binary payloads by key
type BlobDatabase interface {
	PutBlob(ctx context.Context, key, contentType string, data []byte) error
	GetBlob(ctx context.Context, key string) ([]byte, string, error)
	DeleteBlobs(ctx context.Context, prefix string) error
}
