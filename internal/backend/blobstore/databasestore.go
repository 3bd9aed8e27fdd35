package blobstore

import (
	"context"
	"errors"

	"github.com/jo-hoe/imagepress/internal/backend/database"
)

// BlobDatabase is the subset of the database service holding blobs
type BlobDatabase interface {
	PutBlob(ctx context.Context, key, contentType string, data []byte) error
	GetBlob(ctx context.Context, key string) ([]byte, string, error)
	DeleteBlobs(ctx context.Context, prefix string) error
}

// DatabaseStore keeps blobs in the service database
type DatabaseStore struct {
	db BlobDatabase
}

func NewDatabaseStore(db BlobDatabase) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func (s *DatabaseStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	return s.db.PutBlob(ctx, key, contentType, data)
}

func (s *DatabaseStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	data, contentType, err := s.db.GetBlob(ctx, key)
	if errors.Is(err, database.ErrNotFound) {
		return nil, "", ErrNotFound
	}
	return data, contentType, err
}

func (s *DatabaseStore) DeletePrefix(ctx context.Context, prefix string) error {
	return s.db.DeleteBlobs(ctx, prefix)
}
