package database

import (
	"context"
	"fmt"
	"strings"
)

func (s *SQLDatabase) PutBlob(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.exec(ctx, s.db, `INSERT INTO blobs (blob_key, content_type, data, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (blob_key) DO UPDATE SET content_type = excluded.content_type, data = excluded.data, created_at = excluded.created_at`,
		key, contentType, data, s.timestamp())
	if err != nil {
		return fmt.Errorf("failed to store blob %s: %w", key, err)
	}
	return nil
}

func (s *SQLDatabase) GetBlob(ctx context.Context, key string) ([]byte, string, error) {
	var (
		data        []byte
		contentType string
	)
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT data, content_type FROM blobs WHERE blob_key = ?"), key)
	if err := row.Scan(&data, &contentType); err != nil {
		return nil, "", notFound(err)
	}
	return data, contentType, nil
}

// DeleteBlobs removes every blob whose key starts with prefix
func (s *SQLDatabase) DeleteBlobs(ctx context.Context, prefix string) error {
	if prefix == "" {
		return fmt.Errorf("refusing to delete blobs without a prefix")
	}
	// keys are generated ids and fixed suffixes, so LIKE wildcards cannot appear in them
	pattern := strings.NewReplacer("%", "", "_", "").Replace(prefix)
	if pattern != prefix {
		return fmt.Errorf("invalid blob prefix %q", prefix)
	}
	_, err := s.exec(ctx, s.db, "DELETE FROM blobs WHERE blob_key LIKE ?", prefix+"%")
	if err != nil {
		return fmt.Errorf("failed to delete blobs under %s: %w", prefix, err)
	}
	return nil
}
