package database

import (
	"context"
	"database/sql"
	"fmt"
)

const historyColumns = "id, user_id, original_file_name, original_size, compressed_size, original_format, target_format, compression_ratio, preset, created_at"

func (s *SQLDatabase) SaveCompressionHistory(ctx context.Context, entry CompressionHistory) (*CompressionHistory, error) {
	id, err := generateID()
	if err != nil {
		return nil, err
	}
	entry.ID = id
	createdAt := s.timestamp()
	_, err = s.exec(ctx, s.db, "INSERT INTO compression_history ("+historyColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		entry.ID, entry.UserID, entry.OriginalFileName, entry.OriginalSize, entry.CompressedSize,
		entry.OriginalFormat, nullString(entry.TargetFormat), entry.CompressionRatio, entry.Preset, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save compression history: %w", err)
	}
	entry.CreatedAt = parseTime(createdAt)
	return &entry, nil
}

// GetUserCompressionHistory returns the newest entries first
func (s *SQLDatabase) GetUserCompressionHistory(ctx context.Context, userID string, limit int) ([]*CompressionHistory, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind("SELECT "+historyColumns+" FROM compression_history WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ?"), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query compression history: %w", err)
	}
	defer rows.Close()

	entries := make([]*CompressionHistory, 0)
	for rows.Next() {
		var (
			entry        CompressionHistory
			targetFormat sql.NullString
			createdAt    string
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.OriginalFileName, &entry.OriginalSize, &entry.CompressedSize,
			&entry.OriginalFormat, &targetFormat, &entry.CompressionRatio, &entry.Preset, &createdAt); err != nil {
			return nil, err
		}
		entry.TargetFormat = stringPtr(targetFormat)
		entry.CreatedAt = parseTime(createdAt)
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
