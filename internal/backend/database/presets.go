package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const presetColumns = "id, user_id, name, compression_preset, quality, max_size_mb, resize_preset, is_default, created_at"

func (s *SQLDatabase) CreatePreset(ctx context.Context, preset SavedPreset) (*SavedPreset, error) {
	id, err := generateID()
	if err != nil {
		return nil, err
	}
	preset.ID = id
	createdAt := s.timestamp()
	_, err = s.exec(ctx, s.db, "INSERT INTO saved_presets ("+presetColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		preset.ID, preset.UserID, preset.Name, preset.CompressionPreset, preset.Quality, preset.MaxSizeMB,
		nullString(preset.ResizePreset), preset.IsDefault, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create preset: %w", err)
	}
	preset.CreatedAt = parseTime(createdAt)
	return &preset, nil
}

func (s *SQLDatabase) GetUserPresets(ctx context.Context, userID string) ([]*SavedPreset, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind("SELECT "+presetColumns+" FROM saved_presets WHERE user_id = ? ORDER BY created_at DESC, id"), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query presets: %w", err)
	}
	defer rows.Close()

	presets := make([]*SavedPreset, 0)
	for rows.Next() {
		preset, err := scanPreset(rows)
		if err != nil {
			return nil, err
		}
		presets = append(presets, preset)
	}
	return presets, rows.Err()
}

func (s *SQLDatabase) GetPreset(ctx context.Context, userID, id string) (*SavedPreset, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+presetColumns+" FROM saved_presets WHERE id = ? AND user_id = ?"), id, userID)
	preset, err := scanPreset(row)
	if err != nil {
		return nil, notFound(err)
	}
	return preset, nil
}

// UpdatePreset applies the non-nil fields of update to a preset owned by userID
func (s *SQLDatabase) UpdatePreset(ctx context.Context, userID, id string, update PresetUpdate) (*SavedPreset, error) {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if update.Name != nil {
		set("name", *update.Name)
	}
	if update.CompressionPreset != nil {
		set("compression_preset", *update.CompressionPreset)
	}
	if update.Quality != nil {
		set("quality", *update.Quality)
	}
	if update.MaxSizeMB != nil {
		set("max_size_mb", *update.MaxSizeMB)
	}
	if update.ResizePreset != nil {
		set("resize_preset", emptyAsNull(*update.ResizePreset))
	}
	if update.IsDefault != nil {
		set("is_default", *update.IsDefault)
	}
	if len(sets) == 0 {
		return s.GetPreset(ctx, userID, id)
	}

	args = append(args, id, userID)
	result, err := s.exec(ctx, s.db, "UPDATE saved_presets SET "+strings.Join(sets, ", ")+" WHERE id = ? AND user_id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update preset: %w", err)
	}
	if err := affectedOrNotFound(result); err != nil {
		return nil, err
	}
	return s.GetPreset(ctx, userID, id)
}

func (s *SQLDatabase) DeletePreset(ctx context.Context, userID, id string) error {
	result, err := s.exec(ctx, s.db, "DELETE FROM saved_presets WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete preset: %w", err)
	}
	return affectedOrNotFound(result)
}

func scanPreset(row scanner) (*SavedPreset, error) {
	var (
		preset       SavedPreset
		resizePreset sql.NullString
		createdAt    string
	)
	if err := row.Scan(&preset.ID, &preset.UserID, &preset.Name, &preset.CompressionPreset, &preset.Quality,
		&preset.MaxSizeMB, &resizePreset, &preset.IsDefault, &createdAt); err != nil {
		return nil, err
	}
	preset.ResizePreset = stringPtr(resizePreset)
	preset.CreatedAt = parseTime(createdAt)
	return &preset, nil
}
