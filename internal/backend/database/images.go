package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const imageColumns = "id, owner_id, user_id, original_name, output_name, original_size, compressed_size, compression_ratio, format, target_format, width, height, status, error, rank, options, created_at, updated_at"

func (s *SQLDatabase) CreateImage(ctx context.Context, image Image) (*Image, error) {
	id, err := generateID()
	if err != nil {
		return nil, err
	}
	image.ID = id
	image.Status = StatusPending
	if image.OutputName == "" {
		image.OutputName = image.OriginalName
	}
	if image.Options == "" {
		image.Options = "{}"
	}
	now := s.timestamp()

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var last sql.NullString
		row := tx.QueryRowContext(ctx, s.rebind("SELECT MAX(rank) FROM images WHERE owner_id = ?"), image.OwnerID)
		if err := row.Scan(&last); err != nil {
			return err
		}
		image.Rank = Next(last.String)

		_, err := s.exec(ctx, tx, "INSERT INTO images ("+imageColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			image.ID, image.OwnerID, emptyAsNull(image.UserID), image.OriginalName, image.OutputName, image.OriginalSize,
			image.CompressedSize, image.CompressionRatio, image.Format, nullString(image.TargetFormat),
			image.Width, image.Height, image.Status, emptyAsNull(image.Error), image.Rank, image.Options, now, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create image: %w", err)
	}
	image.CreatedAt = parseTime(now)
	image.UpdatedAt = image.CreatedAt
	return &image, nil
}

func (s *SQLDatabase) GetImage(ctx context.Context, ownerID, id string) (*Image, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+imageColumns+" FROM images WHERE id = ? AND owner_id = ?"), id, ownerID)
	image, err := scanImage(row)
	if err != nil {
		return nil, notFound(err)
	}
	return image, nil
}

func (s *SQLDatabase) GetImageByID(ctx context.Context, id string) (*Image, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+imageColumns+" FROM images WHERE id = ?"), id)
	image, err := scanImage(row)
	if err != nil {
		return nil, notFound(err)
	}
	return image, nil
}

// ListImages returns the owner's images in rank order
func (s *SQLDatabase) ListImages(ctx context.Context, ownerID string) ([]*Image, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind("SELECT "+imageColumns+" FROM images WHERE owner_id = ? ORDER BY rank, created_at"), ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	images := make([]*Image, 0)
	for rows.Next() {
		image, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, image)
	}
	return images, rows.Err()
}

// ListUnfinishedImages returns every image still pending or processing, oldest first
func (s *SQLDatabase) ListUnfinishedImages(ctx context.Context) ([]*Image, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind("SELECT "+imageColumns+" FROM images WHERE status IN (?, ?) ORDER BY created_at"),
		StatusPending, StatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("failed to query unfinished images: %w", err)
	}
	defer rows.Close()

	images := make([]*Image, 0)
	for rows.Next() {
		image, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, image)
	}
	return images, rows.Err()
}

func (s *SQLDatabase) CountImages(ctx context.Context, ownerID string) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT COUNT(*) FROM images WHERE owner_id = ?"), ownerID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count images: %w", err)
	}
	return count, nil
}

// TransitionImage moves an image to update.Status. The update is conditional on
// the status read beforehand, so two concurrent transitions cannot both win.
func (s *SQLDatabase) TransitionImage(ctx context.Context, id string, update ImageUpdate) (*Image, error) {
	current, err := s.GetImageByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(current.Status, update.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, update.Status)
	}

	sets := []string{"status = ?", "error = ?", "updated_at = ?"}
	args := []any{update.Status, emptyAsNull(update.Error), s.timestamp()}
	if update.OutputName != nil {
		sets = append(sets, "output_name = ?")
		args = append(args, *update.OutputName)
	}
	if update.CompressedSize != nil {
		sets = append(sets, "compressed_size = ?")
		args = append(args, *update.CompressedSize)
	}
	if update.CompressionRatio != nil {
		sets = append(sets, "compression_ratio = ?")
		args = append(args, *update.CompressionRatio)
	}
	if update.TargetFormat != nil {
		sets = append(sets, "target_format = ?")
		args = append(args, emptyAsNull(*update.TargetFormat))
	}
	if update.Options != nil {
		sets = append(sets, "options = ?")
		args = append(args, *update.Options)
	}
	args = append(args, id, current.Status)

	result, err := s.exec(ctx, s.db, "UPDATE images SET "+strings.Join(sets, ", ")+" WHERE id = ? AND status = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update image: %w", err)
	}
	if err := affectedOrNotFound(result); err != nil {
		if _, gerr := s.GetImageByID(ctx, id); errors.Is(gerr, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, id)
	}
	return s.GetImageByID(ctx, id)
}

// UpdatePendingOptions replaces the options of an image that is still waiting
// for its job. ErrInvalidTransition means the job already picked it up.
func (s *SQLDatabase) UpdatePendingOptions(ctx context.Context, id, options string) (*Image, error) {
	result, err := s.exec(ctx, s.db, "UPDATE images SET options = ?, target_format = NULL, updated_at = ? WHERE id = ? AND status = ?",
		options, s.timestamp(), id, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to update image options: %w", err)
	}
	if err := affectedOrNotFound(result); err != nil {
		if _, gerr := s.GetImageByID(ctx, id); errors.Is(gerr, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %s is no longer pending", ErrInvalidTransition, id)
	}
	return s.GetImageByID(ctx, id)
}

// UpdateImageRanks stores new ranks for the owner's images in one transaction
func (s *SQLDatabase) UpdateImageRanks(ctx context.Context, ownerID string, ranks map[string]string) error {
	if len(ranks) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.timestamp()
		for id, rank := range ranks {
			result, err := s.exec(ctx, tx, "UPDATE images SET rank = ?, updated_at = ? WHERE id = ? AND owner_id = ?", rank, now, id, ownerID)
			if err != nil {
				return fmt.Errorf("failed to update rank of %s: %w", id, err)
			}
			if err := affectedOrNotFound(result); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLDatabase) DeleteImage(ctx context.Context, ownerID, id string) error {
	result, err := s.exec(ctx, s.db, "DELETE FROM images WHERE id = ? AND owner_id = ?", id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return affectedOrNotFound(result)
}

func scanImage(row scanner) (*Image, error) {
	var (
		image                      Image
		userID, targetFormat, errs sql.NullString
		compressedSize, ratio      sql.NullInt64
		createdAt, updatedAt       string
	)
	if err := row.Scan(&image.ID, &image.OwnerID, &userID, &image.OriginalName, &image.OutputName, &image.OriginalSize,
		&compressedSize, &ratio, &image.Format, &targetFormat, &image.Width, &image.Height, &image.Status, &errs,
		&image.Rank, &image.Options, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	image.UserID = userID.String
	image.TargetFormat = stringPtr(targetFormat)
	image.Error = errs.String
	if compressedSize.Valid {
		size := compressedSize.Int64
		image.CompressedSize = &size
	}
	if ratio.Valid {
		r := int(ratio.Int64)
		image.CompressionRatio = &r
	}
	image.CreatedAt = parseTime(createdAt)
	image.UpdatedAt = parseTime(updatedAt)
	return &image, nil
}
