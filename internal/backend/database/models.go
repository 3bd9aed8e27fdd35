package database

import "time"

// User is a profile forwarded by the identity proxy
type User struct {
	ID              string    `db:"id"`
	Email           string    `db:"email"`
	FirstName       string    `db:"first_name"`
	LastName        string    `db:"last_name"`
	ProfileImageURL string    `db:"profile_image_url"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// CompressionHistory records one finished compression or conversion
type CompressionHistory struct {
	ID               string    `db:"id"`
	UserID           string    `db:"user_id"`
	OriginalFileName string    `db:"original_file_name"`
	OriginalSize     int64     `db:"original_size"`
	CompressedSize   int64     `db:"compressed_size"`
	OriginalFormat   string    `db:"original_format"`
	TargetFormat     *string   `db:"target_format"`
	CompressionRatio int       `db:"compression_ratio"`
	Preset           string    `db:"preset"`
	CreatedAt        time.Time `db:"created_at"`
}

// SavedPreset is a named set of compression options
type SavedPreset struct {
	ID                string    `db:"id"`
	UserID            string    `db:"user_id"`
	Name              string    `db:"name"`
	CompressionPreset string    `db:"compression_preset"`
	Quality           int       `db:"quality"`
	MaxSizeMB         int       `db:"max_size_mb"`
	ResizePreset      *string   `db:"resize_preset"`
	IsDefault         bool      `db:"is_default"`
	CreatedAt         time.Time `db:"created_at"`
}

// PresetUpdate holds the fields of a partial preset update; nil means unchanged
type PresetUpdate struct {
	Name              *string
	CompressionPreset *string
	Quality           *int
	MaxSizeMB         *int
	ResizePreset      *string
	IsDefault         *bool
}

// Image is a workspace entry. Binary payloads live in the blob store under
// keys derived from ID.
type Image struct {
	ID               string      `db:"id"`
	OwnerID          string      `db:"owner_id"`
	UserID           string      `db:"user_id"`
	OriginalName     string      `db:"original_name"`
	OutputName       string      `db:"output_name"`
	OriginalSize     int64       `db:"original_size"`
	CompressedSize   *int64      `db:"compressed_size"`
	CompressionRatio *int        `db:"compression_ratio"`
	Format           string      `db:"format"`
	TargetFormat     *string     `db:"target_format"`
	Width            int         `db:"width"`
	Height           int         `db:"height"`
	Status           ImageStatus `db:"status"`
	Error            string      `db:"error"`
	Rank             string      `db:"rank"` // LexoRank string to maintain ordering
	Options          string      `db:"options"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
}

// ImageUpdate describes a status transition and the fields that change with it
type ImageUpdate struct {
	Status           ImageStatus
	OutputName       *string
	CompressedSize   *int64
	CompressionRatio *int
	TargetFormat     *string
	Options          *string
	// Error replaces the stored error; empty clears it
	Error string
}
