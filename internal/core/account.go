package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jo-hoe/imagepress/internal/backend/commands"
	"github.com/jo-hoe/imagepress/internal/backend/database"
)

// UserProfile is the identity forwarded by the upstream proxy
type UserProfile struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	FirstName       string    `json:"firstName"`
	LastName        string    `json:"lastName"`
	ProfileImageURL string    `json:"profileImageUrl"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func newUserProfile(user *database.User) *UserProfile {
	return &UserProfile{
		ID:              user.ID,
		Email:           user.Email,
		FirstName:       user.FirstName,
		LastName:        user.LastName,
		ProfileImageURL: user.ProfileImageURL,
		CreatedAt:       user.CreatedAt,
		UpdatedAt:       user.UpdatedAt,
	}
}

// HistoryInput is a compression history row submitted by a client
type HistoryInput struct {
	OriginalFileName string  `json:"originalFileName" validate:"required"`
	OriginalSize     int64   `json:"originalSize" validate:"gte=0"`
	CompressedSize   int64   `json:"compressedSize" validate:"gte=0"`
	OriginalFormat   string  `json:"originalFormat" validate:"required"`
	TargetFormat     *string `json:"targetFormat"`
	CompressionRatio int     `json:"compressionRatio"`
	Preset           string  `json:"preset" validate:"required"`
}

type HistoryEntry struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	OriginalFileName string    `json:"originalFileName"`
	OriginalSize     int64     `json:"originalSize"`
	CompressedSize   int64     `json:"compressedSize"`
	OriginalFormat   string    `json:"originalFormat"`
	TargetFormat     *string   `json:"targetFormat"`
	CompressionRatio int       `json:"compressionRatio"`
	Preset           string    `json:"preset"`
	CreatedAt        time.Time `json:"createdAt"`
}

func newHistoryEntry(entry *database.CompressionHistory) *HistoryEntry {
	return &HistoryEntry{
		ID:               entry.ID,
		UserID:           entry.UserID,
		OriginalFileName: entry.OriginalFileName,
		OriginalSize:     entry.OriginalSize,
		CompressedSize:   entry.CompressedSize,
		OriginalFormat:   entry.OriginalFormat,
		TargetFormat:     entry.TargetFormat,
		CompressionRatio: entry.CompressionRatio,
		Preset:           entry.Preset,
		CreatedAt:        entry.CreatedAt,
	}
}

// PresetInput creates a saved preset. Quality is a percentage.
type PresetInput struct {
	Name              string  `json:"name" validate:"required,max=100"`
	CompressionPreset string  `json:"compressionPreset" validate:"required"`
	Quality           int     `json:"quality" validate:"gte=0,lte=100"`
	MaxSizeMB         int     `json:"maxSizeMB" validate:"gte=0"`
	ResizePreset      *string `json:"resizePreset"`
	IsDefault         bool    `json:"isDefault"`
}

// PresetPatch changes the non-nil fields of a saved preset
type PresetPatch struct {
	Name              *string `json:"name" validate:"omitempty,min=1,max=100"`
	CompressionPreset *string `json:"compressionPreset"`
	Quality           *int    `json:"quality" validate:"omitempty,gte=0,lte=100"`
	MaxSizeMB         *int    `json:"maxSizeMB" validate:"omitempty,gte=0"`
	ResizePreset      *string `json:"resizePreset"`
	IsDefault         *bool   `json:"isDefault"`
}

type Preset struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	Name              string    `json:"name"`
	CompressionPreset string    `json:"compressionPreset"`
	Quality           int       `json:"quality"`
	MaxSizeMB         int       `json:"maxSizeMB"`
	ResizePreset      *string   `json:"resizePreset"`
	IsDefault         bool      `json:"isDefault"`
	CreatedAt         time.Time `json:"createdAt"`
}

func newPreset(preset *database.SavedPreset) *Preset {
	return &Preset{
		ID:                preset.ID,
		UserID:            preset.UserID,
		Name:              preset.Name,
		CompressionPreset: preset.CompressionPreset,
		Quality:           preset.Quality,
		MaxSizeMB:         preset.MaxSizeMB,
		ResizePreset:      preset.ResizePreset,
		IsDefault:         preset.IsDefault,
		CreatedAt:         preset.CreatedAt,
	}
}

// EnsureUser stores the forwarded profile, refreshing it on every call
func (service *CoreService) EnsureUser(ctx context.Context, profile UserProfile) (*UserProfile, error) {
	if profile.ID == "" {
		return nil, ErrInvalidOwner
	}
	user, err := service.databaseService.UpsertUser(ctx, database.User{
		ID:              profile.ID,
		Email:           profile.Email,
		FirstName:       profile.FirstName,
		LastName:        profile.LastName,
		ProfileImageURL: profile.ProfileImageURL,
	})
	if err != nil {
		return nil, err
	}
	return newUserProfile(user), nil
}

func (service *CoreService) GetUser(ctx context.Context, id string) (*UserProfile, error) {
	user, err := service.databaseService.GetUser(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return newUserProfile(user), nil
}

func (service *CoreService) SaveCompressionHistory(ctx context.Context, userID string, input HistoryInput) (*HistoryEntry, error) {
	entry, err := service.databaseService.SaveCompressionHistory(ctx, database.CompressionHistory{
		UserID:           userID,
		OriginalFileName: input.OriginalFileName,
		OriginalSize:     input.OriginalSize,
		CompressedSize:   input.CompressedSize,
		OriginalFormat:   input.OriginalFormat,
		TargetFormat:     input.TargetFormat,
		CompressionRatio: input.CompressionRatio,
		Preset:           input.Preset,
	})
	if err != nil {
		return nil, err
	}
	return newHistoryEntry(entry), nil
}

// GetCompressionHistory lists the newest entries first. A non-positive limit
// uses the configured default.
func (service *CoreService) GetCompressionHistory(ctx context.Context, userID string, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = service.config.History.Limit
	}
	entries, err := service.databaseService.GetUserCompressionHistory(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	history := make([]*HistoryEntry, len(entries))
	for i, entry := range entries {
		history[i] = newHistoryEntry(entry)
	}
	return history, nil
}

func (service *CoreService) CreatePreset(ctx context.Context, userID string, input PresetInput) (*Preset, error) {
	if err := validatePresetNames(&input.CompressionPreset, input.ResizePreset); err != nil {
		return nil, err
	}
	preset, err := service.databaseService.CreatePreset(ctx, database.SavedPreset{
		UserID:            userID,
		Name:              input.Name,
		CompressionPreset: input.CompressionPreset,
		Quality:           input.Quality,
		MaxSizeMB:         input.MaxSizeMB,
		ResizePreset:      input.ResizePreset,
		IsDefault:         input.IsDefault,
	})
	if err != nil {
		return nil, err
	}
	return newPreset(preset), nil
}

func (service *CoreService) GetPresets(ctx context.Context, userID string) ([]*Preset, error) {
	saved, err := service.databaseService.GetUserPresets(ctx, userID)
	if err != nil {
		return nil, err
	}
	presets := make([]*Preset, len(saved))
	for i, preset := range saved {
		presets[i] = newPreset(preset)
	}
	return presets, nil
}

func (service *CoreService) GetPreset(ctx context.Context, userID, id string) (*Preset, error) {
	preset, err := service.databaseService.GetPreset(ctx, userID, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrPresetNotFound
	}
	if err != nil {
		return nil, err
	}
	return newPreset(preset), nil
}

func (service *CoreService) UpdatePreset(ctx context.Context, userID, id string, patch PresetPatch) (*Preset, error) {
	if err := validatePresetNames(patch.CompressionPreset, patch.ResizePreset); err != nil {
		return nil, err
	}
	preset, err := service.databaseService.UpdatePreset(ctx, userID, id, database.PresetUpdate{
		Name:              patch.Name,
		CompressionPreset: patch.CompressionPreset,
		Quality:           patch.Quality,
		MaxSizeMB:         patch.MaxSizeMB,
		ResizePreset:      patch.ResizePreset,
		IsDefault:         patch.IsDefault,
	})
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrPresetNotFound
	}
	if err != nil {
		return nil, err
	}
	return newPreset(preset), nil
}

// DeletePreset removes a preset owned by userID
func (service *CoreService) DeletePreset(ctx context.Context, userID, id string) error {
	err := service.databaseService.DeletePreset(ctx, userID, id)
	if errors.Is(err, database.ErrNotFound) {
		return ErrPresetNotFound
	}
	return err
}

// validatePresetNames checks the preset names that are set; an empty resize
// preset clears it
func validatePresetNames(compression, resize *string) error {
	if compression != nil {
		if _, ok := commands.CompressionSettingsFor(commands.CompressionPreset(*compression)); !ok {
			return fmt.Errorf("%w: unknown compression preset %q", ErrInvalidOptions, *compression)
		}
	}
	if resize != nil && *resize != "" && !commands.IsValidResizePreset(commands.ResizePreset(*resize)) {
		return fmt.Errorf("%w: unknown resize preset %q", ErrInvalidOptions, *resize)
	}
	return nil
}
