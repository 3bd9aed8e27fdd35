package core

import (
	"fmt"

	"github.com/jo-hoe/imagepress/internal/backend/commands"
	"github.com/jo-hoe/imagepress/internal/backend/commandstructure"
)

// ProcessOptions are the per-batch choices applied to every uploaded image
type ProcessOptions struct {
	CompressionPreset string `json:"compressionPreset"`
	// Quality and MaxSizeMB override the preset when CompressionPreset is custom
	Quality             float64 `json:"quality,omitempty"`
	MaxSizeMB           float64 `json:"maxSizeMB,omitempty"`
	ResizePreset        string  `json:"resizePreset,omitempty"`
	Width               int     `json:"width,omitempty"`
	Height              int     `json:"height,omitempty"`
	MaintainAspectRatio bool    `json:"maintainAspectRatio"`
	TargetFormat        string  `json:"targetFormat,omitempty"`
}

// DefaultProcessOptions compresses with the auto preset and no resize
func DefaultProcessOptions() ProcessOptions {
	return ProcessOptions{
		CompressionPreset:   string(commands.PresetAuto),
		MaintainAspectRatio: true,
	}
}

func (o ProcessOptions) Validate() error {
	if _, ok := commands.CompressionSettingsFor(commands.CompressionPreset(o.CompressionPreset)); !ok {
		return fmt.Errorf("%w: unknown compression preset %q", ErrInvalidOptions, o.CompressionPreset)
	}
	if o.Quality < 0 || o.Quality > 1 {
		return fmt.Errorf("%w: quality must be between 0 and 1", ErrInvalidOptions)
	}
	if o.MaxSizeMB < 0 {
		return fmt.Errorf("%w: maxSizeMB must not be negative", ErrInvalidOptions)
	}
	if o.ResizePreset != "" && !commands.IsValidResizePreset(commands.ResizePreset(o.ResizePreset)) {
		return fmt.Errorf("%w: unknown resize preset %q", ErrInvalidOptions, o.ResizePreset)
	}
	if o.Width < 0 || o.Height < 0 {
		return fmt.Errorf("%w: dimensions must not be negative", ErrInvalidOptions)
	}
	if o.TargetFormat != "" {
		if _, err := parseTargetFormat(o.TargetFormat); err != nil {
			return err
		}
	}
	return nil
}

// compressionSettings resolves the preset, applying custom overrides
func (o ProcessOptions) compressionSettings() commands.CompressionSettings {
	preset := commands.CompressionPreset(o.CompressionPreset)
	settings, ok := commands.CompressionSettingsFor(preset)
	if !ok {
		settings, _ = commands.CompressionSettingsFor(commands.PresetAuto)
	}
	if preset == commands.PresetCustom {
		if o.Quality > 0 {
			settings.Quality = o.Quality
		}
		if o.MaxSizeMB > 0 {
			settings.MaxSizeMB = o.MaxSizeMB
		}
	}
	return settings
}

// resizeCommand returns the resize step, if the options ask for one. Named
// presets always resize; custom needs an explicit dimension.
func (o ProcessOptions) resizeCommand() (commandstructure.CommandConfig, bool) {
	preset := commands.ResizePreset(o.ResizePreset)
	if preset != "" && preset != commands.ResizeCustom {
		return commandstructure.CommandConfig{
			Name:   "ResizeCommand",
			Params: map[string]any{"preset": o.ResizePreset, "maintainAspectRatio": true},
		}, true
	}
	if o.Width > 0 || o.Height > 0 {
		return commandstructure.CommandConfig{
			Name: "ResizeCommand",
			Params: map[string]any{
				"preset":              string(commands.ResizeCustom),
				"width":               o.Width,
				"height":              o.Height,
				"maintainAspectRatio": o.MaintainAspectRatio,
			},
		}, true
	}
	return commandstructure.CommandConfig{}, false
}

func parseTargetFormat(raw string) (commands.Format, error) {
	format, ok := commands.ParseFormat(raw)
	if !ok || !format.IsEncodable() {
		return "", fmt.Errorf("%w: unsupported target format %q", ErrInvalidOptions, raw)
	}
	return format, nil
}
