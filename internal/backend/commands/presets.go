package commands

import "sort"

// CompressionPreset names a size/quality target
type CompressionPreset string

const (
	PresetAuto   CompressionPreset = "auto"
	Preset200KB  CompressionPreset = "200kb"
	Preset100KB  CompressionPreset = "100kb"
	Preset50KB   CompressionPreset = "50kb"
	PresetCustom CompressionPreset = "custom"
)

// CompressionSettings is the target of a compression preset
type CompressionSettings struct {
	MaxSizeMB float64 `json:"maxSizeMB"`
	Quality   float64 `json:"quality"`
}

// MaxSizeBytes converts the megabyte target using 1 MB = 1024*1024 bytes
func (s CompressionSettings) MaxSizeBytes() int64 {
	return int64(s.MaxSizeMB * 1024 * 1024)
}

var compressionPresets = map[CompressionPreset]CompressionSettings{
	PresetAuto:   {MaxSizeMB: 1, Quality: 0.8},
	Preset200KB:  {MaxSizeMB: 0.2, Quality: 0.75},
	Preset100KB:  {MaxSizeMB: 0.1, Quality: 0.7},
	Preset50KB:   {MaxSizeMB: 0.05, Quality: 0.65},
	PresetCustom: {MaxSizeMB: 1, Quality: 0.8},
}

// CompressionSettingsFor returns the settings of a known preset
func CompressionSettingsFor(preset CompressionPreset) (CompressionSettings, bool) {
	s, ok := compressionPresets[preset]
	return s, ok
}

// ResizePreset names a target box for resizing
type ResizePreset string

const (
	ResizeInstagramSquare   ResizePreset = "instagram-square"
	ResizeInstagramPortrait ResizePreset = "instagram-portrait"
	ResizeShopify           ResizePreset = "shopify"
	ResizeEtsy              ResizePreset = "etsy"
	ResizeWebHD             ResizePreset = "web-hd"
	ResizeWebThumbnail      ResizePreset = "web-thumbnail"
	ResizeCustom            ResizePreset = "custom"
)

// Size is a pixel box
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

var resizePresets = map[ResizePreset]Size{
	ResizeInstagramSquare:   {Width: 1080, Height: 1080},
	ResizeInstagramPortrait: {Width: 1080, Height: 1350},
	ResizeShopify:           {Width: 2048, Height: 2048},
	ResizeEtsy:              {Width: 2000, Height: 2000},
	ResizeWebHD:             {Width: 1920, Height: 1080},
	ResizeWebThumbnail:      {Width: 400, Height: 400},
}

// ResizePresetSize returns the box of a named preset. custom has no box.
func ResizePresetSize(preset ResizePreset) (Size, bool) {
	s, ok := resizePresets[preset]
	return s, ok
}

// IsValidResizePreset accepts the named presets and custom
func IsValidResizePreset(preset ResizePreset) bool {
	if preset == ResizeCustom {
		return true
	}
	_, ok := resizePresets[preset]
	return ok
}

// ResizePresetNames lists the presets with a fixed box
func ResizePresetNames() []ResizePreset {
	names := make([]ResizePreset, 0, len(resizePresets))
	for name := range resizePresets {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// CompressionMethod decides whether quality may be traded for size
type CompressionMethod string

const (
	MethodLossy    CompressionMethod = "lossy"
	MethodLossless CompressionMethod = "lossless"
)

const (
	smallPNGThreshold  = 500 * 1024
	largeFileThreshold = 1024 * 1024
)

// DetermineCompressionMethod picks lossless for small PNGs, lossy for the
// photographic formats and otherwise decides by size.
func DetermineCompressionMethod(format Format, size int64) CompressionMethod {
	if format == FormatPNG && size < smallPNGThreshold {
		return MethodLossless
	}
	switch format {
	case FormatJPEG, FormatJPG, FormatWebP:
		return MethodLossy
	}
	if size > largeFileThreshold {
		return MethodLossy
	}
	return MethodLossless
}
