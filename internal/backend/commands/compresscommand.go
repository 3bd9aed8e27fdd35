package commands

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/disintegration/imaging"

	"github.com/jo-hoe/imagepress/internal/backend/commandstructure"
)

const (
	// DefaultMaxWidthOrHeight caps the longest edge before any size search
	DefaultMaxWidthOrHeight = 4096
	defaultMaxIterations    = 10

	qualityStep     = 0.1
	minLossyQuality = 0.4
	scaleStep       = 0.9
)

// CompressParams represents typed parameters for the compress command
type CompressParams struct {
	MaxSizeBytes     int64
	Quality          float64
	MaxWidthOrHeight int
	MaxIterations    int
}

// NewCompressParamsFromMap creates CompressParams from a generic map
func NewCompressParamsFromMap(params map[string]any) (*CompressParams, error) {
	p := &CompressParams{
		MaxSizeBytes:     commandstructure.GetInt64Param(params, "maxSizeBytes", 1024*1024),
		Quality:          commandstructure.GetFloatParam(params, "quality", 0.8),
		MaxWidthOrHeight: commandstructure.GetIntParam(params, "maxWidthOrHeight", DefaultMaxWidthOrHeight),
		MaxIterations:    commandstructure.GetIntParam(params, "maxIterations", defaultMaxIterations),
	}
	if p.MaxSizeBytes <= 0 {
		return nil, fmt.Errorf("maxSizeBytes must be positive, got %d", p.MaxSizeBytes)
	}
	if p.Quality <= 0 || p.Quality > 1 {
		return nil, fmt.Errorf("quality must be in (0,1], got %v", p.Quality)
	}
	if p.MaxWidthOrHeight <= 0 {
		return nil, fmt.Errorf("maxWidthOrHeight must be positive, got %d", p.MaxWidthOrHeight)
	}
	if p.MaxIterations <= 0 {
		return nil, fmt.Errorf("maxIterations must be positive, got %d", p.MaxIterations)
	}
	return p, nil
}

// CompressCommand re-encodes an image in its own format until it fits a byte budget
type CompressCommand struct {
	name   string
	params *CompressParams
}

// NewCompressCommand creates a new compress command from configuration parameters
func NewCompressCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewCompressParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &CompressCommand{
		name:   "CompressCommand",
		params: typedParams,
	}, nil
}

// Name returns the command name
func (c *CompressCommand) Name() string {
	return c.name
}

// Execute caps the longest edge, then alternates between lowering quality
// (lossy encoders only) and shrinking the image until the output fits
// MaxSizeBytes or the iteration budget runs out. The smallest candidate wins;
// an untouched input is returned when nothing beats it.
func (c *CompressCommand) Execute(imageData []byte) ([]byte, error) {
	img, format, err := decodeImage(imageData)
	if err != nil {
		return nil, err
	}
	target := outputFormat(format)
	changed := target != format.Canonical()

	bounds := img.Bounds()
	if longest := max(bounds.Dx(), bounds.Dy()); longest > c.params.MaxWidthOrHeight {
		img = imaging.Fit(img, c.params.MaxWidthOrHeight, c.params.MaxWidthOrHeight, imaging.Lanczos)
		changed = true
		slog.Debug("CompressCommand: capped dimensions",
			"original_longest_edge", longest,
			"max_width_or_height", c.params.MaxWidthOrHeight)
	}

	quality := c.params.Quality
	var best []byte
	for iteration := 0; iteration < c.params.MaxIterations; iteration++ {
		out, err := encodeImage(img, target, quality)
		if err != nil {
			return nil, err
		}
		if best == nil || len(out) < len(best) {
			best = out
		}
		slog.Debug("CompressCommand: candidate encoded",
			"iteration", iteration,
			"quality", quality,
			"width", img.Bounds().Dx(),
			"height", img.Bounds().Dy(),
			"size_bytes", len(out),
			"max_size_bytes", c.params.MaxSizeBytes)
		if int64(len(out)) <= c.params.MaxSizeBytes {
			break
		}

		if target.IsLossy() && quality > minLossyQuality {
			quality = math.Max(minLossyQuality, quality-qualityStep)
			continue
		}
		b := img.Bounds()
		nextW := int(float64(b.Dx()) * scaleStep)
		nextH := int(float64(b.Dy()) * scaleStep)
		if nextW < 1 || nextH < 1 {
			break
		}
		img = imaging.Resize(img, nextW, nextH, imaging.Lanczos)
		changed = true
	}

	if !changed && len(best) >= len(imageData) {
		slog.Debug("CompressCommand: no candidate beat the input; returning original bytes")
		return imageData, nil
	}
	return best, nil
}

// GetParams returns the typed parameters
func (c *CompressCommand) GetParams() *CompressParams {
	return c.params
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("CompressCommand", NewCompressCommand); err != nil {
		panic(fmt.Sprintf("failed to register CompressCommand: %v", err))
	}
}
