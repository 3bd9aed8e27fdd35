package commands

import (
	"bytes"
	"fmt"
	"image/png"
	"log/slog"

	"github.com/gen2brain/heic"

	"github.com/jo-hoe/imagepress/internal/backend/commandstructure"
)

// NormalizeParams represents typed parameters for the normalize command
type NormalizeParams struct {
	HeicQuality       float64
	SvgFallbackWidth  int
	SvgFallbackHeight int
}

// NewNormalizeParamsFromMap creates NormalizeParams from a generic map
func NewNormalizeParamsFromMap(params map[string]any) (*NormalizeParams, error) {
	quality := commandstructure.GetFloatParam(params, "heicQuality", 0.9)
	if quality <= 0 || quality > 1 {
		return nil, fmt.Errorf("heicQuality must be in (0,1], got %v", quality)
	}
	w := commandstructure.GetIntParam(params, "svgFallbackWidth", defaultSVGSize)
	h := commandstructure.GetIntParam(params, "svgFallbackHeight", defaultSVGSize)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("svg fallback size must be positive, got %dx%d", w, h)
	}
	return &NormalizeParams{
		HeicQuality:       quality,
		SvgFallbackWidth:  w,
		SvgFallbackHeight: h,
	}, nil
}

// NormalizeCommand turns inputs the rest of the pipeline cannot encode into
// formats it can: HEIC becomes JPEG and SVG becomes PNG. Other known formats
// pass through untouched.
type NormalizeCommand struct {
	name   string
	params *NormalizeParams
}

// NewNormalizeCommand creates a normalize command from configuration parameters
func NewNormalizeCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewNormalizeParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &NormalizeCommand{
		name:   "NormalizeCommand",
		params: typedParams,
	}, nil
}

// Name returns the command name
func (c *NormalizeCommand) Name() string {
	return c.name
}

// Execute converts HEIC and SVG input and returns anything else as is
func (c *NormalizeCommand) Execute(imageData []byte) ([]byte, error) {
	format, ok := SniffFormat(imageData)
	if !ok {
		return nil, fmt.Errorf("failed to decode image: unrecognised image data")
	}

	switch format {
	case FormatHEIC:
		slog.Debug("NormalizeCommand: converting HEIC to JPEG",
			"input_size_bytes", len(imageData),
			"quality", c.params.HeicQuality)
		img, err := heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("failed to decode HEIC image: %w", err)
		}
		return encodeImage(img, FormatJPEG, c.params.HeicQuality)
	case FormatSVG:
		slog.Debug("NormalizeCommand: rasterising SVG to PNG", "input_size_bytes", len(imageData))
		img, err := rasterizeSVG(imageData, c.params.SvgFallbackWidth, c.params.SvgFallbackHeight)
		if err != nil {
			return nil, fmt.Errorf("failed to render SVG: %w", err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode rendered SVG as PNG: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return imageData, nil
	}
}

// GetParams returns the typed parameters
func (c *NormalizeCommand) GetParams() *NormalizeParams {
	return c.params
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("NormalizeCommand", NewNormalizeCommand); err != nil {
		panic(fmt.Sprintf("failed to register NormalizeCommand: %v", err))
	}
}
