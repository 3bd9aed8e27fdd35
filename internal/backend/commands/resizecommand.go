package commands

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/disintegration/imaging"

	"github.com/jo-hoe/imagepress/internal/backend/commandstructure"
)

// ResizeParams represents typed parameters for the resize command
type ResizeParams struct {
	Preset              ResizePreset
	Width               int
	Height              int
	MaintainAspectRatio bool
	Quality             float64
}

// NewResizeParamsFromMap creates ResizeParams from a generic map. A named
// preset supplies both dimensions; custom (or no preset) reads width/height.
func NewResizeParamsFromMap(params map[string]any) (*ResizeParams, error) {
	preset := ResizePreset(commandstructure.GetStringParam(params, "preset", string(ResizeCustom)))
	if preset == "" {
		preset = ResizeCustom
	}
	if !IsValidResizePreset(preset) {
		return nil, fmt.Errorf("unknown resize preset: %s", preset)
	}

	width := commandstructure.GetIntParam(params, "width", 0)
	height := commandstructure.GetIntParam(params, "height", 0)
	if size, ok := ResizePresetSize(preset); ok {
		width, height = size.Width, size.Height
	}
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("dimensions must not be negative, got %dx%d", width, height)
	}
	if width == 0 && height == 0 {
		return nil, fmt.Errorf("resize requires a preset or at least one of width and height")
	}

	quality := commandstructure.GetFloatParam(params, "quality", 0.9)
	if quality <= 0 || quality > 1 {
		return nil, fmt.Errorf("quality must be in (0,1], got %v", quality)
	}

	return &ResizeParams{
		Preset:              preset,
		Width:               width,
		Height:              height,
		MaintainAspectRatio: commandstructure.GetBoolParam(params, "maintainAspectRatio", true),
		Quality:             quality,
	}, nil
}

// ResizeCommand scales an image to a preset or explicit size and re-encodes
// it in its own format
type ResizeCommand struct {
	name   string
	params *ResizeParams
}

// NewResizeCommand creates a new resize command from configuration parameters
func NewResizeCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewResizeParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &ResizeCommand{
		name:   "ResizeCommand",
		params: typedParams,
	}, nil
}

// Name returns the command name
func (c *ResizeCommand) Name() string {
	return c.name
}

// Execute resizes the image; when the computed size equals the source the input is returned
func (c *ResizeCommand) Execute(imageData []byte) ([]byte, error) {
	img, format, err := decodeImage(imageData)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	dstW, dstH := computeResizeDimensions(srcW, srcH, c.params.Width, c.params.Height, c.params.MaintainAspectRatio)

	slog.Debug("ResizeCommand: calculated target dimensions",
		"preset", c.params.Preset,
		"original_width", srcW,
		"original_height", srcH,
		"target_width", dstW,
		"target_height", dstH,
		"maintain_aspect_ratio", c.params.MaintainAspectRatio)

	if dstW == srcW && dstH == srcH && format == outputFormat(format) {
		slog.Debug("ResizeCommand: target dimensions equal original; skipping resize")
		return imageData, nil
	}

	resized := imaging.Resize(img, dstW, dstH, imaging.Lanczos)
	out, err := encodeImage(resized, outputFormat(format), c.params.Quality)
	if err != nil {
		return nil, err
	}
	slog.Debug("ResizeCommand: resize complete", "output_size_bytes", len(out))
	return out, nil
}

// GetParams returns the typed parameters
func (c *ResizeCommand) GetParams() *ResizeParams {
	return c.params
}

// computeResizeDimensions derives the output size. Two dimensions are used as
// given. With the aspect ratio kept, a single dimension derives the other;
// without it, the missing dimension keeps the source value.
func computeResizeDimensions(srcW, srcH, width, height int, keepAspect bool) (int, int) {
	if width > 0 && height > 0 {
		return width, height
	}
	if srcW <= 0 || srcH <= 0 {
		return width, height
	}
	if !keepAspect {
		if width == 0 {
			width = srcW
		}
		if height == 0 {
			height = srcH
		}
		return width, height
	}

	aspect := float64(srcW) / float64(srcH)
	switch {
	case width > 0:
		return width, atLeastOne(math.Round(float64(width) / aspect))
	case height > 0:
		return atLeastOne(math.Round(float64(height) * aspect)), height
	}
	return srcW, srcH
}

func atLeastOne(v float64) int {
	if v < 1 {
		return 1
	}
	return int(v)
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("ResizeCommand", NewResizeCommand); err != nil {
		panic(fmt.Sprintf("failed to register ResizeCommand: %v", err))
	}
}
