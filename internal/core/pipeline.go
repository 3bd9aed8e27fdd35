package core

import (
	"context"
	"path"
	"strings"

	"github.com/jo-hoe/imagepress/internal/backend/commands"
	"github.com/jo-hoe/imagepress/internal/backend/commandstructure"
	"github.com/jo-hoe/imagepress/internal/backend/upload"
)

// convertQuality is the encoder quality used for explicit format conversions
const convertQuality = 0.9

// PipelineResult is an image after normalisation, resizing and compression
type PipelineResult struct {
	Data       []byte
	Format     commands.Format
	Method     commands.CompressionMethod
	OutputName string
}

// RunPipeline normalises, optionally resizes, compresses and optionally
// converts one image. The compression method is chosen on the resized image.
func RunPipeline(ctx context.Context, cfg PipelineConfig, name string, data []byte, opts ProcessOptions) (*PipelineResult, error) {
	prepare := []commandstructure.CommandConfig{normalizeCommand(cfg)}
	if resize, ok := opts.resizeCommand(); ok {
		prepare = append(prepare, resize)
	}
	processed, err := commandstructure.ExecuteCommands(ctx, data, prepare)
	if err != nil {
		return nil, err
	}

	format, ok := commands.SniffFormat(processed)
	if !ok {
		format = upload.DetectFormat(name)
	}
	method := commands.DetermineCompressionMethod(format, int64(len(processed)))
	settings := opts.compressionSettings()
	quality := settings.Quality
	if method == commands.MethodLossless {
		quality = 1
	}

	finish := []commandstructure.CommandConfig{{
		Name: "CompressCommand",
		Params: map[string]any{
			"maxSizeBytes":     settings.MaxSizeBytes(),
			"quality":          quality,
			"maxWidthOrHeight": cfg.MaxDimension,
		},
	}}
	outputName := outputFileName(name, format)
	if opts.TargetFormat != "" {
		target, err := parseTargetFormat(opts.TargetFormat)
		if err != nil {
			return nil, err
		}
		finish = append(finish, convertCommand(target, convertQuality))
		outputName = replaceExtension(name, target)
		format = target
	}

	result, err := commandstructure.ExecuteCommands(ctx, processed, finish)
	if err != nil {
		return nil, err
	}
	return &PipelineResult{Data: result, Format: format, Method: method, OutputName: outputName}, nil
}

// RunConversion re-encodes an image into target
func RunConversion(ctx context.Context, cfg PipelineConfig, name string, data []byte, target commands.Format, quality float64) (*PipelineResult, error) {
	if quality <= 0 {
		quality = convertQuality
	}
	result, err := commandstructure.ExecuteCommands(ctx, data, []commandstructure.CommandConfig{
		normalizeCommand(cfg),
		convertCommand(target, quality),
	})
	if err != nil {
		return nil, err
	}
	return &PipelineResult{Data: result, Format: target, OutputName: replaceExtension(name, target)}, nil
}

func normalizeCommand(cfg PipelineConfig) commandstructure.CommandConfig {
	return commandstructure.CommandConfig{
		Name:   "NormalizeCommand",
		Params: map[string]any{"heicQuality": cfg.HeicQuality},
	}
}

func convertCommand(target commands.Format, quality float64) commandstructure.CommandConfig {
	return commandstructure.CommandConfig{
		Name:   "ConvertCommand",
		Params: map[string]any{"targetFormat": string(target), "quality": quality},
	}
}

// outputFileName keeps name when its extension already matches format and
// otherwise swaps the extension, writing JPEG as .jpg
func outputFileName(name string, format commands.Format) string {
	if current, ok := commands.ParseFormat(path.Ext(name)); ok && current.Canonical() == format.Canonical() {
		return name
	}
	if format == commands.FormatJPEG {
		format = commands.FormatJPG
	}
	return replaceExtension(name, format)
}

func replaceExtension(name string, format commands.Format) string {
	return strings.TrimSuffix(name, path.Ext(name)) + format.Extension()
}
