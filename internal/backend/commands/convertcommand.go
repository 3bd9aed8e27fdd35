package commands

import (
	"fmt"
	"log/slog"

	"github.com/jo-hoe/imagepress/internal/backend/commandstructure"
)

// ConvertParams represents typed parameters for the convert command
type ConvertParams struct {
	TargetFormat Format
	Quality      float64
}

// NewConvertParamsFromMap creates ConvertParams from a generic map
func NewConvertParamsFromMap(params map[string]any) (*ConvertParams, error) {
	if err := commandstructure.ValidateRequiredParams(params, []string{"targetFormat"}); err != nil {
		return nil, err
	}
	raw := commandstructure.GetStringParam(params, "targetFormat", "")
	target, ok := ParseFormat(raw)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTarget, raw)
	}
	if !target.IsEncodable() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTarget, target)
	}
	quality := commandstructure.GetFloatParam(params, "quality", 0.9)
	if quality <= 0 || quality > 1 {
		return nil, fmt.Errorf("quality must be in (0,1], got %v", quality)
	}
	return &ConvertParams{TargetFormat: target, Quality: quality}, nil
}

// ConvertCommand re-encodes an image into another format
type ConvertCommand struct {
	name   string
	params *ConvertParams
}

// NewConvertCommand creates a new convert command from configuration parameters
func NewConvertCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewConvertParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &ConvertCommand{
		name:   "ConvertCommand",
		params: typedParams,
	}, nil
}

// Name returns the command name
func (c *ConvertCommand) Name() string {
	return c.name
}

// Execute converts the image; input already in the target format is returned as is
func (c *ConvertCommand) Execute(imageData []byte) ([]byte, error) {
	if current, ok := SniffFormat(imageData); ok && current.Canonical() == c.params.TargetFormat.Canonical() {
		slog.Debug("ConvertCommand: input already in target format", "format", current)
		return imageData, nil
	}

	img, format, err := decodeImage(imageData)
	if err != nil {
		return nil, err
	}
	out, err := encodeImage(img, c.params.TargetFormat, c.params.Quality)
	if err != nil {
		return nil, err
	}
	slog.Debug("ConvertCommand: conversion complete",
		"from", format,
		"to", c.params.TargetFormat,
		"input_size_bytes", len(imageData),
		"output_size_bytes", len(out))
	return out, nil
}

// GetParams returns the typed parameters
func (c *ConvertCommand) GetParams() *ConvertParams {
	return c.params
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("ConvertCommand", NewConvertCommand); err != nil {
		panic(fmt.Sprintf("failed to register ConvertCommand: %v", err))
	}
}
