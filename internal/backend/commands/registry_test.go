package commands

import (
	"context"
	"testing"

	"github.com/jo-hoe/imagepress/internal/backend/commandstructure"
)

func TestDefaultRegistry_HasPipelineCommands(t *testing.T) {
	for _, name := range []string{"NormalizeCommand", "ResizeCommand", "CompressCommand", "ConvertCommand"} {
		if !commandstructure.DefaultRegistry.IsRegistered(name) {
			t.Errorf("Expected %s to be registered in DefaultRegistry", name)
		}
	}
}

func TestPipeline_ResizeCompressConvert(t *testing.T) {
	configs := []commandstructure.CommandConfig{
		{Name: "NormalizeCommand"},
		{Name: "ResizeCommand", Params: map[string]any{"preset": "web-thumbnail"}},
		{Name: "CompressCommand", Params: map[string]any{"maxSizeBytes": 200 * 1024, "quality": 0.8}},
		{Name: "ConvertCommand", Params: map[string]any{"targetFormat": "webp"}},
	}

	out, err := commandstructure.ExecuteCommands(context.Background(), []byte(testSVG), configs)
	if err != nil {
		t.Fatalf("pipeline error: %v", err)
	}
	if f := sniff(t, out); f != FormatWebP {
		t.Fatalf("expected webp, got %s", f)
	}
	if w, h := decodedSize(t, out); w != 400 || h != 267 {
		t.Errorf("expected 400x267, got %dx%d", w, h)
	}
}
