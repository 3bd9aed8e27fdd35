package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/jo-hoe/imagepress/internal/backend/commands"
)

var compressionPresetOrder = []commands.CompressionPreset{
	commands.PresetAuto,
	commands.Preset200KB,
	commands.Preset100KB,
	commands.Preset50KB,
	commands.PresetCustom,
}

func newPresetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List compression and resize presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, compressionPresetTable())
			fmt.Fprintln(out, resizePresetTable())
			return nil
		},
	}
}

func compressionPresetTable() string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("Compression")
	tw.AppendHeader(table.Row{"Preset", "Target size", "Quality"})
	for _, preset := range compressionPresetOrder {
		settings, _ := commands.CompressionSettingsFor(preset)
		tw.AppendRow(table.Row{preset, humanize.IBytes(uint64(settings.MaxSizeBytes())), strconv.FormatFloat(settings.Quality, 'f', 2, 64)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	return tw.Render()
}

func resizePresetTable() string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("Resize")
	tw.AppendHeader(table.Row{"Preset", "Box"})
	for _, preset := range commands.ResizePresetNames() {
		size, _ := commands.ResizePresetSize(preset)
		tw.AppendRow(table.Row{preset, fmt.Sprintf("%d×%d", size.Width, size.Height)})
	}
	tw.AppendRow(table.Row{commands.ResizeCustom, "--width / --height"})
	return tw.Render()
}
