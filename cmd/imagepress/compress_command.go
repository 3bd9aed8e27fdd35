package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jo-hoe/imagepress/internal/backend/archive"
	"github.com/jo-hoe/imagepress/internal/backend/upload"
	"github.com/jo-hoe/imagepress/internal/core"
)

type compressFlags struct {
	preset    string
	quality   float64
	maxSizeMB float64
	resize    string
	width     int
	height    int
	stretch   bool
	format    string
	outDir    string
	zipName   string
	manifest  bool
	jobs      int
}

// fileResult is the outcome for one input; Err is set when it was skipped
type fileResult struct {
	Input        string
	OutputName   string
	Data         []byte
	OriginalSize int64
	Err          error
}

func newCompressCommand() *cobra.Command {
	flags := compressFlags{}

	cmd := &cobra.Command{
		Use:   "compress <file>...",
		Short: "Run files through the compression pipeline",
		Long: `Run files through the same validation and pipeline as the server.

Results are written next to each other into --out, or packed into a single
ZIP with --zip. A summary table of the savings is printed at the end.

Example:
  imagepress compress photos/*.jpg --preset 200kb --resize web-hd
  imagepress compress scan.tiff logo.svg --format webp --zip web.zip`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := core.ProcessOptions{
				CompressionPreset:   flags.preset,
				Quality:             flags.quality,
				MaxSizeMB:           flags.maxSizeMB,
				ResizePreset:        flags.resize,
				Width:               flags.width,
				Height:              flags.height,
				MaintainAspectRatio: !flags.stretch,
				TargetFormat:        flags.format,
			}
			if err := opts.Validate(); err != nil {
				return err
			}

			start := time.Now()
			results, err := compressFiles(cmd, args, opts, flags.jobs)
			if err != nil {
				return err
			}

			if flags.zipName != "" {
				err = writeArchive(flags.zipName, results, flags.manifest)
			} else {
				err = writeFiles(flags.outDir, results)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, archive.SummaryTable(summaryRows(results)))
			fmt.Fprintf(out, "Processed %d file(s) in %s\n", len(results), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.preset, "preset", "p", "auto", "Compression preset (auto, 200kb, 100kb, 50kb, custom)")
	cmd.Flags().Float64Var(&flags.quality, "quality", 0, "Quality between 0 and 1 for the custom preset")
	cmd.Flags().Float64Var(&flags.maxSizeMB, "max-size", 0, "Target size in MB for the custom preset")
	cmd.Flags().StringVarP(&flags.resize, "resize", "r", "", "Resize preset (see 'imagepress presets')")
	cmd.Flags().IntVar(&flags.width, "width", 0, "Target width for custom resizing")
	cmd.Flags().IntVar(&flags.height, "height", 0, "Target height for custom resizing")
	cmd.Flags().BoolVar(&flags.stretch, "stretch", false, "Keep the source value for a missing dimension instead of following the aspect ratio")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "Convert results to this format")
	cmd.Flags().StringVarP(&flags.outDir, "out", "o", "compressed", "Output directory")
	cmd.Flags().StringVar(&flags.zipName, "zip", "", "Write results into this ZIP file instead of --out")
	cmd.Flags().BoolVar(&flags.manifest, "manifest", true, "Add a summary manifest to the ZIP")
	cmd.Flags().IntVarP(&flags.jobs, "jobs", "j", runtime.NumCPU(), "Number of files processed in parallel")

	return cmd
}

// compressFiles processes every input with bounded concurrency. Invalid or
// failing files are reported in their result and do not stop the batch.
func compressFiles(cmd *cobra.Command, paths []string, opts core.ProcessOptions, jobs int) ([]fileResult, error) {
	ctx := cmd.Context()
	pipeline := core.DefaultConfig().Pipeline
	limits := upload.DefaultLimits()

	results := make([]fileResult, len(paths))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(max(1, jobs))

	for i, path := range paths {
		group.Go(func() error {
			name := filepath.Base(path)
			result := fileResult{Input: name}
			defer func() { results[i] = result }()

			data, err := os.ReadFile(path)
			if err != nil {
				result.Err = err
				return nil
			}
			result.OriginalSize = int64(len(data))
			if _, err := limits.ValidateFile(name, data); err != nil {
				result.Err = err
				return nil
			}

			processed, err := core.RunPipeline(ctx, pipeline, name, data, opts)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				result.Err = err
				return nil
			}
			result.OutputName = processed.OutputName
			result.Data = processed.Data
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// writeFiles stores every result in dir. Repeated output names are renamed
// the same way the ZIP does it and the final name is kept in the result.
func writeFiles(dir string, results []fileResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	var written []int
	var names []string
	for i, result := range results {
		if result.Err != nil {
			continue
		}
		written = append(written, i)
		names = append(names, result.OutputName)
	}
	for n, name := range archive.UniqueNames(names) {
		result := &results[written[n]]
		result.OutputName = name
		if err := os.WriteFile(filepath.Join(dir, name), result.Data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}

func writeArchive(name string, results []fileResult, manifest bool) error {
	var entries []archive.Entry
	for _, result := range results {
		if result.Err != nil {
			continue
		}
		entries = append(entries, archive.Entry{Name: result.OutputName, Data: result.Data, OriginalSize: result.OriginalSize})
	}
	if len(entries) == 0 {
		return fmt.Errorf("no images could be compressed")
	}

	var buf bytes.Buffer
	if err := archive.Write(&buf, entries, archive.Options{Manifest: manifest}); err != nil {
		return err
	}
	if dir := filepath.Dir(name); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return os.WriteFile(name, buf.Bytes(), 0o644)
}

func summaryRows(results []fileResult) []archive.SummaryRow {
	rows := make([]archive.SummaryRow, 0, len(results))
	for _, result := range results {
		row := archive.SummaryRow{Name: result.Input, OriginalSize: result.OriginalSize}
		if result.Err != nil {
			row.CompressedSize = result.OriginalSize
			row.Note = "skipped: " + result.Err.Error()
		} else {
			row.CompressedSize = int64(len(result.Data))
			if result.OutputName != result.Input {
				row.Note = "→ " + result.OutputName
			}
		}
		rows = append(rows, row)
	}
	return rows
}
