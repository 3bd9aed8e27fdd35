package archive

import (
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// ManifestName is the file written when Options.Manifest is set
const ManifestName = "manifest.txt"

// Entry is one file in the archive
type Entry struct {
	Name         string
	Data         []byte
	OriginalSize int64
	ModTime      time.Time
}

// Options tune archive creation
type Options struct {
	// Manifest adds a summary listing every entry with its savings
	Manifest bool
}

// Write streams a ZIP of entries to w. Entries with the same name are
// renamed "name (1).ext", "name (2).ext" so none are lost. Already
// compressed image data is stored rather than deflated.
func Write(w io.Writer, entries []Entry, opts Options) error {
	zw := zip.NewWriter(w)
	names := uniqueNames(entries)

	for i, entry := range entries {
		modTime := entry.ModTime
		if modTime.IsZero() {
			modTime = time.Now()
		}
		header := &zip.FileHeader{
			Name:     names[i],
			Method:   zip.Store,
			Modified: modTime,
		}
		fw, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", names[i], err)
		}
		if _, err := fw.Write(entry.Data); err != nil {
			return fmt.Errorf("failed to write %s: %w", names[i], err)
		}
	}

	if opts.Manifest {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: ManifestName, Method: zip.Deflate, Modified: time.Now()})
		if err != nil {
			return err
		}
		if err := writeManifest(fw, entries, names); err != nil {
			return err
		}
	}
	return zw.Close()
}

func uniqueNames(entries []Entry) []string {
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name
	}
	return UniqueNames(names, ManifestName)
}

var numberedName = regexp.MustCompile(`^(.*) \((\d+)\)$`)

// UniqueNames strips directories from names and renames repeats to
// "name (n).ext". All repeats of a base name share one counter, so a
// colliding "photo (1).jpg" becomes "photo (2).jpg". Reserved names are
// never handed out.
func UniqueNames(names []string, reserved ...string) []string {
	unique := make([]string, len(names))
	used := make(map[string]bool, len(names)+len(reserved))
	for _, name := range reserved {
		used[name] = true
	}
	counters := make(map[string]int)

	for i, raw := range names {
		name := sanitizeName(raw)
		if used[name] {
			ext := path.Ext(name)
			base := strings.TrimSuffix(name, ext)
			if match := numberedName.FindStringSubmatch(base); match != nil {
				base = match[1]
			}
			key := base + ext
			for {
				counters[key]++
				candidate := fmt.Sprintf("%s (%d)%s", base, counters[key], ext)
				if !used[candidate] {
					name = candidate
					break
				}
			}
		}
		used[name] = true
		unique[i] = name
	}
	return unique
}

// sanitizeName keeps only the final path element so entries cannot escape the extraction directory
func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "image"
	}
	return name
}

func writeManifest(w io.Writer, entries []Entry, names []string) error {
	rows := make([]SummaryRow, len(entries))
	for i, entry := range entries {
		rows[i] = SummaryRow{Name: names[i], OriginalSize: entry.OriginalSize, CompressedSize: int64(len(entry.Data))}
	}
	_, err := io.WriteString(w, SummaryTable(rows)+"\n")
	return err
}
