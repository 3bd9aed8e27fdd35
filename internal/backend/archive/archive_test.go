package archive

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
)

func readArchive(t *testing.T, data []byte) map[string]string {
	t.Helper()
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("invalid zip: %v", err)
	}
	files := map[string]string{}
	for _, file := range reader.File {
		rc, err := file.Open()
		if err != nil {
			t.Fatalf("open %s: %v", file.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", file.Name, err)
		}
		files[file.Name] = string(content)
	}
	return files
}

func TestWriteRenamesDuplicates(t *testing.T) {
	var buf bytes.Buffer
	entries := []Entry{
		{Name: "photo.jpg", Data: []byte("one")},
		{Name: "photo.jpg", Data: []byte("two")},
		{Name: "photo (1).jpg", Data: []byte("three")},
		{Name: "logo.png", Data: []byte("four"), ModTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	if err := Write(&buf, entries, Options{}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	files := readArchive(t, buf.Bytes())
	want := map[string]string{
		"photo.jpg":     "one",
		"photo (1).jpg": "two",
		"photo (2).jpg": "three",
		"logo.png":      "four",
	}
	if len(files) != len(want) {
		t.Fatalf("archive has %d files, want %d: %v", len(files), len(want), files)
	}
	for name, content := range want {
		if files[name] != content {
			t.Errorf("%s = %q, want %q", name, files[name], content)
		}
	}
}

func TestUniqueNames(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		reserved []string
		want     []string
	}{
		{"no repeats", []string{"a.png", "b.png"}, nil, []string{"a.png", "b.png"}},
		{"shared counter", []string{"photo.jpg", "photo (1).jpg", "photo.jpg", "photo (1).jpg"}, nil,
			[]string{"photo.jpg", "photo (1).jpg", "photo (2).jpg", "photo (3).jpg"}},
		{"directories", []string{"a/x.webp", "b/x.webp"}, nil, []string{"x.webp", "x (1).webp"}},
		{"reserved", []string{"manifest.txt"}, []string{"manifest.txt"}, []string{"manifest (1).txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UniqueNames(tt.input, tt.reserved...)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("UniqueNames(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestWriteStripsDirectories(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, []Entry{{Name: "../../etc/passwd.png", Data: []byte("x")}, {Name: `C:\images\a.png`, Data: []byte("y")}}, Options{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	files := readArchive(t, buf.Bytes())
	if _, ok := files["passwd.png"]; !ok {
		t.Errorf("expected passwd.png, got %v", files)
	}
	if _, ok := files["a.png"]; !ok {
		t.Errorf("expected a.png, got %v", files)
	}
}

func TestWriteManifest(t *testing.T) {
	var buf bytes.Buffer
	entries := []Entry{
		{Name: "a.webp", Data: bytes.Repeat([]byte{1}, 512), OriginalSize: 2048},
		{Name: "b.webp", Data: bytes.Repeat([]byte{1}, 1024), OriginalSize: 2048},
	}
	if err := Write(&buf, entries, Options{Manifest: true}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	manifest, ok := readArchive(t, buf.Bytes())[ManifestName]
	if !ok {
		t.Fatal("manifest missing")
	}
	for _, want := range []string{"a.webp", "75%", "50%", "Total", "4.0 KiB", "1.5 KiB"} {
		if !strings.Contains(manifest, want) {
			t.Errorf("manifest missing %q:\n%s", want, manifest)
		}
	}
}

func TestWriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, nil, Options{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if files := readArchive(t, buf.Bytes()); len(files) != 0 {
		t.Fatalf("empty archive has files: %v", files)
	}
}
