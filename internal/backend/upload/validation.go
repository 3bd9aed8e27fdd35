// Package upload validates incoming image files before they enter a workspace.
package upload

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/jo-hoe/imagepress/internal/backend/commands"
)

const (
	// DefaultMaxFiles is the workspace capacity
	DefaultMaxFiles = 10
	// DefaultMaxFileSize is the per-file limit in bytes
	DefaultMaxFileSize int64 = 10 * 1024 * 1024
)

var (
	ErrTooManyFiles      = errors.New("too many files")
	ErrFileTooLarge      = errors.New("file too large")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// allowedMIMETypes is checked against the sniffed content type
var allowedMIMETypes = map[string]bool{
	"image/jpeg":    true,
	"image/jpg":     true,
	"image/png":     true,
	"image/webp":    true,
	"image/heic":    true,
	"image/heif":    true,
	"image/avif":    true,
	"image/bmp":     true,
	"image/svg+xml": true,
	"image/tiff":    true,
}

// allowedExtensions is checked against the lower-cased file name
var allowedExtensions = []string{".jpeg", ".jpg", ".png", ".webp", ".heic", ".avif", ".bmp", ".svg", ".tiff"}

// ValidationError carries the user facing message; Unwrap exposes the sentinel
type ValidationError struct {
	Kind    error
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// Limits bounds a workspace
type Limits struct {
	MaxFiles    int
	MaxFileSize int64
}

// DefaultLimits returns 10 files of at most 10 MB each
func DefaultLimits() Limits {
	return Limits{MaxFiles: DefaultMaxFiles, MaxFileSize: DefaultMaxFileSize}
}

// ValidateFileCount rejects a batch that would push the workspace over MaxFiles
func (l Limits) ValidateFileCount(current, incoming int) error {
	if current+incoming > l.MaxFiles {
		return &ValidationError{
			Kind:    ErrTooManyFiles,
			Message: fmt.Sprintf("Maximum %d files allowed", l.MaxFiles),
		}
	}
	return nil
}

// ValidateFile checks size and type. A file is accepted when either its
// sniffed content type or its name's extension is allowed. The returned
// format is derived from the name.
func (l Limits) ValidateFile(name string, data []byte) (commands.Format, error) {
	if int64(len(data)) > l.MaxFileSize {
		return "", &ValidationError{
			Kind:    ErrFileTooLarge,
			Message: fmt.Sprintf("File size exceeds %s limit", megabytes(l.MaxFileSize)),
		}
	}
	if !isAllowedType(data) && !hasAllowedExtension(name) {
		return "", &ValidationError{
			Kind:    ErrUnsupportedFormat,
			Message: "Unsupported file format",
		}
	}
	return DetectFormat(name), nil
}

// DetectFormat maps the file extension onto a format; jpg becomes jpeg and
// anything unknown is treated as jpeg
func DetectFormat(name string) commands.Format {
	ext := strings.ToLower(path.Ext(name))
	f, ok := commands.ParseFormat(ext)
	if !ok || ext == "" {
		return commands.FormatJPEG
	}
	return f.Canonical()
}

func isAllowedType(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	for mtype := mimetype.Detect(data); mtype != nil; mtype = mtype.Parent() {
		if allowedMIMETypes[mtype.String()] {
			return true
		}
	}
	return false
}

func hasAllowedExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range allowedExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func megabytes(n int64) string {
	if n%(1024*1024) == 0 {
		return fmt.Sprintf("%dMB", n/(1024*1024))
	}
	return fmt.Sprintf("%.1fMB", float64(n)/(1024*1024))
}
