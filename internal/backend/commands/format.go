package commands

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Format is the canonical short name of an image encoding
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatJPG  Format = "jpg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
	FormatHEIC Format = "heic"
	FormatAVIF Format = "avif"
	FormatBMP  Format = "bmp"
	FormatSVG  Format = "svg"
	FormatTIFF Format = "tiff"
	FormatGIF  Format = "gif"
)

var mimeFormats = map[string]Format{
	"image/jpeg":          FormatJPEG,
	"image/png":           FormatPNG,
	"image/webp":          FormatWebP,
	"image/heic":          FormatHEIC,
	"image/heic-sequence": FormatHEIC,
	"image/heif":          FormatHEIC,
	"image/heif-sequence": FormatHEIC,
	"image/avif":          FormatAVIF,
	"image/bmp":           FormatBMP,
	"image/svg+xml":       FormatSVG,
	"image/tiff":          FormatTIFF,
	"image/gif":           FormatGIF,
}

var formatAliases = map[string]Format{
	"jpeg": FormatJPEG,
	"jpg":  FormatJPG,
	"png":  FormatPNG,
	"webp": FormatWebP,
	"heic": FormatHEIC,
	"heif": FormatHEIC,
	"avif": FormatAVIF,
	"bmp":  FormatBMP,
	"svg":  FormatSVG,
	"tiff": FormatTIFF,
	"tif":  FormatTIFF,
	"gif":  FormatGIF,
}

// ParseFormat accepts a bare name ("webp"), an extension (".webp") or a MIME
// type ("image/webp"). jpg is kept as jpg so that file extensions round-trip.
func ParseFormat(s string) (Format, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, ".")
	s = strings.TrimPrefix(s, "image/")
	s = strings.TrimSuffix(s, "+xml")
	f, ok := formatAliases[s]
	return f, ok
}

// Canonical folds aliases onto the encoder that produces them
func (f Format) Canonical() Format {
	if f == FormatJPG {
		return FormatJPEG
	}
	return f
}

// Extension returns the file extension including the leading dot
func (f Format) Extension() string {
	return "." + string(f)
}

// MIMEType returns the content type served for the format
func (f Format) MIMEType() string {
	switch f.Canonical() {
	case FormatSVG:
		return "image/svg+xml"
	case "":
		return "application/octet-stream"
	default:
		return "image/" + string(f.Canonical())
	}
}

// IsLossy reports whether the encoder honours a quality setting
func (f Format) IsLossy() bool {
	switch f.Canonical() {
	case FormatJPEG, FormatWebP, FormatAVIF:
		return true
	}
	return false
}

// IsEncodable reports whether the pipeline can write the format
func (f Format) IsEncodable() bool {
	switch f.Canonical() {
	case FormatJPEG, FormatPNG, FormatWebP, FormatAVIF, FormatBMP, FormatTIFF, FormatGIF:
		return true
	}
	return false
}

// SniffFormat identifies the encoding from the leading bytes of the data
func SniffFormat(data []byte) (Format, bool) {
	if len(data) == 0 {
		return "", false
	}
	for mtype := mimetype.Detect(data); mtype != nil; mtype = mtype.Parent() {
		if f, ok := mimeFormats[mtype.String()]; ok {
			return f, true
		}
	}
	if isSVGData(data) {
		return FormatSVG, true
	}
	return "", false
}
