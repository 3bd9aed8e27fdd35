package commands

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
)

// DefaultPreviewSize is the longest edge of a preview thumbnail
const DefaultPreviewSize = 400

// Dimensions reports the displayed width and height of an encoded image
func Dimensions(data []byte) (int, int, error) {
	format, ok := SniffFormat(data)
	if !ok {
		return 0, 0, fmt.Errorf("failed to load image: unrecognised image data")
	}
	if format == FormatSVG {
		return svgRenderSize(data, defaultSVGSize, defaultSVGSize)
	}
	img, _, err := decodeImage(data)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load image: %w", err)
	}
	b := img.Bounds()
	return b.Dx(), b.Dy(), nil
}

// Preview renders a JPEG thumbnail whose longest edge is at most size pixels
func Preview(data []byte, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultPreviewSize
	}
	img, _, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	thumb := img
	if b := img.Bounds(); b.Dx() > size || b.Dy() > size {
		thumb = imaging.Fit(img, size, size, imaging.Lanczos)
	}
	return encodeImage(thumb, FormatJPEG, 0.8)
}

// PreviewDataURL wraps a preview in a data URL for inline display
func PreviewDataURL(preview []byte) string {
	var buf bytes.Buffer
	buf.WriteString("data:image/jpeg;base64,")
	buf.WriteString(base64.StdEncoding.EncodeToString(preview))
	return buf.String()
}

// CompressionRatio is the saving in whole percent; negative when the result
// grew. Halves round up, so -2.5 becomes -2.
func CompressionRatio(originalSize, compressedSize int64) int {
	if originalSize == 0 {
		return 0
	}
	return int(math.Floor(float64(originalSize-compressedSize)*100/float64(originalSize) + 0.5))
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatFileSize renders a byte count with 1024-based units and up to two decimals
func FormatFileSize(size int64) string {
	if size <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(size)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	value := math.Round(float64(size)/math.Pow(1024, float64(i))*100) / 100
	return humanize.Ftoa(value) + " " + sizeUnits[i]
}
