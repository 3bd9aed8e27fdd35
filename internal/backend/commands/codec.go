package commands

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	"github.com/gen2brain/heic"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedTarget is returned when asked to encode a format the pipeline cannot write
var ErrUnsupportedTarget = errors.New("unsupported target format")

// avifSpeed trades encode time for size; 6 keeps a 10 MB upload well under a second per pass
const avifSpeed = 6

// decodeImage decodes any supported input, applying EXIF orientation where present
func decodeImage(data []byte) (image.Image, Format, error) {
	format, ok := SniffFormat(data)
	if !ok {
		return nil, "", fmt.Errorf("failed to decode image: unrecognised image data")
	}

	var (
		img image.Image
		err error
	)
	switch format {
	case FormatSVG:
		img, err = rasterizeSVG(data, defaultSVGSize, defaultSVGSize)
	case FormatHEIC:
		img, err = heic.Decode(bytes.NewReader(data))
	case FormatAVIF:
		img, err = avif.Decode(bytes.NewReader(data))
	default:
		img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	}
	if err != nil {
		return nil, format, fmt.Errorf("failed to decode %s image: %w", format, err)
	}
	return img, format, nil
}

// encodeImage writes img in the given format. quality is in (0,1] and only
// affects lossy encoders; webp switches to lossless at 1.
func encodeImage(img image.Image, format Format, quality float64) ([]byte, error) {
	var buf bytes.Buffer
	q := qualityPercent(quality)

	var err error
	switch format.Canonical() {
	case FormatJPEG:
		err = jpeg.Encode(&buf, flattenAlpha(img), &jpeg.Options{Quality: q})
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(&buf, img)
	case FormatWebP:
		err = webp.Encode(&buf, img, &webp.Options{Lossless: quality >= 1, Quality: float32(q)})
	case FormatAVIF:
		err = avif.Encode(&buf, img, avif.Options{Quality: q, QualityAlpha: q, Speed: avifSpeed})
	case FormatBMP:
		err = bmp.Encode(&buf, img)
	case FormatTIFF:
		err = tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate})
	case FormatGIF:
		err = gif.Encode(&buf, img, &gif.Options{NumColors: 256})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTarget, format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode image as %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// outputFormat picks the encoder used when a command keeps the input format
func outputFormat(input Format) Format {
	switch input.Canonical() {
	case FormatHEIC:
		return FormatJPEG
	case FormatSVG:
		return FormatPNG
	}
	return input.Canonical()
}

func qualityPercent(quality float64) int {
	q := int(math.Round(quality * 100))
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

// flattenAlpha composites translucent images onto white since JPEG has no alpha channel
func flattenAlpha(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	dst := createTargetCanvas(b.Dx(), b.Dy(), color.White)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

func createTargetCanvas(w, h int, bg color.Color) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)
	return dst
}
