package commands

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// defaultSVGSize is used when an SVG carries no explicit width and height
const defaultSVGSize = 1024

// parseSvgExplicitSize attempts to extract width and height attributes from the SVG.
// Returns width, height, and ok=true if both are found and parseable.
func parseSvgExplicitSize(data []byte) (int, int, bool) {
	n := len(data)
	if n > 8192 {
		n = 8192
	}
	s := strings.ToLower(string(data[:n]))
	i := strings.Index(s, "<svg")
	if i < 0 {
		return 0, 0, false
	}
	j := strings.Index(s[i:], ">")
	if j < 0 {
		j = len(s)
	} else {
		j = i + j
	}
	tag := s[i:j]

	w, wOk := parseNumericAttr(tag, "width")
	h, hOk := parseNumericAttr(tag, "height")
	if wOk && hOk && w > 0 && h > 0 {
		return w, h, true
	}
	// viewBox is not a pixel size
	return 0, 0, false
}

// parseNumericAttr extracts the leading integer of an attribute value (e.g. width="123px").
func parseNumericAttr(tag, attr string) (int, bool) {
	pos := -1
	for from := 0; from < len(tag); {
		idx := strings.Index(tag[from:], attr)
		if idx < 0 {
			break
		}
		idx += from
		// skip matches inside longer names such as stroke-width
		if idx == 0 || tag[idx-1] == ' ' || tag[idx-1] == '\n' || tag[idx-1] == '\t' {
			pos = idx
			break
		}
		from = idx + len(attr)
	}
	if pos < 0 {
		return 0, false
	}

	rest := tag[pos+len(attr):]
	rest = strings.TrimLeft(rest, " \t\n")
	if !strings.HasPrefix(rest, "=") {
		return 0, false
	}
	rest = strings.TrimLeft(rest[1:], " \t\n")
	if rest == "" {
		return 0, false
	}
	if q := rest[0]; q == '"' || q == '\'' {
		rest = rest[1:]
		if end := strings.IndexByte(rest, q); end >= 0 {
			rest = rest[:end]
		}
	}

	num := 0
	found := false
	for i := 0; i < len(rest); i++ {
		ch := rest[i]
		if ch >= '0' && ch <= '9' {
			found = true
			num = num*10 + int(ch-'0')
		} else {
			break
		}
	}
	if !found || num <= 0 {
		return 0, false
	}
	return num, true
}

// isSVGData performs a lightweight detection of SVG content from raw bytes.
func isSVGData(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	n := len(data)
	if n > 4096 {
		n = 4096
	}
	header := bytes.ToLower(bytes.TrimSpace(data[:n]))
	return bytes.Contains(header, []byte("<svg")) ||
		bytes.Contains(header, []byte("xmlns=\"http://www.w3.org/2000/svg\"")) ||
		bytes.Contains(header, []byte("xmlns='http://www.w3.org/2000/svg'"))
}

// svgRenderSize returns the explicit SVG size or the fallback
func svgRenderSize(data []byte, fallbackW, fallbackH int) (int, int, error) {
	if w, h, ok := parseSvgExplicitSize(data); ok {
		return w, h, nil
	}
	if fallbackW <= 0 || fallbackH <= 0 {
		return 0, 0, fmt.Errorf("SVG fallback size not set; cannot render SVG without explicit size")
	}
	return fallbackW, fallbackH, nil
}

// rasterizeSVG renders the SVG onto a transparent canvas
func rasterizeSVG(svgData []byte, fallbackW, fallbackH int) (*image.RGBA, error) {
	w, h, err := svgRenderSize(svgData, fallbackW, fallbackH)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svgData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	dasher := rasterx.NewDasher(w, h, scanner)
	icon.Draw(dasher, 1.0)
	return dst, nil
}
