package commands

import (
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in     string
		want   Format
		wantOK bool
	}{
		{"jpeg", FormatJPEG, true},
		{"JPG", FormatJPG, true},
		{".png", FormatPNG, true},
		{"image/webp", FormatWebP, true},
		{"image/svg+xml", FormatSVG, true},
		{"heif", FormatHEIC, true},
		{"tif", FormatTIFF, true},
		{" avif ", FormatAVIF, true},
		{"psd", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseFormat(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseFormat(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestFormat_Properties(t *testing.T) {
	if FormatJPG.Canonical() != FormatJPEG {
		t.Errorf("expected jpg to canonicalise to jpeg")
	}
	if FormatJPG.MIMEType() != "image/jpeg" {
		t.Errorf("unexpected jpg MIME type %q", FormatJPG.MIMEType())
	}
	if FormatSVG.MIMEType() != "image/svg+xml" {
		t.Errorf("unexpected svg MIME type %q", FormatSVG.MIMEType())
	}
	if FormatWebP.Extension() != ".webp" {
		t.Errorf("unexpected extension %q", FormatWebP.Extension())
	}
	for _, f := range []Format{FormatJPEG, FormatJPG, FormatWebP, FormatAVIF} {
		if !f.IsLossy() {
			t.Errorf("expected %s to be lossy", f)
		}
	}
	for _, f := range []Format{FormatPNG, FormatBMP, FormatTIFF, FormatGIF} {
		if f.IsLossy() {
			t.Errorf("expected %s to be lossless", f)
		}
	}
	for _, f := range []Format{FormatHEIC, FormatSVG} {
		if f.IsEncodable() {
			t.Errorf("expected %s not to be encodable", f)
		}
	}
}

func TestSniffFormat(t *testing.T) {
	img := gradientImage(8, 8)
	tests := []struct {
		name   string
		data   []byte
		want   Format
		wantOK bool
	}{
		{"png", encodePNG(t, img), FormatPNG, true},
		{"jpeg", encodeJPEG(t, img, 90), FormatJPEG, true},
		{"svg", []byte(testSVG), FormatSVG, true},
		{"svg without xml header", []byte(testSVGNoSize), FormatSVG, true},
		{"garbage", []byte("definitely not an image"), "", false},
		{"empty", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SniffFormat(tt.data)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("SniffFormat() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
