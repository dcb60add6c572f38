package imageio

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"
)

func checker(w, h int, alpha uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{R: uint8(x * 40), G: uint8(y * 40), B: 200, A: 255}
			if x == 0 && y == 0 {
				c.A = alpha
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestAddMargin(t *testing.T) {
	src := checker(3, 2, 255)
	got := AddMargin(src, 2)
	if b := got.Bounds(); b.Dx() != 7 || b.Dy() != 6 {
		t.Fatalf("size = %dx%d, want 7x6", b.Dx(), b.Dy())
	}
	tests := []struct {
		name         string
		x, y, sx, sy int
	}{
		{"TopLeftCorner", 0, 0, 0, 0},
		{"TopEdge", 3, 0, 1, 0},
		{"RightEdge", 6, 3, 2, 1},
		{"BottomRightCorner", 6, 5, 2, 1},
		{"Interior", 3, 2, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got.NRGBAAt(tt.x, tt.y) != src.NRGBAAt(tt.sx, tt.sy) {
				t.Errorf("pixel (%d,%d) = %v, want source (%d,%d) = %v",
					tt.x, tt.y, got.NRGBAAt(tt.x, tt.y), tt.sx, tt.sy, src.NRGBAAt(tt.sx, tt.sy))
			}
		})
	}
	if AddMargin(src, 0) != src {
		t.Error("zero margin should return the input")
	}
}

func TestResize(t *testing.T) {
	src := checker(8, 4, 255)
	got := Resize(src, 4, 2)
	if b := got.Bounds(); b.Dx() != 4 || b.Dy() != 2 {
		t.Errorf("size = %dx%d, want 4x2", b.Dx(), b.Dy())
	}
	if Resize(src, 8, 4) != src {
		t.Error("same-size resize should return the input")
	}
}

func TestWriteReadByExtension(t *testing.T) {
	dir := t.TempDir()
	src := checker(5, 3, 255)
	for _, ext := range []string{"png", "bmp", "tiff", "jpg", "webp", "tga"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(dir, "sub", "img."+ext)
			if err := WritePixels(path, src); err != nil {
				t.Fatalf("WritePixels: %v", err)
			}
			h, err := ReadHeader(path)
			if err != nil {
				t.Fatalf("ReadHeader: %v", err)
			}
			if h.W != 5 || h.H != 3 {
				t.Errorf("header = %dx%d, want 5x3", h.W, h.H)
			}
			if h.HasAlpha() {
				t.Errorf("opaque image reported %d channels", h.Channels)
			}
			img, err := ReadPixels(path)
			if err != nil {
				t.Fatalf("ReadPixels: %v", err)
			}
			if ext == "png" && img.NRGBAAt(4, 2) != src.NRGBAAt(4, 2) {
				t.Errorf("pixel = %v, want %v", img.NRGBAAt(4, 2), src.NRGBAAt(4, 2))
			}
		})
	}
	if err := WritePixels(filepath.Join(dir, "img.xyz"), src); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestReadHeaderAlpha(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.png")
	if err := WritePixels(path, checker(4, 4, 10)); err != nil {
		t.Fatal(err)
	}
	h, err := ReadHeader(path)
	if err != nil {
		t.Fatal(err)
	}
	if !h.HasAlpha() || h.Format != "png" {
		t.Errorf("header = %+v, want png with alpha", h)
	}
}

func TestCanvas(t *testing.T) {
	c := NewCanvas(10, 10)
	c.Blit(checker(3, 3, 255), 4, 5)
	if c.Image().NRGBAAt(5, 6).A != 255 {
		t.Error("blit did not copy pixels")
	}
	c.Clear(image.Rect(4, 5, 7, 8))
	if c.Image().NRGBAAt(5, 6) != (color.NRGBA{}) {
		t.Error("clear did not wipe pixels")
	}

	path := filepath.Join(t.TempDir(), "page.png")
	c.Blit(checker(2, 2, 255), 0, 0)
	if err := WritePixels(path, c.Image()); err != nil {
		t.Fatal(err)
	}
	if _, ok := LoadCanvas(path, 10, 10); !ok {
		t.Error("LoadCanvas should reuse a same-size page")
	}
	if _, ok := LoadCanvas(path, 20, 10); ok {
		t.Error("LoadCanvas should reject a page of a different size")
	}
}

func TestOpaque(t *testing.T) {
	img := checker(2, 2, 0)
	out := Opaque(img)
	if _, _, _, a := out.At(0, 0).RGBA(); a != 0xffff {
		t.Errorf("alpha = %d, want opaque", a)
	}
}

func TestReadPNGRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.png")
	src := checker(100, 100, 255)
	if err := WritePixels(path, src); err != nil {
		t.Fatal(err)
	}
	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.W != 100 || h.H != 100 || h.Format != "png" || h.HasAlpha() {
		t.Errorf("header = %+v, want opaque 100x100 png", h)
	}
	img, err := ReadPixels(path)
	if err != nil {
		t.Fatalf("ReadPixels: %v", err)
	}
	for _, pt := range []image.Point{{0, 0}, {5, 3}, {99, 99}} {
		if got, want := img.NRGBAAt(pt.X, pt.Y), src.NRGBAAt(pt.X, pt.Y); got != want {
			t.Errorf("pixel %v = %v, want %v", pt, got, want)
		}
	}
}

func TestPickDecoder(t *testing.T) {
	tests := []struct {
		name string
		head []byte
		ext  string
		want string
		ok   bool
	}{
		{"png magic", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0d"), ".png", "png", true},
		{"png magic wins over extension", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0d"), ".tga", "png", true},
		{"jpeg magic", []byte{0xff, 0xd8, 0xff, 0xe0}, ".dat", "jpeg", true},
		{"bmp magic", []byte("BM\x00\x00"), "", "bmp", true},
		{"tiff little endian", []byte("II*\x00"), "", "tiff", true},
		{"webp riff", []byte("RIFF\x10\x00\x00\x00WEBP"), "", "webp", true},
		{"tga by extension", []byte{0, 0, 2, 0}, ".TGA", "tga", true},
		{"unknown bytes and extension", []byte{0, 0, 2, 0}, ".raw", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := pickDecoder(tt.head, tt.ext)
			if ok != tt.ok || d.name != tt.want {
				t.Errorf("pickDecoder = %q, %v; want %q, %v", d.name, ok, tt.want, tt.ok)
			}
		})
	}
}
