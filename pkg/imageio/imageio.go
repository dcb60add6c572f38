// Package imageio reads, resizes and writes the images texpal packs.
//
// Decoders cover png, jpeg and gif (standard library), bmp, tiff and webp
// (golang.org/x/image) and tga (github.com/ftrvxmtrx/tga). A decoder is
// chosen from the file's magic bytes, then from its extension; the image
// package registry is not consulted because tga registers an empty magic
// that matches any input. Writing picks an encoder from the output
// extension; webp output is encoded with github.com/HugoSmits86/nativewebp.
package imageio

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// Header describes a source image without its pixels.
type Header struct {
	W        int    `json:"w"`
	H        int    `json:"h"`
	Channels int    `json:"channels"`
	Format   string `json:"format"`
}

// HasAlpha reports whether the image carries a meaningful alpha channel.
func (h Header) HasAlpha() bool { return h.Channels == 2 || h.Channels == 4 }

// HeaderReader reads image headers. The runner accepts any implementation
// so a cached reader can stand in for the filesystem.
type HeaderReader interface {
	ReadHeader(ctx context.Context, path string) (Header, error)
}

// Files reads headers straight from disk.
type Files struct{}

// ReadHeader implements HeaderReader.
func (Files) ReadHeader(_ context.Context, path string) (Header, error) { return ReadHeader(path) }

// ReadHeader returns the size and channel count of the image at path.
// Formats whose color model may carry alpha are decoded in full so that an
// opaque image is reported with three channels.
func ReadHeader(path string) (Header, error) {
	f, dec, err := openImage(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	cfg, err := dec.config(f)
	if err != nil {
		return Header{}, fmt.Errorf("decode %s: %w", path, err)
	}
	h := Header{W: cfg.Width, H: cfg.Height, Format: dec.name}
	switch cfg.ColorModel {
	case color.GrayModel, color.Gray16Model:
		h.Channels = 1
		return h, nil
	case color.YCbCrModel, color.CMYKModel:
		h.Channels = 3
		return h, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Header{}, err
	}
	img, err := dec.decode(f)
	if err != nil {
		return Header{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if isOpaque(img) {
		h.Channels = 3
	} else {
		h.Channels = 4
	}
	return h, nil
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return false
			}
		}
	}
	return true
}

// ReadPixels decodes the image at path into NRGBA pixels.
func ReadPixels(path string) (*image.NRGBA, error) {
	f, dec, err := openImage(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := dec.decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return ToNRGBA(img), nil
}

// decoder reads one image format.
type decoder struct {
	name   string
	magic  [][]byte
	decode func(io.Reader) (image.Image, error)
	config func(io.Reader) (image.Config, error)
}

// decoders in sniffing order. tga has no magic and is only picked by
// extension.
var decoders = []decoder{
	{"png", [][]byte{[]byte("\x89PNG\r\n\x1a\n")}, png.Decode, png.DecodeConfig},
	{"jpeg", [][]byte{{0xff, 0xd8}}, jpeg.Decode, jpeg.DecodeConfig},
	{"gif", [][]byte{[]byte("GIF87a"), []byte("GIF89a")}, gif.Decode, gif.DecodeConfig},
	{"bmp", [][]byte{[]byte("BM")}, bmp.Decode, bmp.DecodeConfig},
	{"tiff", [][]byte{[]byte("II*\x00"), []byte("MM\x00*")}, tiff.Decode, tiff.DecodeConfig},
	{"webp", nil, webp.Decode, webp.DecodeConfig},
	{"tga", nil, tga.Decode, tga.DecodeConfig},
}

var decoderExts = map[string]string{
	"png": "png", "jpg": "jpeg", "jpeg": "jpeg", "gif": "gif", "bmp": "bmp",
	"tif": "tiff", "tiff": "tiff", "webp": "webp", "tga": "tga",
}

// pickDecoder chooses a decoder from the leading bytes of a file, falling
// back to its extension.
func pickDecoder(head []byte, ext string) (decoder, bool) {
	if len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP")) {
		return decoderNamed("webp")
	}
	for _, d := range decoders {
		for _, m := range d.magic {
			if bytes.HasPrefix(head, m) {
				return d, true
			}
		}
	}
	if name, ok := decoderExts[normExt(ext)]; ok {
		return decoderNamed(name)
	}
	return decoder{}, false
}

func decoderNamed(name string) (decoder, bool) {
	for _, d := range decoders {
		if d.name == name {
			return d, true
		}
	}
	return decoder{}, false
}

// openImage opens path positioned at its start, with the decoder for it.
func openImage(path string) (*os.File, decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, decoder{}, err
	}
	head := make([]byte, 12)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		f.Close()
		return nil, decoder{}, err
	}
	dec, ok := pickDecoder(head[:n], filepath.Ext(path))
	if !ok {
		f.Close()
		return nil, decoder{}, fmt.Errorf("decode %s: %w", path, image.ErrFormat)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, decoder{}, err
	}
	return f, dec, nil
}

// ToNRGBA converts any image to NRGBA with its origin at (0, 0).
func ToNRGBA(src image.Image) *image.NRGBA {
	if n, ok := src.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), src, b.Min, xdraw.Src)
	return dst
}

// Supported reports whether ext (with or without the dot) can be written.
func Supported(ext string) bool {
	_, ok := encoders[normExt(ext)]
	return ok
}

// Types lists the writable image types in sorted order.
func Types() []string {
	out := make([]string, 0, len(encoders))
	for k := range encoders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type encodeFunc func(w io.Writer, img image.Image) error

var encoders = map[string]encodeFunc{
	"png": png.Encode,
	"jpg": func(w io.Writer, img image.Image) error {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 92})
	},
	"jpeg": func(w io.Writer, img image.Image) error {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 92})
	},
	"gif": func(w io.Writer, img image.Image) error { return gif.Encode(w, img, nil) },
	"bmp": bmp.Encode,
	"tif": func(w io.Writer, img image.Image) error {
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	},
	"tiff": func(w io.Writer, img image.Image) error {
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	},
	"tga":  tga.Encode,
	"webp": func(w io.Writer, img image.Image) error { return nativewebp.Encode(w, img, nil) },
}

func normExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// WritePixels encodes img with the encoder matching path's extension. The
// file is written under a temporary name and renamed into place.
func WritePixels(path string, img image.Image) error {
	enc, ok := encoders[normExt(filepath.Ext(path))]
	if !ok {
		return fmt.Errorf("unsupported image type %q", filepath.Ext(path))
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".texpal-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := enc(tmp, img); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
