package imageio

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// Resize scales img to w×h with a Catmull-Rom filter. An image already at
// the target size is returned as is.
func Resize(img *image.NRGBA, w, h int) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// AddMargin returns img surrounded by a band of m pixels that repeats the
// nearest edge pixel outward, so filtering at the rectangle border never
// samples a neighbour.
func AddMargin(img *image.NRGBA, m int) *image.NRGBA {
	if m <= 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w+2*m, h+2*m))
	for y := 0; y < h+2*m; y++ {
		sy := clamp(y-m, 0, h-1) + b.Min.Y
		for x := 0; x < w+2*m; x++ {
			sx := clamp(x-m, 0, w-1) + b.Min.X
			dst.SetNRGBA(x, y, img.NRGBAAt(sx, sy))
		}
	}
	return dst
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Canvas composes an atlas page.
type Canvas struct {
	img *image.NRGBA
}

// NewCanvas returns a transparent w×h canvas.
func NewCanvas(w, h int) *Canvas {
	return &Canvas{img: image.NewNRGBA(image.Rect(0, 0, w, h))}
}

// LoadCanvas starts a canvas from an existing page image. If the image has
// a different size it is discarded and a blank canvas is returned, with ok
// false, so the caller redraws everything.
func LoadCanvas(path string, w, h int) (c *Canvas, ok bool) {
	img, err := ReadPixels(path)
	if err != nil || img.Bounds().Dx() != w || img.Bounds().Dy() != h {
		return NewCanvas(w, h), false
	}
	return &Canvas{img: img}, true
}

// Clear wipes r to transparent black.
func (c *Canvas) Clear(r image.Rectangle) {
	xdraw.Draw(c.img, r, image.NewUniform(color.NRGBA{}), image.Point{}, xdraw.Src)
}

// Blit copies img onto the canvas with its top-left corner at (x, y).
func (c *Canvas) Blit(img image.Image, x, y int) {
	b := img.Bounds()
	xdraw.Draw(c.img, image.Rect(x, y, x+b.Dx(), y+b.Dy()), img, b.Min, xdraw.Src)
}

// Image returns the composed page.
func (c *Canvas) Image() *image.NRGBA { return c.img }

// Opaque flattens img onto black, dropping its alpha channel. Pages of the
// rgb class are written this way.
func Opaque(img *image.NRGBA) *image.RGBA {
	dst := image.NewRGBA(img.Bounds())
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, xdraw.Src)
	xdraw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, xdraw.Over)
	return dst
}
