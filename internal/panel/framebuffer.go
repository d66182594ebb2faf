// Package panel holds the pixel buffer of a chained LED matrix.
package panel

import (
	"image"
	"image/color"
)

// RGB is one RGB888 pixel.
type RGB struct{ R, G, B uint8 }

// FromColor converts any color to RGB888, dropping alpha.
func FromColor(c color.Color) RGB {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return RGB{n.R, n.G, n.B}
}

func (c RGB) RGBA() (r, g, b, a uint32) {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255}.RGBA()
}

var (
	Black = RGB{}
	White = RGB{255, 255, 255}
)

// FrameBuffer is a W x H grid of RGB888 pixels in hardware scan order
// (row major, 3 bytes per pixel). It is not safe for concurrent use.
type FrameBuffer struct {
	w, h int
	pix  []byte
}

// New allocates a cleared buffer. Non-positive sizes yield an empty buffer.
func New(w, h int) *FrameBuffer {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return &FrameBuffer{w: w, h: h, pix: make([]byte, w*h*3)}
}

func (f *FrameBuffer) Width() int  { return f.w }
func (f *FrameBuffer) Height() int { return f.h }

// Pix exposes the raw buffer.
func (f *FrameBuffer) Pix() []byte { return f.pix }

// Row returns the bytes of row y, or nil when y is out of range.
func (f *FrameBuffer) Row(y int) []byte {
	if y < 0 || y >= f.h {
		return nil
	}
	return f.pix[y*f.w*3 : (y+1)*f.w*3]
}

func (f *FrameBuffer) in(x, y int) bool {
	return x >= 0 && x < f.w && y >= 0 && y < f.h
}

// SetRGB writes one pixel; writes outside the buffer are ignored.
func (f *FrameBuffer) SetRGB(x, y int, c RGB) {
	if !f.in(x, y) {
		return
	}
	i := (y*f.w + x) * 3
	f.pix[i], f.pix[i+1], f.pix[i+2] = c.R, c.G, c.B
}

// RGBAt reads one pixel; outside the buffer it returns Black.
func (f *FrameBuffer) RGBAt(x, y int) RGB {
	if !f.in(x, y) {
		return Black
	}
	i := (y*f.w + x) * 3
	return RGB{f.pix[i], f.pix[i+1], f.pix[i+2]}
}

// Fill sets every pixel to c.
func (f *FrameBuffer) Fill(c RGB) {
	if c == Black {
		f.Clear()
		return
	}
	for i := 0; i+2 < len(f.pix); i += 3 {
		f.pix[i], f.pix[i+1], f.pix[i+2] = c.R, c.G, c.B
	}
}

// FillRect fills the w x h rectangle at (x, y), clipped to the buffer.
func (f *FrameBuffer) FillRect(x, y, w, h int, c RGB) {
	r := image.Rect(x, y, x+w, y+h).Intersect(f.Bounds())
	for yy := r.Min.Y; yy < r.Max.Y; yy++ {
		row := f.Row(yy)
		for xx := r.Min.X; xx < r.Max.X; xx++ {
			row[xx*3], row[xx*3+1], row[xx*3+2] = c.R, c.G, c.B
		}
	}
}

func (f *FrameBuffer) Clear() {
	for i := range f.pix {
		f.pix[i] = 0
	}
}

// draw.Image

func (f *FrameBuffer) ColorModel() color.Model { return color.NRGBAModel }

func (f *FrameBuffer) Bounds() image.Rectangle { return image.Rect(0, 0, f.w, f.h) }

func (f *FrameBuffer) At(x, y int) color.Color { return f.RGBAt(x, y) }

func (f *FrameBuffer) Set(x, y int, c color.Color) { f.SetRGB(x, y, FromColor(c)) }

// Image copies the buffer into an NRGBA image, for previews.
func (f *FrameBuffer) Image() *image.NRGBA {
	im := image.NewNRGBA(f.Bounds())
	for y := 0; y < f.h; y++ {
		for x := 0; x < f.w; x++ {
			c := f.RGBAt(x, y)
			im.SetNRGBA(x, y, color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255})
		}
	}
	return im
}
