package display

import (
	"image"
	"image/color"

	pdisplay "periph.io/x/conn/v3/display"
	"tinygo.org/x/drivers"

	"github.com/coreman2200/fpga-matrixpanel/internal/panel"
	"github.com/coreman2200/fpga-matrixpanel/internal/writers"
)

var (
	_ drivers.Displayer = (*Display)(nil)
	_ pdisplay.Drawer   = (*Display)(nil)
	_ writers.Canvas    = canvas{}
	_ drivers.Displayer = canvas{}
)

// size is the drawable size after rotation. Caller holds d.mu.
func (d *Display) size() (int, int) {
	w, h := d.panelWidth*d.chain, d.panelHeight
	if d.rotation == 90 || d.rotation == 270 {
		return h, w
	}
	return w, h
}

// phys maps a drawing coordinate to the frame buffer. The controller scans
// columns right to left, so x is mirrored after rotation.
func (d *Display) phys(x, y int) (int, int, bool) {
	w, h := d.size()
	if x < 0 || y < 0 || x >= w || y >= h {
		return 0, 0, false
	}
	fw, fh := d.panelWidth*d.chain, d.panelHeight
	px, py := x, y
	switch d.rotation {
	case 90:
		px, py = fw-1-y, x
	case 180:
		px, py = fw-1-x, fh-1-y
	case 270:
		px, py = y, fh-1-x
	}
	return fw - 1 - px, py, true
}

func (d *Display) drawPixel(x, y int, c panel.RGB) {
	if d.fb == nil {
		return
	}
	if px, py, ok := d.phys(x, y); ok {
		d.fb.SetRGB(px, py, c)
	}
}

func (d *Display) fill(c panel.RGB) {
	if d.fb != nil {
		d.fb.Fill(c)
	}
}

// filledRectangle clips to the drawable area before visiting pixels.
func (d *Display) filledRectangle(x, y, w, h int, c panel.RGB) {
	sw, sh := d.size()
	r := image.Rect(x, y, x+w, y+h).Intersect(image.Rect(0, 0, sw, sh))
	for j := r.Min.Y; j < r.Max.Y; j++ {
		for i := r.Min.X; i < r.Max.X; i++ {
			d.drawPixel(i, j, c)
		}
	}
}

// Width is the drawable width after rotation.
func (d *Display) Width() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, _ := d.size()
	return w
}

// Height is the drawable height after rotation.
func (d *Display) Height() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, h := d.size()
	return h
}

// DrawPixel sets one pixel. Coordinates outside the display are ignored.
func (d *Display) DrawPixel(x, y int, c panel.RGB) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drawPixel(x, y, c)
}

func (d *Display) Fill(c panel.RGB) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fill(c)
}

func (d *Display) FilledRectangle(x, y, w, h int, c panel.RGB) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filledRectangle(x, y, w, h, c)
}

// Size implements tinygo drivers.Displayer.
func (d *Display) Size() (int16, int16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, h := d.size()
	return int16(w), int16(h)
}

// SetPixel implements tinygo drivers.Displayer.
func (d *Display) SetPixel(x, y int16, c color.RGBA) {
	d.DrawPixel(int(x), int(y), panel.RGB{R: c.R, G: c.G, B: c.B})
}

// Display implements tinygo drivers.Displayer. It pushes the buffer
// immediately instead of waiting for the next tick.
func (d *Display) Display() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fb == nil {
		return errNoSink
	}
	return d.sink.Send(d.fb)
}

// ColorModel implements periph display.Drawer.
func (d *Display) ColorModel() color.Model { return color.NRGBAModel }

// Bounds implements periph display.Drawer.
func (d *Display) Bounds() image.Rectangle {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, h := d.size()
	return image.Rect(0, 0, w, h)
}

// Draw implements periph display.Drawer. src is copied into r starting at
// sp and pushed on the next tick.
func (d *Display) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, h := d.size()
	r = r.Intersect(image.Rect(0, 0, w, h))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			d.drawPixel(x, y, panel.FromColor(src.At(sp.X+x-r.Min.X, sp.Y+y-r.Min.Y)))
		}
	}
	return nil
}

// Halt implements periph display.Drawer by blanking the panel.
func (d *Display) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fb == nil {
		return nil
	}
	d.fb.Clear()
	return d.sink.Clear()
}

// Frame is a copy of the drawable area, row-major RGB888.
type Frame struct {
	Display string
	ID      uint64
	W, H    int
	RGB     []byte
}

// Snapshot copies the buffer as the viewer sees it, undoing rotation and
// mirroring.
func (d *Display) Snapshot() Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, h := d.size()
	f := Frame{Display: d.id, ID: d.frames, W: w, H: h, RGB: make([]byte, 0, w*h*3)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var c panel.RGB
			if px, py, ok := d.phys(x, y); ok && d.fb != nil {
				c = d.fb.RGBAt(px, py)
			}
			f.RGB = append(f.RGB, c.R, c.G, c.B)
		}
	}
	return f
}

// canvas is handed to writers while d.mu is held.
type canvas struct{ d *Display }

func (c canvas) Width() int                                  { w, _ := c.d.size(); return w }
func (c canvas) Height() int                                 { _, h := c.d.size(); return h }
func (c canvas) DrawPixel(x, y int, v panel.RGB)             { c.d.drawPixel(x, y, v) }
func (c canvas) Fill(v panel.RGB)                            { c.d.fill(v) }
func (c canvas) FilledRectangle(x, y, w, h int, v panel.RGB) { c.d.filledRectangle(x, y, w, h, v) }

func (c canvas) Size() (int16, int16) {
	w, h := c.d.size()
	return int16(w), int16(h)
}

func (c canvas) SetPixel(x, y int16, v color.RGBA) {
	c.d.drawPixel(int(x), int(y), panel.RGB{R: v.R, G: v.G, B: v.B})
}

func (c canvas) Display() error { return nil }
