package transport

import (
	"image"
	"sync"

	"periph.io/x/conn/v3/display"
	"periph.io/x/extra/devices/screen"

	"github.com/coreman2200/fpga-matrixpanel/internal/panel"
)

// Console prints one scan line of every frame to the terminal. It stands in
// for the panel when no SPI port is available.
type Console struct {
	mu         sync.Mutex
	drawer     display.Drawer
	row        int
	brightness uint8
	closed     bool
	stats      Stats
}

// NewConsole draws into a terminal strip sized by the geometry given to
// Begin.
func NewConsole() *Console {
	return &Console{row: -1, brightness: 255}
}

// NewConsoleDrawer draws into d instead of the terminal.
func NewConsoleDrawer(d display.Drawer) *Console {
	return &Console{drawer: d, row: -1, brightness: 255}
}

func (c *Console) String() string { return "console" }

func (c *Console) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Console) Begin(g Geometry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.drawer == nil {
		c.drawer = screen.New(g.PanelWidth * g.ChainLength)
	}
	c.stats = Stats{}
	c.row = g.PanelHeight / 2
	return nil
}

func (c *Console) SetBrightness(level uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.brightness = level
	return nil
}

func (c *Console) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.drawer == nil {
		return nil
	}
	b := c.drawer.Bounds()
	return c.drawer.Draw(b, image.NewUniform(panel.Black), image.Point{})
}

// Send draws the middle row of fb, scaled by the current brightness.
func (c *Console) Send(fb *panel.FrameBuffer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.drawer == nil {
		return errNotBegun
	}
	y := c.row
	if y < 0 || y >= fb.Height() {
		y = fb.Height() / 2
	}
	line := panel.New(fb.Width(), 1)
	for x := 0; x < fb.Width(); x++ {
		p := fb.RGBAt(x, y)
		line.SetRGB(x, 0, panel.RGB{
			R: scale(p.R, c.brightness),
			G: scale(p.G, c.brightness),
			B: scale(p.B, c.brightness),
		})
	}
	if err := c.drawer.Draw(c.drawer.Bounds(), line, image.Point{}); err != nil {
		c.stats.Errors++
		return err
	}
	c.stats.Frames++
	return nil
}

func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.drawer == nil {
		return nil
	}
	return c.drawer.Halt()
}

func scale(v, level uint8) uint8 {
	return uint8(uint16(v) * uint16(level) / 255)
}
