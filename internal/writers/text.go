package writers

import (
	"fmt"
	"image/color"
	"time"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"github.com/coreman2200/fpga-matrixpanel/internal/config"
	"github.com/coreman2200/fpga-matrixpanel/internal/panel"
)

// Text renders a static line with an 8pt bitmap font.
// Params: "text" (required), "color" (#rrggbb, default white).
type Text struct {
	text string
	c    panel.RGB
}

func newText(ref config.WriterRef) (Writer, error) {
	s, ok := ref.Params["text"]
	if !ok || s == "" {
		return nil, fmt.Errorf("text: param \"text\" is required")
	}
	t := &Text{text: s, c: panel.White}
	if v, ok := ref.Params["color"]; ok {
		c, err := ParseHex(v)
		if err != nil {
			return nil, fmt.Errorf("text: %w", err)
		}
		t.c = c
	}
	return t, nil
}

func (t *Text) Name() string { return "text" }

func (t *Text) Draw(it Canvas, _ time.Duration) {
	d, ok := it.(drivers.Displayer)
	if !ok {
		d = displayer{it}
	}
	// y is the baseline; center an 8pt line vertically.
	y := int16((it.Height() + 8) / 2)
	tinyfont.WriteLine(d, &proggy.TinySZ8pt7b, 1, y, t.text, color.RGBA{R: t.c.R, G: t.c.G, B: t.c.B, A: 255})
}

// displayer adapts a Canvas for tinyfont.
type displayer struct{ c Canvas }

func (d displayer) Size() (int16, int16) { return int16(d.c.Width()), int16(d.c.Height()) }

func (d displayer) SetPixel(x, y int16, c color.RGBA) {
	d.c.DrawPixel(int(x), int(y), panel.RGB{R: c.R, G: c.G, B: c.B})
}

func (d displayer) Display() error { return nil }
