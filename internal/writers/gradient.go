package writers

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/coreman2200/fpga-matrixpanel/internal/config"
	"github.com/coreman2200/fpga-matrixpanel/internal/panel"
)

// Gradient sweeps the hue wheel across the panel width.
// Params:
//   - "speed" revolutions per second (Rainbow preset: 0.1, Still: 0)
type Gradient struct {
	speed float64
}

func newGradient(ref config.WriterRef) (Writer, error) {
	g := &Gradient{speed: 0.1}
	if ref.Preset == "Still" {
		g.speed = 0
	}
	if v, ok := ref.Params["speed"]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("gradient: invalid speed %q", v)
		}
		g.speed = f
	}
	return g, nil
}

func (g *Gradient) Name() string { return "gradient" }

func (g *Gradient) Draw(it Canvas, t time.Duration) {
	w, h := it.Width(), it.Height()
	phase := t.Seconds() * g.speed
	for x := 0; x < w; x++ {
		hue := math.Mod(float64(x)/float64(max(1, w))+phase, 1.0)
		if hue < 0 {
			hue += 1
		}
		r, gg, b := hsvToRGB(hue, 1.0, 1.0)
		c := panel.RGB{R: uint8(r * 255), G: uint8(gg * 255), B: uint8(b * 255)}
		for y := 0; y < h; y++ {
			it.DrawPixel(x, y, c)
		}
	}
}

func hsvToRGB(h, s, v float64) (float64, float64, float64) {
	i := int(h * 6.0)
	f := h*6.0 - float64(i)
	p := v * (1.0 - s)
	q := v * (1.0 - f*s)
	t := v * (1.0 - (1.0-f)*s)
	switch i % 6 {
	case 0:
		return v, t, p
	case 1:
		return q, v, p
	case 2:
		return p, v, t
	case 3:
		return p, q, v
	case 4:
		return t, p, v
	default:
		return v, p, q
	}
}
