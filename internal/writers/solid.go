package writers

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/coreman2200/fpga-matrixpanel/internal/config"
	"github.com/coreman2200/fpga-matrixpanel/internal/panel"
)

var solidPresets = []string{"Red", "Green", "Blue", "White", "Black"}

// Solid fills the panel with one color. An optional "pulse_hz" param
// modulates brightness.
type Solid struct {
	c       panel.RGB
	pulseHz float64
}

func newSolid(ref config.WriterRef) (Writer, error) {
	s := &Solid{c: panel.RGB{R: 255}}
	switch ref.Preset {
	case "Red":
		s.c = panel.RGB{R: 255}
	case "Green":
		s.c = panel.RGB{G: 255}
	case "Blue":
		s.c = panel.RGB{B: 255}
	case "White":
		s.c = panel.White
	case "Black":
		s.c = panel.Black
	}
	if v, ok := ref.Params["color"]; ok {
		c, err := ParseHex(v)
		if err != nil {
			return nil, fmt.Errorf("solid: %w", err)
		}
		s.c = c
	}
	if v, ok := ref.Params["pulse_hz"]; ok {
		hz, err := strconv.ParseFloat(v, 64)
		if err != nil || hz < 0 {
			return nil, fmt.Errorf("solid: invalid pulse_hz %q", v)
		}
		s.pulseHz = hz
	}
	return s, nil
}

func (s *Solid) Name() string { return "solid" }

func (s *Solid) Draw(it Canvas, t time.Duration) {
	c := s.c
	if s.pulseHz > 0 {
		k := 0.5 + 0.5*math.Sin(2*math.Pi*s.pulseHz*t.Seconds())
		c = panel.RGB{R: uint8(float64(c.R) * k), G: uint8(float64(c.G) * k), B: uint8(float64(c.B) * k)}
	}
	it.Fill(c)
}

// ParseHex parses "#rrggbb" (the leading # is optional).
func ParseHex(s string) (panel.RGB, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return panel.RGB{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return panel.RGB{}, fmt.Errorf("invalid color %q", s)
	}
	return panel.RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}
