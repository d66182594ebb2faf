package writers

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/fpga-matrixpanel/internal/config"
	"github.com/coreman2200/fpga-matrixpanel/internal/panel"
)

// fbCanvas draws straight into a frame buffer.
type fbCanvas struct{ *panel.FrameBuffer }

func (c fbCanvas) DrawPixel(x, y int, v panel.RGB)             { c.SetRGB(x, y, v) }
func (c fbCanvas) FilledRectangle(x, y, w, h int, v panel.RGB) { c.FillRect(x, y, w, h, v) }

func newCanvas(w, h int) fbCanvas { return fbCanvas{panel.New(w, h)} }

func TestDefaultRegistryList(t *testing.T) {
	assert.Equal(t, []string{"gradient", "index_sweep", "rgb_channels", "solid", "test_card", "text"}, Default.List())
	assert.True(t, Default.Has("solid"))
	assert.Equal(t, solidPresets, Default.Presets("solid"))
}

func TestUnknownWriter(t *testing.T) {
	_, err := New(config.WriterRef{Name: "plasma"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownWriter))
}

func TestUnknownPreset(t *testing.T) {
	_, err := New(config.WriterRef{Name: "solid", Preset: "Purple"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Purple")
}

func TestSolidPresetAndColor(t *testing.T) {
	c := newCanvas(4, 2)
	w, err := New(config.WriterRef{Name: "solid", Preset: "Blue"})
	require.NoError(t, err)
	w.Draw(c, 0)
	assert.Equal(t, panel.RGB{B: 255}, c.RGBAt(3, 1))

	w, err = New(config.WriterRef{Name: "solid", Params: map[string]string{"color": "#102030"}})
	require.NoError(t, err)
	w.Draw(c, 0)
	assert.Equal(t, panel.RGB{R: 0x10, G: 0x20, B: 0x30}, c.RGBAt(0, 0))
}

func TestSolidRejectsBadParams(t *testing.T) {
	_, err := New(config.WriterRef{Name: "solid", Params: map[string]string{"color": "red"}})
	assert.Error(t, err)
	_, err = New(config.WriterRef{Name: "solid", Params: map[string]string{"pulse_hz": "-1"}})
	assert.Error(t, err)
}

func TestSolidPulse(t *testing.T) {
	c := newCanvas(1, 1)
	w, err := New(config.WriterRef{Name: "solid", Preset: "White", Params: map[string]string{"pulse_hz": "1"}})
	require.NoError(t, err)
	// sin(3π/2) = -1 puts the pulse at zero.
	w.Draw(c, 750*time.Millisecond)
	assert.Equal(t, panel.Black, c.RGBAt(0, 0))
}

func TestGradientStillStartsRed(t *testing.T) {
	c := newCanvas(4, 1)
	w, err := New(config.WriterRef{Name: "gradient", Preset: "Still"})
	require.NoError(t, err)
	w.Draw(c, 5*time.Second)
	assert.Equal(t, panel.RGB{R: 255}, c.RGBAt(0, 0))
	assert.Equal(t, panel.RGB{G: 255, B: 255}, c.RGBAt(2, 0))
}

func TestTestCardBorder(t *testing.T) {
	c := newCanvas(16, 8)
	w, err := New(config.WriterRef{Name: "test_card"})
	require.NoError(t, err)
	w.Draw(c, 0)
	assert.Equal(t, panel.White, c.RGBAt(0, 4))
	assert.Equal(t, panel.White, c.RGBAt(15, 7))
	// Second bar is yellow.
	assert.Equal(t, panel.RGB{R: 255, G: 255}, c.RGBAt(3, 3))
}

func TestIndexSweepWraps(t *testing.T) {
	c := newCanvas(2, 2)
	w, err := New(config.WriterRef{Name: "index_sweep"})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		c.Clear()
		w.Draw(c, 0)
	}
	assert.Equal(t, panel.White, c.RGBAt(0, 0))
	assert.Equal(t, panel.Black, c.RGBAt(1, 0))
}

func TestRGBChannelsCycle(t *testing.T) {
	c := newCanvas(1, 1)
	w, err := New(config.WriterRef{Name: "rgb_channels"})
	require.NoError(t, err)
	w.Draw(c, 1500*time.Millisecond)
	assert.Equal(t, panel.RGB{G: 255}, c.RGBAt(0, 0))
	w.Draw(c, 3*time.Second)
	assert.Equal(t, panel.RGB{R: 255}, c.RGBAt(0, 0))
}

func TestTextDrawsSomething(t *testing.T) {
	_, err := New(config.WriterRef{Name: "text"})
	require.Error(t, err)

	c := newCanvas(32, 16)
	w, err := New(config.WriterRef{Name: "text", Params: map[string]string{"text": "HI", "color": "#00ff00"}})
	require.NoError(t, err)
	w.Draw(c, 0)
	lit := 0
	for y := 0; y < 16; y++ {
		for x := 0; x < 32; x++ {
			if c.RGBAt(x, y) == (panel.RGB{G: 255}) {
				lit++
			}
		}
	}
	assert.Greater(t, lit, 0)
}

func TestFuncAdapter(t *testing.T) {
	r := NewRegistry()
	r.Register("dot", nil, func(config.WriterRef) (Writer, error) {
		return Func{N: "dot", F: func(it Canvas, _ time.Duration) { it.DrawPixel(0, 0, panel.White) }}, nil
	})
	w, err := r.New(config.WriterRef{Name: "dot"})
	require.NoError(t, err)
	assert.Equal(t, "dot", w.Name())
	c := newCanvas(2, 2)
	w.Draw(c, 0)
	assert.Equal(t, panel.White, c.RGBAt(0, 0))
}
