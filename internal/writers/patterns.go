package writers

import (
	"time"

	"github.com/coreman2200/fpga-matrixpanel/internal/config"
	"github.com/coreman2200/fpga-matrixpanel/internal/panel"
)

var cardBars = []panel.RGB{
	{R: 255, G: 255, B: 255},
	{R: 255, G: 255, B: 0},
	{R: 0, G: 255, B: 255},
	{R: 0, G: 255, B: 0},
	{R: 255, G: 0, B: 255},
	{R: 255, G: 0, B: 0},
	{R: 0, G: 0, B: 255},
	{R: 0, G: 0, B: 0},
}

// TestCard draws vertical colour bars inside a one pixel white border.
type TestCard struct{}

func newTestCard(config.WriterRef) (Writer, error) { return TestCard{}, nil }

func (TestCard) Name() string { return "test_card" }

func (TestCard) Draw(it Canvas, _ time.Duration) {
	w, h := it.Width(), it.Height()
	n := len(cardBars)
	for i, c := range cardBars {
		x0 := i * w / n
		x1 := (i + 1) * w / n
		it.FilledRectangle(x0, 0, x1-x0, h, c)
	}
	for x := 0; x < w; x++ {
		it.DrawPixel(x, 0, panel.White)
		it.DrawPixel(x, h-1, panel.White)
	}
	for y := 0; y < h; y++ {
		it.DrawPixel(0, y, panel.White)
		it.DrawPixel(w-1, y, panel.White)
	}
}

// IndexSweep lights one pixel per frame in raster order, then wraps.
type IndexSweep struct{ step int }

func newIndexSweep(config.WriterRef) (Writer, error) { return &IndexSweep{}, nil }

func (s *IndexSweep) Name() string { return "index_sweep" }

func (s *IndexSweep) Draw(it Canvas, _ time.Duration) {
	w, h := it.Width(), it.Height()
	n := w * h
	if n == 0 {
		return
	}
	idx := s.step % n
	it.DrawPixel(idx%w, idx/w, panel.White)
	s.step++
}

// RGBChannels shows full red, green and blue for a second each.
type RGBChannels struct{}

func newRGBChannels(config.WriterRef) (Writer, error) { return RGBChannels{}, nil }

func (RGBChannels) Name() string { return "rgb_channels" }

func (RGBChannels) Draw(it Canvas, t time.Duration) {
	switch int(t/time.Second) % 3 {
	case 0:
		it.Fill(panel.RGB{R: 255})
	case 1:
		it.Fill(panel.RGB{G: 255})
	default:
		it.Fill(panel.RGB{B: 255})
	}
}
