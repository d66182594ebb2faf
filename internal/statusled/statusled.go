// Package statusled shows driver health on a single WS2812 pixel.
package statusled

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"

	"github.com/coreman2200/fpga-matrixpanel/internal/display"
	"github.com/coreman2200/fpga-matrixpanel/internal/panel"
)

// Colours shown by the indicator.
var (
	Healthy  = panel.RGB{G: 32}
	Disabled = panel.RGB{B: 32}
	Errors   = panel.RGB{R: 32, G: 16}
	Failed   = panel.RGB{R: 32}
)

// LED drives one pixel.
type LED struct {
	dev   *nrzled.Dev
	order string
	last  panel.RGB
	set   bool
}

// New drives the pixel through p. order is the wire channel order of the
// LED, e.g. "GRB".
func New(p spi.Port, order string) (*LED, error) {
	order = strings.ToUpper(order)
	if len(order) != 3 || !strings.ContainsRune(order, 'R') || !strings.ContainsRune(order, 'G') || !strings.ContainsRune(order, 'B') {
		return nil, fmt.Errorf("invalid color order %q", order)
	}
	d, err := nrzled.NewSPI(p, &nrzled.Opts{
		NumPixels: 1,
		Channels:  3,
		Freq:      2500 * physic.KiloHertz,
	})
	if err != nil {
		return nil, err
	}
	return &LED{dev: d, order: order}, nil
}

// Open opens the named SPI port through spireg.
func Open(port, order string) (*LED, error) {
	p, err := spireg.Open(port)
	if err != nil {
		return nil, fmt.Errorf("open status led port %q: %w", port, err)
	}
	l, err := New(p, order)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return l, nil
}

func (l *LED) String() string { return l.dev.String() }

// raw arranges c so that the encoder, which emits G, R, B, puts the
// channels on the wire in l.order.
func (l *LED) raw(c panel.RGB) []byte {
	val := func(ch byte) byte {
		switch ch {
		case 'R':
			return c.R
		case 'G':
			return c.G
		}
		return c.B
	}
	return []byte{val(l.order[1]), val(l.order[0]), val(l.order[2])}
}

// Set shows c. Repeating the current colour is a no-op.
func (l *LED) Set(c panel.RGB) error {
	if l.set && c == l.last {
		return nil
	}
	if _, err := l.dev.Write(l.raw(c)); err != nil {
		return err
	}
	l.last, l.set = c, true
	return nil
}

func (l *LED) Halt() error { return l.dev.Halt() }

// Color summarises display health: red when any watchdog is unhealthy,
// amber on new transport errors, blue when every display is disabled.
// errs holds the error counts seen at the previous poll and is updated in
// place.
func Color(statuses []display.Status, errs map[string]uint64) panel.RGB {
	failed, newErrs, enabled := false, false, 0
	for _, s := range statuses {
		if !s.Healthy {
			failed = true
		}
		if s.Errors > errs[s.ID] {
			newErrs = true
		}
		if s.Enabled {
			enabled++
		}
		errs[s.ID] = s.Errors
	}
	switch {
	case failed:
		return Failed
	case newErrs:
		return Errors
	case len(statuses) > 0 && enabled == 0:
		return Disabled
	}
	return Healthy
}

// Run polls statuses every period and shows the result until ctx is done.
func (l *LED) Run(ctx context.Context, period time.Duration, statuses func() []display.Status) {
	errs := map[string]uint64{}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = l.Halt()
			return
		case <-ticker.C:
			if err := l.Set(Color(statuses(), errs)); err != nil {
				log.Warn().Err(err).Msg("status led")
			}
		}
	}
}
