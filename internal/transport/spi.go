package transport

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"

	"github.com/coreman2200/fpga-matrixpanel/internal/panel"
)

// Opts configures an SPI sink.
type Opts struct {
	Speed physic.Frequency
	// CE is driven low around every transaction. Nil leaves chip select
	// to the SPI port.
	CE         gpio.PinOut
	CEInverted bool
	// MaxTxSize overrides the limit reported by the port when > 0.
	MaxTxSize int
}

// SPI frames buffers into panel commands over a periph SPI connection.
type SPI struct {
	mu      sync.Mutex
	port    spi.Port
	conn    spi.Conn
	ce      gpio.PinOut
	ceInv   bool
	maxTx   int
	speed   physic.Frequency
	closed  bool
	stats   Stats
	scratch []byte
	logger  zerolog.Logger
}

// NewSPI connects to p in mode 0, 8 bits per word.
func NewSPI(p spi.Port, o Opts) (*SPI, error) {
	if o.Speed <= 0 {
		return nil, fmt.Errorf("spi: invalid speed %s", o.Speed)
	}
	c, err := p.Connect(o.Speed, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("spi connect: %w", err)
	}
	maxTx := DefaultMaxTxSize
	if l, ok := c.(conn.Limits); ok && l.MaxTxSize() > 0 {
		maxTx = l.MaxTxSize()
	}
	if o.MaxTxSize > 0 {
		maxTx = o.MaxTxSize
	}
	if rowChunk(maxTx) < 1 {
		return nil, fmt.Errorf("spi: max transaction size %d cannot carry a pixel", maxTx)
	}
	s := &SPI{
		port:   p,
		conn:   c,
		ce:     o.CE,
		ceInv:  o.CEInverted,
		maxTx:  maxTx,
		speed:  o.Speed,
		logger: log.With().Str("component", "spi").Str("port", fmt.Sprint(p)).Logger(),
	}
	if err := s.setCE(false); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSPI opens a port by name through spireg ("" picks the first one) and
// resolves the chip-enable pin through gpioreg.
func OpenSPI(name string, ce string, o Opts) (*SPI, error) {
	p, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open spi port %q: %w", name, err)
	}
	if ce != "" && o.CE == nil {
		if pin := gpioreg.ByName(ce); pin != nil {
			o.CE = pin
		} else {
			log.Warn().Str("pin", ce).Msg("chip-enable pin not found; using port chip select")
		}
	}
	s, err := NewSPI(p, o)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return s, nil
}

func (s *SPI) String() string { return fmt.Sprintf("spi{%s@%s}", s.port, s.speed) }

// MaxTxSize is the largest single transaction this sink emits.
func (s *SPI) MaxTxSize() int { return s.maxTx }

func (s *SPI) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *SPI) setCE(active bool) error {
	if s.ce == nil {
		return nil
	}
	l := gpio.High
	if active != s.ceInv {
		l = gpio.Low
	}
	if err := s.ce.Out(l); err != nil {
		return fmt.Errorf("spi chip enable: %w", err)
	}
	return nil
}

// tx runs one framed transaction. Caller holds s.mu.
func (s *SPI) tx(b []byte) error {
	if s.closed {
		return ErrClosed
	}
	if err := s.setCE(true); err != nil {
		s.stats.Errors++
		return err
	}
	err := s.conn.Tx(b, nil)
	if cerr := s.setCE(false); err == nil {
		err = cerr
	}
	if err != nil {
		s.stats.Errors++
		return fmt.Errorf("spi tx: %w", err)
	}
	s.stats.Transactions++
	s.stats.Bytes += uint64(len(b))
	return nil
}

// Begin announces the geometry and clears both panel buffers.
func (s *SPI) Begin(g Geometry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = Stats{}
	if err := s.tx(configPacket(g)); err != nil {
		return err
	}
	s.logger.Debug().
		Int("width", g.PanelWidth).
		Int("height", g.PanelHeight).
		Int("chain", g.ChainLength).
		Int("min_refresh", g.MinRefreshRate).
		Msg("begin")
	return s.tx([]byte{CmdClear})
}

func (s *SPI) SetBrightness(level uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx([]byte{CmdBrightness, level})
}

func (s *SPI) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx([]byte{CmdClear})
}

// Send streams every row into the back buffer, splitting rows that exceed
// the transaction limit, then swaps.
func (s *SPI) Send(fb *panel.FrameBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chunk := rowChunk(s.maxTx)
	for y := 0; y < fb.Height(); y++ {
		row := fb.Row(y)
		for off := 0; off*3 < len(row); off += chunk {
			end := (off + chunk) * 3
			if end > len(row) {
				end = len(row)
			}
			s.scratch = appendRow(s.scratch[:0], y, off, row[off*3:end])
			if err := s.tx(s.scratch); err != nil {
				return fmt.Errorf("row %d: %w", y, err)
			}
		}
	}
	if err := s.tx([]byte{CmdSwap}); err != nil {
		return err
	}
	s.stats.Frames++
	return nil
}

func (s *SPI) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if c, ok := s.port.(spi.PortCloser); ok {
		return c.Close()
	}
	return nil
}
