package transport

import (
	"github.com/rs/zerolog/log"
)

// PortOpener creates the sink for one display.
type PortOpener interface {
	Open(port, ce string, o Opts) (Sink, error)
}

// OpenerFunc adapts a function to PortOpener.
type OpenerFunc func(port, ce string, o Opts) (Sink, error)

func (f OpenerFunc) Open(port, ce string, o Opts) (Sink, error) { return f(port, ce, o) }

// HostOpener opens SPI ports through the host registry. When SimOnly is set,
// or no port can be opened, it returns a Console instead.
type HostOpener struct {
	SimOnly bool
}

func (h HostOpener) Open(port, ce string, o Opts) (Sink, error) {
	if h.SimOnly {
		return NewConsole(), nil
	}
	s, err := OpenSPI(port, ce, o)
	if err != nil {
		log.Warn().Err(err).Str("port", port).Msg("no spi port, falling back to console")
		return NewConsole(), nil
	}
	return s, nil
}
