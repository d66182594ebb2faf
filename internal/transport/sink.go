// Package transport moves frame buffers to the FPGA panel controller.
package transport

import (
	"errors"

	"github.com/coreman2200/fpga-matrixpanel/internal/panel"
)

// ErrClosed is returned by sinks used after Close.
var ErrClosed = errors.New("transport closed")

var errNotBegun = errors.New("transport not started")

// Geometry is announced to the controller by Begin.
type Geometry struct {
	PanelWidth     int
	PanelHeight    int
	ChainLength    int
	MinRefreshRate int
}

// Sink receives frames. Implementations serialize their own calls.
type Sink interface {
	Begin(g Geometry) error
	SetBrightness(level uint8) error
	Clear() error
	Send(fb *panel.FrameBuffer) error
	Close() error
	String() string
}

// Stats counts transport activity since Begin.
type Stats struct {
	Frames       uint64
	Transactions uint64
	Bytes        uint64
	Errors       uint64
}
