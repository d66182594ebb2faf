// Package diagnostics carries structured driver events to operators.
package diagnostics

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/fpga-matrixpanel/internal/watchdog"
)

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

type Diagnostic struct {
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Display        string         `json:"display,omitempty"`
	Detail         string         `json:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
	At             time.Time      `json:"at"`
}

// FromWatchdog describes a recovery attempt on display.
func FromWatchdog(display string, e watchdog.Event) Diagnostic {
	d := Diagnostic{
		Severity: Warn,
		Code:     "WATCHDOG.RECOVERED",
		Summary:  "Panel controller recovered",
		Display:  display,
		Evidence: map[string]any{"cause": string(e.Cause)},
		At:       e.At,
	}
	switch e.Cause {
	case watchdog.Stalled:
		d.LikelyCauses = []string{"SPI bus error", "update loop blocked"}
	case watchdog.FPGAReset:
		d.LikelyCauses = []string{"FPGA brown-out", "FPGA reprogrammed"}
		d.SuggestedFixes = []string{"check the panel supply"}
	}
	if !e.Recovered {
		d.Severity = Err
		d.Code = "WATCHDOG.FAILED"
		d.Summary = "Panel controller recovery failed"
		if e.Err != nil {
			d.Detail = e.Err.Error()
		}
		d.SuggestedFixes = append(d.SuggestedFixes, "check SPI wiring and the spispeed setting")
	}
	return d
}

// Hub fans diagnostics out to subscribers and remembers the most recent.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]func(Diagnostic)
	next   int
	recent []Diagnostic
	limit  int
}

func NewHub(limit int) *Hub {
	return &Hub{subs: map[int]func(Diagnostic){}, limit: limit}
}

func (h *Hub) Push(d Diagnostic) {
	if d.At.IsZero() {
		d.At = time.Now()
	}
	level := zerolog.InfoLevel
	switch d.Severity {
	case Warn:
		level = zerolog.WarnLevel
	case Err:
		level = zerolog.ErrorLevel
	}
	log.WithLevel(level).Str("code", d.Code).Str("display", d.Display).Msg(d.Summary)

	h.mu.Lock()
	if h.limit > 0 {
		h.recent = append(h.recent, d)
		if len(h.recent) > h.limit {
			h.recent = h.recent[len(h.recent)-h.limit:]
		}
	}
	subs := make([]func(Diagnostic), 0, len(h.subs))
	for _, f := range h.subs {
		subs = append(subs, f)
	}
	h.mu.Unlock()
	for _, f := range subs {
		f(d)
	}
}

// Subscribe registers f; the returned func removes it.
func (h *Hub) Subscribe(f func(Diagnostic)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	h.subs[id] = f
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

func (h *Hub) Recent() []Diagnostic {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Diagnostic(nil), h.recent...)
}
