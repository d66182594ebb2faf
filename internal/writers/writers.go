// Package writers holds the named drawing callbacks a display runs on every
// update tick.
package writers

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/coreman2200/fpga-matrixpanel/internal/config"
	"github.com/coreman2200/fpga-matrixpanel/internal/panel"
)

var ErrUnknownWriter = errors.New("unknown writer")

// Canvas is the drawing surface handed to a writer.
type Canvas interface {
	Width() int
	Height() int
	DrawPixel(x, y int, c panel.RGB)
	Fill(c panel.RGB)
	FilledRectangle(x, y, w, h int, c panel.RGB)
}

// Writer draws one frame at time t since the display started.
type Writer interface {
	Name() string
	Draw(it Canvas, t time.Duration)
}

// Func adapts a plain function to Writer.
type Func struct {
	N string
	F func(it Canvas, t time.Duration)
}

func (f Func) Name() string                    { return f.N }
func (f Func) Draw(it Canvas, t time.Duration) { f.F(it, t) }

// Factory builds a writer instance from its config reference.
type Factory func(ref config.WriterRef) (Writer, error)

type entry struct {
	factory Factory
	presets []string
}

type Registry struct {
	mu sync.RWMutex
	m  map[string]entry
}

func NewRegistry() *Registry { return &Registry{m: map[string]entry{}} }

func (r *Registry) Register(name string, presets []string, f Factory) {
	if f == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[name] = entry{factory: f, presets: presets}
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.m[name]
	return ok
}

// Get returns the factory registered under name.
func (r *Registry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.m[name]
	return e.factory, ok
}

// Presets lists the presets a writer accepts.
func (r *Registry) Presets(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.m[name].presets
}

// List returns writer names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New instantiates the writer named by ref.
func (r *Registry) New(ref config.WriterRef) (Writer, error) {
	r.mu.RLock()
	e, ok := r.m[ref.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownWriter, ref.Name)
	}
	if ref.Preset != "" && len(e.presets) > 0 && !contains(e.presets, ref.Preset) {
		return nil, fmt.Errorf("writer %q: unknown preset %q (valid: %v)", ref.Name, ref.Preset, e.presets)
	}
	return e.factory(ref)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Default holds the built-in writers.
var Default = NewRegistry()

func init() {
	Default.Register("solid", solidPresets, newSolid)
	Default.Register("gradient", []string{"Rainbow", "Still"}, newGradient)
	Default.Register("test_card", nil, newTestCard)
	Default.Register("index_sweep", nil, newIndexSweep)
	Default.Register("rgb_channels", nil, newRGBChannels)
	Default.Register("text", nil, newText)
}

// New instantiates a built-in writer.
func New(ref config.WriterRef) (Writer, error) { return Default.New(ref) }
