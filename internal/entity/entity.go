// Package entity exposes displays to the outside world as a brightness
// light, a power switch and a brightness number, and keeps every entity
// reachable by id.
package entity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/fpga-matrixpanel/internal/display"
)

// ErrUnknownID is returned when an id does not name a registered object.
var ErrUnknownID = errors.New("unknown id")

type Kind string

const (
	KindLight  Kind = "light"
	KindSwitch Kind = "switch"
	KindNumber Kind = "number"
)

// State is published whenever an entity changes.
type State struct {
	Kind       Kind    `json:"kind"`
	ID         string  `json:"id"`
	On         bool    `json:"on"`
	Brightness int     `json:"brightness"`
	Value      float64 `json:"value"`
}

// Registry owns displays and the entities bound to them.
type Registry struct {
	mu        sync.RWMutex
	displays  []*display.Display
	lights    []*Light
	switches  []*PowerSwitch
	numbers   []*BrightnessNumber
	ids       map[string]bool
	listeners []func(State)
}

func NewRegistry() *Registry {
	return &Registry{ids: map[string]bool{}}
}

func (r *Registry) claim(id string) error {
	if id == "" {
		return errors.New("empty id")
	}
	if r.ids[id] {
		return fmt.Errorf("duplicate id %q", id)
	}
	r.ids[id] = true
	return nil
}

// AddDisplay registers d under its id.
func (r *Registry) AddDisplay(d *display.Display) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.claim(d.ID()); err != nil {
		return err
	}
	r.displays = append(r.displays, d)
	return nil
}

// Display resolves a matrix_id.
func (r *Registry) Display(id string) (*display.Display, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.displays {
		if d.ID() == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("display %q: %w", id, ErrUnknownID)
}

func (r *Registry) Displays() []*display.Display {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*display.Display(nil), r.displays...)
}

func (r *Registry) Lights() []*Light {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Light(nil), r.lights...)
}

func (r *Registry) Switches() []*PowerSwitch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*PowerSwitch(nil), r.switches...)
}

func (r *Registry) Numbers() []*BrightnessNumber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*BrightnessNumber(nil), r.numbers...)
}

func (r *Registry) Light(id string) (*Light, error) {
	for _, l := range r.Lights() {
		if l.id == id {
			return l, nil
		}
	}
	return nil, fmt.Errorf("light %q: %w", id, ErrUnknownID)
}

func (r *Registry) Switch(id string) (*PowerSwitch, error) {
	for _, s := range r.Switches() {
		if s.id == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("switch %q: %w", id, ErrUnknownID)
}

func (r *Registry) Number(id string) (*BrightnessNumber, error) {
	for _, n := range r.Numbers() {
		if n.id == id {
			return n, nil
		}
	}
	return nil, fmt.Errorf("number %q: %w", id, ErrUnknownID)
}

// Subscribe registers f for every state publication.
func (r *Registry) Subscribe(f func(State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, f)
}

func (r *Registry) publish(s State) {
	r.mu.RLock()
	ls := make([]func(State), len(r.listeners))
	copy(ls, r.listeners)
	r.mu.RUnlock()
	for _, f := range ls {
		f(s)
	}
}

// States returns the current state of every entity.
func (r *Registry) States() []State {
	var out []State
	for _, l := range r.Lights() {
		out = append(out, l.State())
	}
	for _, s := range r.Switches() {
		out = append(out, s.State())
	}
	for _, n := range r.Numbers() {
		out = append(out, n.State())
	}
	return out
}

// Setup sets up every display, then applies the entities' initial states.
func (r *Registry) Setup() error {
	for _, d := range r.Displays() {
		if err := d.Setup(); err != nil {
			return err
		}
		d.DumpConfig()
	}
	for _, s := range r.Switches() {
		s.Setup()
	}
	for _, l := range r.Lights() {
		if err := l.Setup(); err != nil {
			return err
		}
	}
	for _, n := range r.Numbers() {
		n.Setup()
	}
	return nil
}

// Run drives every display until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, d := range r.Displays() {
		wg.Add(1)
		go func(d *display.Display) {
			defer wg.Done()
			d.Run(ctx)
		}(d)
	}
	wg.Wait()
}

// Close closes every display sink.
func (r *Registry) Close() error {
	var errs []error
	for _, d := range r.Displays() {
		if err := d.Close(); err != nil {
			log.Error().Err(err).Str("display", d.ID()).Msg("close")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
