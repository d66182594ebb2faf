package entity

import (
	"sync"

	"github.com/coreman2200/fpga-matrixpanel/internal/config"
	"github.com/coreman2200/fpga-matrixpanel/internal/display"
)

// PowerSwitch turns drawing on or off. Every switch of a display reports
// the same state.
type PowerSwitch struct {
	mu       sync.Mutex
	id, name string
	d        *display.Display
	restore  config.RestoreMode
	on       bool
	reg      *Registry
}

// NewPowerSwitch binds a switch to the display displayID. Displays with a
// switch start disabled until the switch turns them on.
func (r *Registry) NewPowerSwitch(id, name, displayID string, restore config.RestoreMode) (*PowerSwitch, error) {
	d, err := r.Display(displayID)
	if err != nil {
		return nil, err
	}
	s := &PowerSwitch{id: id, name: name, d: d, restore: restore, reg: r}
	r.mu.Lock()
	if err := r.claim(id); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.switches = append(r.switches, s)
	r.mu.Unlock()
	d.RegisterPowerSwitch(s)
	return s, nil
}

func (s *PowerSwitch) ID() string   { return s.id }
func (s *PowerSwitch) Name() string { return s.name }

func (s *PowerSwitch) Display() *display.Display { return s.d }

// Setup writes the restore-mode initial state.
func (s *PowerSwitch) Setup() { s.WriteState(s.restore.InitialState()) }

// WriteState sets the display state and publishes it on every switch of
// the display.
func (s *PowerSwitch) WriteState(on bool) {
	s.d.SetState(on)
	for _, o := range s.d.PowerSwitches() {
		o.PublishState(on)
	}
}

// PublishState records on and notifies listeners.
func (s *PowerSwitch) PublishState(on bool) {
	s.mu.Lock()
	s.on = on
	s.mu.Unlock()
	s.reg.publish(s.State())
}

func (s *PowerSwitch) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{Kind: KindSwitch, ID: s.id, On: s.on}
}
