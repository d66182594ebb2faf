package entity

import (
	"fmt"
	"math"
	"sync"

	"github.com/coreman2200/fpga-matrixpanel/internal/config"
	"github.com/coreman2200/fpga-matrixpanel/internal/display"
	"github.com/coreman2200/fpga-matrixpanel/internal/x/mathx"
)

// Light drives display brightness as a brightness-only light.
type Light struct {
	mu         sync.Mutex
	id, name   string
	d          *display.Display
	gamma      float64
	restore    config.RestoreMode
	on         bool
	brightness int
	reg        *Registry
}

// NewLight binds a light to the display displayID.
func (r *Registry) NewLight(id, name, displayID string, gamma float64, restore config.RestoreMode) (*Light, error) {
	d, err := r.Display(displayID)
	if err != nil {
		return nil, err
	}
	l := &Light{id: id, name: name, d: d, gamma: gamma, restore: restore, brightness: 255, reg: r}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.claim(id); err != nil {
		return nil, err
	}
	r.lights = append(r.lights, l)
	return l, nil
}

func (l *Light) ID() string   { return l.id }
func (l *Light) Name() string { return l.name }

func (l *Light) Display() *display.Display { return l.d }

// Level maps a 0..1 brightness to the 0..255 panel level.
func Level(on bool, b, gamma float64) int {
	if !on {
		return 0
	}
	b = mathx.Clamp(b, 0, 1)
	return int(math.Pow(b, gamma)*255 + 0.5)
}

// WriteState applies on and brightness (0..1) to the display.
func (l *Light) WriteState(on bool, b float64) error {
	if err := l.d.SetBrightness(Level(on, b, l.gamma)); err != nil {
		return fmt.Errorf("light %s: %w", l.id, err)
	}
	return nil
}

// Set changes the light from a remote command. brightness is 0..255; a
// negative value keeps the current brightness.
func (l *Light) Set(on bool, brightness int) error {
	l.mu.Lock()
	l.on = on
	if brightness >= 0 {
		l.brightness = mathx.Clamp(brightness, 0, 255)
	}
	b := float64(l.brightness) / 255
	l.mu.Unlock()

	if err := l.WriteState(on, b); err != nil {
		return err
	}
	l.reg.publish(l.State())
	return nil
}

// Setup writes the restore-mode initial state.
func (l *Light) Setup() error {
	return l.Set(l.restore.InitialState(), -1)
}

func (l *Light) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return State{Kind: KindLight, ID: l.id, On: l.on, Brightness: l.brightness}
}
