package entity

import (
	"sync"

	"github.com/coreman2200/fpga-matrixpanel/internal/display"
	"github.com/coreman2200/fpga-matrixpanel/internal/x/mathx"
)

// Number range of a BrightnessNumber.
const (
	NumberMin  = 0
	NumberMax  = 255
	NumberStep = 1
)

// BrightnessNumber sets display brightness directly.
type BrightnessNumber struct {
	mu       sync.Mutex
	id, name string
	d        *display.Display
	value    float64
	reg      *Registry
}

func (r *Registry) NewBrightness(id, name, displayID string) (*BrightnessNumber, error) {
	d, err := r.Display(displayID)
	if err != nil {
		return nil, err
	}
	n := &BrightnessNumber{id: id, name: name, d: d, reg: r}
	r.mu.Lock()
	if err := r.claim(id); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.numbers = append(r.numbers, n)
	r.mu.Unlock()
	d.RegisterBrightness(n)
	return n, nil
}

func (n *BrightnessNumber) ID() string   { return n.id }
func (n *BrightnessNumber) Name() string { return n.name }

func (n *BrightnessNumber) Display() *display.Display { return n.d }

// Setup publishes the display's current brightness.
func (n *BrightnessNumber) Setup() { n.PublishValue(float64(n.d.Brightness())) }

// Control sets the brightness and publishes v on every number of the
// display.
func (n *BrightnessNumber) Control(v float64) error {
	v = mathx.Clamp(v, NumberMin, NumberMax)
	if err := n.d.SetBrightness(int(v)); err != nil {
		return err
	}
	for _, o := range n.d.BrightnessValues() {
		o.PublishValue(v)
	}
	return nil
}

func (n *BrightnessNumber) PublishValue(v float64) {
	n.mu.Lock()
	n.value = v
	n.mu.Unlock()
	n.reg.publish(n.State())
}

func (n *BrightnessNumber) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return State{Kind: KindNumber, ID: n.id, Value: n.value}
}
