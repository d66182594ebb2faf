package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxGPIO is the highest GPIO number on the ESP32 family the panel
// firmware targets.
const MaxGPIO = 39

// Pin is a GPIO assignment. A zero Pin with Set=false means "not configured".
type Pin struct {
	Number   int  `yaml:"number"`
	Inverted bool `yaml:"inverted,omitempty"`
	Set      bool `yaml:"-"`
}

// P builds a configured pin.
func P(n int) Pin { return Pin{Number: n, Set: true} }

// Name is the periph gpioreg name of the pin.
func (p Pin) Name() string { return "GPIO" + strconv.Itoa(p.Number) }

func (p Pin) String() string {
	if !p.Set {
		return "unset"
	}
	if p.Inverted {
		return p.Name() + "(inverted)"
	}
	return p.Name()
}

func (p *Pin) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		num, err := parsePinNumber(n.Value)
		if err != nil {
			return err
		}
		*p = Pin{Number: num, Set: true}
		return nil
	case yaml.MappingNode:
		var raw struct {
			Number   yaml.Node `yaml:"number"`
			Inverted bool      `yaml:"inverted"`
		}
		if err := n.Decode(&raw); err != nil {
			return err
		}
		if raw.Number.Kind == 0 {
			return fmt.Errorf("line %d: pin mapping requires number", n.Line)
		}
		num, err := parsePinNumber(raw.Number.Value)
		if err != nil {
			return err
		}
		*p = Pin{Number: num, Inverted: raw.Inverted, Set: true}
		return nil
	default:
		return fmt.Errorf("line %d: pin must be a number, a name or a mapping", n.Line)
	}
}

func (p Pin) MarshalYAML() (any, error) {
	if p.Inverted {
		return struct {
			Number   int  `yaml:"number"`
			Inverted bool `yaml:"inverted"`
		}{p.Number, true}, nil
	}
	return p.Number, nil
}

func parsePinNumber(s string) (int, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "GPIO")
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid pin %q", s)
	}
	return n, nil
}

// IsZero lets yaml omitempty drop unconfigured pins.
func (p Pin) IsZero() bool { return !p.Set }
