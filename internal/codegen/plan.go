// Package codegen turns a validated configuration into a plan of setter
// calls, renders the plan as Go source and applies it to a registry.
package codegen

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/coreman2200/fpga-matrixpanel/internal/config"
	"github.com/coreman2200/fpga-matrixpanel/internal/display"
	"github.com/coreman2200/fpga-matrixpanel/internal/entity"
	"github.com/coreman2200/fpga-matrixpanel/internal/writers"
)

// ErrUnknownCall is returned by Apply for a call it cannot interpret.
var ErrUnknownCall = errors.New("unknown call")

// DefaultPackage is the package name of rendered source.
const DefaultPackage = "matrixsetup"

// Call is one setter invocation.
type Call struct {
	Method string
	Args   []any
}

func (c Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = fmt.Sprint(a)
	}
	return c.Method + "(" + strings.Join(args, ", ") + ")"
}

// Object is a display or entity and the calls that configure it.
type Object struct {
	Kind  string
	ID    string
	Calls []Call
}

type Plan struct {
	Package   string
	Libraries []string
	Displays  []Object
	Entities  []Object
}

// Build validates cfg and produces its plan. cfg must have had defaults
// applied.
func Build(cfg *config.Config) (*Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var errs []error
	p := &Plan{Package: DefaultPackage}
	for i := range cfg.Displays {
		d := &cfg.Displays[i]
		if d.Writer != nil {
			if _, err := writers.New(*d.Writer); err != nil {
				errs = append(errs, &config.FieldError{Path: fmt.Sprintf("matrix_display[%d].writer", i), Msg: err.Error()})
				continue
			}
		}
		if !d.UseCustomLibrary && !contains(p.Libraries, config.Library) {
			p.Libraries = append(p.Libraries, config.Library)
		}
		p.Displays = append(p.Displays, displayObject(d))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	for _, l := range cfg.Lights {
		p.Entities = append(p.Entities, Object{Kind: string(entity.KindLight), ID: l.ID, Calls: []Call{
			{"set_name", []any{l.Name}},
			{"set_display", []any{l.MatrixID}},
			{"set_gamma_correct", []any{l.Gamma()}},
			{"set_restore_mode", []any{l.RestoreMode}},
			{"register_light", nil},
		}})
	}
	for _, s := range cfg.Switches {
		p.Entities = append(p.Entities, Object{Kind: string(entity.KindSwitch), ID: s.ID, Calls: []Call{
			{"set_name", []any{s.Name}},
			{"set_display", []any{s.MatrixID}},
			{"set_restore_mode", []any{s.RestoreMode}},
			{"register_power_switch", nil},
		}})
	}
	for _, n := range cfg.Numbers {
		p.Entities = append(p.Entities, Object{Kind: string(entity.KindNumber), ID: n.ID, Calls: []Call{
			{"set_name", []any{n.Name}},
			{"set_display", []any{n.MatrixID}},
			{"register_brightness", nil},
		}})
	}
	return p, nil
}

func displayObject(d *config.Display) Object {
	o := Object{Kind: "matrix_display", ID: d.ID}
	add := func(m string, args ...any) { o.Calls = append(o.Calls, Call{m, args}) }

	add("set_panel_width", d.Width)
	add("set_panel_height", d.Height)
	add("set_chain_length", d.Chain())
	add("set_initial_brightness", d.InitialBrightness())
	add("set_pins", display.Pins{
		CE:          d.CEPin,
		CLK:         d.CLKPin,
		MOSI:        d.MOSIPin,
		ResetStatus: d.ResetStatusPin,
		Reset:       d.ResetPin,
	})
	if d.SPIPort != "" {
		add("set_spi_port", d.SPIPort)
	}
	add("set_initial_watchdog", d.Watchdog())
	add("set_initial_watchdog_interval_usec", *d.WatchdogIntervalUsec)
	if d.SPISpeed != "" {
		add("set_spispeed", d.SPISpeed)
	}
	add("set_update_interval", d.Interval())
	add("set_rotation", d.Rotation)
	add("set_auto_clear", d.AutoClear())
	add("register_display")
	if d.Writer != nil {
		add("set_writer", *d.Writer)
	}
	return o
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// WriteText prints the plan one call per line.
func (p *Plan) WriteText(w io.Writer) error {
	var b strings.Builder
	for _, l := range p.Libraries {
		fmt.Fprintf(&b, "library %s\n", l)
	}
	for _, objs := range [][]Object{p.Displays, p.Entities} {
		for _, o := range objs {
			for _, c := range o.Calls {
				fmt.Fprintf(&b, "%s %s.%s\n", o.Kind, o.ID, c)
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Methods lists the calls of the object with the given id.
func (p *Plan) Methods(id string) []string {
	for _, objs := range [][]Object{p.Displays, p.Entities} {
		for _, o := range objs {
			if o.ID != id {
				continue
			}
			out := make([]string, len(o.Calls))
			for i, c := range o.Calls {
				out[i] = c.Method
			}
			return out
		}
	}
	return nil
}

func arg[T any](c Call, i int) (T, error) {
	var zero T
	if i >= len(c.Args) {
		return zero, fmt.Errorf("%s: missing argument %d", c.Method, i)
	}
	v, ok := c.Args[i].(T)
	if !ok {
		return zero, fmt.Errorf("%s: argument %d is %T, want %T", c.Method, i, c.Args[i], zero)
	}
	return v, nil
}
