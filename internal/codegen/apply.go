package codegen

import (
	"fmt"
	"time"

	"github.com/coreman2200/fpga-matrixpanel/internal/config"
	"github.com/coreman2200/fpga-matrixpanel/internal/display"
	"github.com/coreman2200/fpga-matrixpanel/internal/entity"
	"github.com/coreman2200/fpga-matrixpanel/internal/transport"
	"github.com/coreman2200/fpga-matrixpanel/internal/writers"
)

// Apply interprets p against reg. Displays get their sinks from port at
// Setup.
func Apply(p *Plan, reg *entity.Registry, port transport.PortOpener) error {
	for _, o := range p.Displays {
		if err := applyDisplay(o, reg, port); err != nil {
			return fmt.Errorf("%s: %w", o.ID, err)
		}
	}
	for _, o := range p.Entities {
		if err := applyEntity(o, reg); err != nil {
			return fmt.Errorf("%s %s: %w", o.Kind, o.ID, err)
		}
	}
	return nil
}

func applyDisplay(o Object, reg *entity.Registry, port transport.PortOpener) error {
	d := display.New(o.ID, port)
	for _, c := range o.Calls {
		if err := displayCall(d, c, reg); err != nil {
			return err
		}
	}
	return nil
}

func displayCall(d *display.Display, c Call, reg *entity.Registry) error {
	switch c.Method {
	case "set_panel_width", "set_panel_height", "set_chain_length",
		"set_initial_brightness", "set_initial_watchdog_interval_usec", "set_rotation":
		v, err := arg[int](c, 0)
		if err != nil {
			return err
		}
		switch c.Method {
		case "set_panel_width":
			d.SetPanelWidth(v)
		case "set_panel_height":
			d.SetPanelHeight(v)
		case "set_chain_length":
			d.SetChainLength(v)
		case "set_initial_brightness":
			d.SetInitialBrightness(v)
		case "set_initial_watchdog_interval_usec":
			d.SetInitialWatchdogIntervalUsec(v)
		case "set_rotation":
			return d.SetRotation(v)
		}
	case "set_initial_watchdog", "set_auto_clear":
		v, err := arg[bool](c, 0)
		if err != nil {
			return err
		}
		if c.Method == "set_auto_clear" {
			d.SetAutoClear(v)
		} else {
			d.SetInitialWatchdog(v)
		}
	case "set_pins":
		v, err := arg[display.Pins](c, 0)
		if err != nil {
			return err
		}
		d.SetPins(v)
	case "set_spi_port":
		v, err := arg[string](c, 0)
		if err != nil {
			return err
		}
		d.SetSPIPort(v)
	case "set_spispeed":
		v, err := arg[config.ClockSpeed](c, 0)
		if err != nil {
			return err
		}
		d.SetSPISpeed(v)
	case "set_update_interval":
		v, err := arg[time.Duration](c, 0)
		if err != nil {
			return err
		}
		d.SetUpdateInterval(v)
	case "register_display":
		return reg.AddDisplay(d)
	case "set_writer":
		ref, err := arg[config.WriterRef](c, 0)
		if err != nil {
			return err
		}
		w, err := writers.New(ref)
		if err != nil {
			return err
		}
		d.SetWriter(w)
	default:
		return fmt.Errorf("%w %q", ErrUnknownCall, c.Method)
	}
	return nil
}

type pending struct {
	name    string
	matrix  string
	gamma   float64
	restore config.RestoreMode
}

func applyEntity(o Object, reg *entity.Registry) error {
	p := pending{gamma: config.DefaultGammaCorrect}
	for _, c := range o.Calls {
		var err error
		switch c.Method {
		case "set_name":
			p.name, err = arg[string](c, 0)
		case "set_display":
			p.matrix, err = arg[string](c, 0)
		case "set_gamma_correct":
			p.gamma, err = arg[float64](c, 0)
		case "set_restore_mode":
			p.restore, err = arg[config.RestoreMode](c, 0)
		case "register_light":
			_, err = reg.NewLight(o.ID, p.name, p.matrix, p.gamma, p.restore)
		case "register_power_switch":
			_, err = reg.NewPowerSwitch(o.ID, p.name, p.matrix, p.restore)
		case "register_brightness":
			_, err = reg.NewBrightness(o.ID, p.name, p.matrix)
		default:
			err = fmt.Errorf("%w %q", ErrUnknownCall, c.Method)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
