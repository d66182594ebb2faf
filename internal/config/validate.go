package config

import (
	"errors"
	"fmt"
)

// FieldError ties a validation failure to the key path that caused it.
type FieldError struct {
	Path string
	Msg  string
	Err  error
}

func (e *FieldError) Error() string { return e.Path + ": " + e.Msg }

func (e *FieldError) Unwrap() error { return e.Err }

type validator struct{ errs []error }

func (v *validator) addf(path, format string, args ...any) {
	v.errs = append(v.errs, &FieldError{Path: path, Msg: fmt.Sprintf(format, args...)})
}

func (v *validator) add(path string, err error) {
	v.errs = append(v.errs, &FieldError{Path: path, Msg: err.Error(), Err: err})
}

// Validate checks the defaulted config and returns every violation joined.
func (c *Config) Validate() error {
	v := &validator{}
	if len(c.Displays) == 0 {
		v.addf("matrix_display", "at least one display is required")
	}
	ids := map[string]string{}
	claim := func(path, id string) {
		if id == "" {
			v.addf(path+".id", "must not be empty")
			return
		}
		if prev, ok := ids[id]; ok {
			v.addf(path+".id", "duplicate id %q (also used by %s)", id, prev)
			return
		}
		ids[id] = path
	}
	for i := range c.Displays {
		path := fmt.Sprintf("matrix_display[%d]", i)
		claim(path, c.Displays[i].ID)
		c.Displays[i].validate(v, path)
	}
	matrix := func(path, id string) {
		if id == "" {
			v.addf(path+".matrix_id", "is required")
			return
		}
		if _, ok := c.Display(id); !ok {
			v.addf(path+".matrix_id", "unknown display %q", id)
		}
	}
	for i, l := range c.Lights {
		path := fmt.Sprintf("light[%d]", i)
		claim(path, l.ID)
		matrix(path, l.MatrixID)
		if l.GammaCorrect != nil && *l.GammaCorrect < 0 {
			v.addf(path+".gamma_correct", "must be >= 0, got %v", *l.GammaCorrect)
		}
		validRestore(v, path, l.RestoreMode)
	}
	for i, s := range c.Switches {
		path := fmt.Sprintf("switch[%d]", i)
		claim(path, s.ID)
		matrix(path, s.MatrixID)
		validRestore(v, path, s.RestoreMode)
	}
	for i, n := range c.Numbers {
		path := fmt.Sprintf("number[%d]", i)
		claim(path, n.ID)
		matrix(path, n.MatrixID)
	}
	if c.MQTT != nil && c.MQTT.Broker == "" {
		v.addf("mqtt.broker", "is required")
	}
	return errors.Join(v.errs...)
}

func validRestore(v *validator, path string, r RestoreMode) {
	switch r {
	case "", AlwaysOff, AlwaysOn, RestoreDefaultOff, RestoreDefaultOn:
	default:
		v.addf(path+".restore_mode", "unknown restore mode %q", r)
	}
}

func (d *Display) validate(v *validator, path string) {
	if d.Width <= 0 {
		v.addf(path+".width", "must be a positive integer, got %d", d.Width)
	} else if d.Width > MaxPanelSize {
		v.addf(path+".width", "must be at most %d, got %d", MaxPanelSize, d.Width)
	}
	if d.Height <= 0 {
		v.addf(path+".height", "must be a positive integer, got %d", d.Height)
	} else if d.Height > MaxPanelSize {
		v.addf(path+".height", "must be at most %d, got %d", MaxPanelSize, d.Height)
	}
	if d.ChainLength != nil && *d.ChainLength <= 0 {
		v.addf(path+".chain_length", "must be a positive integer, got %d", *d.ChainLength)
	} else if d.ChainLength != nil && *d.ChainLength > MaxChainLength {
		v.addf(path+".chain_length", "must be at most %d, got %d", MaxChainLength, *d.ChainLength)
	}
	if d.Brightness != nil && (*d.Brightness < 0 || *d.Brightness > 255) {
		v.addf(path+".brightness", "must be in 0..255, got %d", *d.Brightness)
	}
	if d.UpdateInterval != nil && d.UpdateInterval.D() <= 0 {
		v.addf(path+".update_interval", "must be a positive time period")
	}
	if d.WatchdogIntervalUsec != nil && *d.WatchdogIntervalUsec <= 0 {
		v.addf(path+".watchdog_interval_usec", "must be a positive integer, got %d", *d.WatchdogIntervalUsec)
	}
	if d.SPISpeed != "" {
		if _, err := ParseClockSpeed(string(d.SPISpeed)); err != nil {
			v.add(path+".spispeed", err)
		}
	}
	switch d.Rotation {
	case 0, 90, 180, 270:
	default:
		v.addf(path+".rotation", "must be one of 0, 90, 180, 270, got %d", d.Rotation)
	}
	if d.ResetPin.Set && d.ResetStatusPin.Set {
		v.addf(path+".FPGA_RESET_pin", "cannot be combined with FPGA_RESETSTATUS_pin")
	}
	if d.Writer != nil && d.Writer.Name == "" {
		v.addf(path+".writer.name", "is required")
	}

	used := map[int]string{}
	for _, p := range []struct {
		key string
		pin Pin
	}{
		{"SPI_CE_pin", d.CEPin},
		{"SPI_CLK_pin", d.CLKPin},
		{"SPI_MOSI_pin", d.MOSIPin},
		{"FPGA_RESETSTATUS_pin", d.ResetStatusPin},
		{"FPGA_RESET_pin", d.ResetPin},
	} {
		if !p.pin.Set {
			continue
		}
		if p.pin.Number < 0 || p.pin.Number > MaxGPIO {
			v.addf(path+"."+p.key, "GPIO%d is outside 0..%d", p.pin.Number, MaxGPIO)
			continue
		}
		if other, ok := used[p.pin.Number]; ok {
			v.addf(path+"."+p.key, "GPIO%d is already used by %s", p.pin.Number, other)
			continue
		}
		used[p.pin.Number] = p.key
	}
}
