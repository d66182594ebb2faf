package config

import (
	"fmt"
	"time"
)

func intp(v int) *int           { return &v }
func boolp(v bool) *bool        { return &v }
func floatp(v float64) *float64 { return &v }

// ApplyDefaults fills every optional field left empty by the user.
func (c *Config) ApplyDefaults() {
	for i := range c.Displays {
		c.Displays[i].applyDefaults(i)
	}
	for i := range c.Lights {
		l := &c.Lights[i]
		if l.ID == "" {
			l.ID = fmt.Sprintf("matrix_light_%d", i)
		}
		if l.GammaCorrect == nil {
			l.GammaCorrect = floatp(DefaultGammaCorrect)
		}
		if l.RestoreMode == "" {
			l.RestoreMode = RestoreDefaultOff
		}
	}
	for i := range c.Switches {
		s := &c.Switches[i]
		if s.ID == "" {
			s.ID = fmt.Sprintf("matrix_switch_%d", i)
		}
		if s.RestoreMode == "" {
			s.RestoreMode = AlwaysOff
		}
	}
	for i := range c.Numbers {
		if c.Numbers[i].ID == "" {
			c.Numbers[i].ID = fmt.Sprintf("matrix_brightness_%d", i)
		}
	}
	if c.MQTT != nil && c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	if c.Web != nil && c.Web.Addr == "" {
		c.Web.Addr = DefaultWebAddr
	}
	if c.StatusLED != nil && c.StatusLED.ColorOrder == "" {
		c.StatusLED.ColorOrder = DefaultColorOrder
	}
}

func (d *Display) applyDefaults(i int) {
	if d.ID == "" {
		d.ID = fmt.Sprintf("matrix_display_%d", i)
	}
	if d.ChainLength == nil {
		d.ChainLength = intp(DefaultChainLength)
	}
	if d.Brightness == nil {
		d.Brightness = intp(DefaultBrightness)
	}
	if d.UpdateInterval == nil {
		v := Duration(DefaultUpdateInterval)
		d.UpdateInterval = &v
	}
	if !d.CEPin.Set {
		d.CEPin = P(DefaultCEPin)
	}
	if !d.CLKPin.Set {
		d.CLKPin = P(DefaultCLKPin)
	}
	if !d.MOSIPin.Set {
		d.MOSIPin = P(DefaultMOSIPin)
	}
	if !d.ResetStatusPin.Set && !d.ResetPin.Set {
		d.ResetStatusPin = P(DefaultResetStatusPin)
	}
	if d.UseWatchdog == nil {
		d.UseWatchdog = boolp(true)
	}
	if d.WatchdogIntervalUsec == nil {
		d.WatchdogIntervalUsec = intp(DefaultWatchdogIntervalUsec)
	}
	if d.AutoClearEnabled == nil {
		d.AutoClearEnabled = boolp(true)
	}
}

// Accessors below assume ApplyDefaults has run.

func (d *Display) Chain() int { return *d.ChainLength }

func (d *Display) InitialBrightness() int { return *d.Brightness }

func (d *Display) Interval() time.Duration { return d.UpdateInterval.D() }

func (d *Display) Watchdog() bool { return *d.UseWatchdog }

func (d *Display) WatchdogInterval() time.Duration {
	return time.Duration(*d.WatchdogIntervalUsec) * time.Microsecond
}

func (d *Display) AutoClear() bool { return *d.AutoClearEnabled }

// LogicalWidth is the width of the whole chain, before rotation.
func (d *Display) LogicalWidth() int { return d.Width * d.Chain() }

func (l *Light) Gamma() float64 { return *l.GammaCorrect }
