// Package display drives one chain of matrix panels: it owns the frame
// buffer, runs the active writer on a fixed interval and pushes frames to
// the transport.
package display

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/coreman2200/fpga-matrixpanel/internal/config"
	"github.com/coreman2200/fpga-matrixpanel/internal/panel"
	"github.com/coreman2200/fpga-matrixpanel/internal/transport"
	"github.com/coreman2200/fpga-matrixpanel/internal/watchdog"
	"github.com/coreman2200/fpga-matrixpanel/internal/writers"
	"github.com/coreman2200/fpga-matrixpanel/internal/x/mathx"
)

var errNoSink = errors.New("no sink and no port opener")

// Pins are the controller connections of a display. Only one of ResetStatus
// and Reset is normally set.
type Pins struct {
	CE          config.Pin
	CLK         config.Pin
	MOSI        config.Pin
	ResetStatus config.Pin
	Reset       config.Pin
}

// PowerSwitch is notified when any switch of the display changes state.
type PowerSwitch interface {
	PublishState(on bool)
}

// BrightnessValue is notified when any number of the display changes value.
type BrightnessValue interface {
	PublishValue(v float64)
}

// Display is safe for concurrent use. Setters are meant to run before Setup.
type Display struct {
	mu sync.Mutex

	id                string
	panelWidth        int
	panelHeight       int
	chain             int
	initialBrightness int
	pins              Pins
	useWatchdog       bool
	watchdogInterval  time.Duration
	speed             config.ClockSpeed
	spiPort           string
	interval          time.Duration
	rotation          int
	autoClear         bool
	writer            writers.Writer

	opener    transport.PortOpener
	sink      transport.Sink
	statusPin gpio.PinIn
	resetPin  gpio.PinOut

	fb         *panel.FrameBuffer
	brightness int
	enabled    bool
	start      time.Time
	frames     uint64
	errs       uint64
	wd         *watchdog.Watchdog
	onEvent    func(watchdog.Event)

	switches []PowerSwitch
	numbers  []BrightnessValue

	now    func() time.Time
	logger zerolog.Logger
}

// New returns a display with the component defaults. port opens the sink
// at Setup unless SetSink is called first; it may be nil in that case.
func New(id string, port transport.PortOpener) *Display {
	return &Display{
		id:                id,
		chain:             config.DefaultChainLength,
		initialBrightness: config.DefaultBrightness,
		brightness:        config.DefaultBrightness,
		pins: Pins{
			CE:          config.P(config.DefaultCEPin),
			CLK:         config.P(config.DefaultCLKPin),
			MOSI:        config.P(config.DefaultMOSIPin),
			ResetStatus: config.P(config.DefaultResetStatusPin),
		},
		useWatchdog:      true,
		watchdogInterval: time.Duration(config.DefaultWatchdogIntervalUsec) * time.Microsecond,
		speed:            config.DefaultClockSpeed,
		interval:         config.DefaultUpdateInterval,
		autoClear:        true,
		opener:           port,
		now:              time.Now,
		logger:           log.With().Str("component", "display").Str("display", id).Logger(),
	}
}

func (d *Display) ID() string { return d.id }

func (d *Display) String() string {
	return fmt.Sprintf("%s (%dx%d)", d.id, d.Width(), d.Height())
}

func (d *Display) SetPanelWidth(w int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.panelWidth = w
}

func (d *Display) SetPanelHeight(h int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.panelHeight = h
}

func (d *Display) SetChainLength(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chain = n
}

func (d *Display) SetPins(p Pins) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pins = p
}

func (d *Display) SetSPIPort(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.spiPort = name
}

func (d *Display) SetAutoClear(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.autoClear = on
}

func (d *Display) SetInitialBrightness(v int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initialBrightness = mathx.Clamp(v, 0, 255)
	d.brightness = d.initialBrightness
}

func (d *Display) SetInitialWatchdog(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.useWatchdog = on
}

func (d *Display) SetInitialWatchdogIntervalUsec(us int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.watchdogInterval = time.Duration(us) * time.Microsecond
}

func (d *Display) SetSPISpeed(s config.ClockSpeed) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.speed = s
}

func (d *Display) SetUpdateInterval(i time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.interval = i
}

// SetRotation accepts 0, 90, 180 or 270 degrees.
func (d *Display) SetRotation(deg int) error {
	switch deg {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("rotation must be 0, 90, 180 or 270, got %d", deg)
	}
	d.mu.Lock()
	d.rotation = deg
	d.mu.Unlock()
	return nil
}

// SetWriter replaces the drawing callback. It may be called while running.
func (d *Display) SetWriter(w writers.Writer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writer = w
}

// Writer returns the name of the current writer, or "".
func (d *Display) Writer() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writer == nil {
		return ""
	}
	return d.writer.Name()
}

// SetSink overrides the port opener.
func (d *Display) SetSink(s transport.Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink = s
}

// SetGPIO overrides the pins normally looked up in gpioreg.
func (d *Display) SetGPIO(status gpio.PinIn, reset gpio.PinOut) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statusPin = status
	d.resetPin = reset
}

// OnWatchdogEvent observes watchdog recoveries. Set before Setup.
func (d *Display) OnWatchdogEvent(f func(watchdog.Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onEvent = f
}

func (d *Display) RegisterPowerSwitch(s PowerSwitch) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.switches = append(d.switches, s)
}

func (d *Display) RegisterBrightness(n BrightnessValue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.numbers = append(d.numbers, n)
}

func (d *Display) PowerSwitches() []PowerSwitch {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]PowerSwitch(nil), d.switches...)
}

func (d *Display) BrightnessValues() []BrightnessValue {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]BrightnessValue(nil), d.numbers...)
}

// geometry assumes d.mu is held.
func (d *Display) geometry() transport.Geometry {
	ms := int(d.interval / time.Millisecond)
	refresh := 0
	if ms > 0 {
		refresh = 1000 / ms
	}
	return transport.Geometry{
		PanelWidth:     d.panelWidth,
		PanelHeight:    d.panelHeight,
		ChainLength:    d.chain,
		MinRefreshRate: refresh,
	}
}

// MinRefreshRate is 1000 / update interval in milliseconds.
func (d *Display) MinRefreshRate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.geometry().MinRefreshRate
}

// Setup opens the sink, announces the geometry, applies the initial
// brightness and clears the panel. The display starts enabled only when no
// power switch is registered.
func (d *Display) Setup() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.panelWidth <= 0 || d.panelHeight <= 0 || d.chain <= 0 ||
		d.panelWidth > config.MaxPanelSize || d.panelHeight > config.MaxPanelSize || d.chain > config.MaxChainLength {
		return fmt.Errorf("%s: invalid geometry %dx%d chain %d", d.id, d.panelWidth, d.panelHeight, d.chain)
	}
	if d.interval <= 0 {
		return fmt.Errorf("%s: update interval must be positive", d.id)
	}
	if d.sink == nil {
		if d.opener == nil {
			return fmt.Errorf("%s: %w", d.id, errNoSink)
		}
		s, err := d.opener.Open(d.spiPort, d.pins.CE.Name(), transport.Opts{
			Speed:      d.speed.Frequency(),
			CEInverted: d.pins.CE.Inverted,
		})
		if err != nil {
			return fmt.Errorf("%s: open sink: %w", d.id, err)
		}
		d.sink = s
	}

	d.fb = panel.New(d.panelWidth*d.chain, d.panelHeight)
	g := d.geometry()
	if err := d.sink.Begin(g); err != nil {
		return fmt.Errorf("%s: begin: %w", d.id, err)
	}
	if err := d.sink.SetBrightness(uint8(d.brightness)); err != nil {
		return fmt.Errorf("%s: brightness: %w", d.id, err)
	}
	if err := d.sink.Clear(); err != nil {
		return fmt.Errorf("%s: clear: %w", d.id, err)
	}
	d.enabled = len(d.switches) == 0
	d.start = d.now()

	if d.useWatchdog {
		d.wd = watchdog.New(d.id, watchdog.Config{
			Interval: d.watchdogInterval,
			Status:   d.lookupStatus(),
			Reset:    d.lookupReset(),
			Recover:  d.recover,
			OnEvent:  d.onEvent,
		})
	}
	d.logger.Info().Str("sink", d.sink.String()).Int("min_refresh", g.MinRefreshRate).Msg("setup")
	return nil
}

func (d *Display) lookupStatus() gpio.PinIn {
	if d.statusPin != nil || !d.pins.ResetStatus.Set {
		return d.statusPin
	}
	p := gpioreg.ByName(d.pins.ResetStatus.Name())
	if p == nil {
		d.logger.Warn().Str("pin", d.pins.ResetStatus.Name()).Msg("reset status pin not found")
		return nil
	}
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		d.logger.Warn().Err(err).Msg("reset status pin")
		return nil
	}
	return p
}

func (d *Display) lookupReset() gpio.PinOut {
	if d.resetPin != nil || !d.pins.Reset.Set {
		return d.resetPin
	}
	p := gpioreg.ByName(d.pins.Reset.Name())
	if p == nil {
		d.logger.Warn().Str("pin", d.pins.Reset.Name()).Msg("reset pin not found")
		return nil
	}
	return p
}

// Watchdog is nil until Setup, and stays nil when disabled.
func (d *Display) Watchdog() *watchdog.Watchdog {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wd
}

// recover is the watchdog recovery action: re-announce the panel, restore
// brightness and resend the last frame.
func (d *Display) recover() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.sink.Begin(d.geometry()); err != nil {
		return err
	}
	if err := d.sink.SetBrightness(uint8(d.brightness)); err != nil {
		return err
	}
	if !d.enabled {
		return nil
	}
	return d.sink.Send(d.fb)
}

// Update runs one tick: when enabled the buffer is optionally cleared,
// drawn by the writer and sent; when disabled the panel is cleared.
// Transport errors are logged and counted.
func (d *Display) Update() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fb == nil {
		return
	}
	var err error
	if d.enabled {
		if d.autoClear {
			d.fb.Clear()
		}
		if d.writer != nil {
			d.writer.Draw(canvas{d}, d.now().Sub(d.start))
		}
		err = d.sink.Send(d.fb)
	} else {
		err = d.sink.Clear()
	}
	if err != nil {
		d.errs++
		d.logger.Error().Err(err).Msg("transport")
		return
	}
	d.frames++
	if d.wd != nil {
		d.wd.Kick()
	}
}

// Run calls Update every update interval until ctx is done, compensating
// for the time each update takes. The watchdog, when enabled, runs
// alongside.
func (d *Display) Run(ctx context.Context) {
	d.mu.Lock()
	interval, wd := d.interval, d.wd
	d.mu.Unlock()

	var wg sync.WaitGroup
	if wd != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wd.Run(ctx)
		}()
	}
	defer wg.Wait()

	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			t := time.Now()
			d.Update()
			next := interval - time.Since(t)
			if next < 0 {
				next = 0
			}
			timer.Reset(next)
		}
	}
}

// Close releases the sink. Call after Run returns.
func (d *Display) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sink == nil {
		return nil
	}
	return d.sink.Close()
}

// DumpConfig logs the effective configuration.
func (d *Display) DumpConfig() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger.Info().
		Stringer("ce_pin", d.pins.CE).
		Stringer("clk_pin", d.pins.CLK).
		Stringer("mosi_pin", d.pins.MOSI).
		Stringer("reset_status_pin", d.pins.ResetStatus).
		Stringer("reset_pin", d.pins.Reset).
		Int64("spi_speed_mhz", d.speed.MHz()).
		Int("min_refresh_rate", d.geometry().MinRefreshRate).
		Int("width", d.panelWidth).
		Int("height", d.panelHeight).
		Int("chain_length", d.chain).
		Int("initial_brightness", d.initialBrightness).
		Int("rotation", d.rotation).
		Bool("watchdog", d.useWatchdog).
		Msg("matrix display")
}

// SetBrightness clamps v to 0..255 and applies it.
func (d *Display) SetBrightness(v int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.brightness = mathx.Clamp(v, 0, 255)
	if d.fb == nil {
		return nil
	}
	if err := d.sink.SetBrightness(uint8(d.brightness)); err != nil {
		d.errs++
		return fmt.Errorf("%s: brightness: %w", d.id, err)
	}
	return nil
}

func (d *Display) Brightness() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.brightness
}

// SetState enables or disables drawing. A disabled display is cleared on
// every update.
func (d *Display) SetState(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = on
}

func (d *Display) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// Status is a point-in-time summary for health reporting.
type Status struct {
	ID         string `json:"id"`
	Sink       string `json:"sink"`
	Enabled    bool   `json:"enabled"`
	Brightness int    `json:"brightness"`
	Writer     string `json:"writer"`
	Frames     uint64 `json:"frames"`
	Errors     uint64 `json:"errors"`
	Healthy    bool   `json:"healthy"`
	Stalls     uint64 `json:"stalls"`
	Recoveries uint64 `json:"recoveries"`
}

func (d *Display) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Status{
		ID:         d.id,
		Enabled:    d.enabled,
		Brightness: d.brightness,
		Frames:     d.frames,
		Errors:     d.errs,
		Healthy:    true,
	}
	if d.sink != nil {
		s.Sink = d.sink.String()
	}
	if d.writer != nil {
		s.Writer = d.writer.Name()
	}
	if d.wd != nil {
		s.Healthy = d.wd.Healthy()
		s.Stalls = d.wd.Stalls()
		s.Recoveries = d.wd.Recoveries()
	}
	return s
}
