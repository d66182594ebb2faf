// Package watchdog detects a stalled or reset panel controller and runs a
// recovery action.
package watchdog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio"
)

// ResetPulse is how long the reset output is held low.
const ResetPulse = 10 * time.Millisecond

// Cause says why recovery ran.
type Cause string

const (
	Stalled   Cause = "stalled"
	FPGAReset Cause = "fpga_reset"
	Manual    Cause = "manual"
)

// Event is reported to the observer on every recovery attempt.
type Event struct {
	Cause     Cause
	Recovered bool
	Err       error
	At        time.Time
}

// Config wires a Watchdog. Status and Reset are optional.
type Config struct {
	Interval time.Duration
	// Status reads Low while the FPGA is held in reset.
	Status gpio.PinIn
	// Reset is pulsed low before Recover runs.
	Reset gpio.PinOut
	// Recover re-initialises the transport and resends state.
	Recover func() error
	// OnEvent observes recovery attempts.
	OnEvent func(Event)
}

// Watchdog is a supervisor timer fed by Kick.
type Watchdog struct {
	cfg        Config
	kicked     atomic.Bool
	healthy    atomic.Bool
	stalls     atomic.Uint64
	recoveries atomic.Uint64
	mu         sync.Mutex
	sleep      func(time.Duration)
	logger     zerolog.Logger
}

func New(name string, cfg Config) *Watchdog {
	w := &Watchdog{
		cfg:    cfg,
		sleep:  time.Sleep,
		logger: log.With().Str("component", "watchdog").Str("display", name).Logger(),
	}
	w.healthy.Store(true)
	return w
}

// Kick records a successful transport cycle.
func (w *Watchdog) Kick() { w.kicked.Store(true) }

func (w *Watchdog) Healthy() bool          { return w.healthy.Load() }
func (w *Watchdog) Stalls() uint64         { return w.stalls.Load() }
func (w *Watchdog) Recoveries() uint64     { return w.recoveries.Load() }
func (w *Watchdog) Interval() time.Duration { return w.cfg.Interval }

// Run checks once per interval until ctx is done.
func (w *Watchdog) Run(ctx context.Context) {
	if w.cfg.Interval <= 0 {
		return
	}
	w.kicked.Store(true)
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check evaluates one interval: a Low status pin or no Kick since the
// previous Check triggers recovery.
func (w *Watchdog) Check() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cfg.Status != nil && w.cfg.Status.Read() == gpio.Low {
		w.recover(FPGAReset)
		return
	}
	if !w.kicked.Swap(false) {
		w.stalls.Add(1)
		w.recover(Stalled)
		return
	}
	w.healthy.Store(true)
}

// Trigger forces a recovery regardless of state.
func (w *Watchdog) Trigger() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recover(Manual)
}

func (w *Watchdog) recover(cause Cause) {
	w.healthy.Store(false)
	ev := Event{Cause: cause, At: time.Now()}

	if w.cfg.Reset != nil {
		if err := w.cfg.Reset.Out(gpio.Low); err != nil {
			ev.Err = err
		} else {
			w.sleep(ResetPulse)
			ev.Err = w.cfg.Reset.Out(gpio.High)
		}
	}
	if ev.Err == nil && w.cfg.Recover != nil {
		ev.Err = w.cfg.Recover()
	}
	if ev.Err == nil {
		ev.Recovered = true
		w.recoveries.Add(1)
		w.healthy.Store(true)
		// The recovery itself counts as a completed cycle.
		w.kicked.Store(true)
		w.logger.Warn().Str("cause", string(cause)).Msg("panel recovered")
	} else {
		w.logger.Error().Err(ev.Err).Str("cause", string(cause)).Msg("panel recovery failed")
	}
	if w.cfg.OnEvent != nil {
		w.cfg.OnEvent(ev)
	}
}
