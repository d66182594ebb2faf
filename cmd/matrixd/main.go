// Command matrixd drives the configured FPGA matrix displays. It serves a
// live preview and control channel, bridges entities to MQTT and reads
// console commands from stdin.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"periph.io/x/host/v3"

	"github.com/coreman2200/fpga-matrixpanel/internal/codegen"
	"github.com/coreman2200/fpga-matrixpanel/internal/config"
	"github.com/coreman2200/fpga-matrixpanel/internal/console"
	diag "github.com/coreman2200/fpga-matrixpanel/internal/diagnostics"
	"github.com/coreman2200/fpga-matrixpanel/internal/display"
	"github.com/coreman2200/fpga-matrixpanel/internal/entity"
	"github.com/coreman2200/fpga-matrixpanel/internal/mqtt"
	"github.com/coreman2200/fpga-matrixpanel/internal/statusled"
	"github.com/coreman2200/fpga-matrixpanel/internal/transport"
	"github.com/coreman2200/fpga-matrixpanel/internal/watchdog"
	"github.com/coreman2200/fpga-matrixpanel/internal/ws"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to matrix YAML config")
		simOnly    = flag.Bool("sim-only", false, "render to the console instead of SPI")
		addr       = flag.String("addr", "", "HTTP listen address (overrides web.addr)")
		preview    = flag.Duration("preview", 50*time.Millisecond, "frame preview period")
		noConsole  = flag.Bool("no-console", false, "do not read commands from stdin")
		debug      = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("config rejected")
	}
	plan, err := codegen.Build(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("config rejected")
	}

	if !*simOnly {
		if _, err := host.Init(); err != nil {
			log.Warn().Err(err).Msg("periph host init failed; falling back to SIM")
			*simOnly = true
		}
	}

	reg := entity.NewRegistry()
	if err := codegen.Apply(plan, reg, transport.HostOpener{SimOnly: *simOnly}); err != nil {
		log.Fatal().Err(err).Msg("apply config")
	}

	hub := diag.NewHub(256)
	for _, d := range reg.Displays() {
		id := d.ID()
		d.OnWatchdogEvent(func(e watchdog.Event) { hub.Push(diag.FromWatchdog(id, e)) })
	}
	if err := reg.Setup(); err != nil {
		log.Fatal().Err(err).Msg("setup")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	spawn := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	spawn(func() { reg.Run(ctx) })

	var bridge *mqtt.Bridge
	if cfg.MQTT != nil && cfg.MQTT.Broker != "" {
		bridge = mqtt.New(*cfg.MQTT, reg, nil)
		if err := bridge.Connect(ctx); err != nil {
			log.Warn().Err(err).Msg("mqtt unavailable; continuing without it")
		}
	}

	listen := config.DefaultWebAddr
	if cfg.Web != nil && cfg.Web.Addr != "" {
		listen = cfg.Web.Addr
	}
	if *addr != "" {
		listen = *addr
	}
	srv := ws.New(reg, hub)
	srv.Config = cfg
	srv.ConfigPath = *configPath
	spawn(func() {
		if err := srv.ListenAndServe(ctx, listen); err != nil {
			log.Error().Err(err).Str("addr", listen).Msg("http server crashed")
			stop()
		}
	})
	spawn(func() { srv.RunPreview(ctx, *preview) })

	if cfg.StatusLED != nil && !*simOnly {
		led, err := statusled.Open(cfg.StatusLED.SPIPort, cfg.StatusLED.ColorOrder)
		if err != nil {
			log.Warn().Err(err).Msg("status led unavailable")
		} else {
			spawn(func() { led.Run(ctx, 500*time.Millisecond, func() []display.Status { return statuses(reg) }) })
		}
	}

	if !*noConsole {
		// Not tracked by wg: the stdin reader may stay blocked after ctx ends.
		go func() {
			if err := console.New(reg, os.Stdout).Run(ctx, os.Stdin); err != nil {
				log.Warn().Err(err).Msg("console")
			}
		}()
	}

	log.Info().
		Int("displays", len(reg.Displays())).
		Bool("sim_only", *simOnly).
		Str("addr", listen).
		Msg("matrixd running")

	<-ctx.Done()
	log.Info().Msg("shutting down")
	wg.Wait()
	if bridge != nil {
		bridge.Close()
	}
	if err := reg.Close(); err != nil {
		log.Error().Err(err).Msg("close")
	}
}

func statuses(reg *entity.Registry) []display.Status {
	ds := reg.Displays()
	out := make([]display.Status, len(ds))
	for i, d := range ds {
		out[i] = d.Status()
	}
	return out
}
