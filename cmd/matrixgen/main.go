// Command matrixgen validates a matrix config and emits the setup code
// that constructs its displays and entities.
package main

import (
	"bytes"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/fpga-matrixpanel/internal/codegen"
	"github.com/coreman2200/fpga-matrixpanel/internal/config"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to matrix YAML config")
		out        = flag.String("o", "", "output file (default stdout)")
		plan       = flag.Bool("plan", false, "print the call plan instead of Go source")
		pkg        = flag.String("pkg", codegen.DefaultPackage, "package name of the generated source")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("config rejected")
	}
	p, err := codegen.Build(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("config rejected")
	}
	p.Package = *pkg

	var buf bytes.Buffer
	if *plan {
		err = p.WriteText(&buf)
	} else {
		err = p.Render(&buf)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("generate")
	}

	if *out == "" {
		_, _ = os.Stdout.Write(buf.Bytes())
		return
	}
	if err := os.WriteFile(*out, buf.Bytes(), 0644); err != nil {
		log.Fatal().Err(err).Str("out", *out).Msg("write")
	}
	log.Info().
		Str("out", *out).
		Int("displays", len(p.Displays)).
		Int("entities", len(p.Entities)).
		Msg("generated")
}
