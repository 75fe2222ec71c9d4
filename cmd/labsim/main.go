// labsim emits synthetic qPCR instrument exports into an inbox directory,
// either one plate at a time or continuously on a jittered interval.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/cliahub/qpcrhub/internal/simulator"
)

func main() {
	var (
		protocol   = flag.String("protocol", "SOP-V3", "assay protocol to simulate")
		out        = flag.String("out", "data/inbox", "directory to write instrument exports into")
		samples    = flag.Int("samples", 48, "sample wells per plate (max 84)")
		posRate    = flag.Float64("positive-rate", 0.15, "probability that a sample is positive")
		sabotage   = flag.Bool("sabotage-controls", false, "give the NTC wells virus signal so the run fails")
		plant      = flag.Bool("plant-contamination", false, "plant a hot well with a satellite the scan must escalate")
		researcher = flag.String("researcher", "labsim", "researcher recorded in the plate metadata")
		seed       = flag.Int64("seed", 0, "random seed, 0 seeds from the clock")
		every      = flag.Duration("every", 0, "emit continuously at this interval, 0 emits one plate")
		jitter     = flag.Duration("jitter", 30*time.Second, "random cadence offset in continuous mode")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	sim, err := simulator.New(log, simulator.Config{
		Protocol:           *protocol,
		OutDir:             *out,
		Samples:            *samples,
		PositiveRate:       *posRate,
		SabotageControls:   *sabotage,
		PlantContamination: *plant,
		Researcher:         *researcher,
		Seed:               *seed,
		Interval:           *every,
		Jitter:             *jitter,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("invalid simulator configuration")
	}

	if *every <= 0 {
		if _, err := sim.EmitPlate(); err != nil {
			log.Fatal().Err(err).Msg("failed to emit plate")
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := sim.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("simulator failed")
	}
}
