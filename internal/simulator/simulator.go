// Package simulator fabricates complete instrument export sets so the
// pipeline can be exercised without a qPCR machine. Each emitted plate
// is a full inbox fileset: run information, Cq results, per-fluor
// amplification curves, a WellLit plate map and the metadata sidecar.
package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/cliahub/qpcrhub/internal/assay"
	"github.com/cliahub/qpcrhub/internal/plate"
)

// maxSamples is the 96-well grid minus the standard control layout.
const maxSamples = plate.Rows96*plate.Cols96 - 12

// Config controls what the simulator emits.
type Config struct {
	Protocol string
	OutDir   string

	// Samples is how many sample wells to fill, at most 84.
	Samples int

	// PositiveRate is the probability that a sample carries virus signal.
	PositiveRate float64

	// SabotageControls gives the NTC wells virus signal, failing the run.
	SabotageControls bool

	// PlantContamination forces a strong positive with an adjacent weak
	// satellite that the contamination scan should escalate.
	PlantContamination bool

	Researcher string

	// Seed fixes the random stream; 0 seeds from the clock.
	Seed int64

	// Interval and Jitter set the cadence of continuous emission.
	Interval time.Duration
	Jitter   time.Duration
}

// Simulator emits synthetic plates for one protocol.
type Simulator struct {
	log   zerolog.Logger
	cfg   Config
	proto *assay.Protocol
	rand  *rand.Rand
}

// New validates the configuration and seeds the random stream.
func New(log zerolog.Logger, cfg Config) (*Simulator, error) {
	proto, err := assay.GetProtocol(cfg.Protocol)
	if err != nil {
		return nil, err
	}
	if cfg.Samples < 0 || cfg.Samples > maxSamples {
		return nil, fmt.Errorf("sample count %d outside 0..%d", cfg.Samples, maxSamples)
	}
	if cfg.Researcher == "" {
		cfg.Researcher = "labsim"
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		log:   log,
		cfg:   cfg,
		proto: proto,
		rand:  rand.New(rand.NewSource(seed)),
	}, nil
}

// EmitPlate generates one plate and writes its file set into the output
// directory. Returns the qPCR barcode the files carry.
func (s *Simulator) EmitPlate() (string, error) {
	p := s.generate()
	if err := s.writePlate(p); err != nil {
		return "", err
	}
	s.log.Info().
		Str("plate", p.qpcrBarcode).
		Str("protocol", s.proto.Name).
		Int("wells", len(p.wells)).
		Msg("plate emitted")
	return p.qpcrBarcode, nil
}

// Run emits one plate immediately and then keeps emitting on a jittered
// interval until the context is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	if _, err := s.EmitPlate(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("simulator stopped")
			return nil
		case <-time.After(s.nextInterval()):
			if _, err := s.EmitPlate(); err != nil {
				return err
			}
		}
	}
}

// nextInterval jitters the configured cadence so emitted plates do not
// land in lockstep with the inbox poller.
func (s *Simulator) nextInterval() time.Duration {
	if s.cfg.Jitter <= 0 {
		return s.cfg.Interval
	}
	return s.cfg.Interval + time.Duration(float64(s.cfg.Jitter)*(2*s.rand.Float64()-1))
}
