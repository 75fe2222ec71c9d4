package simulator

import (
	"fmt"
	"math"
	"time"

	"github.com/cliahub/qpcrhub/internal/assay"
	"github.com/cliahub/qpcrhub/internal/plate"
)

// syntheticWell is one drawn well: a control or an accessioned sample,
// plus its per-gene Cq values. NaN means no signal on that target.
type syntheticWell struct {
	accession string
	control   assay.ControlType
	cqs       assay.CqValues
}

// syntheticPlate is one generated run before rendering to files.
type syntheticPlate struct {
	qpcrBarcode   string
	rnaBarcode    string
	sampleBarcode string
	runEnded      time.Time
	wells         map[plate.Well]*syntheticWell
}

// generate draws one plate: the standard control layout, the configured
// number of samples in grid order, and optionally a planted
// contamination pair.
func (s *Simulator) generate() *syntheticPlate {
	serial := s.rand.Intn(900000) + 100000
	p := &syntheticPlate{
		qpcrBarcode:   fmt.Sprintf("R%06d", serial),
		rnaBarcode:    fmt.Sprintf("N%06d", serial),
		sampleBarcode: fmt.Sprintf("S%06d", serial),
		runEnded:      time.Now().UTC().Truncate(time.Second),
		wells:         make(map[plate.Well]*syntheticWell),
	}

	controls := assay.StandardControlWells()
	for w, ct := range controls {
		p.wells[w] = s.drawControl(ct)
	}

	accession := s.rand.Intn(80000) + 10000
	placed := 0
	for _, w := range plate.Wells96() {
		if placed >= s.cfg.Samples {
			break
		}
		if _, ok := controls[w]; ok {
			continue
		}
		p.wells[w] = s.drawSample(fmt.Sprintf("E%05d", accession+placed))
		placed++
	}

	if s.cfg.PlantContamination {
		s.plantPair(p)
	}
	return p
}

// drawSample rolls whether the sample is positive and draws its Cqs.
// The sample control target always amplifies, so a sample is never
// invalid by construction.
func (s *Simulator) drawSample(accession string) *syntheticWell {
	w := &syntheticWell{accession: accession, cqs: make(assay.CqValues)}
	for _, g := range s.proto.ControlGenes {
		w.cqs[g] = s.between(24, 32)
	}
	positive := s.rand.Float64() < s.cfg.PositiveRate
	for _, g := range s.proto.VirusGenes {
		if positive {
			w.cqs[g] = s.between(18, 35)
		} else {
			w.cqs[g] = math.NaN()
		}
	}
	return w
}

// drawControl produces a well-behaved control: PCs amplify everything
// inside their cutoffs, HRCs amplify only the human target, NTC and PBS
// stay silent. Sabotage puts virus signal in the NTCs instead.
func (s *Simulator) drawControl(ct assay.ControlType) *syntheticWell {
	w := &syntheticWell{control: ct, cqs: make(assay.CqValues)}
	for _, g := range s.proto.Genes() {
		w.cqs[g] = math.NaN()
	}

	switch ct {
	case assay.ControlPC:
		for _, g := range s.proto.Genes() {
			w.cqs[g] = s.between(20, 26)
		}
	case assay.ControlHRC:
		for _, g := range s.proto.ControlGenes {
			w.cqs[g] = s.between(26, 30)
		}
	}

	if s.cfg.SabotageControls && ct == assay.ControlNTC {
		w.cqs[s.proto.VirusGenes[0]] = s.between(32, 36)
	}
	return w
}

// Planted contamination pair: D5 hot, D6 its satellite. Both are clear
// of the standard control layout.
var (
	plantStrongWell = plate.Well{Row: 3, Col: 4}
	plantWeakWell   = plate.Well{Row: 3, Col: 5}
)

// plantPair overwrites two adjacent wells with a strong positive and a
// weak satellite whose virus Cqs trail it by more than the protocol's
// cluster cutoff, so the scan must escalate the satellite.
func (s *Simulator) plantPair(p *syntheticPlate) {
	strong := &syntheticWell{accession: "E99998", cqs: make(assay.CqValues)}
	weak := &syntheticWell{accession: "E99999", cqs: make(assay.CqValues)}

	gap := s.proto.PosClusterCutoff + 2
	for _, g := range s.proto.VirusGenes {
		strong.cqs[g] = 13
		weak.cqs[g] = 13 + gap
	}
	for _, g := range s.proto.ControlGenes {
		strong.cqs[g] = s.between(24, 30)
		weak.cqs[g] = s.between(24, 30)
	}

	p.wells[plantStrongWell] = strong
	p.wells[plantWeakWell] = weak
}

func (s *Simulator) between(lo, hi float64) float64 {
	return lo + s.rand.Float64()*(hi-lo)
}
