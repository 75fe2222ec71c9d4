package assay

import (
	"fmt"
	"math"

	"github.com/cliahub/qpcrhub/internal/plate"
)

// Role selects which Cq cutoff applies when judging a gene: the sample
// threshold or one of the per-control thresholds.
type Role int

const (
	RoleSample Role = iota
	RoleNTC
	RolePC
	RoleHRC
	RolePBS
)

// GeneThresholds holds the optional per-role Cq cutoffs for one gene. A
// nil cutoff means any detected value passes for that role.
type GeneThresholds struct {
	Sample *float64
	PC     *float64
	NTC    *float64
	HRC    *float64
	PBS    *float64
}

func (t GeneThresholds) forRole(r Role) *float64 {
	switch r {
	case RoleSample:
		return t.Sample
	case RolePC:
		return t.PC
	case RoleNTC:
		return t.NTC
	case RoleHRC:
		return t.HRC
	case RolePBS:
		return t.PBS
	}
	return nil
}

func (c ControlType) role() (Role, error) {
	switch c {
	case ControlNTC:
		return RoleNTC, nil
	case ControlPC:
		return RolePC, nil
	case ControlHRC:
		return RoleHRC, nil
	case ControlPBS:
		return RolePBS, nil
	}
	return 0, fmt.Errorf("unknown control type %q", string(c))
}

// protocolOps is the per-variant behavior table. V3 reroutes indeterminate
// samples to review and compares virus genes individually during
// contamination scans; every other protocol shares the base behavior.
type protocolOps struct {
	callWell          func(p *Protocol, values CqValues) Call
	compareWells      func(p *Protocol, a, b CqValues, cutoff float64) bool
	flagContamination func(p *Protocol, plt Plate) Escalations
}

var baseOps = protocolOps{
	callWell:          baseCallWell,
	compareWells:      compareMeanCq,
	flagContamination: flagClusters,
}

var v3Ops = protocolOps{
	callWell:          v3CallWell,
	compareWells:      comparePerGene,
	flagContamination: flagHotWellsThenClusters,
}

// Protocol is one immutable SOP configuration: the gene partition and
// threshold tables, the fluor wiring used to fold 384-well reads onto the
// sample grid, and the contamination-scan parameters. Behavioral variants
// swap the ops table, never mutate an existing protocol.
type Protocol struct {
	Name         string
	Experimental bool

	// instrument file names the qPCR run must report, checked during
	// ingest validation
	ProtocolFile   string
	PlateSetupFile string

	VirusGenes   []Gene
	ControlGenes []Gene
	Cutoffs      map[Gene]GeneThresholds

	Mapping map[Fluor]map[plate.Quadrant]Gene

	BackgroundThreshold int

	Radius           int
	PosClusterCutoff float64
	HotWellRadius    int
	HotWellCutoff    float64

	ops protocolOps
}

// Genes returns every gene the protocol assays, virus genes first.
func (p *Protocol) Genes() []Gene {
	genes := make([]Gene, 0, len(p.VirusGenes)+len(p.ControlGenes))
	genes = append(genes, p.VirusGenes...)
	return append(genes, p.ControlGenes...)
}

// Fluors returns the dye channels the protocol reads, in stable order.
func (p *Protocol) Fluors() []Fluor {
	fluors := make([]Fluor, 0, len(p.Mapping))
	for _, f := range []Fluor{FluorFAM, FluorHEX, FluorCy5} {
		if _, ok := p.Mapping[f]; ok {
			fluors = append(fluors, f)
		}
	}
	return fluors
}

// called reports whether a gene passes its cutoff for the role: the gene
// must be detected, and the Cq must be under the cutoff when one is set.
// Genes outside the protocol's table are never called.
func (p *Protocol) called(g Gene, cq float64, role Role) bool {
	if math.IsNaN(cq) {
		return false
	}
	t, ok := p.Cutoffs[g]
	if !ok {
		return false
	}
	limit := t.forRole(role)
	if limit == nil {
		return true
	}
	return cq < *limit
}

// CallWell classifies a sample well's gene readings.
func (p *Protocol) CallWell(values CqValues) Call {
	return p.ops.callWell(p, values)
}

func baseCallWell(p *Protocol, values CqValues) Call {
	virusDetected := false
	virusCalledAll := true
	for _, g := range p.VirusGenes {
		if values.Detected(g) {
			virusDetected = true
		}
		if !p.called(g, values.Get(g), RoleSample) {
			virusCalledAll = false
		}
	}

	if virusDetected {
		if virusCalledAll {
			return CallPositive
		}
		return CallIndeterminate
	}

	// no pathogen signal at all: negative only if every control gene
	// behaved
	for _, g := range p.ControlGenes {
		if !p.called(g, values.Get(g), RoleSample) {
			return CallInvalid
		}
	}
	return CallNegative
}

func v3CallWell(p *Protocol, values CqValues) Call {
	if call := baseCallWell(p, values); call != CallIndeterminate {
		return call
	}
	// partial virus signal is treated as suspiciously positive, not
	// indeterminate
	return CallPositiveReview
}

// CheckControl classifies a control well as Pass or Fail. An unrecognized
// control type is a configuration error, never a Fail.
func (p *Protocol) CheckControl(values CqValues, ct ControlType) (Call, error) {
	role, err := ct.role()
	if err != nil {
		return "", err
	}

	switch ct {
	case ControlNTC, ControlPBS:
		// a blank passes when nothing lights up
		for _, g := range p.Genes() {
			if p.called(g, values.Get(g), role) {
				return CallFail, nil
			}
		}
		return CallPass, nil

	case ControlPC:
		// the positive control passes when every assayed gene lights up
		for _, g := range p.Genes() {
			if !p.called(g, values.Get(g), role) {
				return CallFail, nil
			}
		}
		return CallPass, nil

	case ControlHRC:
		// human RNA only: all control genes called, no virus gene called
		for _, g := range p.ControlGenes {
			if !p.called(g, values.Get(g), role) {
				return CallFail, nil
			}
		}
		for _, g := range p.VirusGenes {
			if p.called(g, values.Get(g), role) {
				return CallFail, nil
			}
		}
		return CallPass, nil
	}
	return "", fmt.Errorf("unknown control type %q", string(ct))
}

// ClassifyPlate runs the classifier over every occupied well, writing the
// initial call for samples and controls alike.
func (p *Protocol) ClassifyPlate(plt Plate) error {
	for _, r := range plt {
		if r.IsControl() {
			call, err := p.CheckControl(r.Cqs, r.Control)
			if err != nil {
				return fmt.Errorf("well %s: %w", r.Well.ID(), err)
			}
			r.Call = call
			continue
		}
		r.Call = p.CallWell(r.Cqs)
	}
	return nil
}
