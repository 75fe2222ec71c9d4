package assay

import (
	"math"

	"github.com/cliahub/qpcrhub/internal/plate"
)

// Gene identifies an assay target, e.g. "N", "E", "RdRp", "RNAse P".
type Gene string

// CqValues maps genes to quantification-cycle values. NaN (or an absent
// key) means the target was not detected within the run.
type CqValues map[Gene]float64

// Get returns the Cq for a gene, NaN if the gene was not measured.
func (v CqValues) Get(g Gene) float64 {
	if cq, ok := v[g]; ok {
		return cq
	}
	return math.NaN()
}

// Detected reports whether the gene produced any signal.
func (v CqValues) Detected(g Gene) bool {
	cq, ok := v[g]
	return ok && !math.IsNaN(cq)
}

// Clone returns an independent copy of the map.
func (v CqValues) Clone() CqValues {
	out := make(CqValues, len(v))
	for g, cq := range v {
		out[g] = cq
	}
	return out
}

// WellResult is the per-well record for one plate-processing pass.
type WellResult struct {
	Well      plate.Well
	Accession string
	Control   ControlType // empty for patient samples
	Call      Call
	Cqs       CqValues
}

// IsControl reports whether the well holds a control rather than a
// patient sample.
func (r *WellResult) IsControl() bool {
	return r.Control != ""
}

// Label is what the well is tracked as: the control type for control
// wells, the accession otherwise.
func (r *WellResult) Label() string {
	if r.IsControl() {
		return string(r.Control)
	}
	return r.Accession
}

// GridCell renders the well for the plate-map grid: "NTC Pass" style for
// controls, the display call for samples.
func (r *WellResult) GridCell() string {
	if r.IsControl() {
		return string(r.Control) + " " + string(r.Call)
	}
	return r.Call.Display()
}

// Plate maps occupied 96-well coordinates to their results. Wells with no
// sample and no control are simply absent.
type Plate map[plate.Well]*WellResult

// Escalations is the contamination scanner's output: the wells it decided
// to escalate and the call each one receives.
type Escalations map[plate.Well]Call

// Escalate applies scanner output to the plate. Only a well whose current
// call is exactly Positive accepts an escalation; anything else is left
// untouched, so a call can never be downgraded here.
func Escalate(plt Plate, esc Escalations) {
	for w, call := range esc {
		r, ok := plt[w]
		if !ok || r.Call != CallPositive || !call.IsPositive() {
			continue
		}
		r.Call = call
	}
}
