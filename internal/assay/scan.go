package assay

import (
	"math"

	"github.com/cliahub/qpcrhub/internal/plate"
)

// FlagContamination re-examines a classified plate and returns the wells
// whose Positive call should be escalated because a nearby well could
// explain their signal. The plate itself is not modified; callers apply
// the result with Escalate.
func (p *Protocol) FlagContamination(plt Plate) Escalations {
	return p.ops.flagContamination(p, plt)
}

func flagClusters(p *Protocol, plt Plate) Escalations {
	return p.scanPass(plt, nil, p.Radius, p.PosClusterCutoff, CallPositiveCluster)
}

func flagHotWellsThenClusters(p *Protocol, plt Plate) Escalations {
	// hot wells first: a well flagged here is no longer a Positive
	// candidate for the cluster pass, so the hot-well label wins
	esc := p.scanPass(plt, nil, p.HotWellRadius, p.HotWellCutoff, CallPositiveHotWell)
	for w, call := range p.scanPass(plt, esc, p.Radius, p.PosClusterCutoff, CallPositiveCluster) {
		esc[w] = call
	}
	return esc
}

// scanPass walks the square neighborhood of side 2*radius+1 around every
// candidate well. Candidates are wells whose effective call, prior
// escalations included, is exactly Positive. Comparisons run against the
// frozen call snapshot, so iteration order cannot change the outcome.
func (p *Protocol) scanPass(plt Plate, prior Escalations, radius int, cutoff float64, escalateTo Call) Escalations {
	esc := make(Escalations)
	for w, r := range plt {
		call := r.Call
		if c, ok := prior[w]; ok {
			call = c
		}
		if call != CallPositive {
			continue
		}
		if p.neighborExplains(plt, w, r, radius, cutoff) {
			esc[w] = escalateTo
		}
	}
	return esc
}

// neighborExplains reports whether any well in the candidate's square
// neighborhood carries enough stronger virus signal to account for the
// candidate's positivity. The candidate compares against itself too; that
// comparison is always false, so a radius-0 scan never escalates.
func (p *Protocol) neighborExplains(plt Plate, w plate.Well, cand *WellResult, radius int, cutoff float64) bool {
	for dr := -radius; dr <= radius; dr++ {
		for dc := -radius; dc <= radius; dc++ {
			n, ok := plt[plate.Well{Row: w.Row + dr, Col: w.Col + dc}]
			if !ok {
				continue
			}
			if p.ops.compareWells(p, cand.Cqs, n.Cqs, cutoff) {
				return true
			}
		}
	}
	return false
}

// compareMeanCq is the base comparison: the candidate's mean virus-gene
// Cq must trail the neighbor's by more than the cutoff. Either side
// missing any virus reading makes the comparison false; incomplete data
// never escalates.
func compareMeanCq(p *Protocol, a, b CqValues, cutoff float64) bool {
	am, ok := p.meanVirusCq(a)
	if !ok {
		return false
	}
	bm, ok := p.meanVirusCq(b)
	if !ok {
		return false
	}
	return am-bm > cutoff
}

func (p *Protocol) meanVirusCq(v CqValues) (float64, bool) {
	if len(p.VirusGenes) == 0 {
		return 0, false
	}
	var sum float64
	for _, g := range p.VirusGenes {
		cq := v.Get(g)
		if math.IsNaN(cq) {
			return 0, false
		}
		sum += cq
	}
	return sum / float64(len(p.VirusGenes)), true
}

// comparePerGene is the V3 comparison: any single virus gene trailing the
// neighbor's by more than the cutoff is enough. Genes undetected on
// either side are skipped.
func comparePerGene(p *Protocol, a, b CqValues, cutoff float64) bool {
	for _, g := range p.VirusGenes {
		av, bv := a.Get(g), b.Get(g)
		if math.IsNaN(av) || math.IsNaN(bv) {
			continue
		}
		if av-bv > cutoff {
			return true
		}
	}
	return false
}
