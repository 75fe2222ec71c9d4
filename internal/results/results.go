// Package results assembles a classified plate into the report artifacts
// the lab consumes: the results CSV, the control board CSV and the final
// PDF. It can also re-read a results CSV back into memory.
package results

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cliahub/qpcrhub/internal/assay"
	"github.com/cliahub/qpcrhub/internal/metadata"
	"github.com/cliahub/qpcrhub/internal/plate"
)

// Results holds everything needed to render one processed plate's reports.
type Results struct {
	Metadata *metadata.PlateMetadata
	Protocol *assay.Protocol
	Wells    assay.Plate

	// CompletionTime is pre-rendered in the lab's timezone so that every
	// artifact shows the identical string.
	CompletionTime string

	// Controls is "Passed" when every control well passed.
	Controls string

	// TestingLocation appears on the control board report.
	TestingLocation string
}

// CompletionTimeLayout renders instrument timestamps on reports.
const CompletionTimeLayout = "2006-01-02 15:04:05 MST"

// FormatTime renders a UTC instrument timestamp in the lab's timezone.
func FormatTime(ts time.Time, tz *time.Location) string {
	if tz == nil {
		tz = time.UTC
	}
	return ts.In(tz).Format(CompletionTimeLayout)
}

// Build finalizes a classified plate for reporting: controls are graded,
// contamination is flagged and escalated, and the completion time is
// rendered in the lab's timezone.
func Build(
	md *metadata.PlateMetadata,
	p *assay.Protocol,
	wells assay.Plate,
	runEnded time.Time,
	tz *time.Location,
	testingLocation string,
) *Results {
	controls := "Failed"
	if controlsPassed(wells) {
		controls = "Passed"
	}

	assay.Escalate(wells, p.FlagContamination(wells))

	return &Results{
		Metadata:        md,
		Protocol:        p,
		Wells:           wells,
		CompletionTime:  FormatTime(runEnded, tz),
		Controls:        controls,
		TestingLocation: testingLocation,
	}
}

func controlsPassed(wells assay.Plate) bool {
	for _, r := range wells {
		if r.IsControl() && r.Call != assay.CallPass {
			return false
		}
	}
	return true
}

// CombinedBarcode identifies the plate on every artifact.
func (r *Results) CombinedBarcode() string {
	return r.Metadata.CombinedBarcode()
}

// ResultsFilename names the primary results CSV.
func (r *Results) ResultsFilename() string {
	return r.CombinedBarcode() + "-results.csv"
}

// CBReportFilename names the control board CSV.
func (r *Results) CBReportFilename() string {
	return r.CombinedBarcode() + "_cb_results.csv"
}

// PDFFilename names the final report PDF.
func (r *Results) PDFFilename() string {
	return r.CombinedBarcode() + "_final.pdf"
}

// Experimental reports whether this run must not be reported to patients:
// either the plate registration or the protocol marks it experimental.
func (r *Results) Experimental() bool {
	return r.Metadata.Experimental() || r.Protocol.Experimental
}

// InvalidAccessions returns the ids of sample wells whose accession is
// present but not a well-formed accession barcode.
func (r *Results) InvalidAccessions() []string {
	var bad []string
	for w, res := range r.Wells {
		if res.IsControl() || res.Accession == "" {
			continue
		}
		if !metadata.ValidAccession(res.Accession) {
			bad = append(bad, w.ID())
		}
	}
	sort.Strings(bad)
	return bad
}

// Header returns the results table header for a protocol.
func Header(p *assay.Protocol) []string {
	h := []string{"Well", "Accession", "Call"}
	for _, g := range p.Genes() {
		h = append(h, string(g)+" Ct")
	}
	return h
}

// Row renders one well of the results table. Cq columns follow the
// protocol's gene order.
func Row(p *assay.Protocol, w plate.Well, res *assay.WellResult) []string {
	row := []string{w.ID(), res.Accession, res.Call.Short()}
	for _, g := range p.Genes() {
		row = append(row, FormatCq(res.Cqs.Get(g)))
	}
	return row
}

// FormatCq renders a Cq value for reports: truncated, never rounded, to two
// decimals. Undetected wells render empty.
func FormatCq(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return fmt.Sprintf("%.2f", math.Trunc(v*100)/100)
}

// stationID is the single-digit station used on control board reports.
func (r *Results) stationID() string {
	s := r.Metadata.QPCRStation
	if s == "" {
		return ""
	}
	return s[len(s)-1:]
}

// orderedWells returns the plate's populated wells in reading order.
func (r *Results) orderedWells() []plate.Well {
	var wells []plate.Well
	for _, w := range plate.Wells96() {
		if _, ok := r.Wells[w]; ok {
			wells = append(wells, w)
		}
	}
	return wells
}
