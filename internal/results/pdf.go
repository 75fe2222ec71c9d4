package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/cliahub/qpcrhub/internal/plate"
)

// pdfRowsPerPage keeps the results table readable on letter paper.
const pdfRowsPerPage = 32

var (
	pdfTitleFont = map[string]any{"name": "Helvetica-Bold", "size": 16}
	pdfBodyFont  = map[string]any{"name": "Helvetica", "size": 9}
	pdfGridFont  = map[string]any{"name": "Helvetica", "size": 7}
)

// BuildPDFDescriptor returns the pdfcpu create declaration for the final
// report: a summary page with the metadata block and call grid, then the
// per-well table split across pages.
func (r *Results) BuildPDFDescriptor() map[string]any {
	pages := map[string]any{
		"1": r.summaryPage(),
	}

	wells := r.orderedWells()
	page := 2
	for start := 0; start < len(wells); start += pdfRowsPerPage {
		end := min(start+pdfRowsPerPage, len(wells))

		values := [][]string{Header(r.Protocol)}
		for _, w := range wells[start:end] {
			values = append(values, Row(r.Protocol, w, r.Wells[w]))
		}

		pages[strconv.Itoa(page)] = map[string]any{
			"content": map[string]any{
				"table": []map[string]any{{
					"anchor":     "tc",
					"dy":         -36,
					"values":     values,
					"rows":       len(values),
					"cols":       len(values[0]),
					"lineHeight": 12,
					"font":       pdfBodyFont,
					"border":     map[string]any{"width": 0.5},
				}},
			},
		}
		page++
	}

	return map[string]any{
		"paper":  "Letter",
		"origin": "upperLeft",
		"pages":  pages,
	}
}

func (r *Results) summaryPage() map[string]any {
	texts := []map[string]any{{
		"value":  r.CombinedBarcode() + " qPCR Results",
		"anchor": "tc",
		"dy":     -28,
		"font":   pdfTitleFont,
	}}

	for i, warning := range r.warnings() {
		texts = append(texts, map[string]any{
			"value":  warning,
			"anchor": "bl",
			"dx":     36,
			"dy":     float64(100 - 12*i),
			"font":   pdfBodyFont,
		})
	}
	for i, note := range r.Metadata.Notes {
		texts = append(texts, map[string]any{
			"value":  note.String(),
			"anchor": "bl",
			"dx":     36,
			"dy":     float64(40 - 12*i),
			"font":   pdfBodyFont,
		})
	}

	meta := make([][]string, 0, 8)
	for _, pair := range r.metadataPairs() {
		meta = append(meta, []string{pair[0], pair[1]})
	}

	grid := make([][]string, 0, plate.Rows96+1)
	header := make([]string, plate.Cols96+1)
	for col := 0; col < plate.Cols96; col++ {
		header[col+1] = strconv.Itoa(col + 1)
	}
	grid = append(grid, header)
	for row := 0; row < plate.Rows96; row++ {
		line := make([]string, plate.Cols96+1)
		line[0] = string(rune('A' + row))
		for col := 0; col < plate.Cols96; col++ {
			if res, ok := r.Wells[plate.Well{Row: row, Col: col}]; ok {
				line[col+1] = res.GridCell()
			}
		}
		grid = append(grid, line)
	}

	return map[string]any{
		"content": map[string]any{
			"text": texts,
			"table": []map[string]any{
				{
					"anchor":     "tl",
					"dx":         36,
					"dy":         -64,
					"values":     meta,
					"rows":       len(meta),
					"cols":       2,
					"lineHeight": 13,
					"font":       pdfBodyFont,
				},
				{
					"anchor":     "tc",
					"dy":         -200,
					"values":     grid,
					"rows":       len(grid),
					"cols":       plate.Cols96 + 1,
					"lineHeight": 12,
					"font":       pdfGridFont,
					"border":     map[string]any{"width": 0.5},
				},
			},
		},
	}
}

// warnings lists the review conditions that appear on the summary page in
// addition to the watermark.
func (r *Results) warnings() []string {
	var out []string
	for _, w := range r.orderedWells() {
		if call := r.Wells[w].Call; call.PossibleCluster() {
			out = append(out, fmt.Sprintf("%s: %s", w.ID(), call))
		}
	}
	if bad := r.InvalidAccessions(); len(bad) > 0 {
		out = append(out, fmt.Sprintf("Invalid accessions in: %v", bad))
	}
	return out
}

// WritePDF renders the final report. Experimental runs and runs with
// malformed accessions are watermarked so they cannot be mistaken for
// reportable results.
func (r *Results) WritePDF(path string) error {
	desc, err := json.Marshal(r.BuildPDFDescriptor())
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "qpcr-report-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(desc); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := api.CreateFile("", tmp.Name(), path, nil); err != nil {
		return fmt.Errorf("failed to render %s: %w", filepath.Base(path), err)
	}

	var stamp string
	switch {
	case r.Experimental():
		stamp = "EXPERIMENTAL! DO NOT REPORT!"
	case len(r.InvalidAccessions()) > 0:
		stamp = "INVALID ACCESSIONS! DO NOT REPORT!"
	default:
		return nil
	}

	wm, err := api.TextWatermark(
		stamp, "points:42, rotation:45, opacity:.2, fillcolor:#ff0000", true, false, types.POINTS)
	if err != nil {
		return err
	}
	if err := api.AddWatermarksFile(path, "", nil, wm, nil); err != nil {
		return fmt.Errorf("failed to watermark %s: %w", filepath.Base(path), err)
	}
	return nil
}
