package results

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/cliahub/qpcrhub/internal/plate"
)

// WriteResults writes the primary results CSV: the metadata block, the
// plate grid, then the per-well table.
func (r *Results) WriteResults(w io.Writer) error {
	if err := r.writeMetadata(w, r.metadataPairs()); err != nil {
		return err
	}
	if err := r.writeGrid(w); err != nil {
		return err
	}
	return r.writeTable(w, false)
}

// WriteCBReport writes the control board CSV: an extended metadata block
// and the per-well table with full cluster warnings.
func (r *Results) WriteCBReport(w io.Writer) error {
	if err := r.writeMetadata(w, r.cbMetadataPairs()); err != nil {
		return err
	}
	return r.writeTable(w, true)
}

// metadataPairs is ordered; the results reader keys off these labels.
func (r *Results) metadataPairs() [][2]string {
	md := r.Metadata
	return [][2]string{
		{"Sample Plate Barcode", md.SampleBarcode},
		{"RNA Plate Barcode", md.RNABarcode},
		{"PCR Plate Barcode", md.QPCRBarcode},
		{"Completion Time", r.CompletionTime},
		{"Researcher", md.Researcher},
		{"Bravo Station ID", md.BravoStation},
		{"qPCR Station ID", md.QPCRStation},
		{"Controls", r.Controls},
	}
}

func (r *Results) cbMetadataPairs() [][2]string {
	md := r.Metadata
	return [][2]string{
		{"Sample Plate Barcode", md.SampleBarcode},
		{"RNA Plate Barcode", md.RNABarcode},
		{"PCR Plate Barcode", md.QPCRBarcode},
		{"Completion Time", r.CompletionTime},
		{"Researcher", md.Researcher},
		{"Station ID", r.stationID()},
		{"Controls", r.Controls},
		{"Testing Location", r.TestingLocation},
	}
}

func (r *Results) writeMetadata(w io.Writer, pairs [][2]string) error {
	cw := csv.NewWriter(w)
	for _, pair := range pairs {
		if err := cw.Write([]string{pair[0], pair[1]}); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

// writeGrid renders the 8x12 call map lab staff read at a glance.
func (r *Results) writeGrid(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := make([]string, plate.Cols96+1)
	for col := 0; col < plate.Cols96; col++ {
		header[col+1] = fmt.Sprintf("%d", col+1)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for row := 0; row < plate.Rows96; row++ {
		line := make([]string, plate.Cols96+1)
		line[0] = string(rune('A' + row))
		for col := 0; col < plate.Cols96; col++ {
			if res, ok := r.Wells[plate.Well{Row: row, Col: col}]; ok {
				line[col+1] = res.GridCell()
			}
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

func (r *Results) writeTable(w io.Writer, clusterWarnings bool) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header(r.Protocol)); err != nil {
		return err
	}
	for _, well := range r.orderedWells() {
		res := r.Wells[well]
		row := Row(r.Protocol, well, res)
		if clusterWarnings && res.Call.PossibleCluster() {
			row = append(row, string(res.Call))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
