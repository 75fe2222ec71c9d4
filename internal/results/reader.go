package results

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/cliahub/qpcrhub/internal/assay"
	"github.com/cliahub/qpcrhub/internal/metadata"
	"github.com/cliahub/qpcrhub/internal/plate"
)

// reader states: the metadata block, then the plate grid, then the table.
const (
	readingHeader = iota
	readingPlateMap
	readingResults
)

// ReadResults re-reads a results or control board CSV. Calls are not taken
// from the file: they are re-derived from the recorded Cq values, and
// contamination is re-flagged, so a reread reflects current rules.
func ReadResults(rd io.Reader, p *assay.Protocol) (*Results, error) {
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = -1

	md := &metadata.PlateMetadata{Protocol: p.Name}
	res := &Results{
		Metadata: md,
		Protocol: p,
		Wells:    make(assay.Plate),
	}

	state := readingHeader
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read results file: %w", err)
		}
		line++

		switch state {
		case readingHeader:
			if len(rec) < 2 {
				continue
			}
			switch rec[0] {
			case "Sample Plate Barcode":
				md.SampleBarcode = rec[1]
			case "RNA Plate Barcode":
				md.RNABarcode = rec[1]
			case "PCR Plate Barcode":
				md.QPCRBarcode = rec[1]
			case "Completion Time":
				res.CompletionTime = rec[1]
			case "Researcher":
				md.Researcher = rec[1]
			case "Bravo Station ID":
				md.BravoStation = rec[1]
			case "qPCR Station ID":
				md.QPCRStation = rec[1]
			case "Station ID":
				// control board reports carry one digit for both stations
				md.BravoStation = "clia-bravo-" + rec[1]
				md.QPCRStation = "clia-pcr-" + rec[1]
			case "Controls":
				res.Controls = rec[1]
				state = readingPlateMap
			}

		case readingPlateMap:
			if rec[0] == "" {
				continue
			}
			if rec[0] == "H" || rec[0] == "Well" {
				state = readingResults
			}

		case readingResults:
			if rec[0] == "Well" {
				continue
			}
			well, wr, err := parseResultRow(p, rec)
			if err != nil {
				return nil, fmt.Errorf("invalid results row at line %d: %w", line, err)
			}
			res.Wells[well] = wr
		}
	}

	assay.Escalate(res.Wells, p.FlagContamination(res.Wells))
	return res, nil
}

func parseResultRow(p *assay.Protocol, rec []string) (plate.Well, *assay.WellResult, error) {
	if len(rec) < 3 {
		return plate.Well{}, nil, fmt.Errorf("expected well, accession and call columns")
	}

	well, err := plate.ParseID(rec[0])
	if err != nil {
		return plate.Well{}, nil, err
	}
	accession := rec[1]

	cqs := make(assay.CqValues)
	for i, g := range p.Genes() {
		col := 3 + i
		if col >= len(rec) {
			break
		}
		v := math.NaN()
		if rec[col] != "" {
			v, err = strconv.ParseFloat(rec[col], 64)
			if err != nil {
				return plate.Well{}, nil, fmt.Errorf("invalid %s Cq: %w", g, err)
			}
		}
		cqs[g] = v
	}

	wr := &assay.WellResult{
		Well:      well,
		Accession: accession,
		Cqs:       cqs,
	}

	if ct, ok := assay.ParseControlPrefix(accession); ok {
		wr.Control = ct
		wr.Call, err = p.CheckControl(cqs, ct)
		if err != nil {
			return plate.Well{}, nil, err
		}
	} else {
		wr.Call = p.CallWell(cqs)
	}
	return well, wr, nil
}
