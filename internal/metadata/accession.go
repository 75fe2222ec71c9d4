package metadata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/cliahub/qpcrhub/internal/assay"
	"github.com/cliahub/qpcrhub/internal/plate"
)

// AccessionData maps unpadded 96-well ids ("A1") to accession barcodes.
type AccessionData map[string]string

var validAccession = regexp.MustCompile(`^[a-zA-Z]\d{4,5}$`)

// ValidAccession reports whether s is a well-formed accession barcode: one
// letter followed by four or five digits.
func ValidAccession(s string) bool {
	return validAccession.MatchString(s)
}

// PlateMapType identifies the instrument that produced a sample plate map.
type PlateMapType string

const (
	MapWellLit  PlateMapType = "WellLit"
	MapHamilton PlateMapType = "Hamilton"
	MapLegacy   PlateMapType = "Legacy"
)

var xlsxSuffix = regexp.MustCompile(`\.xlsx?$`)

// DetectPlateMapType guesses the plate map format from its filename.
// Anything we cannot place is assumed to be a WellLit log.
func DetectPlateMapType(name string) PlateMapType {
	lower := strings.ToLower(name)
	switch {
	case xlsxSuffix.MatchString(lower):
		return MapLegacy
	case strings.Contains(lower, "hamilton"):
		return MapHamilton
	default:
		return MapWellLit
	}
}

// welllitEmptyNames are accession fields WellLit writes for wells that hold
// no sample.
var welllitEmptyNames = []string{"CONTROL", "EMPTY", "EDIT"}

// ParseWellLit reads a WellLit transfer log: comment lines starting with %,
// then timestamp,accession,well rows.
func ParseWellLit(r io.Reader) (AccessionData, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	data := make(AccessionData)
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read WellLit plate map: %w", err)
		}
		line++

		if strings.HasPrefix(rec[0], "%") || strings.HasPrefix(rec[0], "\uFEFF") {
			continue
		}
		if len(rec) != 3 {
			return nil, fmt.Errorf(
				"invalid record at line %d: expected timestamp,accession,well", line)
		}

		accession := rec[1]
		if slices.Contains(welllitEmptyNames, accession) {
			continue
		}
		well, err := normalizeWell96(rec[2])
		if err != nil {
			return nil, fmt.Errorf("invalid well at line %d: %w", line, err)
		}
		data[well] = accession
	}
	return data, nil
}

// hamiltonColumns is the exact header the Hamilton STAR writes. Position 1
// holds the well, position 5 the accession.
var hamiltonColumns = []string{
	"Deep Well Plate",
	"Deep Well Position",
	"Transfer Vol",
	"Tube Rack Carrier",
	"Tube Rack Position",
	"Tube Barcode",
	"User",
}

// hamiltonEmptyPrefix marks tube slots holding shield buffer, not samples.
const hamiltonEmptyPrefix = "Shield"

// ParseHamilton reads a Hamilton STAR transfer log.
func ParseHamilton(r io.Reader) (AccessionData, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read Hamilton plate map: %w", err)
	}
	if !slices.Equal(header, hamiltonColumns) {
		return nil, fmt.Errorf(
			"Hamilton plate map has unexpected columns %v", header)
	}

	data := make(AccessionData)
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read Hamilton plate map: %w", err)
		}
		line++

		accession := rec[5]
		if strings.HasPrefix(accession, hamiltonEmptyPrefix) {
			continue
		}
		well, err := normalizeWell96(rec[1])
		if err != nil {
			return nil, fmt.Errorf("invalid well at line %d: %w", line, err)
		}
		data[well] = accession
	}
	return data, nil
}

// ReadAccessionData parses a plate map of the given type.
func ReadAccessionData(typ PlateMapType, r io.Reader) (AccessionData, error) {
	switch typ {
	case MapWellLit:
		return ParseWellLit(r)
	case MapHamilton:
		return ParseHamilton(r)
	case MapLegacy:
		return nil, fmt.Errorf("legacy xls plate maps are no longer supported")
	default:
		return nil, fmt.Errorf("unknown plate map type %q", typ)
	}
}

// LoadPlateMap reads a plate map file, detecting its format from the name.
func LoadPlateMap(path string) (AccessionData, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plate map: %w", err)
	}
	defer fh.Close()
	return ReadAccessionData(DetectPlateMapType(filepath.Base(path)), fh)
}

// ControlWellsForType returns the control layout declared for a sample
// plate. Custom layouts are recovered from control labels in the accession
// data itself.
func ControlWellsForType(mapping ControlsMapping, accessions AccessionData) (map[string]assay.ControlType, error) {
	switch mapping {
	case ControlsStandard:
		return wellIDs(assay.StandardControlWells()), nil
	case ControlsValidation:
		return wellIDs(assay.ValidationControlWells()), nil
	case ControlsNone:
		return map[string]assay.ControlType{}, nil
	case ControlsCustom:
		controls := make(map[string]assay.ControlType)
		for well, label := range accessions {
			if ct, ok := assay.ControlFromLabel(label); ok {
				controls[well] = ct
			}
		}
		return controls, nil
	default:
		return nil, fmt.Errorf("unknown controls mapping %q", mapping)
	}
}

// MergeControls writes control labels into the accession data, refusing to
// overwrite a well that already holds a valid sample accession.
func MergeControls(controls map[string]assay.ControlType, accessions AccessionData, barcode string) error {
	for well := range controls {
		acc, ok := accessions[well]
		if !ok {
			continue
		}
		if ValidAccession(strings.TrimRight(acc, " \t")) {
			return fmt.Errorf(
				"the control mapping for %s overwrites a valid accession in %s", barcode, well)
		}
	}
	for well, ct := range controls {
		accessions[well] = string(ct)
	}
	return nil
}

func wellIDs(wells map[plate.Well]assay.ControlType) map[string]assay.ControlType {
	out := make(map[string]assay.ControlType, len(wells))
	for w, ct := range wells {
		out[w.ID()] = ct
	}
	return out
}

func normalizeWell96(id string) (string, error) {
	w, err := plate.ParseID(id)
	if err != nil {
		return "", err
	}
	if !w.In96() {
		return "", fmt.Errorf("well %s is outside the 96-well grid", id)
	}
	return w.ID(), nil
}
