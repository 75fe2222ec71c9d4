package runfiles

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cliahub/qpcrhub/internal/assay"
)

// Keys we require from the run information export.
const (
	protocolFileKey = "Protocol File Name"
	plateSetupKey   = "Plate Setup File Name"
	runEndedKey     = "Run Ended"
)

// RunEndedLayout is the instrument's completion timestamp format. The
// instrument clock runs in UTC.
const RunEndedLayout = "01/02/2006 15:04:05"

// Info holds the key/value pairs from a run information export.
type Info struct {
	ProtocolFile   string
	PlateSetupFile string
	RunEnded       time.Time
	Fields         map[string]string
}

// ParseRunInfo reads a run information export, a two-column CSV of
// key,value rows. The protocol file, plate setup file and run ended keys
// must be present.
func ParseRunInfo(r io.Reader) (*Info, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read run information: %w", err)
	}

	fields := make(map[string]string, len(records))
	for i, rec := range records {
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("invalid record at line %d: expected key,value", i+1)
		}
		fields[rec[0]] = rec[1]
	}

	for _, key := range []string{protocolFileKey, plateSetupKey, runEndedKey} {
		if _, ok := fields[key]; !ok {
			return nil, fmt.Errorf("run information is missing %q", key)
		}
	}

	ended, err := time.ParseInLocation(RunEndedLayout, fields[runEndedKey], time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid run ended timestamp: %w", err)
	}

	return &Info{
		ProtocolFile:   fields[protocolFileKey],
		PlateSetupFile: fields[plateSetupKey],
		RunEnded:       ended,
		Fields:         fields,
	}, nil
}

// ParseQuantCq reads the long-format Cq results export. The result is keyed
// by 384-well position ("A01") and fluor. An empty or NaN cell means the
// well never crossed the detection threshold; anything else non-numeric is
// an error.
func ParseQuantCq(r io.Reader) (map[string]map[assay.Fluor]float64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read Cq results: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("Cq results file has no data records")
	}

	header := records[0]
	wellCol := columnIndex(header, "Well")
	fluorCol := columnIndex(header, "Fluor")
	cqCol := columnIndex(header, "Cq")
	if wellCol < 0 || fluorCol < 0 || cqCol < 0 {
		return nil, fmt.Errorf("Cq results file is missing a Well, Fluor or Cq column")
	}

	cqs := make(map[string]map[assay.Fluor]float64)
	for i, rec := range records[1:] {
		if len(rec) <= wellCol || len(rec) <= fluorCol || len(rec) <= cqCol {
			return nil, fmt.Errorf("invalid record at line %d: too few columns", i+2)
		}
		well := strings.TrimSpace(rec[wellCol])
		if well == "" {
			continue
		}
		cq, err := parseCell(rec[cqCol])
		if err != nil {
			return nil, fmt.Errorf("invalid Cq for well %s at line %d: %w", well, i+2, err)
		}
		byFluor := cqs[well]
		if byFluor == nil {
			byFluor = make(map[assay.Fluor]float64)
			cqs[well] = byFluor
		}
		byFluor[assay.Fluor(strings.TrimSpace(rec[fluorCol]))] = cq
	}
	return cqs, nil
}

// AmpData holds the per-well amplification curves from one fluor's export.
// Wells maps a 384-well position to one reading per cycle.
type AmpData struct {
	Cycles []int
	Wells  map[string][]float64
}

// ThresholdCycle returns the first cycle at which the well's reading meets
// the background threshold, or NaN if it never does.
func (a *AmpData) ThresholdCycle(well string, background float64) float64 {
	readings, ok := a.Wells[well]
	if !ok {
		return math.NaN()
	}
	for i, v := range readings {
		if v >= background {
			return float64(a.Cycles[i])
		}
	}
	return math.NaN()
}

// ParseQuantAmp reads one fluor's amplification export: a Cycle column
// followed by one column per well, one row per cycle.
func ParseQuantAmp(r io.Reader) (*AmpData, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read amplification results: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("amplification file has no data records")
	}

	header := records[0]
	cycleCol := columnIndex(header, "Cycle")
	if cycleCol < 0 {
		return nil, fmt.Errorf("amplification file is missing the Cycle column")
	}

	wellCols := make(map[string]int, len(header))
	for i, col := range header {
		col = strings.TrimSpace(col)
		if i == cycleCol || col == "" {
			continue
		}
		wellCols[col] = i
	}

	data := &AmpData{Wells: make(map[string][]float64, len(wellCols))}
	for i, rec := range records[1:] {
		if len(rec) <= cycleCol {
			return nil, fmt.Errorf("invalid record at line %d: too few columns", i+2)
		}
		cycle, err := strconv.Atoi(strings.TrimSpace(rec[cycleCol]))
		if err != nil {
			return nil, fmt.Errorf("invalid cycle at line %d: %w", i+2, err)
		}
		data.Cycles = append(data.Cycles, cycle)

		for well, col := range wellCols {
			v := math.NaN()
			if col < len(rec) {
				v, err = parseCell(rec[col])
				if err != nil {
					return nil, fmt.Errorf("invalid reading for well %s at line %d: %w", well, i+2, err)
				}
			}
			data.Wells[well] = append(data.Wells[well], v)
		}
	}
	return data, nil
}

// parseCell converts a numeric cell to a float. The instrument writes an
// empty cell or the literal NaN where no value was recorded.
func parseCell(cell string) (float64, error) {
	v := strings.TrimSpace(cell)
	if v == "" || v == "NaN" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(v, 64)
}

func columnIndex(header []string, name string) int {
	for i, col := range header {
		if strings.TrimSpace(col) == name {
			return i
		}
	}
	return -1
}
