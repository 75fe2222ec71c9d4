// Package runfiles locates and parses the CSV exports that the qPCR
// instrument software writes at the end of a run. A processable run is a
// set of files sharing one plate barcode: a run information file, a Cq
// results file, and one amplification file per fluor.
package runfiles

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/cliahub/qpcrhub/internal/assay"
)

// FileType names one kind of instrument export.
type FileType string

const (
	RunInfo  FileType = "Run Information"
	QuantCq  FileType = "Quantification Cq Results"
	QuantAmp FileType = "Quantification Amplification Results"
)

// fileNameRE matches exports of the form
//
//	{barcode}{optional noise like `_All Wells `}- +{file type}[_{fluor}].csv
//
// Groups: 1 barcode, 2 file type, 3 optional fluor suffix.
var fileNameRE = regexp.MustCompile(
	`^([A-Z0-9]+).*-\s*([a-zA-Z ]+)(?:_([a-zA-Z0-9]+))?\.csv$`,
)

// Match is the result of identifying one instrument export by filename.
type Match struct {
	Barcode string
	Type    FileType
	Fluor   assay.Fluor
}

// Identify reports the barcode, file type and optional fluor encoded in an
// instrument export filename. Paths are reduced to their base name first.
func Identify(name string) (Match, bool) {
	groups := fileNameRE.FindStringSubmatch(filepath.Base(name))
	if groups == nil {
		return Match{}, false
	}
	return Match{
		Barcode: groups[1],
		Type:    FileType(groups[2]),
		Fluor:   assay.Fluor(groups[3]),
	}, true
}

// Set collects the export paths for a single plate barcode.
type Set struct {
	Barcode  string
	RunInfo  string
	QuantCq  string
	QuantAmp map[assay.Fluor]string
}

// NewSet returns an empty file set for the given barcode.
func NewSet(barcode string) *Set {
	return &Set{
		Barcode:  barcode,
		QuantAmp: make(map[assay.Fluor]string),
	}
}

// Add records the path for a matched export. Export types we do not process
// (melt curves, plate views) are ignored, as are amplification files that
// carry no fluor suffix.
func (s *Set) Add(m Match, path string) {
	switch m.Type {
	case RunInfo:
		s.RunInfo = path
	case QuantCq:
		s.QuantCq = path
	case QuantAmp:
		if m.Fluor == "" {
			return
		}
		if s.QuantAmp == nil {
			s.QuantAmp = make(map[assay.Fluor]string)
		}
		s.QuantAmp[m.Fluor] = path
	}
}

// Complete reports whether the instrument has finished writing everything
// needed to process the run: run information, Cq results, and an
// amplification file for each fluor the protocol reads.
func (s *Set) Complete(fluors []assay.Fluor) bool {
	if s.RunInfo == "" || s.QuantCq == "" || len(s.QuantAmp) == 0 {
		return false
	}
	for _, f := range fluors {
		if _, ok := s.QuantAmp[f]; !ok {
			return false
		}
	}
	return true
}

// Discover scans a directory of instrument exports and groups them by plate
// barcode. Files that do not look like instrument exports are skipped.
func Discover(dir string) (map[string]*Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	sets := make(map[string]*Set)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m, ok := Identify(entry.Name())
		if !ok {
			continue
		}
		set, ok := sets[m.Barcode]
		if !ok {
			set = NewSet(m.Barcode)
			sets[m.Barcode] = set
		}
		set.Add(m, filepath.Join(dir, entry.Name()))
	}
	return sets, nil
}
