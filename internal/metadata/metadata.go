// Package metadata loads the per-plate registration sidecar that lab staff
// drop next to the instrument exports, and the sample plate maps that
// assign accession barcodes to wells.
package metadata

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/cliahub/qpcrhub/internal/assay"
	"github.com/cliahub/qpcrhub/internal/runfiles"
)

// missing marks barcode fields the registration never filled in.
const missing = "MISSING"

// SamplePlateType distinguishes reportable sample plates from experimental
// and validation runs.
type SamplePlateType string

const (
	// PlateOriginal is the only type whose results are reported.
	PlateOriginal     SamplePlateType = "Original Sample"
	PlateExperimental SamplePlateType = "Experimental Plate"
	PlateValidation   SamplePlateType = "Validation Plate"
)

// ControlsMapping says where a sample plate's controls live.
type ControlsMapping string

const (
	ControlsStandard   ControlsMapping = "Standard Controls"
	ControlsValidation ControlsMapping = "LOD Controls"
	ControlsCustom     ControlsMapping = "Custom Controls"
	ControlsNone       ControlsMapping = "No Controls"
)

// ReportNote is a free-text remark captured during plate registration.
type ReportNote struct {
	Researcher string `yaml:"researcher"`
	Timestamp  string `yaml:"timestamp"`
	Body       string `yaml:"body"`
}

func (n ReportNote) String() string {
	return fmt.Sprintf("%s; %s; %s", n.Researcher, n.Timestamp, n.Body)
}

// PlateMetadata is the registration record for one qPCR plate.
type PlateMetadata struct {
	QPCRBarcode   string          `yaml:"qpcr_barcode"`
	RNABarcode    string          `yaml:"rna_barcode"`
	SampleBarcode string          `yaml:"sample_barcode"`
	Researcher    string          `yaml:"researcher"`
	Protocol      string          `yaml:"protocol"`
	SampleType    SamplePlateType `yaml:"sample_type,omitempty"`
	ControlsType  ControlsMapping `yaml:"controls_type,omitempty"`
	BravoStation  string          `yaml:"bravo_station,omitempty"`
	QPCRStation   string          `yaml:"qpcr_station,omitempty"`
	PlateMap      string          `yaml:"plate_map,omitempty"`
	Notes         []ReportNote    `yaml:"notes,omitempty"`
}

// CombinedBarcode identifies a processed plate in filenames and reports.
func (m *PlateMetadata) CombinedBarcode() string {
	return fmt.Sprintf("%s-%s", m.SampleBarcode, m.QPCRBarcode)
}

// Experimental reports whether the plate's results are for lab use only.
// Anything not registered as an original sample plate is experimental.
func (m *PlateMetadata) Experimental() bool {
	return m.SampleType != PlateOriginal
}

// SidecarName returns the metadata filename expected alongside a plate's
// instrument exports.
func SidecarName(barcode string) string {
	return barcode + "-metadata.yaml"
}

// Load reads and validates the metadata sidecar for a plate barcode.
func Load(dir, barcode string) (*PlateMetadata, error) {
	path := filepath.Join(dir, SidecarName(barcode))
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plate metadata: %w", err)
	}

	var m PlateMetadata
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if m.QPCRBarcode == "" {
		m.QPCRBarcode = barcode
	} else if m.QPCRBarcode != barcode {
		return nil, fmt.Errorf(
			"metadata file %s is registered to barcode %s", path, m.QPCRBarcode)
	}

	if m.RNABarcode == "" {
		m.RNABarcode = missing
	}
	if m.SampleBarcode == "" {
		m.SampleBarcode = missing
	}
	if m.Researcher == "" {
		m.Researcher = missing
	}
	if m.ControlsType == "" {
		m.ControlsType = ControlsStandard
	}

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid metadata for %s: %w", barcode, err)
	}
	return &m, nil
}

func (m *PlateMetadata) validate() error {
	if m.Protocol == "" {
		return fmt.Errorf("no protocol named")
	}
	switch m.ControlsType {
	case ControlsStandard, ControlsValidation, ControlsCustom, ControlsNone:
	default:
		return fmt.Errorf("unknown controls mapping %q", m.ControlsType)
	}
	switch m.SampleType {
	case "", PlateOriginal, PlateExperimental, PlateValidation:
	default:
		return fmt.Errorf("unknown sample plate type %q", m.SampleType)
	}
	return nil
}

// MismatchError reports instrument exports produced with different protocol
// or plate setup files than the plate was registered with.
type MismatchError struct {
	Field string
	Got   string
	Want  string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("mismatched %s: got %q, want %q", e.Field, e.Got, e.Want)
}

// ValidateRunInfo checks a run information export against the registered
// protocol before any results are computed.
func ValidateRunInfo(info *runfiles.Info, p *assay.Protocol) error {
	if info.ProtocolFile != p.ProtocolFile {
		return &MismatchError{Field: "qPCR protocol", Got: info.ProtocolFile, Want: p.ProtocolFile}
	}
	if info.PlateSetupFile != p.PlateSetupFile {
		return &MismatchError{Field: "plate setup", Got: info.PlateSetupFile, Want: p.PlateSetupFile}
	}
	return nil
}
