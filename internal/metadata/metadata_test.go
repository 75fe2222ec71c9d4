package metadata

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliahub/qpcrhub/internal/assay"
	"github.com/cliahub/qpcrhub/internal/runfiles"
)

func writeSidecar(t *testing.T, dir, barcode, body string) {
	t.Helper()
	path := filepath.Join(dir, SidecarName(barcode))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeSidecar(t, dir, "D012345", `
qpcr_barcode: D012345
rna_barcode: R012345
sample_barcode: S012345
researcher: jdoe
protocol: SOP-V2
sample_type: Original Sample
controls_type: Standard Controls
qpcr_station: clia-pcr-3
plate_map: S012345_hamilton.csv
notes:
  - researcher: jdoe
    timestamp: "2025-06-20 14:02"
    body: rerun of S012300
`)

	m, err := Load(dir, "D012345")
	require.NoError(t, err)

	assert.Equal(t, "D012345", m.QPCRBarcode)
	assert.Equal(t, "R012345", m.RNABarcode)
	assert.Equal(t, "S012345", m.SampleBarcode)
	assert.Equal(t, "SOP-V2", m.Protocol)
	assert.Equal(t, PlateOriginal, m.SampleType)
	assert.Equal(t, ControlsStandard, m.ControlsType)
	assert.Equal(t, "S012345-D012345", m.CombinedBarcode())
	assert.False(t, m.Experimental())

	require.Len(t, m.Notes, 1)
	assert.Equal(t, "jdoe; 2025-06-20 14:02; rerun of S012300", m.Notes[0].String())
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	writeSidecar(t, dir, "D000001", "protocol: SOP-V3\n")

	m, err := Load(dir, "D000001")
	require.NoError(t, err)

	assert.Equal(t, "D000001", m.QPCRBarcode)
	assert.Equal(t, "MISSING", m.SampleBarcode)
	assert.Equal(t, "MISSING", m.RNABarcode)
	assert.Equal(t, "MISSING", m.Researcher)
	assert.Equal(t, ControlsStandard, m.ControlsType)
	assert.True(t, m.Experimental(), "unregistered sample type is experimental")
}

func TestLoadBarcodeMismatch(t *testing.T) {
	dir := t.TempDir()
	writeSidecar(t, dir, "D000001", "qpcr_barcode: D999999\nprotocol: SOP-V2\n")

	_, err := Load(dir, "D000001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "D999999")
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no protocol", "sample_barcode: S1\n"},
		{"unknown controls type", "protocol: SOP-V2\ncontrols_type: Extra Controls\n"},
		{"unknown sample type", "protocol: SOP-V2\nsample_type: Mystery Plate\n"},
		{"not yaml", "{{{{\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeSidecar(t, dir, "D000001", tt.body)
			_, err := Load(dir, "D000001")
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingSidecar(t *testing.T) {
	_, err := Load(t.TempDir(), "D000001")
	assert.Error(t, err)
}

func TestValidateRunInfo(t *testing.T) {
	p, err := assay.GetProtocol("SOP-V2")
	require.NoError(t, err)

	info := &runfiles.Info{
		ProtocolFile:   "Covid19-LUNA_protocol.prcl",
		PlateSetupFile: "Covid19-v2_platelayout.pltd",
	}
	assert.NoError(t, ValidateRunInfo(info, p))
}

func TestValidateRunInfoMismatch(t *testing.T) {
	p, err := assay.GetProtocol("SOP-V2")
	require.NoError(t, err)

	tests := []struct {
		name string
		info runfiles.Info
	}{
		{
			"wrong protocol file",
			runfiles.Info{
				ProtocolFile:   "Covid19_protocol.prcl",
				PlateSetupFile: "Covid19-v2_platelayout.pltd",
			},
		},
		{
			"wrong plate setup",
			runfiles.Info{
				ProtocolFile:   "Covid19-LUNA_protocol.prcl",
				PlateSetupFile: "Covid19_platelayout.pltd",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRunInfo(&tt.info, p)
			require.Error(t, err)

			var mismatch *MismatchError
			require.True(t, errors.As(err, &mismatch))
			assert.Contains(t, err.Error(), "mismatched")
		})
	}
}
