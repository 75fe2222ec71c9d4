package assay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliahub/qpcrhub/internal/plate"
)

func wellAt(row, col int) plate.Well {
	return plate.Well{Row: row, Col: col}
}

// buildPlate keys results by well id and fills in the coordinate.
func buildPlate(t *testing.T, wells map[string]*WellResult) Plate {
	t.Helper()
	plt := make(Plate, len(wells))
	for id, r := range wells {
		w, err := plate.ParseID(id)
		require.NoError(t, err)
		r.Well = w
		plt[w] = r
	}
	return plt
}

func callsByID(plt Plate) map[string]Call {
	out := make(map[string]Call, len(plt))
	for w, r := range plt {
		out[w.ID()] = r.Call
	}
	return out
}

func escalatedIDs(esc Escalations, call Call) map[string]bool {
	out := make(map[string]bool)
	for w, c := range esc {
		if c == call {
			out[w.ID()] = true
		}
	}
	return out
}

func clusterGrid(c2Call Call) map[string]*WellResult {
	return map[string]*WellResult{
		"A1": {Control: ControlNTC, Call: CallPass, Cqs: CqValues{"N": nan, "E": nan, "RNAse P": nan}},
		"A2": {Call: CallPositive, Cqs: CqValues{"N": 32, "E": 21, "RNAse P": 35}},
		"A3": {Call: CallNegative, Cqs: CqValues{"N": nan, "E": nan, "RNAse P": 22}},
		"B1": {Call: CallPositive, Cqs: CqValues{"N": 22, "E": 35, "RNAse P": nan}},
		"B2": {Call: CallPositive, Cqs: CqValues{"N": 37, "E": 5, "RNAse P": nan}},
		"B3": {Call: CallPositive, Cqs: CqValues{"N": 12, "E": 7, "RNAse P": 35}},
		"C1": {Call: CallPositive, Cqs: CqValues{"N": 35, "E": 14, "RNAse P": nan}},
		"C2": {Call: c2Call, Cqs: CqValues{"N": 6, "E": 44, "RNAse P": nan}},
		"C3": {Call: CallPositive, Cqs: CqValues{"N": 33, "E": 32, "RNAse P": nan}},
	}
}

func TestFlagContaminationV2Clusters(t *testing.T) {
	p := mustProtocol(t, "SOP-V2")
	plt := buildPlate(t, clusterGrid(CallIndeterminate))

	esc := p.FlagContamination(plt)

	assert.Equal(t,
		map[string]bool{"A2": true, "B2": true, "C3": true},
		escalatedIDs(esc, CallPositiveCluster))
	assert.Empty(t, escalatedIDs(esc, CallPositiveHotWell))

	Escalate(plt, esc)
	calls := callsByID(plt)
	assert.Equal(t, CallPositiveCluster, calls["A2"])
	assert.Equal(t, CallPositiveCluster, calls["B2"])
	assert.Equal(t, CallPositiveCluster, calls["C3"])
	assert.Equal(t, CallPositive, calls["B1"])
	assert.Equal(t, CallPositive, calls["B3"])
	assert.Equal(t, CallPositive, calls["C1"])
	assert.Equal(t, CallIndeterminate, calls["C2"])
	assert.Equal(t, CallPass, calls["A1"])
	assert.Equal(t, CallNegative, calls["A3"])
}

func TestFlagContaminationV3SameGrid(t *testing.T) {
	p := mustProtocol(t, "SOP-V3")
	plt := buildPlate(t, clusterGrid(CallPositiveReview))

	esc := p.FlagContamination(plt)

	// the wide pass explains every positive except B3 through C2's strong
	// N signal or B2's strong E signal
	assert.Equal(t,
		map[string]bool{"A2": true, "B1": true, "B2": true, "C1": true, "C3": true},
		escalatedIDs(esc, CallPositiveHotWell))
	// B3 is the strongest well left, so the narrow pass finds nothing
	assert.Empty(t, escalatedIDs(esc, CallPositiveCluster))

	Escalate(plt, esc)
	calls := callsByID(plt)
	assert.Equal(t, CallPositiveReview, calls["C2"], "review wells are not scan candidates")
	assert.Equal(t, CallPositive, calls["B3"])
}

func TestFlagContaminationV3HotWells(t *testing.T) {
	p := mustProtocol(t, "SOP-V3")
	plt := buildPlate(t, map[string]*WellResult{
		"A2": {Call: CallPositive, Cqs: CqValues{"N": 38, "E": 39, "RNAse P": 40}},
		"D2": {Call: CallPositiveReview, Cqs: CqValues{"N": 8, "E": nan, "RNAse P": 40}},
		"D3": {Call: CallPositive, Cqs: CqValues{"N": 20, "E": 20, "RNAse P": nan}},
		"B4": {Call: CallPositiveReview, Cqs: CqValues{"N": nan, "E": 45, "RNAse P": 29}},
		"C4": {Call: CallPositive, Cqs: CqValues{"N": 31, "E": 29, "RNAse P": 40}},
		"D4": {Call: CallPositive, Cqs: CqValues{"N": 16, "E": 20, "RNAse P": 29}},
		"F4": {Call: CallPositive, Cqs: CqValues{"N": 31, "E": 33, "RNAse P": 20}},
		"D9": {Call: CallPositiveReview, Cqs: CqValues{"N": 45, "E": 45, "RNAse P": 20}},
	})

	esc := p.FlagContamination(plt)

	// D2's N at 8 cycles explains A2, C4 and F4 within the wide radius
	assert.Equal(t,
		map[string]bool{"A2": true, "C4": true, "F4": true},
		escalatedIDs(esc, CallPositiveHotWell))
	assert.Empty(t, escalatedIDs(esc, CallPositiveCluster))

	Escalate(plt, esc)
	calls := callsByID(plt)
	assert.Equal(t, CallPositive, calls["D3"])
	assert.Equal(t, CallPositive, calls["D4"])
	assert.Equal(t, CallPositiveReview, calls["D2"])
	assert.Equal(t, CallPositiveReview, calls["B4"])
	assert.Equal(t, CallPositiveReview, calls["D9"])
}

func TestAdjacentPairEscalatesWeakerWell(t *testing.T) {
	p := mustProtocol(t, "SOP-V2")
	plt := buildPlate(t, map[string]*WellResult{
		"A1": {Call: CallPositive, Cqs: CqValues{"N": 20, "E": 20, "RNAse P": 30}},
		"A2": {Call: CallPositive, Cqs: CqValues{"N": 33, "E": 33, "RNAse P": 30}},
	})

	esc := p.FlagContamination(plt)
	Escalate(plt, esc)

	calls := callsByID(plt)
	assert.Equal(t, CallPositive, calls["A1"], "stronger well keeps its call")
	assert.Equal(t, CallPositiveCluster, calls["A2"])
}

func TestRadiusZeroNeverEscalates(t *testing.T) {
	p := mustProtocol(t, "SOP-V1")
	require.Equal(t, 0, p.Radius)

	plt := buildPlate(t, map[string]*WellResult{
		"A1": {Call: CallPositive, Cqs: CqValues{"RdRp": 15, "E": 15, "RNAse P": 30}},
		"A2": {Call: CallPositive, Cqs: CqValues{"RdRp": 39, "E": 39, "RNAse P": 30}},
	})

	assert.Empty(t, p.FlagContamination(plt))
}

func TestIncompleteDataNeverEscalates(t *testing.T) {
	p := mustProtocol(t, "SOP-V2")

	// candidate is missing a virus reading
	plt := buildPlate(t, map[string]*WellResult{
		"A1": {Call: CallPositive, Cqs: CqValues{"N": 20, "E": 20, "RNAse P": 30}},
		"A2": {Call: CallPositive, Cqs: CqValues{"N": 39, "E": nan, "RNAse P": 30}},
	})
	assert.Empty(t, p.FlagContamination(plt))

	// neighbor is missing a virus reading
	plt = buildPlate(t, map[string]*WellResult{
		"A1": {Call: CallPositive, Cqs: CqValues{"N": 20, "E": nan, "RNAse P": 30}},
		"A2": {Call: CallPositive, Cqs: CqValues{"N": 39, "E": 39, "RNAse P": 30}},
	})
	assert.Empty(t, p.FlagContamination(plt))
}

func TestFlagContaminationDoesNotMutate(t *testing.T) {
	p := mustProtocol(t, "SOP-V2")
	plt := buildPlate(t, clusterGrid(CallIndeterminate))
	before := callsByID(plt)

	for i := 0; i < 3; i++ {
		esc := p.FlagContamination(plt)
		assert.Equal(t,
			map[string]bool{"A2": true, "B2": true, "C3": true},
			escalatedIDs(esc, CallPositiveCluster))
	}
	assert.Equal(t, before, callsByID(plt))
}

func TestEscalateAppliesOnlyToPositives(t *testing.T) {
	plt := buildPlate(t, map[string]*WellResult{
		"A1": {Call: CallNegative, Cqs: CqValues{}},
		"A2": {Call: CallIndeterminate, Cqs: CqValues{}},
		"A3": {Call: CallPositiveHotWell, Cqs: CqValues{}},
		"A4": {Call: CallPositive, Cqs: CqValues{}},
	})

	Escalate(plt, Escalations{
		wellAt(0, 0): CallPositiveCluster,
		wellAt(0, 1): CallPositiveCluster,
		wellAt(0, 2): CallPositiveCluster,
		wellAt(0, 3): CallNegative, // downgrades are refused
	})

	calls := callsByID(plt)
	assert.Equal(t, CallNegative, calls["A1"])
	assert.Equal(t, CallIndeterminate, calls["A2"])
	assert.Equal(t, CallPositiveHotWell, calls["A3"])
	assert.Equal(t, CallPositive, calls["A4"])

	Escalate(plt, Escalations{wellAt(0, 3): CallPositiveCluster})
	assert.Equal(t, CallPositiveCluster, plt[wellAt(0, 3)].Call)
}
