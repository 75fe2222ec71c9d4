package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliahub/qpcrhub/internal/config"
	"github.com/cliahub/qpcrhub/internal/notify"
	"github.com/cliahub/qpcrhub/internal/results"
	"github.com/cliahub/qpcrhub/internal/runfiles"
	"github.com/cliahub/qpcrhub/internal/store"
	"github.com/cliahub/qpcrhub/internal/ws"
)

const (
	testQPCRBarcode   = "R012345"
	testSampleBarcode = "S012345"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		InboxDir:     filepath.Join(root, "inbox"),
		OutboxDir:    filepath.Join(root, "outbox"),
		ArchiveDir:   filepath.Join(root, "archive"),
		PollInterval: 10 * time.Millisecond,
	}
	require.NoError(t, os.MkdirAll(cfg.InboxDir, 0o755))
	return cfg
}

func testSettings() *config.Settings {
	s := config.DefaultSettings()
	s.Timezone = "UTC"
	s.TestingLocation = "Test Lab"
	return s
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func runInfoCSV(protocolFile string) string {
	return "Protocol File Name," + protocolFile + "\n" +
		"Plate Setup File Name,Covid19-v2_platelayout.pltd\n" +
		"Run Ended,08/01/2020 17:30:00\n" +
		"Base Serial Number,CT012345\n"
}

// quantCqCSV carries readings for three samples and the standard control
// wells on the 384-well grid. B1 is positive, B2 negative, B3 has no
// signal at all; every control behaves.
const quantCqCSV = `Well,Fluor,Cq
A15,FAM,20.5
A16,FAM,21.5
B15,HEX,25.5
B17,HEX,28.0
C01,FAM,20.1
C02,FAM,21.3
D01,HEX,25.0
D03,HEX,30.2
O15,FAM,20.7
O16,FAM,21.7
P15,HEX,25.7
P17,HEX,28.4
`

const welllitCSV = `% WellLit transfer recorded 2020-08-01
2020-08-01 17:01:12,E12345,B1
2020-08-01 17:01:20,E12346,B2
2020-08-01 17:01:31,E12347,B3
`

const metadataYAML = `qpcr_barcode: R012345
rna_barcode: N012345
sample_barcode: S012345
researcher: jdoe
protocol: SOP-V2
sample_type: Original Sample
controls_type: Standard Controls
plate_map: S012345_welllit.csv
`

// writeRunFileSet lays a complete SOP-V2 plate in dir: the three
// instrument exports per fluor, the metadata sidecar and the plate map.
func writeRunFileSet(t *testing.T, dir string) {
	t.Helper()
	writeTestFile(t, filepath.Join(dir, testQPCRBarcode+" - Run Information.csv"),
		runInfoCSV("Covid19-LUNA_protocol.prcl"))
	writeTestFile(t, filepath.Join(dir, testQPCRBarcode+" - Quantification Cq Results.csv"),
		quantCqCSV)
	writeTestFile(t, filepath.Join(dir, testQPCRBarcode+" - Quantification Amplification Results_FAM.csv"),
		"Cycle,C01,C02\n1,100,95\n2,250,240\n")
	writeTestFile(t, filepath.Join(dir, testQPCRBarcode+" - Quantification Amplification Results_HEX.csv"),
		"Cycle,D01,D03\n1,90,85\n2,240,230\n")
	writeTestFile(t, filepath.Join(dir, testQPCRBarcode+"-metadata.yaml"), metadataYAML)
	writeTestFile(t, filepath.Join(dir, "S012345_welllit.csv"), welllitCSV)
}

func discoverSet(t *testing.T, dir string) *runfiles.Set {
	t.Helper()
	sets, err := runfiles.Discover(dir)
	require.NoError(t, err)
	set, ok := sets[testQPCRBarcode]
	require.True(t, ok, "file set for %s not discovered", testQPCRBarcode)
	return set
}

type fakeSaver struct {
	rec   *store.PlateRecord
	wells []store.WellRecord
	err   error
}

func (f *fakeSaver) SavePlate(_ context.Context, rec *store.PlateRecord, wells []store.WellRecord) error {
	if f.err != nil {
		return f.err
	}
	f.rec = rec
	f.wells = wells
	return nil
}

type fakeMarkers struct {
	processed map[string]bool
	summaries []*store.PlateSummary
	lookupErr error
}

func newFakeMarkers() *fakeMarkers {
	return &fakeMarkers{processed: make(map[string]bool)}
}

func (f *fakeMarkers) IsProcessed(_ context.Context, barcode string) (bool, error) {
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	return f.processed[barcode], nil
}

func (f *fakeMarkers) MarkProcessed(_ context.Context, barcode string) error {
	f.processed[barcode] = true
	return nil
}

func (f *fakeMarkers) SaveSummary(_ context.Context, summary *store.PlateSummary) error {
	f.summaries = append(f.summaries, summary)
	return nil
}

type fakeNotifier struct {
	events []notify.Event
}

func (f *fakeNotifier) Publish(_ context.Context, event notify.Event) {
	f.events = append(f.events, event)
}

type fakeBroadcaster struct {
	msgs []ws.Message
}

func (f *fakeBroadcaster) Broadcast(msg ws.Message) {
	f.msgs = append(f.msgs, msg)
}

func (f *fakeBroadcaster) ofType(typ string) []ws.Message {
	var out []ws.Message
	for _, m := range f.msgs {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func wellByID(t *testing.T, wells []store.WellRecord, id string) store.WellRecord {
	t.Helper()
	for _, w := range wells {
		if w.Well == id {
			return w
		}
	}
	t.Fatalf("well %s not in records", id)
	return store.WellRecord{}
}

func TestProcessPlate(t *testing.T) {
	cfg := testConfig(t)
	writeRunFileSet(t, cfg.InboxDir)

	saver := &fakeSaver{}
	markers := newFakeMarkers()
	notifier := &fakeNotifier{}
	hub := &fakeBroadcaster{}

	proc, err := NewProcessor(zerolog.Nop(), cfg, testSettings(), saver, markers, notifier, hub)
	require.NoError(t, err)

	res, err := proc.Process(context.Background(), discoverSet(t, cfg.InboxDir), cfg.InboxDir)
	require.NoError(t, err)
	assert.Equal(t, "Passed", res.Controls)

	require.NotNil(t, saver.rec)
	rec := saver.rec
	_, err = uuid.Parse(rec.RunID)
	assert.NoError(t, err)
	assert.Equal(t, testSampleBarcode, rec.SampleBarcode)
	assert.Equal(t, testQPCRBarcode, rec.QPCRBarcode)
	assert.Equal(t, "SOP-V2", rec.Protocol)
	assert.Equal(t, "jdoe", rec.ResearcherID)
	assert.True(t, rec.ControlsPassed)
	assert.False(t, rec.Experimental)
	assert.False(t, rec.Contaminated)
	assert.True(t, rec.RunEnded.Equal(time.Date(2020, 8, 1, 17, 30, 0, 0, time.UTC)))

	// 12 standard controls plus three samples
	require.Len(t, saver.wells, 15)

	pos := wellByID(t, saver.wells, "B01")
	assert.Equal(t, "E12345", pos.Accession)
	assert.Equal(t, "Pos", pos.Call)
	require.NotNil(t, pos.Cqs["N"])
	assert.InDelta(t, 20.1, *pos.Cqs["N"], 0.001)
	require.NotNil(t, pos.Cqs["RNAse P"])

	inv := wellByID(t, saver.wells, "B03")
	assert.Equal(t, "Inv", inv.Call)
	assert.Nil(t, inv.Cqs["N"])

	ntc := wellByID(t, saver.wells, "A01")
	assert.Equal(t, "NTC", ntc.Control)
	assert.Equal(t, "Pass", ntc.Call)
	assert.Empty(t, ntc.Accession)

	assert.True(t, markers.processed[testQPCRBarcode])
	require.Len(t, markers.summaries, 1)
	summary := markers.summaries[0]
	assert.Equal(t, map[string]int{"Pos": 1, "Neg": 1, "Inv": 1}, summary.CallCounts)
	assert.True(t, summary.ControlsPassed)

	require.Len(t, notifier.events, 1)
	event := notifier.events[0]
	require.Len(t, event.Artifacts, 3)
	for _, path := range event.Artifacts {
		_, err := os.Stat(path)
		assert.NoError(t, err, "artifact %s missing", path)
	}

	processed := hub.ofType(ws.TypePlateProcessed)
	require.Len(t, processed, 1)
	require.NotNil(t, processed[0].Summary)
	assert.Equal(t, rec.RunID, processed[0].Summary.RunID)

	combined := testSampleBarcode + "-" + testQPCRBarcode
	raw, err := os.ReadFile(filepath.Join(cfg.OutboxDir, combined+"-results.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "E12345")

	archived, err := os.ReadDir(filepath.Join(cfg.ArchiveDir, combined))
	require.NoError(t, err)
	assert.Len(t, archived, 6)

	left, err := os.ReadDir(cfg.InboxDir)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestProcessPlateWithoutStores(t *testing.T) {
	cfg := testConfig(t)
	writeRunFileSet(t, cfg.InboxDir)

	proc, err := NewProcessor(zerolog.Nop(), cfg, testSettings(), nil, nil, nil, nil)
	require.NoError(t, err)

	res, err := proc.Process(context.Background(), discoverSet(t, cfg.InboxDir), cfg.InboxDir)
	require.NoError(t, err)
	assert.Equal(t, "Passed", res.Controls)

	combined := testSampleBarcode + "-" + testQPCRBarcode
	for _, name := range []string{
		combined + "-results.csv",
		combined + "_cb_results.csv",
		combined + "_final.pdf",
	} {
		_, err := os.Stat(filepath.Join(cfg.OutboxDir, name))
		assert.NoError(t, err, "artifact %s missing", name)
	}
}

func TestProcessRejectsMismatchedRunInfo(t *testing.T) {
	cfg := testConfig(t)
	writeRunFileSet(t, cfg.InboxDir)
	writeTestFile(t, filepath.Join(cfg.InboxDir, testQPCRBarcode+" - Run Information.csv"),
		runInfoCSV("Wrong_protocol.prcl"))

	saver := &fakeSaver{}
	markers := newFakeMarkers()
	proc, err := NewProcessor(zerolog.Nop(), cfg, testSettings(), saver, markers, nil, nil)
	require.NoError(t, err)

	_, err = proc.Process(context.Background(), discoverSet(t, cfg.InboxDir), cfg.InboxDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatched qPCR protocol")

	assert.Nil(t, saver.rec)
	assert.False(t, markers.processed[testQPCRBarcode])
}

func TestProcessRejectsIncompleteSet(t *testing.T) {
	cfg := testConfig(t)
	writeRunFileSet(t, cfg.InboxDir)
	require.NoError(t, os.Remove(filepath.Join(cfg.InboxDir,
		testQPCRBarcode+" - Quantification Amplification Results_HEX.csv")))

	proc, err := NewProcessor(zerolog.Nop(), cfg, testSettings(), nil, nil, nil, nil)
	require.NoError(t, err)

	_, err = proc.Process(context.Background(), discoverSet(t, cfg.InboxDir), cfg.InboxDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incomplete")
}

type fakeProcessor struct {
	calls []string
	err   error
}

func (f *fakeProcessor) Process(_ context.Context, set *runfiles.Set, _ string) (*results.Results, error) {
	f.calls = append(f.calls, set.Barcode)
	if f.err != nil {
		return nil, f.err
	}
	return &results.Results{Controls: "Passed"}, nil
}

func TestWatcherProcessesInbox(t *testing.T) {
	cfg := testConfig(t)
	writeRunFileSet(t, cfg.InboxDir)

	saver := &fakeSaver{}
	markers := newFakeMarkers()
	hub := &fakeBroadcaster{}
	proc, err := NewProcessor(zerolog.Nop(), cfg, testSettings(), saver, markers, nil, hub)
	require.NoError(t, err)

	w := NewWatcher(zerolog.Nop(), cfg, proc, markers, hub)
	w.sweep(context.Background())

	require.NotNil(t, saver.rec)
	assert.Len(t, hub.ofType(ws.TypePlateDetected), 1)
	assert.Len(t, hub.ofType(ws.TypePlateProcessed), 1)

	// the processed plate was archived, so a second sweep finds nothing
	w.sweep(context.Background())
	assert.Len(t, hub.ofType(ws.TypePlateDetected), 1)
}

func TestWatcherSkipsProcessedPlates(t *testing.T) {
	cfg := testConfig(t)
	writeRunFileSet(t, cfg.InboxDir)

	markers := newFakeMarkers()
	markers.processed[testQPCRBarcode] = true
	proc := &fakeProcessor{}

	w := NewWatcher(zerolog.Nop(), cfg, proc, markers, nil)
	w.sweep(context.Background())

	assert.Empty(t, proc.calls)
}

func TestWatcherWaitsForRegistration(t *testing.T) {
	cfg := testConfig(t)
	writeRunFileSet(t, cfg.InboxDir)
	require.NoError(t, os.Remove(filepath.Join(cfg.InboxDir, testQPCRBarcode+"-metadata.yaml")))

	proc := &fakeProcessor{}
	hub := &fakeBroadcaster{}
	w := NewWatcher(zerolog.Nop(), cfg, proc, nil, hub)
	w.sweep(context.Background())

	assert.Empty(t, proc.calls)
	assert.Empty(t, hub.msgs)
}

func TestWatcherWaitsForMissingExports(t *testing.T) {
	cfg := testConfig(t)
	writeRunFileSet(t, cfg.InboxDir)
	require.NoError(t, os.Remove(filepath.Join(cfg.InboxDir,
		testQPCRBarcode+" - Quantification Amplification Results_HEX.csv")))

	proc := &fakeProcessor{}
	hub := &fakeBroadcaster{}
	w := NewWatcher(zerolog.Nop(), cfg, proc, nil, hub)
	w.sweep(context.Background())

	assert.Empty(t, proc.calls)
	assert.Empty(t, hub.msgs)
}

func TestWatcherReportsFailureOncePerError(t *testing.T) {
	cfg := testConfig(t)
	writeRunFileSet(t, cfg.InboxDir)

	proc := &fakeProcessor{err: errors.New("postgres is down")}
	hub := &fakeBroadcaster{}
	w := NewWatcher(zerolog.Nop(), cfg, proc, nil, hub)

	w.sweep(context.Background())
	w.sweep(context.Background())

	// retried every sweep, reported once
	assert.Len(t, proc.calls, 2)
	failed := hub.ofType(ws.TypePlateFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, testQPCRBarcode, failed[0].Plate)
	assert.Contains(t, failed[0].Detail, "postgres is down")

	// recovery clears the failure memo
	proc.err = nil
	w.sweep(context.Background())
	assert.Len(t, proc.calls, 3)
	assert.Empty(t, w.failed)
}
