// Package pipeline turns instrument exports dropped in the inbox into
// result artifacts, persisted runs and notifications. The watcher finds
// complete file sets; the processor takes one set through calling,
// contamination review, reporting and storage.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cliahub/qpcrhub/internal/assay"
	"github.com/cliahub/qpcrhub/internal/config"
	"github.com/cliahub/qpcrhub/internal/metadata"
	"github.com/cliahub/qpcrhub/internal/notify"
	"github.com/cliahub/qpcrhub/internal/plate"
	"github.com/cliahub/qpcrhub/internal/results"
	"github.com/cliahub/qpcrhub/internal/runfiles"
	"github.com/cliahub/qpcrhub/internal/store"
	"github.com/cliahub/qpcrhub/internal/ws"
)

// PlateSaver is the slice of the Postgres layer the processor writes.
type PlateSaver interface {
	SavePlate(ctx context.Context, plate *store.PlateRecord, wells []store.WellRecord) error
}

// MarkerStore is the slice of the Redis layer the pipeline touches.
type MarkerStore interface {
	IsProcessed(ctx context.Context, barcode string) (bool, error)
	MarkProcessed(ctx context.Context, barcode string) error
	SaveSummary(ctx context.Context, summary *store.PlateSummary) error
}

// Notifier publishes processed-plate events to the configured channels.
type Notifier interface {
	Publish(ctx context.Context, event notify.Event)
}

// Broadcaster pushes live pipeline events to connected dashboards.
type Broadcaster interface {
	Broadcast(msg ws.Message)
}

// Processor runs one plate's file set through the complete flow. Every
// port may be nil: a nil saver or marker store simply skips persistence,
// which is how the one-shot command runs without Postgres or Redis.
type Processor struct {
	log      zerolog.Logger
	cfg      *config.Config
	settings *config.Settings
	tz       *time.Location

	saver    PlateSaver
	markers  MarkerStore
	notifier Notifier
	hub      Broadcaster
}

// NewProcessor wires a processor against its stores and sinks.
func NewProcessor(
	log zerolog.Logger,
	cfg *config.Config,
	settings *config.Settings,
	saver PlateSaver,
	markers MarkerStore,
	notifier Notifier,
	hub Broadcaster,
) (*Processor, error) {
	tz, err := settings.Location()
	if err != nil {
		return nil, err
	}
	return &Processor{
		log:      log,
		cfg:      cfg,
		settings: settings,
		tz:       tz,
		saver:    saver,
		markers:  markers,
		notifier: notifier,
		hub:      hub,
	}, nil
}

// Process takes one complete file set from dir through calling,
// contamination review, report generation, storage and notification.
// The set's input files are archived on success.
func (p *Processor) Process(ctx context.Context, set *runfiles.Set, dir string) (*results.Results, error) {
	runID := uuid.New().String()
	log := p.log.With().Str("run_id", runID).Str("plate", set.Barcode).Logger()

	md, err := metadata.Load(dir, set.Barcode)
	if err != nil {
		return nil, err
	}

	proto, err := assay.GetProtocol(md.Protocol)
	if err != nil {
		return nil, err
	}

	if !set.Complete(proto.Fluors()) {
		return nil, fmt.Errorf("run files for %s are incomplete", set.Barcode)
	}

	info, err := p.parseRunInfo(set.RunInfo)
	if err != nil {
		return nil, err
	}
	if err := metadata.ValidateRunInfo(info, proto); err != nil {
		return nil, fmt.Errorf("run information for %s: %w", set.Barcode, err)
	}

	raw, err := p.parseQuantCq(set.QuantCq)
	if err != nil {
		return nil, err
	}

	wells, err := buildPlate(md, proto, raw, dir)
	if err != nil {
		return nil, err
	}

	if err := proto.ClassifyPlate(wells); err != nil {
		return nil, err
	}

	res := results.Build(md, proto, wells, info.RunEnded, p.tz, p.settings.TestingLocation)

	artifacts, err := p.writeArtifacts(res)
	if err != nil {
		return nil, err
	}

	rec, wellRecs := buildRecords(runID, res, info.RunEnded)
	if p.saver != nil {
		if err := p.saver.SavePlate(ctx, rec, wellRecs); err != nil {
			return nil, fmt.Errorf("failed to save plate %s: %w", set.Barcode, err)
		}
	}

	summary := buildSummary(rec, res)
	if p.markers != nil {
		if err := p.markers.SaveSummary(ctx, summary); err != nil {
			log.Warn().Err(err).Msg("failed to cache plate summary")
		}
		if err := p.markers.MarkProcessed(ctx, set.Barcode); err != nil {
			log.Warn().Err(err).Msg("failed to set processed marker")
		}
	}

	if err := p.archive(set, md, dir); err != nil {
		log.Warn().Err(err).Msg("failed to archive run files")
	}

	if p.notifier != nil {
		p.notifier.Publish(ctx, buildEvent(rec, summary, artifacts))
	}
	if p.hub != nil {
		p.hub.Broadcast(ws.PlateProcessed(summary))
	}

	log.Info().
		Str("protocol", proto.Name).
		Str("controls", res.Controls).
		Bool("contaminated", rec.Contaminated).
		Int("wells", len(wellRecs)).
		Msg("plate processed")
	return res, nil
}

func (p *Processor) parseRunInfo(path string) (*runfiles.Info, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run information: %w", err)
	}
	defer fh.Close()
	return runfiles.ParseRunInfo(fh)
}

func (p *Processor) parseQuantCq(path string) (map[string]map[assay.Fluor]float64, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Cq results: %w", err)
	}
	defer fh.Close()
	return runfiles.ParseQuantCq(fh)
}

// buildPlate assembles the 96-well sample plate: Cq readings folded down
// from the 384-well grid, accessions from the plate map, controls from
// the registered layout. Wells with neither a sample nor a control stay
// off the plate.
func buildPlate(
	md *metadata.PlateMetadata,
	proto *assay.Protocol,
	raw map[string]map[assay.Fluor]float64,
	dir string,
) (assay.Plate, error) {
	accessions := make(metadata.AccessionData)
	if md.PlateMap != "" {
		data, err := metadata.LoadPlateMap(filepath.Join(dir, md.PlateMap))
		if err != nil {
			return nil, err
		}
		accessions = data
	}

	controls, err := metadata.ControlWellsForType(md.ControlsType, accessions)
	if err != nil {
		return nil, err
	}
	if err := metadata.MergeControls(controls, accessions, md.SampleBarcode); err != nil {
		return nil, err
	}

	cqs := proto.MapTo96(raw)

	wells := make(assay.Plate, len(accessions))
	for _, w := range plate.Wells96() {
		label, ok := accessions[w.ID()]
		if !ok {
			continue
		}
		// control wells keep their label as the accession; the results
		// reader recognizes them by that prefix
		r := &assay.WellResult{Well: w, Accession: label, Cqs: cqs[w]}
		if ct, ok := controls[w.ID()]; ok {
			r.Control = ct
		}
		wells[w] = r
	}
	return wells, nil
}

// writeArtifacts renders the three report files into the outbox and
// returns their paths.
func (p *Processor) writeArtifacts(res *results.Results) ([]string, error) {
	if err := os.MkdirAll(p.cfg.OutboxDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create outbox: %w", err)
	}

	resultsPath := filepath.Join(p.cfg.OutboxDir, res.ResultsFilename())
	if err := writeFile(resultsPath, res.WriteResults); err != nil {
		return nil, err
	}

	cbPath := filepath.Join(p.cfg.OutboxDir, res.CBReportFilename())
	if err := writeFile(cbPath, res.WriteCBReport); err != nil {
		return nil, err
	}

	pdfPath := filepath.Join(p.cfg.OutboxDir, res.PDFFilename())
	if err := res.WritePDF(pdfPath); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", pdfPath, err)
	}

	return []string{resultsPath, cbPath, pdfPath}, nil
}

func writeFile(path string, write func(w io.Writer) error) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(fh); err != nil {
		fh.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return fh.Close()
}

// archive moves a processed plate's inputs out of the inbox so the next
// sweep does not see them again.
func (p *Processor) archive(set *runfiles.Set, md *metadata.PlateMetadata, dir string) error {
	dest := filepath.Join(p.cfg.ArchiveDir, md.CombinedBarcode())
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	paths := []string{
		set.RunInfo,
		set.QuantCq,
		filepath.Join(dir, metadata.SidecarName(set.Barcode)),
	}
	for _, path := range set.QuantAmp {
		paths = append(paths, path)
	}
	if md.PlateMap != "" {
		paths = append(paths, filepath.Join(dir, md.PlateMap))
	}

	for _, path := range paths {
		if err := os.Rename(path, filepath.Join(dest, filepath.Base(path))); err != nil {
			return fmt.Errorf("failed to archive %s: %w", path, err)
		}
	}
	return nil
}

// buildRecords converts finished results into storage rows. Cq values are
// stored as nullable numbers; a NaN reading becomes NULL.
func buildRecords(runID string, res *results.Results, runEnded time.Time) (*store.PlateRecord, []store.WellRecord) {
	md := res.Metadata
	contaminated := false

	wellRecs := make([]store.WellRecord, 0, len(res.Wells))
	for _, w := range plate.Wells96() {
		r, ok := res.Wells[w]
		if !ok {
			continue
		}
		if r.Call.PossibleCluster() {
			contaminated = true
		}

		cqs := make(map[string]*float64, len(res.Protocol.Genes()))
		for _, g := range res.Protocol.Genes() {
			if cq := r.Cqs.Get(g); !math.IsNaN(cq) {
				v := cq
				cqs[string(g)] = &v
			} else {
				cqs[string(g)] = nil
			}
		}

		// the control column identifies control wells in storage, so the
		// accession column stays empty for them
		accession := r.Accession
		if r.IsControl() {
			accession = ""
		}
		wellRecs = append(wellRecs, store.WellRecord{
			RunID:     runID,
			Well:      w.PaddedID(),
			Accession: accession,
			Control:   string(r.Control),
			Call:      string(r.Call),
			Cqs:       cqs,
		})
	}

	rec := &store.PlateRecord{
		RunID:           runID,
		SampleBarcode:   md.SampleBarcode,
		QPCRBarcode:     md.QPCRBarcode,
		Protocol:        res.Protocol.Name,
		SamplePlateType: string(md.SampleType),
		ControlsMapping: string(md.ControlsType),
		ResearcherID:    md.Researcher,
		ControlsPassed:  res.Controls == "Passed",
		Experimental:    res.Experimental(),
		Contaminated:    contaminated,
		RunEnded:        runEnded,
		ProcessedAt:     time.Now().UTC(),
	}
	return rec, wellRecs
}

// buildSummary counts sample calls for the dashboard cache. Control wells
// are graded by ControlsPassed, not counted here.
func buildSummary(rec *store.PlateRecord, res *results.Results) *store.PlateSummary {
	counts := make(map[string]int)
	for _, r := range res.Wells {
		if r.IsControl() {
			continue
		}
		counts[string(r.Call)]++
	}
	return &store.PlateSummary{
		RunID:          rec.RunID,
		SampleBarcode:  rec.SampleBarcode,
		QPCRBarcode:    rec.QPCRBarcode,
		Protocol:       rec.Protocol,
		ControlsPassed: rec.ControlsPassed,
		Experimental:   rec.Experimental,
		Contaminated:   rec.Contaminated,
		CallCounts:     counts,
		ProcessedAt:    rec.ProcessedAt,
	}
}

func buildEvent(rec *store.PlateRecord, summary *store.PlateSummary, artifacts []string) notify.Event {
	return notify.Event{
		RunID:          rec.RunID,
		SampleBarcode:  rec.SampleBarcode,
		QPCRBarcode:    rec.QPCRBarcode,
		Protocol:       rec.Protocol,
		ControlsPassed: rec.ControlsPassed,
		Experimental:   rec.Experimental,
		Contaminated:   rec.Contaminated,
		CallCounts:     summary.CallCounts,
		Artifacts:      artifacts,
		ProcessedAt:    rec.ProcessedAt,
	}
}
