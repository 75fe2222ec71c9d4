package simulator

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cliahub/qpcrhub/internal/assay"
	"github.com/cliahub/qpcrhub/internal/metadata"
	"github.com/cliahub/qpcrhub/internal/plate"
	"github.com/cliahub/qpcrhub/internal/runfiles"
)

// ampCycles is how many thermal cycles the synthetic run reports.
const ampCycles = 40

// channel is where one gene is read: which dye, which 384-well quadrant.
type channel struct {
	fluor    assay.Fluor
	quadrant plate.Quadrant
}

func geneChannels(p *assay.Protocol) map[assay.Gene]channel {
	out := make(map[assay.Gene]channel)
	for fluor, wiring := range p.Mapping {
		for q, g := range wiring {
			out[g] = channel{fluor: fluor, quadrant: q}
		}
	}
	return out
}

// writePlate renders the plate to a complete inbox fileset. The metadata
// sidecar is written last: its presence tells the watcher the plate is
// registered, so it must not appear before the exports are on disk.
func (s *Simulator) writePlate(p *syntheticPlate) error {
	if err := os.MkdirAll(s.cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := s.writeRunInfo(p); err != nil {
		return err
	}
	if err := s.writeQuantCq(p); err != nil {
		return err
	}
	for _, fluor := range s.proto.Fluors() {
		if err := s.writeQuantAmp(p, fluor); err != nil {
			return err
		}
	}
	if err := s.writeWellLit(p); err != nil {
		return err
	}
	return s.writeMetadata(p)
}

func (s *Simulator) writeCSV(name string, rows [][]string) error {
	path := filepath.Join(s.cfg.OutDir, name)
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	cw := csv.NewWriter(fh)
	if err := cw.WriteAll(rows); err != nil {
		fh.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return fh.Close()
}

func (s *Simulator) writeRunInfo(p *syntheticPlate) error {
	rows := [][]string{
		{"File Name", p.qpcrBarcode + ".pcrd"},
		{"Created By User", s.cfg.Researcher},
		{"ID", p.qpcrBarcode},
		{"Run Started", p.runEnded.Add(-90 * time.Minute).Format(runfiles.RunEndedLayout)},
		{"Run Ended", p.runEnded.Format(runfiles.RunEndedLayout)},
		{"Sample Vol", "20"},
		{"Lid Temp", "105"},
		{"Protocol File Name", s.proto.ProtocolFile},
		{"Plate Setup File Name", s.proto.PlateSetupFile},
		{"Base Serial Number", "CT012345"},
		{"Optical Head Serial Number", "785BR01234"},
	}
	return s.writeCSV(fmt.Sprintf("%s - Run Information.csv", p.qpcrBarcode), rows)
}

// writeQuantCq writes the long-format Cq export: one row per occupied
// well and gene, addressed by 384-well position and dye. Undetected
// targets carry an empty Cq cell, as the instrument writes them.
func (s *Simulator) writeQuantCq(p *syntheticPlate) error {
	channels := geneChannels(s.proto)

	rows := [][]string{{"Well", "Fluor", "Target", "Content", "Sample", "Cq"}}
	for _, w := range plate.Wells96() {
		sw, ok := p.wells[w]
		if !ok {
			continue
		}
		for _, g := range s.proto.Genes() {
			ch := channels[g]
			cell := ""
			if cq := sw.cqs.Get(g); !math.IsNaN(cq) {
				cell = strconv.FormatFloat(cq, 'f', 2, 64)
			}
			content, label := "Unkn", sw.accession
			if sw.control != "" {
				content, label = string(sw.control), string(sw.control)
			}
			rows = append(rows, []string{
				plate.To384(w, ch.quadrant).PaddedID(),
				string(ch.fluor),
				string(g),
				content,
				label,
				cell,
			})
		}
	}
	return s.writeCSV(fmt.Sprintf("%s - Quantification Cq Results.csv", p.qpcrBarcode), rows)
}

// writeQuantAmp writes one dye's amplification export: a Cycle column
// and one column per 384-well position read on that dye.
func (s *Simulator) writeQuantAmp(p *syntheticPlate, fluor assay.Fluor) error {
	type trace struct {
		id string
		cq float64
	}
	var traces []trace
	for _, w := range plate.Wells96() {
		sw, ok := p.wells[w]
		if !ok {
			continue
		}
		for q, g := range s.proto.Mapping[fluor] {
			traces = append(traces, trace{
				id: plate.To384(w, q).PaddedID(),
				cq: sw.cqs.Get(g),
			})
		}
	}
	sort.Slice(traces, func(i, j int) bool { return traces[i].id < traces[j].id })

	header := make([]string, 0, len(traces)+1)
	header = append(header, "Cycle")
	for _, t := range traces {
		header = append(header, t.id)
	}

	rows := [][]string{header}
	for cycle := 1; cycle <= ampCycles; cycle++ {
		row := make([]string, 0, len(traces)+1)
		row = append(row, strconv.Itoa(cycle))
		for _, t := range traces {
			row = append(row, strconv.FormatFloat(s.ampReading(cycle, t.cq), 'f', 1, 64))
		}
		rows = append(rows, row)
	}
	return s.writeCSV(
		fmt.Sprintf("%s - Quantification Amplification Results_%s.csv", p.qpcrBarcode, fluor), rows)
}

// ampReading draws one point of a logistic curve that crosses the
// protocol's background threshold at the well's Cq. Undetected targets
// produce baseline noise that never reaches the threshold.
func (s *Simulator) ampReading(cycle int, cq float64) float64 {
	bg := float64(s.proto.BackgroundThreshold)
	if math.IsNaN(cq) {
		return bg * 0.05 * (1 + 0.2*(s.rand.Float64()-0.5))
	}
	v := 2 * bg / (1 + math.Exp(-0.8*(float64(cycle)-cq)))
	return v * (1 + 0.01*(s.rand.Float64()-0.5))
}

// writeWellLit renders the sample plate map as a WellLit transfer log.
// Controls are not listed: they come from the registered layout.
func (s *Simulator) writeWellLit(p *syntheticPlate) error {
	rows := [][]string{
		{"% WellLit Transfer Log"},
		{fmt.Sprintf("%% Source plate: %s", p.rnaBarcode)},
		{fmt.Sprintf("%% Destination plate: %s", p.sampleBarcode)},
	}

	transferred := p.runEnded.Add(-2 * time.Hour)
	for _, w := range plate.Wells96() {
		sw, ok := p.wells[w]
		if !ok || sw.control != "" {
			continue
		}
		rows = append(rows, []string{
			transferred.Format("2006-01-02 15:04:05"),
			sw.accession,
			w.ID(),
		})
		transferred = transferred.Add(9 * time.Second)
	}
	return s.writeCSV(fmt.Sprintf("%s_welllit.csv", p.sampleBarcode), rows)
}

func (s *Simulator) writeMetadata(p *syntheticPlate) error {
	md := metadata.PlateMetadata{
		QPCRBarcode:   p.qpcrBarcode,
		RNABarcode:    p.rnaBarcode,
		SampleBarcode: p.sampleBarcode,
		Researcher:    s.cfg.Researcher,
		Protocol:      s.proto.Name,
		SampleType:    metadata.PlateOriginal,
		ControlsType:  metadata.ControlsStandard,
		BravoStation:  "sim-bravo-1",
		QPCRStation:   "sim-qpcr-1",
		PlateMap:      fmt.Sprintf("%s_welllit.csv", p.sampleBarcode),
	}

	raw, err := yaml.Marshal(&md)
	if err != nil {
		return fmt.Errorf("failed to render metadata: %w", err)
	}

	path := filepath.Join(s.cfg.OutDir, metadata.SidecarName(p.qpcrBarcode))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
