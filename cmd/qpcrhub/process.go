package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cliahub/qpcrhub/internal/assay"
	"github.com/cliahub/qpcrhub/internal/config"
	"github.com/cliahub/qpcrhub/internal/pipeline"
	"github.com/cliahub/qpcrhub/internal/results"
	"github.com/cliahub/qpcrhub/internal/runfiles"
)

var processCmd = &cobra.Command{
	Use:   "process [barcode...]",
	Short: "Process plates from a directory once",
	Long: `Process instrument exports from a directory without PostgreSQL,
Redis or notifications: reports are written to the outbox and the input
files are archived. With barcodes given only those plates are processed,
otherwise every plate found in the directory is.

With --from-results an existing results CSV is reread instead, calls are
re-derived under the current rules and the reports are regenerated.

Examples:
  qpcrhub process
  qpcrhub process R012345 --dir /data/inbox
  qpcrhub process --from-results data/outbox/S012345-R012345-results.csv --protocol SOP-V2`,
	RunE: runProcess,
}

var (
	processDir         string
	processOut         string
	processArchive     string
	processFromResults string
	processProtocol    string
)

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVar(&processDir, "dir", "", "Directory holding the run files (default $INBOX_DIR)")
	processCmd.Flags().StringVar(&processOut, "out", "", "Directory reports are written to (default $OUTBOX_DIR)")
	processCmd.Flags().StringVar(&processArchive, "archive", "", "Directory processed inputs move to (default $ARCHIVE_DIR)")
	processCmd.Flags().StringVar(&processFromResults, "from-results", "", "Regenerate reports from an existing results CSV")
	processCmd.Flags().StringVar(&processProtocol, "protocol", "SOP-V3", "Assay protocol for --from-results")
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	log := newLogger(cfg.LogLevel)

	settings, err := config.LoadSettings(cfg.SettingsPath)
	if err != nil {
		return err
	}

	if processDir != "" {
		cfg.InboxDir = processDir
	}
	if processOut != "" {
		cfg.OutboxDir = processOut
	}
	if processArchive != "" {
		cfg.ArchiveDir = processArchive
	}

	if processFromResults != "" {
		return regenerateReports(log, settings, cfg.OutboxDir)
	}

	proc, err := pipeline.NewProcessor(log, cfg, settings, nil, nil, nil, nil)
	if err != nil {
		return err
	}

	sets, err := runfiles.Discover(cfg.InboxDir)
	if err != nil {
		return err
	}

	var barcodes []string
	if len(args) > 0 {
		for _, barcode := range args {
			if _, ok := sets[barcode]; !ok {
				return fmt.Errorf("no run files for plate %s in %s", barcode, cfg.InboxDir)
			}
			barcodes = append(barcodes, barcode)
		}
	} else {
		for barcode := range sets {
			barcodes = append(barcodes, barcode)
		}
		sort.Strings(barcodes)
	}

	if len(barcodes) == 0 {
		log.Info().Str("dir", cfg.InboxDir).Msg("no run files found")
		return nil
	}

	failed := 0
	for _, barcode := range barcodes {
		if _, err := proc.Process(cmd.Context(), sets[barcode], cfg.InboxDir); err != nil {
			log.Error().Err(err).Str("plate", barcode).Msg("plate failed")
			failed++
		}
	}

	log.Info().
		Int("processed", len(barcodes)-failed).
		Int("failed", failed).
		Msg("directory processed")

	if failed > 0 {
		return fmt.Errorf("%d of %d plates failed", failed, len(barcodes))
	}
	return nil
}

// regenerateReports rereads a results CSV and rewrites the three reports.
// Calls come out re-derived from the recorded Cq values, so this is how
// old plates are reissued after a rule change.
func regenerateReports(log zerolog.Logger, settings *config.Settings, outDir string) error {
	proto, err := assay.GetProtocol(processProtocol)
	if err != nil {
		return err
	}

	f, err := os.Open(processFromResults)
	if err != nil {
		return fmt.Errorf("failed to open results file: %w", err)
	}
	defer f.Close()

	res, err := results.ReadResults(f, proto)
	if err != nil {
		return err
	}
	res.TestingLocation = settings.TestingLocation

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", outDir, err)
	}

	resultsPath := filepath.Join(outDir, res.ResultsFilename())
	if err := writeReport(resultsPath, res.WriteResults); err != nil {
		return err
	}
	cbPath := filepath.Join(outDir, res.CBReportFilename())
	if err := writeReport(cbPath, res.WriteCBReport); err != nil {
		return err
	}
	pdfPath := filepath.Join(outDir, res.PDFFilename())
	if err := res.WritePDF(pdfPath); err != nil {
		return err
	}

	log.Info().
		Str("plate", res.Metadata.QPCRBarcode).
		Str("controls", res.Controls).
		Str("results", resultsPath).
		Msg("reports regenerated")
	return nil
}

func writeReport(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
