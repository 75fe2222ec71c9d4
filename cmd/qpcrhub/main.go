package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	_ "github.com/cliahub/qpcrhub/docs" // swagger docs
)

// rootCmd is the base command for the qPCR hub CLI.
var rootCmd = &cobra.Command{
	Use:   "qpcrhub",
	Short: "Lab operations service for COVID-19 qPCR plates",
	Long: `qpcrhub ingests qPCR instrument exports, calls wells against the
registered assay protocols, reviews plates for cross-contamination and
produces the lab's result reports.

Run 'qpcrhub serve' for the full daemon (inbox watcher, REST API and
websocket feed) or 'qpcrhub process' to work through a directory once
without PostgreSQL or Redis.`,
}

// @title qPCR Hub API
// @version 1.0
// @description Lab operations service for COVID-19 qPCR plates: run-file ingest, well calling, contamination review, result reports.

// @contact.name CLIA Lab Operations

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the console logger every subcommand shares. An
// unparseable level falls back to info rather than failing startup.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level, using info")
	}
	return log
}
