package pipeline

import (
	"context"
	"errors"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/cliahub/qpcrhub/internal/assay"
	"github.com/cliahub/qpcrhub/internal/config"
	"github.com/cliahub/qpcrhub/internal/metadata"
	"github.com/cliahub/qpcrhub/internal/results"
	"github.com/cliahub/qpcrhub/internal/runfiles"
	"github.com/cliahub/qpcrhub/internal/ws"
)

// PlateProcessor runs one complete file set end to end.
type PlateProcessor interface {
	Process(ctx context.Context, set *runfiles.Set, dir string) (*results.Results, error)
}

// ProcessedChecker is the marker lookup the watcher needs to skip plates
// that already ran.
type ProcessedChecker interface {
	IsProcessed(ctx context.Context, barcode string) (bool, error)
}

// Watcher polls the inbox for instrument exports and dispatches each
// complete, unprocessed plate to the processor. A plate that fails stays
// in the inbox and is retried every sweep; the failure is reported once
// per distinct error, so a broken file does not flood the log while it
// waits for an operator.
type Watcher struct {
	log  zerolog.Logger
	cfg  *config.Config
	proc PlateProcessor

	markers ProcessedChecker // nil disables the skip check
	hub     Broadcaster      // nil disables live events

	failed map[string]string // barcode -> last reported error
}

// NewWatcher builds a watcher over the configured inbox.
func NewWatcher(log zerolog.Logger, cfg *config.Config, proc PlateProcessor, markers ProcessedChecker, hub Broadcaster) *Watcher {
	return &Watcher{
		log:     log,
		cfg:     cfg,
		proc:    proc,
		markers: markers,
		hub:     hub,
		failed:  make(map[string]string),
	}
}

// Run sweeps the inbox immediately and then on every poll interval until
// the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	w.log.Info().
		Str("inbox", w.cfg.InboxDir).
		Dur("interval", w.cfg.PollInterval).
		Msg("watching inbox for instrument exports")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("inbox watcher stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep scans the inbox once and processes every plate that is ready.
func (w *Watcher) sweep(ctx context.Context) {
	sets, err := runfiles.Discover(w.cfg.InboxDir)
	if err != nil {
		w.log.Error().Err(err).Msg("inbox scan failed")
		return
	}

	barcodes := make([]string, 0, len(sets))
	for barcode := range sets {
		barcodes = append(barcodes, barcode)
	}
	sort.Strings(barcodes)

	for _, barcode := range barcodes {
		if ctx.Err() != nil {
			return
		}
		w.check(ctx, barcode, sets[barcode])
	}
}

// check decides whether one plate is ready and, if so, processes it.
func (w *Watcher) check(ctx context.Context, barcode string, set *runfiles.Set) {
	if w.markers != nil {
		done, err := w.markers.IsProcessed(ctx, barcode)
		if err != nil {
			// Without the marker we cannot tell a new plate from a
			// reprocessed one, so wait for Redis to come back.
			w.log.Warn().Err(err).Str("plate", barcode).Msg("marker lookup failed")
			return
		}
		if done {
			return
		}
	}

	md, err := metadata.Load(w.cfg.InboxDir, barcode)
	if errors.Is(err, os.ErrNotExist) {
		// Exports arrive before lab staff register the plate.
		w.log.Debug().Str("plate", barcode).Msg("waiting for plate metadata")
		return
	}
	if err != nil {
		w.fail(barcode, err)
		return
	}

	proto, err := assay.GetProtocol(md.Protocol)
	if err != nil {
		w.fail(barcode, err)
		return
	}

	if !set.Complete(proto.Fluors()) {
		w.log.Debug().Str("plate", barcode).Msg("waiting for instrument exports")
		return
	}

	if _, failing := w.failed[barcode]; !failing && w.hub != nil {
		w.hub.Broadcast(ws.PlateDetected(barcode))
	}

	res, err := w.proc.Process(ctx, set, w.cfg.InboxDir)
	if err != nil {
		w.fail(barcode, err)
		return
	}

	delete(w.failed, barcode)
	w.log.Info().Str("plate", barcode).Str("controls", res.Controls).Msg("plate dispatched")
}

// fail records a processing failure, reporting it only when the error
// changed since the last sweep.
func (w *Watcher) fail(barcode string, err error) {
	if w.failed[barcode] == err.Error() {
		return
	}
	w.failed[barcode] = err.Error()
	w.log.Error().Err(err).Str("plate", barcode).Msg("plate processing failed")
	if w.hub != nil {
		w.hub.Broadcast(ws.PlateFailed(barcode, err.Error()))
	}
}
