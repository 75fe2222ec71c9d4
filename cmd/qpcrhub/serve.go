package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/cliahub/qpcrhub/internal/api"
	"github.com/cliahub/qpcrhub/internal/config"
	"github.com/cliahub/qpcrhub/internal/notify"
	"github.com/cliahub/qpcrhub/internal/pipeline"
	"github.com/cliahub/qpcrhub/internal/store"
	"github.com/cliahub/qpcrhub/internal/ws"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the lab service daemon",
	Long: `Run the full lab service: the inbox watcher that processes arriving
instrument exports, the REST API over processed plates and the websocket
feed dashboards subscribe to.

Configuration comes from the environment (POSTGRES_DSN, REDIS_ADDR,
INBOX_DIR and friends); lab reporting settings come from the YAML file
named by LAB_SETTINGS.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	log := newLogger(cfg.LogLevel)

	settings, err := config.LoadSettings(cfg.SettingsPath)
	if err != nil {
		return err
	}
	log.Info().
		Str("lab", settings.LabName).
		Str("timezone", settings.Timezone).
		Msg("lab settings loaded")

	for _, dir := range []string{cfg.InboxDir, cfg.OutboxDir, cfg.ArchiveDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := store.NewPostgresStoreFromDSN(cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pg.Close()
	if err := pg.InitSchema(ctx); err != nil {
		return fmt.Errorf("postgres schema: %w", err)
	}
	log.Info().Msg("connected to PostgreSQL")

	rd := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SummaryTTL)
	defer rd.Close()
	if err := rd.Ping(ctx); err != nil {
		// The watcher holds plates until markers come back, so a Redis
		// outage pauses processing instead of risking duplicate runs.
		log.Warn().Err(err).Msg("redis unreachable, plate processing will wait")
	} else {
		log.Info().Msg("connected to Redis")
	}

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	notifier := notify.BuildManager(log, settings)

	proc, err := pipeline.NewProcessor(log, cfg, settings, pg, rd, notifier, hub)
	if err != nil {
		return err
	}
	watcher := pipeline.NewWatcher(log, cfg, proc, rd, hub)
	go watcher.Run(ctx)

	handler := api.NewHandler(log, cfg.OutboxDir, pg, rd, hub)
	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	log.Info().Msg("server exited gracefully")
	return nil
}
