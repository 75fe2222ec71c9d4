// Package api exposes processed plate results over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/cliahub/qpcrhub/internal/assay"
	"github.com/cliahub/qpcrhub/internal/store"
	"github.com/cliahub/qpcrhub/internal/ws"
)

// PlateStore is the slice of the PostgreSQL layer the API reads.
type PlateStore interface {
	Ping(ctx context.Context) error
	GetPlateByBarcode(ctx context.Context, barcode string) (*store.PlateRecord, error)
	GetWells(ctx context.Context, runID string) ([]store.WellRecord, error)
	ListPlates(ctx context.Context, limit, offset int) ([]*store.PlateRecord, error)
}

// MarkerStore is the slice of the Redis layer the API touches.
type MarkerStore interface {
	Ping(ctx context.Context) error
	GetSummary(ctx context.Context, barcode string) (*store.PlateSummary, error)
	ClearMarker(ctx context.Context, barcode string) error
}

// Handler serves the REST routes.
type Handler struct {
	log     zerolog.Logger
	outbox  string
	plates  PlateStore
	markers MarkerStore
	hub     *ws.Hub
	started time.Time
}

func NewHandler(log zerolog.Logger, outbox string, plates PlateStore, markers MarkerStore, hub *ws.Hub) *Handler {
	return &Handler{
		log:     log,
		outbox:  outbox,
		plates:  plates,
		markers: markers,
		hub:     hub,
		started: time.Now(),
	}
}

// RegisterRoutes registers all routes on the router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.Health).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/protocols", h.ListProtocols).Methods("GET")
	api.HandleFunc("/plates", h.ListPlates).Methods("GET")
	api.HandleFunc("/plates/{barcode}", h.GetPlate).Methods("GET")
	api.HandleFunc("/plates/{barcode}/results.csv", h.DownloadResults).Methods("GET")
	api.HandleFunc("/plates/{barcode}/reprocess", h.Reprocess).Methods("POST")

	if h.hub != nil {
		router.HandleFunc("/ws", h.hub.HandleWebSocket)
	}

	router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
}

// HealthResponse reports service and dependency status.
type HealthResponse struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	Postgres string `json:"postgres"`
	Redis    string `json:"redis"`
}

// ProtocolInfo describes one registered assay protocol.
type ProtocolInfo struct {
	Name         string   `json:"name"`
	Experimental bool     `json:"experimental"`
	VirusGenes   []string `json:"virus_genes"`
	ControlGenes []string `json:"control_genes"`
	Fluors       []string `json:"fluors"`
}

// PlateResponse bundles a stored plate run with its well calls.
type PlateResponse struct {
	Plate   *store.PlateRecord  `json:"plate"`
	Wells   []store.WellRecord  `json:"wells"`
	Summary *store.PlateSummary `json:"summary,omitempty"`
}

// Health reports API uptime and dependency status.
// @Summary Service health
// @Description Reports uptime and the status of PostgreSQL and Redis.
// @Tags Operations
// @Produce json
// @Success 200 {object} api.HealthResponse "Health status"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:   "ok",
		Uptime:   time.Since(h.started).Round(time.Second).String(),
		Postgres: "ok",
		Redis:    "ok",
	}

	if err := h.plates.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Postgres = err.Error()
	}
	if err := h.markers.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Redis = err.Error()
	}

	respondJSON(w, http.StatusOK, resp)
}

// ListProtocols lists the registered assay protocols.
// @Summary List assay protocols
// @Description Returns every registered protocol with its gene panel and dye channels.
// @Tags Protocols
// @Produce json
// @Success 200 {object} map[string]interface{} "Registered protocols"
// @Router /api/v1/protocols [get]
func (h *Handler) ListProtocols(w http.ResponseWriter, r *http.Request) {
	names := assay.ProtocolNames()

	protocols := make([]ProtocolInfo, 0, len(names))
	for _, name := range names {
		p, err := assay.GetProtocol(name)
		if err != nil {
			continue
		}
		protocols = append(protocols, ProtocolInfo{
			Name:         p.Name,
			Experimental: p.Experimental,
			VirusGenes:   geneNames(p.VirusGenes),
			ControlGenes: geneNames(p.ControlGenes),
			Fluors:       fluorNames(p.Fluors()),
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"protocols": protocols,
		"count":     len(protocols),
	})
}

// ListPlates lists recently processed plates.
// @Summary List processed plates
// @Description Returns recently processed plate runs, newest first.
// @Tags Plates
// @Produce json
// @Param limit query int false "Page size (default 50)"
// @Param offset query int false "Page offset"
// @Success 200 {object} map[string]interface{} "Processed plates"
// @Failure 500 {object} map[string]interface{} "Query failed"
// @Router /api/v1/plates [get]
func (h *Handler) ListPlates(w http.ResponseWriter, r *http.Request) {
	limit := getQueryInt(r, "limit", 50)
	offset := getQueryInt(r, "offset", 0)

	plates, err := h.plates.ListPlates(r.Context(), limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list plates")
		respondError(w, http.StatusInternalServerError, "Failed to list plates")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"plates": plates,
		"limit":  limit,
		"offset": offset,
		"count":  len(plates),
	})
}

// GetPlate returns one plate run with its well calls.
// @Summary Get a processed plate
// @Description Returns the most recent run of the plate with per-well calls and the cached summary when present.
// @Tags Plates
// @Produce json
// @Param barcode path string true "qPCR plate barcode"
// @Success 200 {object} api.PlateResponse "Plate run"
// @Failure 404 {object} map[string]interface{} "Unknown plate"
// @Failure 500 {object} map[string]interface{} "Query failed"
// @Router /api/v1/plates/{barcode} [get]
func (h *Handler) GetPlate(w http.ResponseWriter, r *http.Request) {
	barcode := mux.Vars(r)["barcode"]

	plate, err := h.plates.GetPlateByBarcode(r.Context(), barcode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Plate not found")
			return
		}
		h.log.Error().Err(err).Str("plate", barcode).Msg("failed to get plate")
		respondError(w, http.StatusInternalServerError, "Failed to get plate")
		return
	}

	wells, err := h.plates.GetWells(r.Context(), plate.RunID)
	if err != nil {
		h.log.Error().Err(err).Str("plate", barcode).Msg("failed to get well results")
		respondError(w, http.StatusInternalServerError, "Failed to get well results")
		return
	}

	// The summary cache may have expired; the response is complete without it.
	summary, _ := h.markers.GetSummary(r.Context(), barcode)

	respondJSON(w, http.StatusOK, PlateResponse{
		Plate:   plate,
		Wells:   wells,
		Summary: summary,
	})
}

// DownloadResults serves the plate's results CSV from the outbox.
// @Summary Download results CSV
// @Description Streams the generated results CSV for the plate.
// @Tags Plates
// @Produce text/csv
// @Param barcode path string true "qPCR plate barcode"
// @Success 200 {file} file "Results CSV"
// @Failure 404 {object} map[string]interface{} "Unknown plate or missing file"
// @Router /api/v1/plates/{barcode}/results.csv [get]
func (h *Handler) DownloadResults(w http.ResponseWriter, r *http.Request) {
	barcode := mux.Vars(r)["barcode"]

	plate, err := h.plates.GetPlateByBarcode(r.Context(), barcode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Plate not found")
			return
		}
		h.log.Error().Err(err).Str("plate", barcode).Msg("failed to get plate")
		respondError(w, http.StatusInternalServerError, "Failed to get plate")
		return
	}

	name := fmt.Sprintf("%s-%s-results.csv", plate.SampleBarcode, plate.QPCRBarcode)
	path := filepath.Join(h.outbox, name)

	if _, err := os.Stat(path); err != nil {
		respondError(w, http.StatusNotFound, "Results file not found")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

// Reprocess clears the plate's processed marker.
// @Summary Queue a plate for reprocessing
// @Description Clears the processed marker so the watcher picks the plate up on its next pass.
// @Tags Plates
// @Produce json
// @Param barcode path string true "qPCR plate barcode"
// @Success 202 {object} map[string]interface{} "Plate queued"
// @Failure 500 {object} map[string]interface{} "Marker clear failed"
// @Router /api/v1/plates/{barcode}/reprocess [post]
func (h *Handler) Reprocess(w http.ResponseWriter, r *http.Request) {
	barcode := mux.Vars(r)["barcode"]

	if err := h.markers.ClearMarker(r.Context(), barcode); err != nil {
		h.log.Error().Err(err).Str("plate", barcode).Msg("failed to clear marker")
		respondError(w, http.StatusInternalServerError, "Failed to queue reprocessing")
		return
	}

	h.log.Info().Str("plate", barcode).Msg("plate queued for reprocessing")

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"message": "Plate queued for reprocessing",
		"plate":   barcode,
	})
}

func geneNames(genes []assay.Gene) []string {
	names := make([]string, 0, len(genes))
	for _, g := range genes {
		names = append(names, string(g))
	}
	return names
}

func fluorNames(fluors []assay.Fluor) []string {
	names := make([]string, 0, len(fluors))
	for _, f := range fluors {
		names = append(names, string(f))
	}
	return names
}
