package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliahub/qpcrhub/internal/store"
)

type fakePlates struct {
	pingErr   error
	plate     *store.PlateRecord
	getErr    error
	wells     []store.WellRecord
	wellsErr  error
	plates    []*store.PlateRecord
	listErr   error
	gotLimit  int
	gotOffset int
}

func (f *fakePlates) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakePlates) GetPlateByBarcode(ctx context.Context, barcode string) (*store.PlateRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.plate, nil
}

func (f *fakePlates) GetWells(ctx context.Context, runID string) ([]store.WellRecord, error) {
	return f.wells, f.wellsErr
}

func (f *fakePlates) ListPlates(ctx context.Context, limit, offset int) ([]*store.PlateRecord, error) {
	f.gotLimit, f.gotOffset = limit, offset
	return f.plates, f.listErr
}

type fakeMarkers struct {
	pingErr  error
	summary  *store.PlateSummary
	cleared  []string
	clearErr error
}

func (f *fakeMarkers) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeMarkers) GetSummary(ctx context.Context, barcode string) (*store.PlateSummary, error) {
	if f.summary == nil {
		return nil, fmt.Errorf("summary for %s: %w", barcode, store.ErrNotFound)
	}
	return f.summary, nil
}

func (f *fakeMarkers) ClearMarker(ctx context.Context, barcode string) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = append(f.cleared, barcode)
	return nil
}

func newTestRouter(plates PlateStore, markers MarkerStore, outbox string) *mux.Router {
	h := NewHandler(zerolog.Nop(), outbox, plates, markers, nil)
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	return router
}

func doRequest(router *mux.Router, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func testPlateRecord() *store.PlateRecord {
	return &store.PlateRecord{
		RunID:           "b5c9f2a0-0000-0000-0000-000000000000",
		SampleBarcode:   "S012345",
		QPCRBarcode:     "R012345",
		Protocol:        "SOP-V3",
		SamplePlateType: "Original Sample",
		ControlsMapping: "Standard Controls",
		ResearcherID:    "jdoe",
		ControlsPassed:  true,
		RunEnded:        time.Date(2025, 6, 20, 21, 14, 9, 0, time.UTC),
		ProcessedAt:     time.Date(2025, 6, 20, 21, 20, 0, 0, time.UTC),
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(&fakePlates{}, &fakeMarkers{}, t.TempDir())

	rec := doRequest(router, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Postgres)
	assert.Equal(t, "ok", resp.Redis)
}

func TestHealthDegraded(t *testing.T) {
	router := newTestRouter(&fakePlates{}, &fakeMarkers{pingErr: errors.New("connection refused")}, t.TempDir())

	rec := doRequest(router, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "ok", resp.Postgres)
	assert.Contains(t, resp.Redis, "connection refused")
}

func TestListProtocols(t *testing.T) {
	router := newTestRouter(&fakePlates{}, &fakeMarkers{}, t.TempDir())

	rec := doRequest(router, http.MethodGet, "/api/v1/protocols")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Protocols []ProtocolInfo `json:"protocols"`
		Count     int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, len(resp.Protocols), resp.Count)
	assert.GreaterOrEqual(t, resp.Count, 4)

	var v3 *ProtocolInfo
	for i := range resp.Protocols {
		if resp.Protocols[i].Name == "SOP-V3" {
			v3 = &resp.Protocols[i]
		}
	}
	require.NotNil(t, v3)
	assert.Equal(t, []string{"N", "E"}, v3.VirusGenes)
	assert.Equal(t, []string{"RNAse P"}, v3.ControlGenes)
	assert.Equal(t, []string{"FAM", "HEX"}, v3.Fluors)
	assert.False(t, v3.Experimental)
}

func TestListPlates(t *testing.T) {
	plates := &fakePlates{plates: []*store.PlateRecord{testPlateRecord()}}
	router := newTestRouter(plates, &fakeMarkers{}, t.TempDir())

	rec := doRequest(router, http.MethodGet, "/api/v1/plates?limit=10&offset=20")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, plates.gotLimit)
	assert.Equal(t, 20, plates.gotOffset)

	var resp struct {
		Count  int `json:"count"`
		Limit  int `json:"limit"`
		Offset int `json:"offset"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, 10, resp.Limit)
	assert.Equal(t, 20, resp.Offset)
}

func TestGetPlate(t *testing.T) {
	cq := 20.5
	plates := &fakePlates{
		plate: testPlateRecord(),
		wells: []store.WellRecord{
			{Well: "A01", Accession: "A1234", Call: "Positive", Cqs: map[string]*float64{"N": &cq}},
			{Well: "A02", Accession: "B2345", Call: "Negative", Cqs: map[string]*float64{"N": nil}},
		},
	}
	router := newTestRouter(plates, &fakeMarkers{}, t.TempDir())

	rec := doRequest(router, http.MethodGet, "/api/v1/plates/R012345")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PlateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Plate)
	assert.Equal(t, "R012345", resp.Plate.QPCRBarcode)
	require.Len(t, resp.Wells, 2)
	assert.Equal(t, "Positive", resp.Wells[0].Call)
	assert.Nil(t, resp.Summary)
}

func TestGetPlateWithSummary(t *testing.T) {
	markers := &fakeMarkers{summary: &store.PlateSummary{QPCRBarcode: "R012345", CallCounts: map[string]int{"Positive": 3}}}
	router := newTestRouter(&fakePlates{plate: testPlateRecord()}, markers, t.TempDir())

	rec := doRequest(router, http.MethodGet, "/api/v1/plates/R012345")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PlateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Summary)
	assert.Equal(t, 3, resp.Summary.CallCounts["Positive"])
}

func TestGetPlateNotFound(t *testing.T) {
	plates := &fakePlates{getErr: fmt.Errorf("plate R999999: %w", store.ErrNotFound)}
	router := newTestRouter(plates, &fakeMarkers{}, t.TempDir())

	rec := doRequest(router, http.MethodGet, "/api/v1/plates/R999999")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Plate not found")
}

func TestDownloadResults(t *testing.T) {
	outbox := t.TempDir()
	content := "Protocol,SOP-V3\nSample Plate Barcode,S012345\n"
	require.NoError(t, os.WriteFile(filepath.Join(outbox, "S012345-R012345-results.csv"), []byte(content), 0o644))

	router := newTestRouter(&fakePlates{plate: testPlateRecord()}, &fakeMarkers{}, outbox)

	rec := doRequest(router, http.MethodGet, "/api/v1/plates/R012345/results.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "S012345-R012345-results.csv")
	assert.Contains(t, rec.Body.String(), "Sample Plate Barcode,S012345")
}

func TestDownloadResultsMissingFile(t *testing.T) {
	router := newTestRouter(&fakePlates{plate: testPlateRecord()}, &fakeMarkers{}, t.TempDir())

	rec := doRequest(router, http.MethodGet, "/api/v1/plates/R012345/results.csv")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Results file not found")
}

func TestReprocess(t *testing.T) {
	markers := &fakeMarkers{}
	router := newTestRouter(&fakePlates{}, markers, t.TempDir())

	rec := doRequest(router, http.MethodPost, "/api/v1/plates/R012345/reprocess")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"R012345"}, markers.cleared)
	assert.Contains(t, rec.Body.String(), "queued for reprocessing")
}

func TestReprocessClearFails(t *testing.T) {
	markers := &fakeMarkers{clearErr: errors.New("redis down")}
	router := newTestRouter(&fakePlates{}, markers, t.TempDir())

	rec := doRequest(router, http.MethodPost, "/api/v1/plates/R012345/reprocess")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
