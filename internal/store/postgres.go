// Package store persists processed plate runs to PostgreSQL and keeps
// fast-path processing state (seen markers, result summaries) in Redis.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// ErrNotFound is wrapped by lookups that match no record.
var ErrNotFound = errors.New("not found")

// PlateRecord is one processed qPCR plate run.
type PlateRecord struct {
	RunID           string    `json:"run_id"`
	SampleBarcode   string    `json:"sample_barcode"`
	QPCRBarcode     string    `json:"qpcr_barcode"`
	Protocol        string    `json:"protocol"`
	SamplePlateType string    `json:"sample_plate_type"`
	ControlsMapping string    `json:"controls_mapping"`
	ResearcherID    string    `json:"researcher_id"`
	ControlsPassed  bool      `json:"controls_passed"`
	Experimental    bool      `json:"experimental"`
	Contaminated    bool      `json:"contaminated"`
	RunEnded        time.Time `json:"run_ended"`
	ProcessedAt     time.Time `json:"processed_at"`
}

// WellRecord is the persisted call for a single well. Cq values are keyed
// by gene name; a nil value means the gene never amplified. Well IDs are
// stored zero-padded so lexical order matches grid order.
type WellRecord struct {
	RunID     string              `json:"run_id"`
	Well      string              `json:"well"`
	Accession string              `json:"accession"`
	Control   string              `json:"control,omitempty"`
	Call      string              `json:"call"`
	Cqs       map[string]*float64 `json:"cqs"`
}

const schema = `
CREATE TABLE IF NOT EXISTS qpcr_plates (
	run_id UUID PRIMARY KEY,
	sample_barcode TEXT NOT NULL,
	qpcr_barcode TEXT NOT NULL,
	protocol TEXT NOT NULL,
	sample_plate_type TEXT NOT NULL,
	controls_mapping TEXT NOT NULL,
	researcher_id TEXT NOT NULL,
	controls_passed BOOLEAN NOT NULL,
	experimental BOOLEAN NOT NULL,
	contaminated BOOLEAN NOT NULL,
	run_ended TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL,
	UNIQUE (sample_barcode, qpcr_barcode)
);

CREATE INDEX IF NOT EXISTS idx_qpcr_plates_processed_at ON qpcr_plates(processed_at);
CREATE INDEX IF NOT EXISTS idx_qpcr_plates_qpcr_barcode ON qpcr_plates(qpcr_barcode);

CREATE TABLE IF NOT EXISTS qpcr_well_results (
	run_id UUID NOT NULL REFERENCES qpcr_plates(run_id) ON DELETE CASCADE,
	well TEXT NOT NULL,
	accession TEXT NOT NULL,
	control_type TEXT NOT NULL DEFAULT '',
	call TEXT NOT NULL,
	cqs JSONB NOT NULL,
	PRIMARY KEY (run_id, well)
);
`

// PostgresStore keeps plate runs and their well calls in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresStoreFromDSN opens a connection pool and verifies it.
func NewPostgresStoreFromDSN(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InitSchema creates the tables if they do not exist yet.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// SavePlate stores a plate run and its well calls in one transaction.
// Reprocessing mints a new run id, so any older run of the same barcode
// pair is dropped first; the cascade removes its well rows.
func (s *PostgresStore) SavePlate(ctx context.Context, plate *PlateRecord, wells []WellRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM qpcr_plates WHERE sample_barcode = $1 AND qpcr_barcode = $2 AND run_id <> $3`,
		plate.SampleBarcode, plate.QPCRBarcode, plate.RunID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear previous run: %w", err)
	}

	plateQuery := `
		INSERT INTO qpcr_plates (
			run_id, sample_barcode, qpcr_barcode, protocol,
			sample_plate_type, controls_mapping, researcher_id,
			controls_passed, experimental, contaminated,
			run_ended, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (run_id) DO UPDATE SET
			protocol = EXCLUDED.protocol,
			sample_plate_type = EXCLUDED.sample_plate_type,
			controls_mapping = EXCLUDED.controls_mapping,
			researcher_id = EXCLUDED.researcher_id,
			controls_passed = EXCLUDED.controls_passed,
			experimental = EXCLUDED.experimental,
			contaminated = EXCLUDED.contaminated,
			run_ended = EXCLUDED.run_ended,
			processed_at = EXCLUDED.processed_at
	`

	_, err = tx.ExecContext(ctx, plateQuery,
		plate.RunID,
		plate.SampleBarcode,
		plate.QPCRBarcode,
		plate.Protocol,
		plate.SamplePlateType,
		plate.ControlsMapping,
		plate.ResearcherID,
		plate.ControlsPassed,
		plate.Experimental,
		plate.Contaminated,
		plate.RunEnded,
		plate.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save plate: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM qpcr_well_results WHERE run_id = $1`, plate.RunID); err != nil {
		return fmt.Errorf("failed to clear well results: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO qpcr_well_results (run_id, well, accession, control_type, call, cqs)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, w := range wells {
		cqsJSON, err := json.Marshal(w.Cqs)
		if err != nil {
			return fmt.Errorf("failed to marshal cqs for %s: %w", w.Well, err)
		}

		if _, err := stmt.ExecContext(ctx, plate.RunID, w.Well, w.Accession, w.Control, w.Call, cqsJSON); err != nil {
			return fmt.Errorf("failed to insert well %s: %w", w.Well, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetPlateByBarcode returns the most recent run of the given qPCR plate.
func (s *PostgresStore) GetPlateByBarcode(ctx context.Context, barcode string) (*PlateRecord, error) {
	query := `
		SELECT run_id, sample_barcode, qpcr_barcode, protocol,
			sample_plate_type, controls_mapping, researcher_id,
			controls_passed, experimental, contaminated,
			run_ended, processed_at
		FROM qpcr_plates
		WHERE qpcr_barcode = $1
		ORDER BY processed_at DESC
		LIMIT 1
	`

	var p PlateRecord

	err := s.db.QueryRowContext(ctx, query, barcode).Scan(
		&p.RunID,
		&p.SampleBarcode,
		&p.QPCRBarcode,
		&p.Protocol,
		&p.SamplePlateType,
		&p.ControlsMapping,
		&p.ResearcherID,
		&p.ControlsPassed,
		&p.Experimental,
		&p.Contaminated,
		&p.RunEnded,
		&p.ProcessedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("plate %s: %w", barcode, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get plate: %w", err)
	}

	return &p, nil
}

func (s *PostgresStore) GetWells(ctx context.Context, runID string) ([]WellRecord, error) {
	query := `
		SELECT run_id, well, accession, control_type, call, cqs
		FROM qpcr_well_results
		WHERE run_id = $1
		ORDER BY well ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get well results: %w", err)
	}
	defer rows.Close()

	var wells []WellRecord

	for rows.Next() {
		var w WellRecord
		var cqsJSON []byte

		if err := rows.Scan(&w.RunID, &w.Well, &w.Accession, &w.Control, &w.Call, &cqsJSON); err != nil {
			continue
		}

		if err := json.Unmarshal(cqsJSON, &w.Cqs); err == nil {
			wells = append(wells, w)
		}
	}

	return wells, nil
}

func (s *PostgresStore) ListPlates(ctx context.Context, limit, offset int) ([]*PlateRecord, error) {
	query := `
		SELECT run_id, sample_barcode, qpcr_barcode, protocol,
			sample_plate_type, controls_mapping, researcher_id,
			controls_passed, experimental, contaminated,
			run_ended, processed_at
		FROM qpcr_plates
		ORDER BY processed_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list plates: %w", err)
	}
	defer rows.Close()

	var plates []*PlateRecord

	for rows.Next() {
		var p PlateRecord

		err := rows.Scan(
			&p.RunID,
			&p.SampleBarcode,
			&p.QPCRBarcode,
			&p.Protocol,
			&p.SamplePlateType,
			&p.ControlsMapping,
			&p.ResearcherID,
			&p.ControlsPassed,
			&p.Experimental,
			&p.Contaminated,
			&p.RunEnded,
			&p.ProcessedAt,
		)

		if err != nil {
			continue
		}

		plates = append(plates, &p)
	}

	return plates, nil
}
