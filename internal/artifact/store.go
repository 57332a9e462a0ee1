// Package artifact persists the phase-boundary state between anonymization
// and noise application. Each phase-1 run produces a Run record holding the
// intermediate table location, the deferred column list, and the per-column
// classification audit; phase 2 looks the run up by ID, applies noise, and
// marks the run complete. Records live in SQLite under the data directory.
package artifact

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"

	veilotel "github.com/dativo-io/veil/internal/otel"
	"github.com/dativo-io/veil/internal/pipeline"
)

var tracer = veilotel.Tracer("github.com/dativo-io/veil/internal/artifact")

// ErrIntermediateMissing means phase 2 was invoked without a valid phase-1
// artifact. Fatal to phase 2, before any noise is applied.
var ErrIntermediateMissing = errors.New("phase-1 artifact missing")

// Run is one sanitization run's boundary artifact.
type Run struct {
	ID           string                  `json:"id"`
	CreatedAt    time.Time               `json:"created_at"`
	Input        string                  `json:"input"`
	Intermediate string                  `json:"intermediate"`
	Deferred     []string                `json:"deferred"`
	Reports      []pipeline.ColumnReport `json:"reports"`
	Epsilon      *float64                `json:"epsilon,omitempty"`
	Output       string                  `json:"output,omitempty"`
	NoisedAt     *time.Time              `json:"noised_at,omitempty"`
}

// Store persists run artifacts in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the run database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening run database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		input TEXT NOT NULL,
		intermediate TEXT NOT NULL,
		run_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating runs schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewRun builds a Run for a freshly completed phase 1.
func NewRun(input, intermediate string, res *pipeline.Result) *Run {
	return &Run{
		ID:           uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
		Input:        input,
		Intermediate: intermediate,
		Deferred:     res.Deferred,
		Reports:      res.Reports,
	}
}

// Save inserts or replaces a run record.
func (s *Store) Save(ctx context.Context, run *Run) error {
	ctx, span := tracer.Start(ctx, "artifact.save")
	defer span.End()

	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encoding run %s: %w", run.ID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, created_at, input, intermediate, run_json)
		 VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt, run.Input, run.Intermediate, string(payload),
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.ID, err)
	}

	span.SetAttributes(
		attribute.String("run.id", run.ID),
		attribute.Int("run.deferred", len(run.Deferred)),
	)
	return nil
}

// Get returns the run with the given ID, or ErrIntermediateMissing when no
// such run exists.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	ctx, span := tracer.Start(ctx, "artifact.get")
	defer span.End()

	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_json FROM runs WHERE id = ?`, id,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", ErrIntermediateMissing, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}

	var run Run
	if err := json.Unmarshal([]byte(payload), &run); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", id, err)
	}
	return &run, nil
}

// List returns up to limit runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	ctx, span := tracer.Start(ctx, "artifact.list")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_json FROM runs ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		var run Run
		if err := json.Unmarshal([]byte(payload), &run); err != nil {
			return nil, fmt.Errorf("decoding run row: %w", err)
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// MarkNoised records phase-2 completion for a run.
func (s *Store) MarkNoised(ctx context.Context, id string, epsilon float64, output string) error {
	run, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	run.Epsilon = &epsilon
	run.Output = output
	run.NoisedAt = &now
	return s.Save(ctx, run)
}
