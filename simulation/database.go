package simulation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the Postgres store needs
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore persists runs in PostgreSQL
type PostgresStore struct {
	db DB
}

// NewPostgresStore wraps a connection pool
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const schema = `
	CREATE TABLE IF NOT EXISTS matchup_runs (
		id UUID PRIMARY KEY,
		status TEXT NOT NULL,
		batter JSONB NOT NULL,
		pitcher JSONB NOT NULL,
		plate_appearances INTEGER NOT NULL,
		completed_plate_appearances INTEGER NOT NULL DEFAULT 0,
		seed BIGINT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		completed_at TIMESTAMP WITH TIME ZONE
	);
	CREATE TABLE IF NOT EXISTS matchup_results (
		run_id UUID PRIMARY KEY REFERENCES matchup_runs(id) ON DELETE CASCADE,
		counts JSONB NOT NULL,
		max_abs_deviation DOUBLE PRECISION NOT NULL,
		result JSONB NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)
`

// EnsureSchema creates the run tables if they don't exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// CreateRun inserts a new run record
func (s *PostgresStore) CreateRun(ctx context.Context, run *Run) error {
	batterJSON, err := json.Marshal(run.Batter)
	if err != nil {
		return fmt.Errorf("failed to marshal batter: %w", err)
	}
	pitcherJSON, err := json.Marshal(run.Pitcher)
	if err != nil {
		return fmt.Errorf("failed to marshal pitcher: %w", err)
	}

	query := `
		INSERT INTO matchup_runs (
			id, status, batter, pitcher, plate_appearances,
			completed_plate_appearances, seed, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`

	_, err = s.db.Exec(ctx, query,
		run.ID,
		run.Status,
		batterJSON,
		pitcherJSON,
		run.PlateAppearances,
		run.CompletedPlateAppearances,
		int64(run.Seed),
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// UpdateRun writes the mutable fields of a run
func (s *PostgresStore) UpdateRun(ctx context.Context, run *Run) error {
	query := `
		UPDATE matchup_runs
		SET status = $2, completed_plate_appearances = $3, error = $4,
		    completed_at = $5, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := s.db.Exec(ctx, query, run.ID, run.Status, run.CompletedPlateAppearances, run.Error, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

// SaveResult stores the aggregated result of a run, replacing any earlier one
func (s *PostgresStore) SaveResult(ctx context.Context, result *MatchupResult) error {
	countsJSON, err := json.Marshal(result.Counts)
	if err != nil {
		return fmt.Errorf("failed to marshal counts: %w", err)
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	query := `
		INSERT INTO matchup_results (run_id, counts, max_abs_deviation, result, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (run_id) DO UPDATE SET
			counts = EXCLUDED.counts,
			max_abs_deviation = EXCLUDED.max_abs_deviation,
			result = EXCLUDED.result
	`

	if _, err := s.db.Exec(ctx, query, result.RunID, countsJSON, result.MaxAbsDeviation, resultJSON); err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}
	return nil
}

// GetRun loads a run record
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	query := `
		SELECT id, status, batter, pitcher, plate_appearances,
		       completed_plate_appearances, seed, error,
		       created_at, updated_at, completed_at
		FROM matchup_runs
		WHERE id = $1
	`

	var (
		run                     Run
		batterJSON, pitcherJSON []byte
		seed                    int64
		completedAt             *time.Time
	)
	err := s.db.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.Status,
		&batterJSON,
		&pitcherJSON,
		&run.PlateAppearances,
		&run.CompletedPlateAppearances,
		&seed,
		&run.Error,
		&run.CreatedAt,
		&run.UpdatedAt,
		&completedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	if err := json.Unmarshal(batterJSON, &run.Batter); err != nil {
		return nil, fmt.Errorf("failed to parse batter: %w", err)
	}
	if err := json.Unmarshal(pitcherJSON, &run.Pitcher); err != nil {
		return nil, fmt.Errorf("failed to parse pitcher: %w", err)
	}
	run.Seed = uint64(seed)
	run.CompletedAt = completedAt

	return &run, nil
}

// GetResult loads the aggregated result of a completed run
func (s *PostgresStore) GetResult(ctx context.Context, runID string) (*MatchupResult, error) {
	query := `
		SELECT r.status, res.result
		FROM matchup_runs r
		LEFT JOIN matchup_results res ON res.run_id = r.id
		WHERE r.id = $1
	`

	var (
		status     string
		resultJSON []byte
	)
	err := s.db.QueryRow(ctx, query, runID).Scan(&status, &resultJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load result: %w", err)
	}
	if resultJSON == nil {
		return nil, ErrRunNotComplete
	}

	var result MatchupResult
	if err := json.Unmarshal(resultJSON, &result); err != nil {
		return nil, fmt.Errorf("failed to parse result: %w", err)
	}
	return &result, nil
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
