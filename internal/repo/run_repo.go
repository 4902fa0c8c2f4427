package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/cmltrain/internal/domain"
)

// DefaultListLimit — размер страницы List по умолчанию.
const DefaultListLimit = 20

var schema = []string{`
	CREATE TABLE IF NOT EXISTS training_runs (
		id              UUID PRIMARY KEY,
		experiment      TEXT NOT NULL,
		experiment_id   TEXT,
		tracking_run_id TEXT,
		status          TEXT NOT NULL,
		params          JSONB NOT NULL DEFAULT '{}',
		train_rows      INTEGER NOT NULL DEFAULT 0,
		test_rows       INTEGER NOT NULL DEFAULT 0,
		train_score     DOUBLE PRECISION NOT NULL DEFAULT 0,
		test_score      DOUBLE PRECISION NOT NULL DEFAULT 0,
		artifacts       JSONB NOT NULL DEFAULT '[]',
		started_at      TIMESTAMPTZ,
		finished_at     TIMESTAMPTZ,
		error           TEXT,
		created_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS training_runs_created_at_idx ON training_runs (created_at DESC)`,
}

const selectColumns = `
	SELECT id, experiment, experiment_id, tracking_run_id, status, params,
	       train_rows, test_rows, train_score, test_score, artifacts,
	       started_at, finished_at, error, created_at
	FROM training_runs
`

// RunRepo — репозиторий истории training runs.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// EnsureSchema создаёт таблицу, если её ещё нет.
func (r *RunRepo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Create сохраняет новый run.
func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	paramsJSON, artifactsJSON, err := marshalRunJSON(run)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO training_runs (id, experiment, experiment_id, tracking_run_id, status, params,
		                           train_rows, test_rows, train_score, test_score, artifacts,
		                           started_at, finished_at, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.Experiment,
		nullString(run.ExperimentID),
		nullString(run.TrackingRunID),
		run.Status,
		paramsJSON,
		run.TrainRows,
		run.TestRows,
		run.TrainScore,
		run.TestScore,
		artifactsJSON,
		run.StartedAt,
		run.FinishedAt,
		nullString(run.Error),
		run.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: run %s", ErrAlreadyExists, run.ID)
	}
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Update обновляет изменяемые поля run.
func (r *RunRepo) Update(ctx context.Context, run *domain.Run) error {
	paramsJSON, artifactsJSON, err := marshalRunJSON(run)
	if err != nil {
		return err
	}

	query := `
		UPDATE training_runs
		SET experiment_id = $2, tracking_run_id = $3, status = $4, params = $5,
		    train_rows = $6, test_rows = $7, train_score = $8, test_score = $9,
		    artifacts = $10, started_at = $11, finished_at = $12, error = $13
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		run.ID,
		nullString(run.ExperimentID),
		nullString(run.TrackingRunID),
		run.Status,
		paramsJSON,
		run.TrainRows,
		run.TestRows,
		run.TrainScore,
		run.TestScore,
		artifactsJSON,
		run.StartedAt,
		run.FinishedAt,
		nullString(run.Error),
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	run, err := scanRun(r.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// List возвращает последние runs, новые первыми.
// limit <= 0 — DefaultListLimit.
func (r *RunRepo) List(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.pool.Query(ctx, selectColumns+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// --- Helpers ---

// scanRun сканирует одну строку в Run.
// pgx.Rows реализует pgx.Row, поэтому подходит и для List.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var paramsJSON, artifactsJSON []byte
	var experimentID, trackingRunID, runError *string

	err := row.Scan(
		&run.ID,
		&run.Experiment,
		&experimentID,
		&trackingRunID,
		&run.Status,
		&paramsJSON,
		&run.TrainRows,
		&run.TestRows,
		&run.TrainScore,
		&run.TestScore,
		&artifactsJSON,
		&run.StartedAt,
		&run.FinishedAt,
		&runError,
		&run.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if paramsJSON != nil {
		if err := json.Unmarshal(paramsJSON, &run.Params); err != nil {
			return nil, fmt.Errorf("unmarshal params: %w", err)
		}
	}
	if artifactsJSON != nil {
		if err := json.Unmarshal(artifactsJSON, &run.Artifacts); err != nil {
			return nil, fmt.Errorf("unmarshal artifacts: %w", err)
		}
	}

	run.ExperimentID = derefString(experimentID)
	run.TrackingRunID = derefString(trackingRunID)
	run.Error = derefString(runError)

	return &run, nil
}

// marshalRunJSON сериализует JSONB-колонки run.
func marshalRunJSON(run *domain.Run) (params, artifacts []byte, err error) {
	p := run.Params
	if p == nil {
		p = map[string]string{}
	}
	params, err = json.Marshal(p)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal params: %w", err)
	}

	a := run.Artifacts
	if a == nil {
		a = []string{}
	}
	artifacts, err = json.Marshal(a)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal artifacts: %w", err)
	}
	return params, artifacts, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
