package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/metadata-scraper/internal/store"
)

// RunStore implements store.RunRepository. Runs live in one table and
// per-context tallies in a companion table keyed by (run_id, context).
type RunStore struct {
	pool     Pool
	runs     string
	contexts string
}

// NewRunStore builds a RunStore. Empty table names default to scrape_runs
// and <runs>_contexts.
func NewRunStore(pool Pool, runsTable string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	runs, err := tableName(runsTable, "scrape_runs")
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: pool, runs: runs, contexts: runs + "_contexts"}, nil
}

// UpsertRunStart inserts a running row, leaving an existing row untouched.
func (s *RunStore) UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, started_at, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING;
	`, s.runs)
	if _, err := s.pool.Exec(ctx, query, runID, startedAt, store.RunRunning); err != nil {
		return fmt.Errorf("failed to upsert run start: %w", err)
	}
	return nil
}

// CompleteRun marks a run finished.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET finished_at = $1, status = $2, error_message = $3
		WHERE id = $4;
	`, s.runs)
	res, err := s.pool.Exec(ctx, query, finishedAt, status, errMsg, runID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpsertContextStats adds outcome deltas to one context's tally.
func (s *RunStore) UpsertContextStats(
	ctx context.Context,
	runID uuid.UUID,
	contextIndex int,
	deltaSucceeded,
	deltaFailed,
	deltaEntities int64,
	at time.Time,
) error {
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (run_id, context, last_update, succeeded, failed, entities)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, context) DO UPDATE
		SET succeeded = %[1]s.succeeded + EXCLUDED.succeeded,
			failed = %[1]s.failed + EXCLUDED.failed,
			entities = %[1]s.entities + EXCLUDED.entities,
			last_update = GREATEST(%[1]s.last_update, EXCLUDED.last_update);
	`, s.contexts)
	_, err := s.pool.Exec(ctx, query, runID, contextIndex, at, deltaSucceeded, deltaFailed, deltaEntities)
	if err != nil {
		return fmt.Errorf("failed to upsert context stats: %w", err)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := fmt.Sprintf(`
		SELECT id, started_at, finished_at, status, error_message
		FROM %s
		WHERE id = $1;
	`, s.runs)
	var run store.Run
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, with optional status filtering.
func (s *RunStore) ListRuns(
	ctx context.Context,
	status *store.RunStatus,
	limit,
	offset int,
) ([]store.Run, error) {
	query := fmt.Sprintf(`
		SELECT id, started_at, finished_at, status, error_message
		FROM %s
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`, s.runs)
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}
	rows, err := s.pool.Query(ctx, query, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		var run store.Run
		if err := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Status,
			&run.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// ListRunContexts retrieves the per-context tallies of a run.
func (s *RunStore) ListRunContexts(ctx context.Context, runID uuid.UUID) ([]store.ContextStats, error) {
	query := fmt.Sprintf(`
		SELECT run_id, context, last_update, succeeded, failed, entities
		FROM %s
		WHERE run_id = $1
		ORDER BY context;
	`, s.contexts)
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run contexts: %w", err)
	}
	defer rows.Close()

	var stats []store.ContextStats
	for rows.Next() {
		var stat store.ContextStats
		if err := rows.Scan(
			&stat.RunID,
			&stat.Context,
			&stat.LastUpdate,
			&stat.Succeeded,
			&stat.Failed,
			&stat.Entities,
		); err != nil {
			return nil, fmt.Errorf("failed to scan context row: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run contexts: %w", err)
	}
	return stats, nil
}
