package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/metadata-scraper/internal/entity"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("store: record not found")

// RunStatus mirrors the scrape_runs status column.
type RunStatus string

// Run statuses persisted in scrape_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run models one row of scrape_runs.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     RunStatus
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// ContextStats tallies task outcomes for one rendering context of a run.
type ContextStats struct {
	RunID      uuid.UUID
	Context    int
	LastUpdate time.Time
	Succeeded  int64
	Failed     int64
	Entities   int64
}

// RunRepository persists incremental run progress.
type RunRepository interface {
	// UpsertRunStart inserts the run as running, idempotently.
	UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time) error
	// CompleteRun marks the run finished with the provided status and error.
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error
	// UpsertContextStats applies outcome deltas for one (run, context) pair.
	UpsertContextStats(
		ctx context.Context,
		runID uuid.UUID,
		contextIndex int,
		deltaSucceeded int64,
		deltaFailed int64,
		deltaEntities int64,
		at time.Time,
	) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs filtered by optional status plus limit/offset.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// ListRunContexts returns per-context tallies for one run.
	ListRunContexts(ctx context.Context, runID uuid.UUID) ([]ContextStats, error)
}

// CatalogRepository persists the merged entity map.
type CatalogRepository interface {
	// UpsertEntities writes every entry of m tagged with runID and returns the
	// number of rows written.
	UpsertEntities(ctx context.Context, runID uuid.UUID, m entity.Map) (int, error)
}
