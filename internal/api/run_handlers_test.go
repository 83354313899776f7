package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/metadata-scraper/internal/store"
)

// TestRunHandlerListRuns verifies filters reach the repository.
func TestRunHandlerListRuns(t *testing.T) {
	t.Parallel()

	repo := &mockRunRepo{runs: []store.Run{{
		ID:        uuid.New(),
		Status:    store.RunSuccess,
		StartedAt: time.Now().Add(-time.Hour),
	}}}
	s := NewServer(Options{Runs: repo})

	rec := serve(t, s, http.MethodGet, "/v1/runs?status=success&limit=1000&offset=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Runs []runDTO `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, "success", body.Runs[0].Status)
	require.NotNil(t, repo.lastStatus)
	assert.Equal(t, store.RunSuccess, *repo.lastStatus)
	assert.Equal(t, maxRunLimit, repo.lastLimit)
	assert.Equal(t, 2, repo.lastOffset)
}

// TestRunHandlerBadQuery verifies malformed filters are rejected.
func TestRunHandlerBadQuery(t *testing.T) {
	t.Parallel()

	s := NewServer(Options{Runs: &mockRunRepo{}})
	for _, target := range []string{
		"/v1/runs?status=paused",
		"/v1/runs?limit=0",
		"/v1/runs?offset=-1",
		"/v1/runs/not-a-uuid",
	} {
		rec := serve(t, s, http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

// TestRunHandlerGetRunNotFound verifies ErrNotFound maps to 404.
func TestRunHandlerGetRunNotFound(t *testing.T) {
	t.Parallel()

	s := NewServer(Options{Runs: &mockRunRepo{err: store.ErrNotFound}})
	rec := serve(t, s, http.MethodGet, "/v1/runs/"+uuid.NewString())
	require.Equal(t, http.StatusNotFound, rec.Code)

	failing := NewServer(Options{Runs: &mockRunRepo{err: errors.New("connection reset")}})
	rec = serve(t, failing, http.MethodGet, "/v1/runs/"+uuid.NewString())
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

// TestRunHandlerListRunContexts verifies success rates are derived per context.
func TestRunHandlerListRunContexts(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	repo := &mockRunRepo{contexts: []store.ContextStats{
		{RunID: runID, Context: 0, Succeeded: 3, Failed: 1, Entities: 7},
		{RunID: runID, Context: 1},
	}}
	rec := serve(t, NewServer(Options{Runs: repo}), http.MethodGet, "/v1/runs/"+runID.String()+"/contexts")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Contexts []contextDTO `json:"contexts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Contexts, 2)
	assert.InDelta(t, 75.0, body.Contexts[0].SuccessRate, 0.001)
	assert.Zero(t, body.Contexts[1].SuccessRate)
}

// TestRunHandlerWithoutRepository verifies history endpoints degrade to 503.
func TestRunHandlerWithoutRepository(t *testing.T) {
	t.Parallel()

	s := NewServer(Options{})
	rec := serve(t, s, http.MethodGet, "/v1/runs")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type mockRunRepo struct {
	runs     []store.Run
	contexts []store.ContextStats
	err      error

	lastStatus *store.RunStatus
	lastLimit  int
	lastOffset int
}

func (m *mockRunRepo) UpsertRunStart(context.Context, uuid.UUID, time.Time) error {
	return m.err
}

func (m *mockRunRepo) CompleteRun(context.Context, uuid.UUID, time.Time, store.RunStatus, *string) error {
	return m.err
}

func (m *mockRunRepo) UpsertContextStats(context.Context, uuid.UUID, int, int64, int64, int64, time.Time) error {
	return m.err
}

func (m *mockRunRepo) GetRun(_ context.Context, runID uuid.UUID) (store.Run, error) {
	if m.err != nil {
		return store.Run{}, m.err
	}
	return store.Run{ID: runID, Status: store.RunRunning}, nil
}

func (m *mockRunRepo) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	m.lastStatus = status
	m.lastLimit = limit
	m.lastOffset = offset
	return m.runs, m.err
}

func (m *mockRunRepo) ListRunContexts(context.Context, uuid.UUID) ([]store.ContextStats, error) {
	return m.contexts, m.err
}
