package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/metadata-scraper/internal/config"
	"github.com/JakeFAU/metadata-scraper/internal/entity"
	"github.com/JakeFAU/metadata-scraper/internal/fetcher/headless"
	"github.com/JakeFAU/metadata-scraper/internal/loader"
	"github.com/JakeFAU/metadata-scraper/internal/publisher"
	memorypublisher "github.com/JakeFAU/metadata-scraper/internal/publisher/memory"
	"github.com/JakeFAU/metadata-scraper/internal/storage/memory"
	"github.com/JakeFAU/metadata-scraper/internal/store"
)

const customFieldIndex = `{"toc":[{"text":"Reference","children":[
  {"text":"Metadata Types","children":[
    {"text":"CustomField","a_attr":{"href":"meta_customfield.htm"},"id":"customfield"}
  ]}
]}]}`

const customFieldPage = `<html><head><title>CustomField | Metadata API Developer Guide</title></head><body>
<h1>CustomField</h1>
<div class="shortdesc">Represents a custom field on a custom object or standard object.</div>
<table>
<thead><tr><th>Field</th><th>Field Type</th><th>Description</th></tr></thead>
<tbody><tr><td>type</td><td>String</td><td>The type.</td></tr></tbody>
</table>
</body></html>`

// fakeDriver serves one fixed document for every page it renders.
type fakeDriver struct {
	pages map[string]string
	err   error

	mu       sync.Mutex
	launched int
	visited  []string
}

func (d *fakeDriver) Launch(_ context.Context, n int) ([]headless.Session, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.mu.Lock()
	d.launched = n
	d.mu.Unlock()
	sessions := make([]headless.Session, n)
	for i := range sessions {
		sessions[i] = &fakeSession{index: i, driver: d}
	}
	return sessions, nil
}

func (d *fakeDriver) visit(url string) {
	d.mu.Lock()
	d.visited = append(d.visited, url)
	d.mu.Unlock()
}

type fakeSession struct {
	index  int
	driver *fakeDriver
}

func (s *fakeSession) Index() int { return s.index }

func (s *fakeSession) NewPage(context.Context) (headless.Page, error) {
	return &fakePage{driver: s.driver}, nil
}

func (s *fakeSession) Close() error { return nil }

type fakePage struct {
	driver *fakeDriver
	url    string
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.url = url
	p.driver.visit(url)
	return nil
}

func (p *fakePage) Frames(context.Context) ([]headless.Frame, error) {
	return []headless.Frame{{ID: "main", URL: p.url, Main: true}}, nil
}

func (p *fakePage) Evaluate(_ context.Context, _ string, script string, out any) error {
	if script != loader.SnapshotScript {
		return nil
	}
	html, ok := p.driver.pages[p.url]
	if !ok {
		html = "<html><body><p>Not found.</p></body></html>"
	}
	*out.(*string) = html
	return nil
}

func (p *fakePage) Close() error { return nil }

func testConfig(t *testing.T, indexURL string) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Catalog.IndexURL = indexURL
	cfg.Catalog.BaseURL = "https://docs.example.com/api_meta/"
	cfg.Catalog.MaxRetries = 1
	cfg.Catalog.TimeoutSeconds = 5
	cfg.Browser.Instances = 2
	cfg.Browser.PerInstance = 2
	cfg.Browser.TablePollSeconds = 1
	cfg.Browser.ScrollPollSeconds = 1
	cfg.Browser.PollIntervalMs = 10
	cfg.Output.Backend = config.BackendMemory
	return cfg
}

func indexServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func build(t *testing.T, cfg config.Config, opts ...Option) *App {
	t.Helper()
	opts = append(opts, WithRegisterer(prometheus.NewRegistry()))
	app, err := Build(context.Background(), cfg, zap.NewNop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Close(ctx)
	})
	return app
}

// TestRunCustomFieldEndToEnd verifies discovery, rendering, extraction and
// output for a single-page catalog.
func TestRunCustomFieldEndToEnd(t *testing.T) {
	srv := indexServer(t, customFieldIndex, http.StatusOK)
	pageURL := "https://docs.example.com/api_meta/meta_customfield.htm"
	driver := &fakeDriver{pages: map[string]string{pageURL: customFieldPage}}
	blobs := memory.NewBlobStore()
	pub := memorypublisher.New()

	app := build(t, testConfig(t, srv.URL+"/toc.json"),
		WithDriver(driver), WithBlobStore(blobs), WithPublisher(pub))

	sum, err := app.Run(context.Background(), "out/metadata-types.json")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Discovered)
	assert.Equal(t, 1, sum.Stats.Succeeded)
	assert.Zero(t, sum.Stats.Failed)
	assert.False(t, sum.Partial)
	assert.Equal(t, 2, driver.launched)
	assert.Equal(t, []string{pageURL}, driver.visited)

	want := entity.Map{"CustomField": {
		Fields:           []entity.Field{{Name: "type", Type: "String", Description: "The type."}},
		ShortDescription: "Represents a custom field on a custom object or standard object.",
		URL:              pageURL,
	}}
	assert.Equal(t, want, sum.Entities)

	obj, ok := blobs.Get("out/metadata-types.json")
	require.True(t, ok)
	var written entity.Map
	require.NoError(t, json.Unmarshal(obj.Data, &written))
	assert.Equal(t, want, written)
	assert.Equal(t, "memory://out/metadata-types.json", sum.Artifact.URI)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	notice, ok := msgs[0].Payload.(publisher.Notice)
	require.True(t, ok)
	assert.Equal(t, sum.RunID.String(), notice.RunID)
	assert.Equal(t, sum.Artifact.SHA256, notice.SHA256)
	assert.Equal(t, 1, notice.Counts.Entities)
}

// TestRunDiscoveryFailureSchedulesNothing verifies an unreachable index ends
// the run cleanly without launching browsers.
func TestRunDiscoveryFailureSchedulesNothing(t *testing.T) {
	srv := indexServer(t, `{}`, http.StatusInternalServerError)
	driver := &fakeDriver{}
	blobs := memory.NewBlobStore()

	app := build(t, testConfig(t, srv.URL+"/toc.json"), WithDriver(driver), WithBlobStore(blobs))
	sum, err := app.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, sum.Discovered)
	assert.Zero(t, driver.launched)
	_, written := blobs.Get("metadata-types.json")
	assert.False(t, written)
}

// TestRunNoSessionsIsFatal verifies a failed browser launch aborts the run.
func TestRunNoSessionsIsFatal(t *testing.T) {
	srv := indexServer(t, customFieldIndex, http.StatusOK)
	driver := &fakeDriver{err: headless.ErrNoSessions}

	app := build(t, testConfig(t, srv.URL+"/toc.json"), WithDriver(driver), WithBlobStore(memory.NewBlobStore()))
	_, err := app.Run(context.Background(), "")
	require.ErrorIs(t, err, headless.ErrNoSessions)
}

// TestRunToleratesEmptyPages verifies a page without tables counts as failed
// while the run still writes its output.
func TestRunToleratesEmptyPages(t *testing.T) {
	index := `{"toc":[{"text":"Reference","children":[{"text":"Metadata Types","children":[
	  {"text":"CustomField","a_attr":{"href":"meta_customfield.htm"}},
	  {"text":"ApexClass","a_attr":{"href":"meta_apexclass.htm"}}
	]}]}]}`
	srv := indexServer(t, index, http.StatusOK)
	driver := &fakeDriver{pages: map[string]string{
		"https://docs.example.com/api_meta/meta_customfield.htm": customFieldPage,
	}}
	blobs := memory.NewBlobStore()

	app := build(t, testConfig(t, srv.URL+"/toc.json"), WithDriver(driver), WithBlobStore(blobs))
	sum, err := app.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Stats.Attempted)
	assert.Equal(t, 1, sum.Stats.Failed)
	assert.Equal(t, []string{"ApexClass"}, sum.Stats.FailedNames)
	assert.Contains(t, sum.Entities, "CustomField")
	_, ok := blobs.Get("metadata-types.json")
	assert.True(t, ok)
}

// TestAppSnapshotBeforeRun verifies the status source is usable while idle.
func TestAppSnapshotBeforeRun(t *testing.T) {
	srv := indexServer(t, customFieldIndex, http.StatusOK)
	app := build(t, testConfig(t, srv.URL+"/toc.json"), WithDriver(&fakeDriver{}), WithBlobStore(memory.NewBlobStore()))
	snap := app.Snapshot()
	assert.False(t, snap.Running)
	assert.Zero(t, snap.Total)
}

type mockRunRepo struct {
	mock.Mock
}

func (m *mockRunRepo) UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	return m.Called(ctx, runID, startedAt).Error(0)
}

func (m *mockRunRepo) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	return m.Called(ctx, runID, finishedAt, status, errMsg).Error(0)
}

func (m *mockRunRepo) UpsertContextStats(
	ctx context.Context,
	runID uuid.UUID,
	contextIndex int,
	deltaSucceeded, deltaFailed, deltaEntities int64,
	at time.Time,
) error {
	return m.Called(ctx, runID, contextIndex, deltaSucceeded, deltaFailed, deltaEntities, at).Error(0)
}

func (m *mockRunRepo) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(store.Run), args.Error(1)
}

func (m *mockRunRepo) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	args := m.Called(ctx, status, limit, offset)
	return args.Get(0).([]store.Run), args.Error(1)
}

func (m *mockRunRepo) ListRunContexts(ctx context.Context, runID uuid.UUID) ([]store.ContextStats, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).([]store.ContextStats), args.Error(1)
}

type mockCatalogRepo struct {
	mock.Mock
}

func (m *mockCatalogRepo) UpsertEntities(ctx context.Context, runID uuid.UUID, entities entity.Map) (int, error) {
	args := m.Called(ctx, runID, entities)
	return args.Int(0), args.Error(1)
}

// TestRunRecordsHistory verifies run lifecycle rows and the entity catalog
// are written when repositories are configured.
func TestRunRecordsHistory(t *testing.T) {
	srv := indexServer(t, customFieldIndex, http.StatusOK)
	pageURL := "https://docs.example.com/api_meta/meta_customfield.htm"
	driver := &fakeDriver{pages: map[string]string{pageURL: customFieldPage}}

	runs := &mockRunRepo{}
	runs.On("UpsertRunStart", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	runs.On("UpsertContextStats", mock.Anything, mock.Anything, mock.AnythingOfType("int"),
		int64(1), int64(0), int64(1), mock.Anything).Return(nil).Once()
	runs.On("CompleteRun", mock.Anything, mock.Anything, mock.Anything, store.RunSuccess, (*string)(nil)).
		Return(nil).Once()

	entities := &mockCatalogRepo{}
	entities.On("UpsertEntities", mock.Anything, mock.Anything, mock.MatchedBy(func(m entity.Map) bool {
		_, ok := m["CustomField"]
		return ok && len(m) == 1
	})).Return(1, nil).Once()

	cfg := testConfig(t, srv.URL+"/toc.json")
	cfg.Browser.Instances = 1
	cfg.Browser.PerInstance = 1
	app, err := Build(context.Background(), cfg, zap.NewNop(),
		WithDriver(driver),
		WithBlobStore(memory.NewBlobStore()),
		WithRepositories(runs, entities),
		WithRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)

	sum, err := app.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Stats.Succeeded)

	// Closing the hub flushes the history sink.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, app.Close(ctx))

	runs.AssertExpectations(t)
	entities.AssertExpectations(t)
	runs.AssertCalled(t, "UpsertRunStart", mock.Anything, sum.RunID, mock.Anything)
}
