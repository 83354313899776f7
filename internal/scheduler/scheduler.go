// Package scheduler runs one scrape task per catalog record across the
// shared context pool and merges everything the tasks extract.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/metadata-scraper/internal/catalog"
	"github.com/JakeFAU/metadata-scraper/internal/clock/system"
	"github.com/JakeFAU/metadata-scraper/internal/entity"
	"github.com/JakeFAU/metadata-scraper/internal/extract"
	"github.com/JakeFAU/metadata-scraper/internal/fetcher/headless"
	"github.com/JakeFAU/metadata-scraper/internal/loader"
	"github.com/JakeFAU/metadata-scraper/internal/metrics"
	"github.com/JakeFAU/metadata-scraper/internal/pool"
	"github.com/JakeFAU/metadata-scraper/internal/progress"
)

// ErrPartialRun reports that the run stopped before every task settled. The
// returned map and stats still cover everything that finished.
var ErrPartialRun = errors.New("scheduler: partial run")

var errNoEntities = errors.New("no entities extracted")

// PageLoader renders a page and returns its content frame.
type PageLoader interface {
	Load(ctx context.Context, page headless.Page, url string) (loader.Content, error)
}

// Clock stamps progress events.
type Clock interface {
	Now() time.Time
}

// Options carries the scheduler's optional collaborators.
type Options struct {
	RunID   uuid.UUID
	Emitter progress.Emitter
	Tracer  trace.Tracer
	Clock   Clock
	Logger  *zap.Logger
}

// Snapshot is a point-in-time view of a running batch.
type Snapshot struct {
	RunID     string `json:"run_id"`
	Total     int64  `json:"total"`
	Completed int64  `json:"completed"`
	Succeeded int64  `json:"succeeded"`
	Failed    int64  `json:"failed"`
	Running   bool   `json:"running"`
}

// Scheduler drives a batch of scrape tasks.
type Scheduler struct {
	pool    *pool.Pool
	loader  PageLoader
	runID   uuid.UUID
	emitter progress.Emitter
	tracer  trace.Tracer
	clock   Clock
	logger  *zap.Logger

	total     atomic.Int64
	completed atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	running   atomic.Bool
}

// New builds a Scheduler over p and l.
func New(p *pool.Pool, l PageLoader, opts Options) *Scheduler {
	if opts.Emitter == nil {
		opts.Emitter = progress.Discard{}
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/JakeFAU/metadata-scraper/internal/scheduler")
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Scheduler{
		pool:    p,
		loader:  l,
		runID:   opts.RunID,
		emitter: opts.Emitter,
		tracer:  opts.Tracer,
		clock:   opts.Clock,
		logger:  opts.Logger,
	}
}

// Snapshot reports live progress.
func (s *Scheduler) Snapshot() Snapshot {
	return Snapshot{
		RunID:     s.runID.String(),
		Total:     s.total.Load(),
		Completed: s.completed.Load(),
		Succeeded: s.succeeded.Load(),
		Failed:    s.failed.Load(),
		Running:   s.running.Load(),
	}
}

// Run scrapes every record with at most pool.Capacity() tasks in flight. A
// failing task never stops its siblings. When ctx ends or the batch itself
// panics, Run returns what was merged so far with ErrPartialRun; tasks that
// never settled count as failed.
func (s *Scheduler) Run(ctx context.Context, records []catalog.Record) (m entity.Map, stats Stats, err error) {
	total := len(records)
	s.total.Store(int64(total))
	s.completed.Store(0)
	s.succeeded.Store(0)
	s.failed.Store(0)
	s.running.Store(true)
	defer s.running.Store(false)

	merger := entity.NewMerger()
	results := make([]TaskResult, total)
	for i, rec := range records {
		results[i] = TaskResult{Name: rec.Name, URL: rec.URL, ContextIndex: -1}
	}

	var g errgroup.Group
	g.SetLimit(s.pool.Capacity())

	defer func() {
		if r := recover(); r != nil {
			metrics.ObserveError(metrics.ErrorPanic)
			s.logger.Error("batch panicked", zap.Any("panic", r))
			_ = g.Wait()
			m = merger.Snapshot()
			stats = Aggregate(results, s.pool.Size())
			err = fmt.Errorf("%w: panic: %v", ErrPartialRun, r)
		}
	}()

	s.logger.Info("scheduling tasks",
		zap.Int("tasks", total),
		zap.Int("contexts", s.pool.Size()),
		zap.Int("concurrency", s.pool.Capacity()),
	)

	for i, rec := range records {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := s.runTask(ctx, rec, merger)
			results[i] = res
			s.settle(res, total)
			return nil
		})
	}
	_ = g.Wait()

	m = merger.Snapshot()
	stats = Aggregate(results, s.pool.Size())
	if cause := ctx.Err(); cause != nil {
		return m, stats, fmt.Errorf("%w: %w", ErrPartialRun, cause)
	}
	return m, stats, nil
}

// runTask scrapes one record. Every exit path releases the page and lease.
func (s *Scheduler) runTask(ctx context.Context, rec catalog.Record, merger *entity.Merger) (res TaskResult) {
	start := time.Now()
	res = TaskResult{Name: rec.Name, URL: rec.URL, ContextIndex: -1}

	ctx, span := s.tracer.Start(ctx, "scrape.task", trace.WithAttributes(
		attribute.String("entity", rec.Name),
		attribute.String("url", rec.URL),
	))
	defer func() {
		if r := recover(); r != nil {
			metrics.ObserveError(metrics.ErrorPanic)
			res.Success = false
			res.Err = fmt.Errorf("task panic: %v", r)
		}
		res.Duration = time.Since(start)
		span.SetAttributes(
			attribute.Int("context", res.ContextIndex),
			attribute.Int("entities", res.Entities),
		)
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
		}
		span.End()
	}()

	lease, err := s.pool.Acquire(ctx)
	if err != nil {
		metrics.ObserveError(metrics.ErrorAcquire)
		res.Err = err
		return res
	}
	defer lease.Release()
	res.ContextIndex = lease.Index

	page, err := lease.Session.NewPage(ctx)
	if err != nil {
		metrics.ObserveError(metrics.ErrorPage)
		res.Err = fmt.Errorf("open page: %w", err)
		return res
	}
	defer func() {
		if err := page.Close(); err != nil {
			s.logger.Debug("close page failed", zap.String("entity", rec.Name), zap.Error(err))
		}
	}()

	content, err := s.loader.Load(ctx, page, rec.URL)
	if err != nil {
		res.Err = err
		return res
	}
	result, err := extract.Extract(content.HTML)
	if err != nil {
		metrics.ObserveError(metrics.ErrorExtract)
		res.Err = err
		return res
	}

	named := entity.Resolve(rec.Name, rec.URL, result)
	merger.MergeAll(named)
	res.Entities = len(named)
	res.Success = len(named) > 0
	if !res.Success {
		res.Err = errNoEntities
	}
	return res
}

func (s *Scheduler) settle(res TaskResult, total int) {
	done := s.completed.Add(1)
	stage := progress.StageTaskDone
	status := "success"
	if res.Success {
		s.succeeded.Add(1)
	} else {
		s.failed.Add(1)
		stage = progress.StageTaskFailed
		status = "failed"
	}

	pct := float64(done) / float64(total) * 100
	metrics.SetPoolUtilization(pct)
	metrics.ObserveTask(res.Success, res.Duration, res.Entities)

	fields := []zap.Field{
		zap.String("entity", res.Name),
		zap.Int("context", res.ContextIndex),
		zap.Int("entities", res.Entities),
		zap.Duration("elapsed", res.Duration),
	}
	if res.Err != nil {
		fields = append(fields, zap.Error(res.Err))
	}
	s.logger.Info(fmt.Sprintf("[%d/%d] (%.1f%%) %s - %s", done, total, pct, res.Name, status), fields...)

	evt := progress.Event{
		RunID:    progress.UUIDToBytes(s.runID),
		TS:       s.clock.Now(),
		Stage:    stage,
		Entity:   res.Name,
		URL:      res.URL,
		Context:  res.ContextIndex,
		Entities: res.Entities,
		Dur:      res.Duration,
	}
	if res.Err != nil {
		evt.Note = res.Err.Error()
	}
	s.emitter.Emit(evt)
}
