package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/metadata-scraper/internal/catalog"
	"github.com/JakeFAU/metadata-scraper/internal/entity"
	"github.com/JakeFAU/metadata-scraper/internal/loader"
	"github.com/JakeFAU/metadata-scraper/internal/metrics"
	"github.com/JakeFAU/metadata-scraper/internal/output"
	"github.com/JakeFAU/metadata-scraper/internal/pool"
	"github.com/JakeFAU/metadata-scraper/internal/progress"
	"github.com/JakeFAU/metadata-scraper/internal/publisher"
	"github.com/JakeFAU/metadata-scraper/internal/scheduler"
)

// Summary reports what a run did.
type Summary struct {
	RunID      uuid.UUID
	Discovered int
	Stats      scheduler.Stats
	Entities   entity.Map
	Artifact   output.Artifact
	Elapsed    time.Duration
	// Partial is set when the batch stopped before every task settled.
	Partial bool
}

// Discover fetches the catalog without rendering anything.
func (a *App) Discover(ctx context.Context) ([]catalog.Record, error) {
	records, err := a.discoverer.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover catalog: %w", err)
	}
	metrics.ObserveDiscovered(len(records))
	return records, nil
}

// Run executes one scrape: discover, render every page across the context
// pool, write the merged map to outputPath and announce it. An empty
// outputPath uses output.path from configuration. Only a failure to launch
// any browser session is returned as an error; discovery failures end the
// run with nothing scheduled.
func (a *App) Run(ctx context.Context, outputPath string) (Summary, error) {
	start := a.clock.Now()
	runID, err := a.ids.NewRunID()
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{RunID: runID}
	logger := a.logger.With(zap.String("run_id", runID.String()))
	if outputPath == "" {
		outputPath = a.cfg.Output.Path
	}

	if a.status != nil {
		statusCtx, stopStatus := context.WithCancel(ctx)
		defer stopStatus()
		go func() {
			if err := a.status.Serve(statusCtx, fmt.Sprintf(":%d", a.cfg.Server.Port)); err != nil {
				logger.Error("status server stopped", zap.Error(err))
			}
		}()
	}

	a.emitRun(runID, progress.StageRunStart, 0, "")

	records, err := a.Discover(ctx)
	if err != nil {
		logger.Error("catalog discovery failed", zap.Error(err))
	}
	sum.Discovered = len(records)
	if len(records) == 0 {
		logger.Warn("no work scheduled")
		a.emitRun(runID, progress.StageRunError, a.clock.Since(start), "no work scheduled")
		sum.Elapsed = a.clock.Since(start)
		return sum, nil
	}

	sessions, err := a.driver.Launch(ctx, a.cfg.Browser.Instances)
	if err != nil {
		a.emitRun(runID, progress.StageRunError, a.clock.Since(start), err.Error())
		return sum, fmt.Errorf("launch browsers: %w", err)
	}
	ctxPool, err := pool.New(sessions, a.cfg.Browser.PerInstance, logger.Named("pool"))
	if err != nil {
		for _, s := range sessions {
			_ = s.Close()
		}
		a.emitRun(runID, progress.StageRunError, a.clock.Since(start), err.Error())
		return sum, fmt.Errorf("build context pool: %w", err)
	}
	defer func() {
		if err := ctxPool.Close(); err != nil {
			logger.Warn("context pool close failed", zap.Error(err))
		}
	}()

	pageLoader := loader.New(loader.Config{
		NavigationTimeout: a.cfg.Browser.NavigationTimeout(),
		TablePollTimeout:  a.cfg.Browser.TablePollTimeout(),
		ScrollPollTimeout: a.cfg.Browser.ScrollPollTimeout(),
		PollInterval:      a.cfg.Browser.PollInterval(),
		IndexPathHint:     a.cfg.Browser.FrameHint,
	}, a.limiter, logger.Named("loader"))

	sched := scheduler.New(ctxPool, pageLoader, scheduler.Options{
		RunID:   runID,
		Emitter: a.progressHub,
		Clock:   a.clock,
		Logger:  logger.Named("scheduler"),
	})
	a.mu.Lock()
	a.sched = sched
	a.mu.Unlock()

	m, stats, runErr := sched.Run(ctx, records)
	sum.Entities = m
	sum.Stats = stats
	if runErr != nil {
		sum.Partial = errors.Is(runErr, scheduler.ErrPartialRun)
		logger.Warn("batch ended early, keeping partial result", zap.Error(runErr))
	}

	// Persistence outlives a canceled run so partial results are kept.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	note := ""
	art, err := a.writer.Write(persistCtx, outputPath, m)
	if err != nil {
		logger.Error("output write failed", zap.Error(err))
		note = err.Error()
	} else {
		sum.Artifact = art
		a.upsertCatalog(persistCtx, logger, runID, m)
		a.notify(persistCtx, logger, sum, art)
	}

	sum.Elapsed = a.clock.Since(start)
	a.logSummary(logger, sum)

	switch {
	case note != "":
		a.emitRun(runID, progress.StageRunError, sum.Elapsed, note)
	case runErr != nil:
		a.emitRun(runID, progress.StageRunError, sum.Elapsed, runErr.Error())
	default:
		a.emitRun(runID, progress.StageRunDone, sum.Elapsed, "")
	}
	return sum, nil
}

func (a *App) upsertCatalog(ctx context.Context, logger *zap.Logger, runID uuid.UUID, m entity.Map) {
	if a.catalogRepo == nil {
		return
	}
	n, err := a.catalogRepo.UpsertEntities(ctx, runID, m)
	if err != nil {
		logger.Error("entity catalog upsert failed", zap.Error(err))
		return
	}
	logger.Info("entity catalog updated", zap.Int("entities", n))
}

func (a *App) notify(ctx context.Context, logger *zap.Logger, sum Summary, art output.Artifact) {
	notice := publisher.Notice{
		RunID:     sum.RunID.String(),
		OutputURI: art.URI,
		SHA256:    art.SHA256,
		Counts: publisher.Counts{
			Discovered: sum.Discovered,
			Attempted:  sum.Stats.Attempted,
			Succeeded:  sum.Stats.Succeeded,
			Failed:     sum.Stats.Failed,
			Entities:   art.Entities,
		},
		Partial:    sum.Partial,
		FinishedAt: a.clock.Now(),
	}
	if err := a.notifier.Notify(ctx, notice); err != nil {
		logger.Warn("run notice not delivered", zap.Error(err))
	}
}

func (a *App) emitRun(runID uuid.UUID, stage progress.Stage, dur time.Duration, note string) {
	a.progressHub.Emit(progress.Event{
		RunID: progress.UUIDToBytes(runID),
		TS:    a.clock.Now(),
		Stage: stage,
		Dur:   dur,
		Note:  note,
	})
}

func (a *App) logSummary(logger *zap.Logger, sum Summary) {
	st := sum.Stats
	logger.Info(fmt.Sprintf("run complete: discovered=%d attempted=%d succeeded=%d failed=%d entities=%d elapsed=%s",
		sum.Discovered, st.Attempted, st.Succeeded, st.Failed, len(sum.Entities), sum.Elapsed.Round(time.Millisecond)))
	if st.Slowest.Duration > 0 {
		logger.Info(fmt.Sprintf("timing: slowest=%s (%s) fastest=%s (%s) average=%s",
			st.Slowest.Name, st.Slowest.Duration.Round(time.Millisecond),
			st.Fastest.Name, st.Fastest.Duration.Round(time.Millisecond),
			st.Average.Round(time.Millisecond)))
	}
	for _, c := range st.PerContext {
		logger.Info(fmt.Sprintf("context %d: %d succeeded, %d failed (%.1f%% success)",
			c.Index, c.Succeeded, c.Failed, c.SuccessRate()))
	}
	if len(st.FailedNames) > 0 {
		logger.Warn("failed entities: " + strings.Join(st.FailedNames, ", "))
	}
}
