package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/metadata-scraper/internal/progress"
	"github.com/JakeFAU/metadata-scraper/internal/store"
)

// StoreSink persists run history via a store.RunRepository. Task outcomes are
// collapsed per (run, context) within a batch to reduce writes.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

type tallyKey struct {
	runID   uuid.UUID
	context int
}

type tally struct {
	succeeded int64
	failed    int64
	entities  int64
	at        time.Time
}

// Consume applies run lifecycle events in order and flushes context tallies
// before any run completion in the same batch.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	tallies := make(map[tallyKey]*tally)
	var order []tallyKey

	flush := func() error {
		for _, key := range order {
			t := tallies[key]
			if err := s.repo.UpsertContextStats(ctx, key.runID, key.context, t.succeeded, t.failed, t.entities, t.at); err != nil {
				return fmt.Errorf("upsert context stats: %w", err)
			}
		}
		clear(tallies)
		order = order[:0]
		return nil
	}

	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.UpsertRunStart(ctx, runID, evt.TS); err != nil {
				return fmt.Errorf("upsert run start: %w", err)
			}
		case progress.StageTaskDone, progress.StageTaskFailed:
			if evt.Context < 0 {
				continue
			}
			key := tallyKey{runID: runID, context: evt.Context}
			t := tallies[key]
			if t == nil {
				t = &tally{}
				tallies[key] = t
				order = append(order, key)
			}
			if evt.Stage == progress.StageTaskDone {
				t.succeeded++
			} else {
				t.failed++
			}
			t.entities += int64(evt.Entities)
			if evt.TS.After(t.at) {
				t.at = evt.TS
			}
		case progress.StageRunDone, progress.StageRunError:
			if err := flush(); err != nil {
				return err
			}
			status := store.RunSuccess
			var note *string
			if evt.Stage == progress.StageRunError {
				status = store.RunError
				if evt.Note != "" {
					n := evt.Note
					note = &n
				}
			}
			if err := s.repo.CompleteRun(ctx, runID, evt.TS, status, note); err != nil {
				return fmt.Errorf("complete run: %w", err)
			}
		}
	}
	return flush()
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
