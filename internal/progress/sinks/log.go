package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/metadata-scraper/internal/progress"
)

// LogSink writes each event at debug level. Task lines are already logged by
// the scheduler at info, so this is for audits of the event stream itself.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logger.Debug("progress event",
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.String("entity", evt.Entity),
			zap.String("url", evt.URL),
			zap.Int("context", evt.Context),
			zap.Int("entities", evt.Entities),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
