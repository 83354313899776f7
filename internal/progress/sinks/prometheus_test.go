package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/metadata-scraper/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures run and task collectors follow the event stream.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{RunID: runID, TS: now, Stage: progress.StageTaskDone, Entity: "A", Context: 0, Entities: 2, Dur: 3 * time.Second},
		{RunID: runID, TS: now, Stage: progress.StageTaskFailed, Entity: "B", Context: 1, Dur: time.Second},
		{RunID: runID, TS: now, Stage: progress.StageTaskFailed, Entity: "C", Context: -1},
		{RunID: runID, TS: now, Stage: progress.StageRunDone, Dur: time.Minute},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsActive))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.tasks.WithLabelValues("0", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.tasks.WithLabelValues("1", "failed")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.tasks.WithLabelValues("none", "failed")))
	require.Equal(t, 2, testutil.CollectAndCount(sink.taskDuration, "scraper_context_task_duration_seconds"))
}

// TestPrometheusSinkDuplicateRegistration surfaces registry conflicts.
func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
