package scheduler

import (
	"time"
)

// TaskResult is the outcome of one page scrape.
type TaskResult struct {
	Name     string
	URL      string
	Duration time.Duration
	Success  bool
	// ContextIndex is -1 when the task never held a rendering context.
	ContextIndex int
	Entities     int
	Err          error
}

// ContextStats tallies outcomes for one rendering context.
type ContextStats struct {
	Index     int
	Succeeded int
	Failed    int
}

// Total returns the number of tasks the context ran.
func (c ContextStats) Total() int { return c.Succeeded + c.Failed }

// SuccessRate returns the success percentage, or 0 for an idle context.
func (c ContextStats) SuccessRate() float64 {
	if c.Total() == 0 {
		return 0
	}
	return float64(c.Succeeded) / float64(c.Total()) * 100
}

// Stats summarizes a run.
type Stats struct {
	Attempted int
	Succeeded int
	Failed    int
	Entities  int
	Slowest   TaskResult
	Fastest   TaskResult
	Average   time.Duration
	// PerContext has one entry per rendering context, in index order.
	PerContext  []ContextStats
	FailedNames []string
}

// Aggregate folds task results into run statistics. Timing figures only
// consider tasks that actually ran.
func Aggregate(results []TaskResult, numContexts int) Stats {
	stats := Stats{
		Attempted:  len(results),
		PerContext: make([]ContextStats, numContexts),
	}
	for i := range stats.PerContext {
		stats.PerContext[i].Index = i
	}

	var (
		timed int
		total time.Duration
	)
	for _, r := range results {
		if r.Success {
			stats.Succeeded++
		} else {
			stats.Failed++
			stats.FailedNames = append(stats.FailedNames, r.Name)
		}
		stats.Entities += r.Entities

		if r.ContextIndex >= 0 && r.ContextIndex < numContexts {
			if r.Success {
				stats.PerContext[r.ContextIndex].Succeeded++
			} else {
				stats.PerContext[r.ContextIndex].Failed++
			}
		}

		if r.Duration <= 0 {
			continue
		}
		timed++
		total += r.Duration
		if r.Duration > stats.Slowest.Duration {
			stats.Slowest = r
		}
		if stats.Fastest.Duration == 0 || r.Duration < stats.Fastest.Duration {
			stats.Fastest = r
		}
	}
	if timed > 0 {
		stats.Average = total / time.Duration(timed)
	}
	return stats
}
