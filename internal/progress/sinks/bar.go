package sinks

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/JakeFAU/metadata-scraper/internal/progress"
)

// BarSink draws settled tasks as a terminal progress bar. The batch size is
// unknown until discovery ends, so total is polled and the bar resized when
// it changes.
type BarSink struct {
	bar    *progressbar.ProgressBar
	total  func() int64
	failed int
}

// NewBarSink renders to w. total reports the current batch size, or zero
// while it is not known yet.
func NewBarSink(w io.Writer, total func() int64) *BarSink {
	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("scraping"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("pages"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &BarSink{bar: bar, total: total}
}

// Consume advances the bar once per settled task.
func (s *BarSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageTaskDone, progress.StageTaskFailed:
			if s.total != nil {
				if n := s.total(); n > 0 && n != s.bar.GetMax64() {
					s.bar.ChangeMax64(n)
				}
			}
			if evt.Stage == progress.StageTaskFailed {
				s.failed++
				s.bar.Describe("scraping (" + strconv.Itoa(s.failed) + " failed)")
			}
			_ = s.bar.Add(1)
		case progress.StageRunDone, progress.StageRunError:
			_ = s.bar.Finish()
		}
	}
	return nil
}

// Done reports how many tasks the bar has counted.
func (s *BarSink) Done() int64 {
	return s.bar.State().CurrentNum
}

// Close finishes the bar.
func (s *BarSink) Close(context.Context) error {
	return s.bar.Finish()
}
