// Package loader brings a documentation page to the point where its field
// tables are rendered and returns a serialized snapshot of the content frame.
package loader

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/metadata-scraper/internal/extract"
	"github.com/JakeFAU/metadata-scraper/internal/fetcher/headless"
	"github.com/JakeFAU/metadata-scraper/internal/metrics"
)

var (
	// ErrNavigation reports that the page never reached DOM-ready.
	ErrNavigation = errors.New("loader: navigation failed")
	// ErrNoTables reports that no field table appeared in the content frame.
	ErrNoTables = errors.New("loader: no candidate table rendered")
)

// Config bounds each loading phase.
type Config struct {
	NavigationTimeout time.Duration
	TablePollTimeout  time.Duration
	ScrollPollTimeout time.Duration
	PollInterval      time.Duration
	// IndexPathHint is a URL fragment shared by every content frame.
	IndexPathHint string
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		NavigationTimeout: 60 * time.Second,
		TablePollTimeout:  20 * time.Second,
		ScrollPollTimeout: 5 * time.Second,
		PollInterval:      time.Second,
		IndexPathHint:     "atlas.en-us.api_meta",
	}
}

// Waiter paces navigations.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Content is the rendered content frame.
type Content struct {
	FrameID  string
	FrameURL string
	HTML     string
}

// Loader navigates pages and waits for their tables.
type Loader struct {
	cfg     Config
	limiter Waiter
	logger  *zap.Logger
}

// New builds a Loader. Zero durations fall back to DefaultConfig; limiter
// may be nil.
func New(cfg Config, limiter Waiter, logger *zap.Logger) *Loader {
	def := DefaultConfig()
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = def.NavigationTimeout
	}
	if cfg.TablePollTimeout <= 0 {
		cfg.TablePollTimeout = def.TablePollTimeout
	}
	if cfg.ScrollPollTimeout <= 0 {
		cfg.ScrollPollTimeout = def.ScrollPollTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.IndexPathHint == "" {
		cfg.IndexPathHint = def.IndexPathHint
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{cfg: cfg, limiter: limiter, logger: logger}
}

// Load navigates page to pageURL and polls the content frame until a
// candidate field table is present.
func (l *Loader) Load(ctx context.Context, page headless.Page, pageURL string) (Content, error) {
	start := time.Now()
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx, pageURL); err != nil {
			return Content{}, fmt.Errorf("%w: %w", ErrNavigation, err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, l.cfg.NavigationTimeout)
	err := page.Navigate(navCtx, pageURL)
	cancel()
	if err != nil {
		metrics.ObserveError(metrics.ErrorNavigation)
		return Content{}, fmt.Errorf("%w: %s: %w", ErrNavigation, pageURL, err)
	}

	content, ok := l.poll(ctx, page, pageURL, l.cfg.TablePollTimeout)
	if !ok && ctx.Err() == nil {
		l.logger.Debug("no table yet, scrolling", zap.String("url", pageURL))
		if err := page.Evaluate(ctx, content.FrameID, ScrollScript, nil); err != nil {
			l.logger.Debug("scroll failed", zap.String("url", pageURL), zap.Error(err))
		}
		content, ok = l.poll(ctx, page, pageURL, l.cfg.ScrollPollTimeout)
	}
	if !ok {
		metrics.ObserveError(metrics.ErrorNoTables)
		if err := ctx.Err(); err != nil {
			return Content{}, fmt.Errorf("%w: %s: %w", ErrNoTables, pageURL, err)
		}
		return Content{}, fmt.Errorf("%w: %s", ErrNoTables, pageURL)
	}

	metrics.ObservePageLoad(time.Since(start))
	l.logger.Debug("page loaded",
		zap.String("url", pageURL),
		zap.String("frame", content.FrameURL),
		zap.Duration("elapsed", time.Since(start)),
	)
	return content, nil
}

// poll snapshots the content frame every PollInterval until a candidate
// table shows up or timeout passes. The frame is chosen again on every
// attempt because iframes attach after DOM-ready. The last snapshot is
// returned either way.
func (l *Loader) poll(ctx context.Context, page headless.Page, pageURL string, timeout time.Duration) (Content, bool) {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	var last Content
	for {
		content, err := l.snapshot(pollCtx, page, pageURL)
		if err == nil {
			last = content
			if extract.HasCandidateTable(content.HTML) {
				return content, true
			}
		} else {
			l.logger.Debug("snapshot failed", zap.String("url", pageURL), zap.Error(err))
		}
		select {
		case <-pollCtx.Done():
			return last, false
		case <-ticker.C:
		}
	}
}

func (l *Loader) snapshot(ctx context.Context, page headless.Page, pageURL string) (Content, error) {
	frames, err := page.Frames(ctx)
	if err != nil {
		return Content{}, fmt.Errorf("list frames: %w", err)
	}
	frame, ok := contentFrame(frames, pageURL, l.cfg.IndexPathHint)
	if !ok {
		return Content{}, errors.New("page has no frames")
	}
	var html string
	if err := page.Evaluate(ctx, frame.ID, SnapshotScript, &html); err != nil {
		return Content{}, fmt.Errorf("snapshot frame %s: %w", frame.ID, err)
	}
	return Content{FrameID: frame.ID, FrameURL: frame.URL, HTML: html}, nil
}

type frameStrategy func(frames []headless.Frame, pageURL, hint string) (headless.Frame, bool)

var frameStrategies = []frameStrategy{
	frameBySlug,
	frameByHint,
	secondFrame,
	mainFrame,
}

func contentFrame(frames []headless.Frame, pageURL, hint string) (headless.Frame, bool) {
	for _, strategy := range frameStrategies {
		if f, ok := strategy(frames, pageURL, hint); ok {
			return f, true
		}
	}
	return headless.Frame{}, false
}

func frameBySlug(frames []headless.Frame, pageURL, _ string) (headless.Frame, bool) {
	slug := lastSegment(pageURL)
	if slug == "" {
		return headless.Frame{}, false
	}
	for _, f := range frames {
		if strings.Contains(f.URL, slug) {
			return f, true
		}
	}
	return headless.Frame{}, false
}

func frameByHint(frames []headless.Frame, _, hint string) (headless.Frame, bool) {
	if hint == "" {
		return headless.Frame{}, false
	}
	for _, f := range frames {
		if !f.Main && strings.Contains(f.URL, hint) {
			return f, true
		}
	}
	return headless.Frame{}, false
}

func secondFrame(frames []headless.Frame, _, _ string) (headless.Frame, bool) {
	if len(frames) > 1 {
		return frames[1], true
	}
	return headless.Frame{}, false
}

func mainFrame(frames []headless.Frame, _, _ string) (headless.Frame, bool) {
	for _, f := range frames {
		if f.Main {
			return f, true
		}
	}
	if len(frames) > 0 {
		return frames[0], true
	}
	return headless.Frame{}, false
}

func lastSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	seg := path.Base(u.Path)
	if seg == "/" || seg == "." {
		return ""
	}
	return seg
}
