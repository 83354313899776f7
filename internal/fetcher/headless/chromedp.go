package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const hideWebdriverScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// Config controls how browser sessions are launched and how tabs identify
// themselves.
type Config struct {
	Headless       bool
	UserAgent      string
	AcceptLanguage string
	WindowWidth    int
	WindowHeight   int
	Locale         string
	Timezone       string
}

// Chromedp launches Chrome instances through chromedp.
type Chromedp struct {
	cfg    Config
	logger *zap.Logger
}

// NewChromedp builds a chromedp-backed Driver.
func NewChromedp(cfg Config, logger *zap.Logger) *Chromedp {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WindowWidth <= 0 {
		cfg.WindowWidth = 1920
	}
	if cfg.WindowHeight <= 0 {
		cfg.WindowHeight = 1080
	}
	return &Chromedp{cfg: cfg, logger: logger}
}

// Launch starts up to n browsers concurrently. Sessions that fail to start
// are logged and skipped; zero successes is an error.
func (c *Chromedp) Launch(ctx context.Context, n int) ([]Session, error) {
	var (
		mu       sync.Mutex
		sessions []Session
		lastErr  error
	)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			s, err := c.launchOne(ctx, i)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				c.logger.Warn("browser launch failed", zap.Int("context", i), zap.Error(err))
				return nil
			}
			sessions = append(sessions, s)
			return nil
		})
	}
	_ = g.Wait()

	if len(sessions) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoSessions, lastErr)
		}
		return nil, ErrNoSessions
	}
	sort.Slice(sessions, func(a, b int) bool { return sessions[a].Index() < sessions[b].Index() })
	// Indices must be dense for per-context accounting.
	for i, s := range sessions {
		s.(*chromeSession).index = i
	}
	c.logger.Info("browsers launched", zap.Int("requested", n), zap.Int("running", len(sessions)))
	return sessions, nil
}

func (c *Chromedp) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if c.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.WindowSize(c.cfg.WindowWidth, c.cfg.WindowHeight),
	)
	if c.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.cfg.UserAgent))
	}
	return opts
}

func (c *Chromedp) launchOne(ctx context.Context, index int) (*chromeSession, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), c.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := ctx.Err(); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("launch canceled: %w", err)
	}
	// The first Run allocates the browser and binds it to the context it is
	// given, so it must be the browser context itself.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	return &chromeSession{
		index:         index,
		cfg:           c.cfg,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

type chromeSession struct {
	index         int
	cfg           Config
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func (s *chromeSession) Index() int { return s.index }

// NewPage opens a tab and applies the browser identity to it.
func (s *chromeSession) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	tabCtx, cancel := chromedp.NewContext(s.browserCtx)
	// The tab's event loop lives on the context of its first Run.
	if err := chromedp.Run(tabCtx, s.setupAction()); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return &chromePage{tabCtx: tabCtx, cancel: cancel}, nil
}

func (s *chromeSession) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			ua := emulation.SetUserAgentOverride(s.cfg.UserAgent)
			if s.cfg.AcceptLanguage != "" {
				ua = ua.WithAcceptLanguage(s.cfg.AcceptLanguage)
			}
			if err := ua.Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if s.cfg.AcceptLanguage != "" {
			headers := network.Headers{"Accept-Language": s.cfg.AcceptLanguage}
			if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		if err := emulation.SetDeviceMetricsOverride(int64(s.cfg.WindowWidth), int64(s.cfg.WindowHeight), 1, false).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		if s.cfg.Locale != "" {
			if err := emulation.SetLocaleOverride().WithLocale(s.cfg.Locale).Do(ctx); err != nil {
				return fmt.Errorf("set locale: %w", err)
			}
		}
		if s.cfg.Timezone != "" {
			if err := emulation.SetTimezoneOverride(s.cfg.Timezone).Do(ctx); err != nil {
				return fmt.Errorf("set timezone: %w", err)
			}
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriverScript).Do(ctx); err != nil {
			return fmt.Errorf("install init script: %w", err)
		}
		return nil
	})
}

// Close shuts the browser down.
func (s *chromeSession) Close() error {
	s.browserCancel()
	s.allocCancel()
	return nil
}

type chromePage struct {
	tabCtx context.Context
	cancel context.CancelFunc
	worlds worldCache
}

// worldCache holds the isolated execution context created for each frame of
// the current document. Navigation invalidates every entry.
type worldCache struct {
	mu  sync.Mutex
	ids map[string]runtime.ExecutionContextID
}

// get returns the cached context for frameID, creating one on a miss.
func (c *worldCache) get(frameID string, create func() (runtime.ExecutionContextID, error)) (runtime.ExecutionContextID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.ids[frameID]; ok {
		return id, nil
	}
	id, err := create()
	if err != nil {
		return 0, err
	}
	if c.ids == nil {
		c.ids = make(map[string]runtime.ExecutionContextID)
	}
	c.ids[frameID] = id
	return id, nil
}

func (c *worldCache) drop(frameID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ids, frameID)
}

func (c *worldCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = nil
}

// run executes actions on the tab while honoring ctx's deadline and
// cancellation.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	p.worlds.reset()
	defer p.worlds.reset()
	return p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (p *chromePage) Frames(ctx context.Context) ([]Frame, error) {
	var frames []Frame
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return fmt.Errorf("get frame tree: %w", err)
		}
		frames = flattenFrames(tree)
		return nil
	}))
	return frames, err
}

// Evaluate runs script in an isolated world of the frame. The world is reused
// across calls until the page navigates.
func (p *chromePage) Evaluate(ctx context.Context, frameID, script string, out any) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		create := func() (runtime.ExecutionContextID, error) {
			id, err := page.CreateIsolatedWorld(cdp.FrameID(frameID)).WithWorldName("scraper").Do(ctx)
			if err != nil {
				return 0, fmt.Errorf("create isolated world: %w", err)
			}
			return id, nil
		}
		return evaluateInWorld(&p.worlds, frameID, create, func(id runtime.ExecutionContextID) error {
			obj, exc, err := runtime.Evaluate(script).
				WithContextID(id).
				WithReturnByValue(true).
				WithAwaitPromise(true).
				Do(ctx)
			if err != nil {
				return &contextError{err: err}
			}
			if exc != nil {
				return fmt.Errorf("evaluate: script threw: %s", exc.Text)
			}
			if out == nil || obj == nil || len(obj.Value) == 0 {
				return nil
			}
			if err := json.Unmarshal([]byte(obj.Value), out); err != nil {
				return fmt.Errorf("decode evaluation result: %w", err)
			}
			return nil
		})
	}))
}

// contextError is a protocol failure of Runtime.evaluate, typically a world
// destroyed by a frame navigating on its own.
type contextError struct {
	err error
}

func (e *contextError) Error() string {
	return "evaluate: " + e.err.Error()
}

func (e *contextError) Unwrap() error {
	return e.err
}

// evaluateInWorld runs eval against the frame's cached world. A contextError
// drops the world and retries once in a fresh one.
func evaluateInWorld(
	worlds *worldCache,
	frameID string,
	create func() (runtime.ExecutionContextID, error),
	eval func(runtime.ExecutionContextID) error,
) error {
	id, err := worlds.get(frameID, create)
	if err != nil {
		return err
	}
	err = eval(id)
	var lost *contextError
	if !errors.As(err, &lost) {
		return err
	}
	worlds.drop(frameID)
	id, err = worlds.get(frameID, create)
	if err != nil {
		return err
	}
	return eval(id)
}

func (p *chromePage) Close() error {
	err := chromedp.Cancel(p.tabCtx)
	p.cancel()
	if err != nil {
		return fmt.Errorf("close tab: %w", err)
	}
	return nil
}

// flattenFrames lists a frame tree depth first, main frame first.
func flattenFrames(tree *page.FrameTree) []Frame {
	var out []Frame
	var walk func(t *page.FrameTree, main bool)
	walk = func(t *page.FrameTree, main bool) {
		if t == nil || t.Frame == nil {
			return
		}
		out = append(out, Frame{ID: string(t.Frame.ID), URL: t.Frame.URL, Main: main})
		for _, child := range t.ChildFrames {
			walk(child, false)
		}
	}
	walk(tree, true)
	return out
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
