// Package headless drives browser sessions that render documentation pages.
package headless

import (
	"context"
	"errors"
)

// ErrNoSessions reports that not a single browser session could be started.
var ErrNoSessions = errors.New("headless: no browser sessions launched")

// Frame is one frame of a loaded page.
type Frame struct {
	ID   string
	URL  string
	Main bool
}

// Page is a single tab inside a session.
type Page interface {
	// Navigate loads url and waits until the document is ready.
	Navigate(ctx context.Context, url string) error
	// Frames lists the page's frames, main frame first.
	Frames(ctx context.Context) ([]Frame, error)
	// Evaluate runs script inside the frame and decodes its JSON result into out.
	Evaluate(ctx context.Context, frameID, script string, out any) error
	Close() error
}

// Session is a running browser instance.
type Session interface {
	Index() int
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Driver launches browser sessions.
type Driver interface {
	Launch(ctx context.Context, n int) ([]Session, error)
}
