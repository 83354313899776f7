// Package pool shares a fixed set of browser sessions between concurrent
// scrape tasks.
package pool

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/metadata-scraper/internal/fetcher/headless"
	"github.com/JakeFAU/metadata-scraper/internal/metrics"
)

// ErrClosed is returned by Acquire once the pool is closed.
var ErrClosed = errors.New("pool: closed")

// Lease is a checked-out slot on one session.
type Lease struct {
	Index   int
	Session headless.Session
	release func()
	once    sync.Once
}

// Release returns the slot. Calling it more than once is a no-op.
func (l *Lease) Release() {
	l.once.Do(l.release)
}

// Pool hands out at most perContext concurrent leases per session. Each
// session's slots are a buffered channel; a send takes a slot and a receive
// frees it.
type Pool struct {
	sessions   []headless.Session
	slots      []chan struct{}
	perContext int
	cursor     atomic.Uint64
	closed     chan struct{}
	closeOnce  sync.Once
	logger     *zap.Logger
}

// New builds a pool over sessions.
func New(sessions []headless.Session, perContext int, logger *zap.Logger) (*Pool, error) {
	if len(sessions) == 0 {
		return nil, headless.ErrNoSessions
	}
	if perContext <= 0 {
		return nil, fmt.Errorf("per-context concurrency must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	slots := make([]chan struct{}, len(sessions))
	for i := range slots {
		slots[i] = make(chan struct{}, perContext)
	}
	return &Pool{
		sessions:   sessions,
		slots:      slots,
		perContext: perContext,
		closed:     make(chan struct{}),
		logger:     logger,
	}, nil
}

// Size returns the number of sessions.
func (p *Pool) Size() int { return len(p.sessions) }

// Capacity returns the total number of concurrent leases.
func (p *Pool) Capacity() int { return len(p.sessions) * p.perContext }

// InUse returns the outstanding leases on session i.
func (p *Pool) InUse(i int) int { return len(p.slots[i]) }

// Acquire checks out a slot, trying every session once in round-robin order
// and otherwise blocking until any slot frees up or ctx ends.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	start := time.Now()
	select {
	case <-p.closed:
		return nil, ErrClosed
	default:
	}

	n := len(p.slots)
	first := int((p.cursor.Add(1) - 1) % uint64(n))
	for k := 0; k < n; k++ {
		i := (first + k) % n
		select {
		case p.slots[i] <- struct{}{}:
			return p.lease(i, start), nil
		default:
		}
	}

	cases := make([]reflect.SelectCase, 0, n+2)
	token := reflect.ValueOf(struct{}{})
	for _, ch := range p.slots {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectSend, Chan: reflect.ValueOf(ch), Send: token})
	}
	cases = append(cases,
		reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())},
		reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(p.closed)},
	)
	chosen, _, _ := reflect.Select(cases)
	switch chosen {
	case n:
		return nil, fmt.Errorf("acquire context slot: %w", ctx.Err())
	case n + 1:
		return nil, ErrClosed
	}
	return p.lease(chosen, start), nil
}

func (p *Pool) lease(i int, start time.Time) *Lease {
	metrics.ObserveContextAcquire(time.Since(start))
	metrics.SetActivePages(i, len(p.slots[i]))
	return &Lease{
		Index:   i,
		Session: p.sessions[i],
		release: func() {
			<-p.slots[i]
			metrics.SetActivePages(i, len(p.slots[i]))
		},
	}
}

// Close stops handing out leases and shuts every session down.
func (p *Pool) Close() error {
	var errs []error
	p.closeOnce.Do(func() {
		close(p.closed)
		for _, s := range p.sessions {
			if err := s.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close session %d: %w", s.Index(), err))
			}
		}
		p.logger.Info("context pool closed", zap.Int("sessions", len(p.sessions)))
	})
	return errors.Join(errs...)
}
