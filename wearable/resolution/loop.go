package resolution

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"
)

// ErrLoopStopped is returned by Do once the loop has returned.
var ErrLoopStopped = errors.New("resolution loop stopped")

// System is advanced once per loop tick.
type System interface {
	Tick()
}

// Loop is the single goroutine that owns the driver state. Systems are ticked
// in order; work submitted with Do runs between ticks.
type Loop struct {
	systems  []System
	interval time.Duration
	logger   logr.Logger
	work     chan func()
	stopped  chan struct{}
}

// NewLoop creates a loop ticking systems every interval.
func NewLoop(interval time.Duration, logger logr.Logger, systems ...System) *Loop {
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	return &Loop{
		systems:  systems,
		interval: interval,
		logger:   logger.WithName("loop"),
		work:     make(chan func()),
		stopped:  make(chan struct{}),
	}
}

// Run ticks until ctx is done. It blocks.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.stopped)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.V(1).Info("starting resolution loop", "interval", l.interval, "systems", len(l.systems))
	for {
		select {
		case <-ctx.Done():
			l.logger.V(1).Info("resolution loop shutting down")
			return nil
		case fn := <-l.work:
			fn()
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Tick runs one pass over all systems on the calling goroutine.
func (l *Loop) Tick() {
	for _, s := range l.systems {
		s.Tick()
	}
}

// Do runs fn on the loop goroutine and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case l.work <- func() { defer close(done); fn() }:
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
