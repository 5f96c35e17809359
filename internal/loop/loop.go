// Package loop runs all bus handling, call completions and control
// requests one at a time on a single goroutine.
package loop

import (
	"context"
	"log/slog"
	"sync"
)

// Loop is a single-goroutine work queue.
type Loop struct {
	logger *slog.Logger
	queue  chan func()
	done   chan struct{}
	stop   sync.Once
}

// New returns a loop whose queue holds up to depth pending functions.
func New(logger *slog.Logger, depth int) *Loop {
	return &Loop{
		logger: logger,
		queue:  make(chan func(), depth),
		done:   make(chan struct{}),
	}
}

// Post queues fn. It blocks while the queue is full and reports false once
// the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for it to finish. It must not be called
// from the loop itself.
func (l *Loop) Do(fn func()) bool {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-l.done:
		return false
	}
}

// Run executes queued functions until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	defer l.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.queue:
			fn()
		}
	}
}

// Stop makes the loop refuse further work. Queued functions are dropped.
func (l *Loop) Stop() {
	l.stop.Do(func() {
		close(l.done)
		l.logger.Debug("event loop stopped")
	})
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
