// Package eventloop serializes all game-state handling onto one goroutine.
package eventloop

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/park285/winchance-agent/internal/metrics"
)

var ErrClosed = errors.New("event loop closed")

// Stopper cancels a scheduled callback. Stop reports whether the callback
// was still pending.
type Stopper interface {
	Stop() bool
}

// Scheduler is what handlers need from the loop: a thread-safe handoff and
// cancelable delayed callbacks. Both run fn on the loop goroutine.
type Scheduler interface {
	Post(fn func()) bool
	After(d time.Duration, fn func()) Stopper
}

// Loop runs posted funcs one at a time in post order.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}

	logger *zap.Logger
}

func New(logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{wake: make(chan struct{}, 1), logger: logger}
}

// Post enqueues fn. Safe from any goroutine; never blocks.
func (l *Loop) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// After posts fn once d has elapsed unless the returned Stopper fires first.
// A Stop issued on the loop before fn runs always wins.
func (l *Loop) After(d time.Duration, fn func()) Stopper {
	t := &timer{}
	t.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped.Swap(true) {
				return
			}
			fn()
		})
	})
	return t
}

// Do runs fn on the loop and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes posted funcs until ctx is done. Tasks still queued at that
// point are dropped.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			if ctx.Err() != nil {
				break
			}
			l.safeRun(fn)
		}
		if ctx.Err() != nil {
			l.close()
			return nil
		}
		if len(batch) > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			l.close()
			return nil
		case <-l.wake:
		}
	}
}

func (l *Loop) close() {
	l.mu.Lock()
	l.closed = true
	l.queue = nil
	l.mu.Unlock()
}

func (l *Loop) safeRun(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.LoopPanics.Inc()
			l.logger.Error("loop_task_panic", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
	}()
	fn()
}

type timer struct {
	t       *time.Timer
	stopped atomic.Bool
}

func (t *timer) Stop() bool {
	if t.stopped.Swap(true) {
		return false
	}
	t.t.Stop()
	return true
}

// Go runs fn on a new goroutine and logs instead of crashing on panic.
func Go(logger *zap.Logger, name string, fn func()) {
	if logger == nil {
		logger = zap.NewNop()
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				metrics.LoopPanics.Inc()
				logger.Error("background_task_panic", zap.String("task", name), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			}
		}()
		fn()
	}()
}
