// Package loop provides the single-threaded scheduler that every session
// component runs on. Component callbacks, timer fires and the continuations of
// network calls all execute on the loop goroutine, one at a time, so component
// state needs no locking.
package loop

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/triviasync/internal/dependencies/clock"
)

// Loop is a cooperative event loop
type Loop struct {
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []func()
	inFlight int
	wake     chan struct{}
}

// New creates a Loop. Nothing runs until Run, Flush or Settle is called.
func New(clk clock.Clock, logger *slog.Logger) *Loop {
	l := &Loop{
		clock:  clk,
		logger: logger.With(slog.String("component", "loop")),
		wake:   make(chan struct{}, 1),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Clock returns the clock timers are scheduled on
func (l *Loop) Clock() clock.Clock {
	return l.clock
}

// Post queues fn to run on the loop. Safe to call from any goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.cond.Broadcast()
	l.mu.Unlock()
	l.signal()
}

// After runs fn on the loop once d has elapsed, unless the returned timer is
// stopped first.
func (l *Loop) After(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.inner = l.clock.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped {
				return
			}
			t.fired = true
			fn()
		})
	})
	return t
}

// Go runs call off the loop and posts the continuation it returns back onto
// the loop. A nil continuation is skipped.
func (l *Loop) Go(ctx context.Context, call func(ctx context.Context) func()) {
	l.mu.Lock()
	l.inFlight++
	l.mu.Unlock()

	go func() {
		next := call(ctx)

		l.mu.Lock()
		l.inFlight--
		if next != nil {
			l.queue = append(l.queue, next)
		}
		l.cond.Broadcast()
		l.mu.Unlock()
		l.signal()
	}()
}

// Call runs fn off the loop and delivers its result to done on the loop
func Call[T any](l *Loop, ctx context.Context, fn func(ctx context.Context) (T, error), done func(T, error)) {
	l.Go(ctx, func(ctx context.Context) func() {
		v, err := fn(ctx)
		return func() { done(v, err) }
	})
}

// Run executes queued work until ctx is cancelled
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug("loop started")
	for {
		l.Flush()
		select {
		case <-ctx.Done():
			l.logger.Debug("loop stopped")
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Flush runs everything currently queued, including work queued while
// flushing, and returns once the queue is empty. In-flight calls are not
// waited for.
func (l *Loop) Flush() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.run(fn)
	}
}

// Settle flushes the queue and waits for in-flight calls until the loop is
// idle. Must not be used while Run is active on another goroutine.
func (l *Loop) Settle() {
	for {
		l.Flush()

		l.mu.Lock()
		for l.inFlight > 0 && len(l.queue) == 0 {
			l.cond.Wait()
		}
		idle := l.inFlight == 0 && len(l.queue) == 0
		l.mu.Unlock()

		if idle {
			return
		}
	}
}

// Idle reports whether nothing is queued or in flight
func (l *Loop) Idle() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight == 0 && len(l.queue) == 0
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("panic in loop task", slog.Any("panic", r))
		}
	}()
	fn()
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Timer is a pending After call. Its methods must be called on the loop.
type Timer struct {
	inner   clock.Timer
	stopped bool
	fired   bool
}

// Stop cancels the timer. Safe to call more than once and on a nil Timer.
func (t *Timer) Stop() {
	if t == nil || t.stopped {
		return
	}
	t.stopped = true
	t.inner.Stop()
}

// Active reports whether the timer is still due to fire
func (t *Timer) Active() bool {
	return t != nil && !t.stopped && !t.fired
}
