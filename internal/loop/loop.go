package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned when work is submitted to a stopped loop.
var ErrClosed = errors.New("loop closed")

// DefaultDrainPoll is how often Drain re-checks for outstanding timers.
const DefaultDrainPoll = time.Millisecond

// Poster schedules a function on a loop. Implemented by *Loop; packages
// that only need to post work depend on this instead.
type Poster interface {
	Post(fn func()) bool
}

// Loop is the single-goroutine cooperative task loop.
//
// Thread-safety model:
//   - Post, After, Do, Drain, Stop: safe from any goroutine
//   - OnTurnEnd: call before Run
//   - Run: must be called from exactly one goroutine
//   - Do and Drain must not be called from a task (they would wait on
//     themselves)
type Loop struct {
	queue  *taskQueue
	clock  *Clock
	logger *slog.Logger

	hooksMu sync.Mutex
	hooks   []func()

	armed    atomic.Int64 // timers whose callback task has not run yet
	stopOnce sync.Once
	stopped  chan struct{}
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used for task panics and lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(lp *Loop) {
		lp.logger = l
	}
}

// WithClock installs a pre-configured clock.
func WithClock(c *Clock) Option {
	return func(lp *Loop) {
		lp.clock = c
	}
}

// New creates a loop. Nothing runs until Run is called.
func New(opts ...Option) *Loop {
	l := &Loop{
		queue:   newTaskQueue(),
		clock:   NewClock(),
		logger:  slog.Default(),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Clock returns the loop's logical clock.
func (l *Loop) Clock() *Clock {
	return l.clock
}

// OnTurnEnd registers a hook that runs after every task, in registration
// order, on the loop goroutine.
func (l *Loop) OnTurnEnd(hook func()) {
	l.hooksMu.Lock()
	defer l.hooksMu.Unlock()
	l.hooks = append(l.hooks, hook)
}

// Post queues fn to run as its own turn. Returns false if the loop is
// stopped.
func (l *Loop) Post(fn func()) bool {
	return l.queue.enqueue(task{fn: fn})
}

// Timer is a pending After callback.
type Timer struct {
	t     *time.Timer
	loop  *Loop
	fired atomic.Bool
}

// Stop cancels the timer. Returns true if the callback will not run.
func (t *Timer) Stop() bool {
	if t.t.Stop() && t.fired.CompareAndSwap(false, true) {
		t.loop.armed.Add(-1)
		return true
	}
	return false
}

// After runs fn as a task once d has elapsed. It is the loop's setTimeout.
func (l *Loop) After(d time.Duration, fn func()) *Timer {
	l.armed.Add(1)
	tm := &Timer{loop: l}
	tm.t = time.AfterFunc(d, func() {
		ok := l.Post(func() {
			if tm.fired.CompareAndSwap(false, true) {
				l.armed.Add(-1)
			}
			fn()
		})
		if !ok && tm.fired.CompareAndSwap(false, true) {
			l.armed.Add(-1)
		}
	})
	return tm
}

// Do runs fn on the loop and waits for it, including the end-of-turn hooks
// that follow it. A panic in fn is returned as an error.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	var panicErr error
	done := make(chan struct{})
	ok := l.queue.enqueue(task{
		fn: func() {
			defer func() {
				if r := recover(); r != nil {
					panicErr = fmt.Errorf("task panicked: %v", r)
				}
			}()
			fn()
		},
		done: done,
	})
	if !ok {
		return ErrClosed
	}

	select {
	case <-done:
		return panicErr
	case <-l.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain waits until no tasks are queued and no timers are armed. Work
// scheduled by tasks during the drain is waited for as well.
func (l *Loop) Drain(ctx context.Context) error {
	for {
		if err := l.Do(ctx, func() {}); err != nil {
			return err
		}
		if l.queue.len() == 0 && l.armed.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stopped:
			return ErrClosed
		case <-time.After(DefaultDrainPoll):
		}
	}
}

// Pending returns the number of queued tasks plus armed timers.
func (l *Loop) Pending() int {
	return l.queue.len() + int(l.armed.Load())
}

// Run executes tasks until ctx is cancelled or Stop is called. ctx is
// checked before every turn, so a task stream that never empties the queue
// still stops.
//
// Must be called from exactly one goroutine. A panicking task is logged
// and the loop continues; other tasks are unaffected.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug("loop starting")
	defer l.markStopped()

	for {
		if err := ctx.Err(); err != nil {
			l.logger.Debug("loop stopping: context cancelled")
			l.queue.close()
			return err
		}
		if t, ok := l.queue.tryDequeue(); ok {
			l.runTurn(t)
			continue
		}

		select {
		case <-ctx.Done():
			l.logger.Debug("loop stopping: context cancelled")
			l.queue.close()
			return ctx.Err()
		case <-l.queue.wait():
			if l.queue.isClosed() && l.queue.len() == 0 {
				l.logger.Debug("loop stopping: closed")
				return nil
			}
		}
	}
}

// Stop closes the queue; Run returns once the current turn finishes.
func (l *Loop) Stop() {
	l.queue.close()
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.stopped
}

func (l *Loop) markStopped() {
	l.stopOnce.Do(func() {
		close(l.stopped)
	})
}

func (l *Loop) runTurn(t task) {
	l.safely("task", t.fn)

	l.hooksMu.Lock()
	hooks := append([]func(){}, l.hooks...)
	l.hooksMu.Unlock()
	for _, h := range hooks {
		l.safely("turn hook", h)
	}

	if t.done != nil {
		close(t.done)
	}
}

func (l *Loop) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop: recovered panic", "in", what, "panic", r)
		}
	}()
	fn()
}
