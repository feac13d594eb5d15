// Package promise provides a two-outcome future whose settlement and
// continuations run as tasks on a loop.
//
// A promise settles exactly once. Continuations registered with Then,
// Catch or Handle run in registration order, each as its own loop task,
// after the promise settles. A continuation may return another *Promise,
// which the derived promise adopts.
package promise

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roach88/restrictedstore/internal/loop"
)

// State is the settlement state of a promise.
type State int

const (
	Pending State = iota
	Fulfilled
	Rejected
)

func (s State) String() string {
	switch s {
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "pending"
	}
}

// ErrRejected is the reason used when reject is called with a nil error.
var ErrRejected = errors.New("promise rejected")

// Executor starts the computation. resolve and reject may be called from
// any goroutine; only the first call of either has an effect.
type Executor func(resolve func(any), reject func(error))

// OnFulfilled handles a fulfilled value. Returning a *Promise adopts it.
type OnFulfilled func(value any) (any, error)

// OnRejected handles a rejection reason. Returning a nil error recovers.
type OnRejected func(reason error) (any, error)

// Promise is a settle-once future bound to a loop.
type Promise struct {
	poster loop.Poster

	claimed atomic.Bool // first resolve/reject wins

	mu        sync.Mutex
	state     State
	value     any
	err       error
	reactions []func()
	done      chan struct{}
}

func newPending(p loop.Poster) *Promise {
	return &Promise{poster: p, done: make(chan struct{})}
}

// New creates a promise and runs executor synchronously. A panic in the
// executor rejects the promise.
func New(p loop.Poster, executor Executor) *Promise {
	pr := newPending(p)
	resolve, reject := pr.resolvers()
	func() {
		defer func() {
			if r := recover(); r != nil {
				reject(fmt.Errorf("executor panicked: %v", r))
			}
		}()
		executor(resolve, reject)
	}()
	return pr
}

// Resolve returns a promise fulfilled with v (or adopting v if it is a
// *Promise).
func Resolve(p loop.Poster, v any) *Promise {
	return New(p, func(resolve func(any), _ func(error)) { resolve(v) })
}

// Reject returns a promise rejected with err.
func Reject(p loop.Poster, err error) *Promise {
	return New(p, func(_ func(any), reject func(error)) { reject(err) })
}

func (pr *Promise) resolvers() (func(any), func(error)) {
	resolve := func(v any) {
		if !pr.claimed.CompareAndSwap(false, true) {
			return
		}
		pr.adopt(v)
	}
	reject := func(err error) {
		if !pr.claimed.CompareAndSwap(false, true) {
			return
		}
		if err == nil {
			err = ErrRejected
		}
		pr.poster.Post(func() { pr.settle(Rejected, nil, err) })
	}
	return resolve, reject
}

// adopt settles pr with v, following v if it is itself a promise.
func (pr *Promise) adopt(v any) {
	inner, ok := v.(*Promise)
	if !ok {
		pr.poster.Post(func() { pr.settle(Fulfilled, v, nil) })
		return
	}
	if inner == pr {
		pr.poster.Post(func() {
			pr.settle(Rejected, nil, errors.New("promise resolved with itself"))
		})
		return
	}
	inner.react(func() {
		st, val, err := inner.result()
		pr.settle(st, val, err)
	})
}

// settle must run on the loop.
func (pr *Promise) settle(st State, v any, err error) {
	pr.mu.Lock()
	if pr.state != Pending {
		pr.mu.Unlock()
		return
	}
	pr.state, pr.value, pr.err = st, v, err
	reactions := pr.reactions
	pr.reactions = nil
	close(pr.done)
	pr.mu.Unlock()

	for _, r := range reactions {
		pr.poster.Post(r)
	}
}

// react schedules fn once pr settles; immediately if it already has.
func (pr *Promise) react(fn func()) {
	pr.mu.Lock()
	if pr.state == Pending {
		pr.reactions = append(pr.reactions, fn)
		pr.mu.Unlock()
		return
	}
	pr.mu.Unlock()
	pr.poster.Post(fn)
}

func (pr *Promise) result() (State, any, error) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.state, pr.value, pr.err
}

// Handle registers both continuations and returns the derived promise.
// A nil handler passes the outcome through unchanged.
func (pr *Promise) Handle(onFulfilled OnFulfilled, onRejected OnRejected) *Promise {
	child := newPending(pr.poster)
	resolve, reject := child.resolvers()

	pr.react(func() {
		st, val, err := pr.result()

		defer func() {
			if r := recover(); r != nil {
				reject(fmt.Errorf("continuation panicked: %v", r))
			}
		}()

		var (
			out    any
			outErr error
		)
		switch {
		case st == Fulfilled && onFulfilled != nil:
			out, outErr = onFulfilled(val)
		case st == Fulfilled:
			out = val
		case onRejected != nil:
			out, outErr = onRejected(err)
		default:
			outErr = err
		}

		if outErr != nil {
			reject(outErr)
			return
		}
		resolve(out)
	})
	return child
}

// Then registers a fulfillment continuation. Rejections pass through.
func (pr *Promise) Then(onFulfilled OnFulfilled) *Promise {
	return pr.Handle(onFulfilled, nil)
}

// Catch registers a rejection continuation. Values pass through.
func (pr *Promise) Catch(onRejected OnRejected) *Promise {
	return pr.Handle(nil, onRejected)
}

// State returns the current settlement state.
func (pr *Promise) State() State {
	st, _, _ := pr.result()
	return st
}

// Done is closed once the promise settles.
func (pr *Promise) Done() <-chan struct{} {
	return pr.done
}

// Await blocks until the promise settles or ctx ends. It must not be
// called from a loop task: the settlement it waits for runs on the loop.
func (pr *Promise) Await(ctx context.Context) (any, error) {
	select {
	case <-pr.done:
		_, v, err := pr.result()
		return v, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
