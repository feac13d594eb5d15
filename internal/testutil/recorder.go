package testutil

import (
	"sync"

	"github.com/roach88/restrictedstore/internal/model"
)

// Recorder is a notification callback that keeps a deep copy of every
// payload plus the last payload itself, for identity checks.
//
// Notify runs on the loop; the accessors may be called from the test
// goroutine.
type Recorder struct {
	mu    sync.Mutex
	calls []model.Object
	last  model.Object
}

// Notify records obj.
func (r *Recorder) Notify(obj model.Object) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, model.MustClone(obj))
	r.last = obj
}

// Calls returns the recorded payload copies in delivery order.
func (r *Recorder) Calls() []model.Object {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Object(nil), r.calls...)
}

// Len returns the number of notifications received.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Last returns the payload of the latest notification as delivered, not a
// copy. It is nil before the first notification.
func (r *Recorder) Last() model.Object {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Reset forgets every recorded notification.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.last = nil
}
