package store

import (
	"github.com/roach88/restrictedstore/internal/feed"
	"github.com/roach88/restrictedstore/internal/model"
)

// entry is the registry record for one wrapped model.
type entry struct {
	id    string
	model model.Object
	sub   feed.Subscription

	// observers in registration order.
	observers []*observer

	pending  int
	state    State
	rejected bool // a rejection happened in the current pending streak

	// generation increments on every Change; notifications built for an
	// older generation are dropped.
	generation uint64
	// notified is the latest generation observers have been notified of.
	notified uint64
	closed   bool
}

// Wrap registers m under id and starts watching it. The store does not
// copy or own m; the caller keeps mutating it directly.
func (s *Store) Wrap(id string, m model.Object) error {
	if _, ok := s.entries[id]; ok {
		return duplicateID("wrap", id)
	}
	if m == nil {
		return &model.UnsupportedValueError{Type: "nil model"}
	}

	e := &entry{id: id, model: m, state: StateValid}
	sub, err := s.feed.Subscribe(m, s.deliverer(e, e.generation))
	if err != nil {
		return err
	}
	e.sub = sub
	s.entries[id] = e

	s.metrics.entries.Inc()
	s.record(func(r Recorder, seq int64) error {
		return r.RecordWrap(seq, id, s.snapshot(m))
	})
	s.logger.Debug("store: wrapped model", "model", id)
	return nil
}

// Unwrap deregisters id, dropping its subscription, observers and mirrors.
// Promises still outstanding settle normally but no longer affect any
// registered state.
func (s *Store) Unwrap(id string) error {
	e, err := s.lookup("unwrap", id)
	if err != nil {
		return err
	}

	s.feed.Unsubscribe(e.sub)
	e.closed = true
	for _, o := range e.observers {
		o.release()
	}
	s.metrics.observers.Sub(float64(len(e.observers)))
	e.observers = nil
	delete(s.entries, id)

	s.metrics.entries.Dec()
	s.metrics.pending.Sub(float64(e.pending))
	s.record(func(r Recorder, seq int64) error {
		return r.RecordUnwrap(seq, id)
	})
	s.logger.Debug("store: unwrapped model", "model", id)
	return nil
}

// Change swaps the model behind id. Observers and mirrors are kept; every
// observer is notified with the new model's shape in a later turn, after
// all previously queued work. Validity state is untouched.
//
// The swap happens within the calling task, so no notification observes a
// half-swapped entry. If the new model is mutated before that notification
// runs, the feed batch carrying the mutation notifies instead and the swap
// notification is dropped.
func (s *Store) Change(id string, m model.Object) error {
	e, err := s.lookup("change", id)
	if err != nil {
		return err
	}
	if m == nil {
		return &model.UnsupportedValueError{Type: "nil model"}
	}

	// Subscribe first: an unsupported model fails before anything changes.
	gen := e.generation + 1
	sub, err := s.feed.Subscribe(m, s.deliverer(e, gen))
	if err != nil {
		return err
	}
	s.feed.Unsubscribe(e.sub)
	e.sub = sub
	e.model = m
	e.generation = gen

	s.record(func(r Recorder, seq int64) error {
		return r.RecordChange(seq, id, s.snapshot(m))
	})
	s.logger.Debug("store: changed model", "model", id, "generation", gen)

	s.loop.Post(func() {
		if e.closed || e.generation != gen || e.notified == gen {
			return
		}
		current, err := model.Clone(e.model)
		if err != nil {
			s.logger.Warn("store: cannot notify model change",
				"model", id,
				"error", err,
			)
			s.metrics.skipped.Inc()
			return
		}
		e.notified = gen
		s.dispatch(e, current, gen)
	})
	return nil
}

// Projection returns a fresh deep copy of the model registered under id.
// An unknown id is not an error: the result is (nil, nil).
func (s *Store) Projection(id string) (model.Object, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	return model.Clone(e.model)
}

// deliverer returns the feed callback for generation gen of e. Batches
// from a swapped-out model are ignored.
func (s *Store) deliverer(e *entry, gen uint64) func(feed.Batch) {
	return func(b feed.Batch) {
		if e.closed || e.generation != gen {
			return
		}
		e.notified = gen
		s.metrics.batches.Inc()
		s.record(func(r Recorder, _ int64) error {
			return r.RecordBatch(e.id, b)
		})
		s.dispatch(e, b.State, gen)
	}
}
