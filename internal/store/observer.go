package store

import (
	"fmt"
	"reflect"

	"github.com/roach88/restrictedstore/internal/model"
)

// Callback receives change notifications. Callbacks are identified by
// interface equality, so the dynamic type must be comparable; pointer
// types (such as the one NewCallback returns) always are.
type Callback interface {
	Notify(obj model.Object)
}

type funcCallback struct {
	fn func(model.Object)
}

func (c *funcCallback) Notify(obj model.Object) { c.fn(obj) }

// NewCallback wraps fn as a Callback. Every call returns a distinct
// identity; keep the result to Unobserve later.
func NewCallback(fn func(model.Object)) Callback {
	return &funcCallback{fn: fn}
}

// MirrorMode selects what an observer receives.
type MirrorMode int

const (
	// MirrorNone delivers a fresh projection per notification.
	MirrorNone MirrorMode = iota

	// MirrorWeak merges model changes into a persistent mirror, leaving
	// caller edits to untouched keys alone.
	MirrorWeak

	// MirrorStrong overwrites a persistent mirror so it equals the model.
	MirrorStrong
)

func (m MirrorMode) String() string {
	switch m {
	case MirrorWeak:
		return "weak"
	case MirrorStrong:
		return "strong"
	default:
		return "none"
	}
}

// ObserveOption configures Observe.
type ObserveOption func(*observeConfig)

type observeConfig struct {
	mode MirrorMode
}

// WithMirror requests a mirror: weak when weak is true, strong otherwise.
func WithMirror(weak bool) ObserveOption {
	return func(c *observeConfig) {
		if weak {
			c.mode = MirrorWeak
		} else {
			c.mode = MirrorStrong
		}
	}
}

// WithMirrorMode sets the mirror mode directly.
func WithMirrorMode(m MirrorMode) ObserveOption {
	return func(c *observeConfig) {
		c.mode = m
	}
}

type observer struct {
	cb     Callback
	mode   MirrorMode
	mirror model.Object

	// base is the model state the mirror was last synced from. Weak sync
	// only touches keys whose value moved away from base.
	base model.Object

	removed bool
}

func (o *observer) release() {
	o.removed = true
	o.mirror = nil
	o.base = nil
}

// Observe registers cb on id and returns what the caller starts from:
// the mirror when a mirror is requested, otherwise a projection.
//
// Observing again with the same callback replaces the earlier
// registration in place; its mirror is dropped and a new one is built.
func (s *Store) Observe(id string, cb Callback, opts ...ObserveOption) (model.Object, error) {
	e, err := s.lookup("observe", id)
	if err != nil {
		return nil, err
	}
	if err := checkCallback(id, cb); err != nil {
		return nil, err
	}

	var cfg observeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	projection, err := model.Clone(e.model)
	if err != nil {
		return nil, err
	}
	o := &observer{cb: cb, mode: cfg.mode}
	if cfg.mode != MirrorNone {
		o.mirror = projection
		o.base = model.MustClone(projection)
	}

	replaced := false
	for i, existing := range e.observers {
		if existing.cb == cb {
			existing.release()
			e.observers[i] = o
			replaced = true
			break
		}
	}
	if !replaced {
		e.observers = append(e.observers, o)
		s.metrics.observers.Inc()
	}

	s.logger.Debug("store: observer registered",
		"model", id,
		"mirror", cfg.mode.String(),
		"replaced", replaced,
	)
	return projection, nil
}

// Unobserve removes cb from id. It takes effect immediately, including for
// a dispatch already in progress. Unknown ids and callbacks are ignored.
func (s *Store) Unobserve(id string, cb Callback) {
	e, ok := s.entries[id]
	if !ok || cb == nil || !reflect.TypeOf(cb).Comparable() {
		return
	}
	for i, o := range e.observers {
		if o.cb == cb {
			o.release()
			e.observers = append(e.observers[:i:i], e.observers[i+1:]...)
			s.metrics.observers.Dec()
			s.logger.Debug("store: observer removed", "model", id)
			return
		}
	}
}

func checkCallback(id string, cb Callback) error {
	if cb == nil {
		return &Error{Code: ErrCodeInvalidCallback, Op: "observe", ModelID: id, Message: "nil callback"}
	}
	if t := reflect.TypeOf(cb); !t.Comparable() {
		return &Error{
			Code:    ErrCodeInvalidCallback,
			Op:      "observe",
			ModelID: id,
			Message: fmt.Sprintf("callback type %s is not comparable", t),
		}
	}
	return nil
}

// dispatch notifies the observers of e with current, a read-only snapshot
// of the model. It iterates a copy of the list so registrations made by a
// callback wait for the next notification, and re-checks each observer so
// removals take effect immediately. A Change or Unwrap made by a callback
// ends the dispatch.
func (s *Store) dispatch(e *entry, current model.Object, gen uint64) {
	observers := append([]*observer(nil), e.observers...)
	for _, o := range observers {
		if e.closed || e.generation != gen {
			return
		}
		if o.removed {
			continue
		}

		payload, err := s.payload(o, current)
		if err != nil {
			s.logger.Warn("store: cannot build notification",
				"model", e.id,
				"mirror", o.mode.String(),
				"error", err,
			)
			s.metrics.skipped.Inc()
			continue
		}
		s.notify(e, o, payload)
	}
}

// payload syncs the observer's mirror or builds a projection.
func (s *Store) payload(o *observer, current model.Object) (model.Object, error) {
	var err error
	switch o.mode {
	case MirrorWeak:
		err = syncWeak(o.mirror, o.base, current)
	case MirrorStrong:
		err = syncStrong(o.mirror, current)
	default:
		return model.Clone(current)
	}
	if err != nil {
		return nil, err
	}
	o.base = current
	return o.mirror, nil
}

func (s *Store) notify(e *entry, o *observer, payload model.Object) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.panics.Inc()
			s.logger.Error("store: observer callback panicked",
				"model", e.id,
				"panic", r,
			)
		}
	}()
	s.metrics.notifications.WithLabelValues(o.mode.String()).Inc()
	o.cb.Notify(payload)
}
