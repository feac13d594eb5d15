package store

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/restrictedstore/internal/promise"
)

// State is the validity state of a wrapped model.
type State string

const (
	// StateValid means no promise is outstanding and none failed.
	StateValid State = "valid"

	// StatePending means at least one promise is outstanding.
	StatePending State = "pending"

	// StateInvalid means a promise was rejected.
	StateInvalid State = "invalid"
)

func (s State) String() string { return string(s) }

// ModelState returns the validity state of id.
func (s *Store) ModelState(id string) (State, error) {
	e, err := s.lookup("model state", id)
	if err != nil {
		return "", err
	}
	return e.state, nil
}

// CreatePromise runs executor synchronously and ties the resulting promise
// to id's validity state. The state is pending when CreatePromise returns.
//
// The returned promise settles like the inner one, with the same value or
// reason, after the state transition has been applied. The executor may
// mutate the model; those mutations reach observers as usual.
func (s *Store) CreatePromise(id string, executor promise.Executor) (*promise.Promise, error) {
	e, err := s.lookup("create promise", id)
	if err != nil {
		return nil, err
	}

	e.pending++
	e.rejected = false
	s.metrics.pending.Inc()
	s.metrics.promises.WithLabelValues("created").Inc()
	s.transition(e, StatePending)

	_, span := s.tracer.Start(context.Background(), "store.promise",
		trace.WithAttributes(attribute.String("model.id", id)),
	)

	inner := promise.New(s.loop, executor)
	return inner.Handle(
		func(v any) (any, error) {
			s.settled(e, nil)
			span.SetStatus(codes.Ok, "")
			span.End()
			return v, nil
		},
		func(reason error) (any, error) {
			s.settled(e, reason)
			span.RecordError(reason)
			span.SetStatus(codes.Error, reason.Error())
			span.End()
			return nil, reason
		},
	), nil
}

// settled applies one promise outcome to e. Effects apply even when no
// observer is left; an unwrapped entry is updated but no longer reported.
func (s *Store) settled(e *entry, reason error) {
	if e.pending > 0 {
		e.pending--
		if !e.closed {
			s.metrics.pending.Dec()
		}
	}

	if reason != nil {
		s.metrics.promises.WithLabelValues("rejected").Inc()
		e.rejected = true
		s.logger.Debug("store: promise rejected", "model", e.id, "error", reason)
		s.transition(e, StateInvalid)
		return
	}

	s.metrics.promises.WithLabelValues("fulfilled").Inc()
	if e.pending == 0 && !e.rejected {
		s.transition(e, StateValid)
	}
}

func (s *Store) transition(e *entry, to State) {
	from := e.state
	if from == to {
		return
	}
	e.state = to
	if e.closed {
		return
	}

	s.metrics.transitions.WithLabelValues(string(to)).Inc()
	pending := e.pending
	s.record(func(r Recorder, seq int64) error {
		return r.RecordTransition(seq, e.id, from, to, pending)
	})
	s.logger.Debug("store: state transition",
		"model", e.id,
		"from", from,
		"to", to,
		"pending", pending,
	)
}
