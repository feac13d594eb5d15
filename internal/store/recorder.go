package store

import (
	"github.com/roach88/restrictedstore/internal/feed"
	"github.com/roach88/restrictedstore/internal/model"
)

// Recorder receives every registry event as it happens. The change
// journal implements it. Sequence numbers come from the loop clock, the
// same clock that stamps batches, so records from all models interleave
// in a single order.
type Recorder interface {
	RecordWrap(seq int64, id string, snapshot model.Object) error
	RecordChange(seq int64, id string, snapshot model.Object) error
	RecordBatch(id string, b feed.Batch) error
	RecordTransition(seq int64, id string, from, to State, pending int) error
	RecordUnwrap(seq int64, id string) error
}

type nopRecorder struct{}

func (nopRecorder) RecordWrap(int64, string, model.Object) error            { return nil }
func (nopRecorder) RecordChange(int64, string, model.Object) error          { return nil }
func (nopRecorder) RecordBatch(string, feed.Batch) error                    { return nil }
func (nopRecorder) RecordTransition(int64, string, State, State, int) error { return nil }
func (nopRecorder) RecordUnwrap(int64, string) error                        { return nil }

// record calls fn with a fresh sequence number. Recorder failures are
// logged and counted; they never fail the store operation.
func (s *Store) record(fn func(r Recorder, seq int64) error) {
	if _, ok := s.recorder.(nopRecorder); ok {
		return
	}
	if err := fn(s.recorder, s.loop.Clock().Next()); err != nil {
		s.metrics.recordErrors.Inc()
		s.logger.Error("store: recorder failed", "error", err)
	}
}
