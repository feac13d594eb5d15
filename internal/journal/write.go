package journal

import (
	"context"
	"fmt"

	"github.com/roach88/restrictedstore/internal/feed"
	"github.com/roach88/restrictedstore/internal/model"
	"github.com/roach88/restrictedstore/internal/store"
)

// Kind is the type of a journal event.
type Kind string

const (
	KindWrap       Kind = "wrap"
	KindChange     Kind = "change"
	KindBatch      Kind = "batch"
	KindTransition Kind = "transition"
	KindUnwrap     Kind = "unwrap"
)

// Event is one journal row.
type Event struct {
	Session     string
	Seq         int64
	ModelID     string
	Kind        Kind
	Payload     string // canonical JSON
	Fingerprint string // model fingerprint after the event; empty for transitions and unwraps
}

// WriteEvent inserts ev into the journal's session.
// Uses ON CONFLICT DO NOTHING for idempotency: a (session, seq) pair is
// written once.
func (j *Journal) WriteEvent(ctx context.Context, ev Event) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO events
		(session_id, seq, model_id, kind, payload, fingerprint)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`,
		j.session,
		ev.Seq,
		ev.ModelID,
		string(ev.Kind),
		ev.Payload,
		ev.Fingerprint,
	)
	if err != nil {
		return fmt.Errorf("write %s event: %w", ev.Kind, err)
	}
	return nil
}

// Recorder adapts a Journal to store.Recorder.
type Recorder struct {
	j   *Journal
	ctx context.Context
}

var _ store.Recorder = (*Recorder)(nil)

// Recorder returns a store.Recorder writing to j. ctx bounds every write.
func (j *Journal) Recorder(ctx context.Context) *Recorder {
	return &Recorder{j: j, ctx: ctx}
}

func (r *Recorder) snapshot(seq int64, kind Kind, id string, obj model.Object) error {
	payload, fp, err := marshalSnapshot(obj)
	if err != nil {
		return fmt.Errorf("write %s event: %w", kind, err)
	}
	return r.j.WriteEvent(r.ctx, Event{Seq: seq, ModelID: id, Kind: kind, Payload: payload, Fingerprint: fp})
}

// RecordWrap stores the model's initial state.
func (r *Recorder) RecordWrap(seq int64, id string, snapshot model.Object) error {
	return r.snapshot(seq, KindWrap, id, snapshot)
}

// RecordChange stores the state of a swapped-in model.
func (r *Recorder) RecordChange(seq int64, id string, snapshot model.Object) error {
	return r.snapshot(seq, KindChange, id, snapshot)
}

// RecordBatch stores the batch as a JSON patch plus the fingerprint of the
// state it produced.
func (r *Recorder) RecordBatch(id string, b feed.Batch) error {
	payload, err := marshalPatch(b.Records)
	if err != nil {
		return fmt.Errorf("write batch event: %w", err)
	}
	fp, err := model.Fingerprint(b.State)
	if err != nil {
		return fmt.Errorf("write batch event: %w", err)
	}
	return r.j.WriteEvent(r.ctx, Event{Seq: b.Seq, ModelID: id, Kind: KindBatch, Payload: payload, Fingerprint: fp})
}

// RecordTransition stores a validity state transition.
func (r *Recorder) RecordTransition(seq int64, id string, from, to store.State, pending int) error {
	data, err := model.MarshalCanonical(model.Object{
		"from":    string(from),
		"to":      string(to),
		"pending": pending,
	})
	if err != nil {
		return fmt.Errorf("write transition event: %w", err)
	}
	return r.j.WriteEvent(r.ctx, Event{Seq: seq, ModelID: id, Kind: KindTransition, Payload: string(data)})
}

// RecordUnwrap marks the end of the model's registration.
func (r *Recorder) RecordUnwrap(seq int64, id string) error {
	return r.j.WriteEvent(r.ctx, Event{Seq: seq, ModelID: id, Kind: KindUnwrap, Payload: "null"})
}
