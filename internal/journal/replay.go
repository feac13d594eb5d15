package journal

import (
	"context"
	"errors"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"

	"github.com/roach88/restrictedstore/internal/model"
	"github.com/roach88/restrictedstore/internal/store"
)

// ErrNoSnapshot is returned when a model's first event is not a wrap.
var ErrNoSnapshot = errors.New("journal: batch before any snapshot")

// MismatchError reports a replayed state whose fingerprint differs from
// the one recorded with the batch.
type MismatchError struct {
	ModelID string
	Seq     int64
	Want    string
	Got     string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("journal: model %s diverges at seq %d: recorded %s, replayed %s",
		e.ModelID, e.Seq, short(e.Want), short(e.Got))
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

// ReplayResult is the outcome of replaying one model.
type ReplayResult struct {
	ModelID     string
	State       model.Object
	Fingerprint string
	Validity    store.State
	Batches     int   // batches applied
	LastSeq     int64 // seq of the last event replayed
	Unwrapped   bool
}

// Replay rebuilds modelID from its recorded snapshot by applying every
// batch patch in order, verifying the fingerprint after each one. A model
// swap restarts from the new snapshot. An empty session means the journal's
// own session.
func (j *Journal) Replay(ctx context.Context, session, modelID string) (*ReplayResult, error) {
	events, err := j.Events(ctx, session, modelID)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("replay: no events for model %q", modelID)
	}

	res := &ReplayResult{ModelID: modelID, Validity: store.StateValid}
	var doc []byte

	for _, ev := range events {
		res.LastSeq = ev.Seq
		switch ev.Kind {
		case KindWrap, KindChange:
			doc = []byte(ev.Payload)
			if err := res.verify(doc, ev); err != nil {
				return nil, err
			}
			res.Unwrapped = false

		case KindBatch:
			if doc == nil {
				return nil, fmt.Errorf("replay: model %s seq %d: %w", modelID, ev.Seq, ErrNoSnapshot)
			}
			patch, err := jsonpatch.DecodePatch([]byte(ev.Payload))
			if err != nil {
				return nil, fmt.Errorf("replay: model %s seq %d: decode patch: %w", modelID, ev.Seq, err)
			}
			next, err := patch.Apply(doc)
			if err != nil {
				return nil, fmt.Errorf("replay: model %s seq %d: apply patch: %w", modelID, ev.Seq, err)
			}
			doc = next
			if err := res.verify(doc, ev); err != nil {
				return nil, err
			}
			res.Batches++

		case KindTransition:
			t, err := unmarshalObject([]byte(ev.Payload))
			if err != nil {
				return nil, fmt.Errorf("replay: model %s seq %d: %w", modelID, ev.Seq, err)
			}
			if to, ok := t["to"].(string); ok {
				res.Validity = store.State(to)
			}

		case KindUnwrap:
			res.Unwrapped = true

		default:
			return nil, fmt.Errorf("replay: model %s seq %d: unknown event kind %q", modelID, ev.Seq, ev.Kind)
		}
	}

	if doc == nil {
		return nil, fmt.Errorf("replay: model %s: %w", modelID, ErrNoSnapshot)
	}
	return res, nil
}

// verify decodes doc into res.State and checks it against ev's fingerprint.
func (res *ReplayResult) verify(doc []byte, ev Event) error {
	obj, err := unmarshalObject(doc)
	if err != nil {
		return fmt.Errorf("replay: model %s seq %d: %w", res.ModelID, ev.Seq, err)
	}
	fp, err := model.Fingerprint(obj)
	if err != nil {
		return fmt.Errorf("replay: model %s seq %d: %w", res.ModelID, ev.Seq, err)
	}
	if ev.Fingerprint != "" && fp != ev.Fingerprint {
		return &MismatchError{ModelID: res.ModelID, Seq: ev.Seq, Want: ev.Fingerprint, Got: fp}
	}
	res.State = obj
	res.Fingerprint = fp
	return nil
}
