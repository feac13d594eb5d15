package journal

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/restrictedstore/internal/loop"
	"github.com/roach88/restrictedstore/internal/model"
	"github.com/roach88/restrictedstore/internal/store"
)

// recordSession runs a small store session against j.
func recordSession(t *testing.T, j *Journal) model.Object {
	t.Helper()
	ctx := context.Background()

	l := loop.New()
	s := store.New(l, store.WithRecorder(j.Recorder(ctx)))
	runCtx, cancel := context.WithCancel(ctx)
	go func() { _ = l.Run(runCtx) }()
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})

	m := model.Object{"name": "n", "tags": model.Array{"a"}, "big": int64(1) << 60}
	do := func(fn func()) { require.NoError(t, l.Do(ctx, fn)) }

	var err error
	do(func() { err = s.Wrap("m", m) })
	require.NoError(t, err)

	do(func() {
		m["name"] = "renamed"
		m["tags"] = append(m["tags"].(model.Array), "b", "c")
		m["nested"] = model.Object{"a/b": 1.5, "t~": true}
	})
	do(func() {
		delete(m, "name")
		m["tags"] = m["tags"].(model.Array)[:1]
		_, err = s.CreatePromise("m", func(resolve func(any), _ func(error)) { resolve(nil) })
	})
	require.NoError(t, err)
	require.NoError(t, l.Drain(ctx))

	var final model.Object
	do(func() { final = model.MustClone(m) })
	return final
}

func TestReplay_RebuildsModel(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	final := recordSession(t, j)

	res, err := j.Replay(ctx, "", "m")
	require.NoError(t, err)

	want, err := model.Fingerprint(final)
	require.NoError(t, err)
	assert.Equal(t, want, res.Fingerprint)
	assert.Equal(t, 2, res.Batches)
	assert.Equal(t, store.StateValid, res.Validity)
	assert.False(t, res.Unwrapped)
	assert.Equal(t, json.Number("1152921504606846976"), res.State["big"])

	models, err := j.Models(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"m"}, models)

	events, err := j.Events(ctx, "", "m")
	require.NoError(t, err)
	var kinds []Kind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []Kind{KindWrap, KindBatch, KindTransition, KindBatch, KindTransition}, kinds)
}

func TestReplay_DetectsTampering(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	recordSession(t, j)

	_, err := j.db.ExecContext(ctx, `
		UPDATE events SET payload = '[{"op":"add","path":"/name","value":"forged"}]'
		WHERE kind = 'batch' AND seq = (SELECT MIN(seq) FROM events WHERE kind = 'batch')
	`)
	require.NoError(t, err)

	_, err = j.Replay(ctx, "", "m")
	var mismatch *MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "m", mismatch.ModelID)
}

func TestReplay_ChangeAndUnwrap(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t, WithSessionID("s"))
	rec := j.Recorder(ctx)

	require.NoError(t, rec.RecordWrap(1, "m", model.Object{"v": 1}))
	require.NoError(t, rec.RecordChange(2, "m", model.Object{"w": "x"}))
	require.NoError(t, rec.RecordTransition(3, "m", store.StateValid, store.StatePending, 1))
	require.NoError(t, rec.RecordTransition(4, "m", store.StatePending, store.StateInvalid, 0))
	require.NoError(t, rec.RecordUnwrap(5, "m"))

	res, err := j.Replay(ctx, "s", "m")
	require.NoError(t, err)
	assert.Equal(t, model.Object{"w": "x"}, res.State)
	assert.Equal(t, store.StateInvalid, res.Validity)
	assert.True(t, res.Unwrapped)
	assert.Equal(t, int64(5), res.LastSeq)
}

func TestReplay_Errors(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	_, err := j.Replay(ctx, "", "missing")
	assert.Error(t, err)

	require.NoError(t, j.WriteEvent(ctx, Event{Seq: 1, ModelID: "orphan", Kind: KindBatch, Payload: "[]"}))
	_, err = j.Replay(ctx, "", "orphan")
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestMarshalPatch_KeepsNullValues(t *testing.T) {
	patch, err := marshalPatch([]model.Change{
		{Path: "/a", Op: model.OpAdd, Value: nil},
		{Path: "/b", Op: model.OpRemove},
	})
	require.NoError(t, err)
	assert.Equal(t, `[{"op":"add","path":"/a","value":null},{"op":"remove","path":"/b"}]`, patch)
}
