package store

import (
	"math"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/restrictedstore/internal/loop"
	"github.com/roach88/restrictedstore/internal/model"
	"github.com/roach88/restrictedstore/internal/testutil"
)

func setup(t *testing.T, opts ...Option) (*loop.Loop, *Store) {
	t.Helper()
	l := testutil.StartLoop(t)
	return l, New(l, opts...)
}

func do(t *testing.T, l *loop.Loop, fn func()) {
	t.Helper()
	testutil.Do(t, l, fn)
}

func drain(t *testing.T, l *loop.Loop) {
	t.Helper()
	testutil.Drain(t, l)
}

func identity(obj model.Object) uintptr {
	return reflect.ValueOf(obj).Pointer()
}

func TestWrap_ProjectionEqualButIndependent(t *testing.T) {
	l, s := setup(t)
	m := model.Object{"a": 1, "nested": model.Object{"b": model.Array{1, 2}}}

	var (
		err  error
		proj model.Object
	)
	do(t, l, func() {
		if err = s.Wrap("m", m); err != nil {
			return
		}
		proj, err = s.Projection("m")
	})
	require.NoError(t, err)

	assert.True(t, model.Equal(m, proj))
	assert.NotEqual(t, identity(m), identity(proj))

	proj["nested"].(model.Object)["b"] = model.Array{}
	assert.Equal(t, model.Array{1, 2}, m["nested"].(model.Object)["b"])
}

func TestWrap_DuplicateID(t *testing.T) {
	l, s := setup(t)

	var first, second error
	do(t, l, func() {
		first = s.Wrap("m", model.Object{})
		second = s.Wrap("m", model.Object{"other": true})
	})
	require.NoError(t, first)
	require.Error(t, second)
	assert.True(t, IsDuplicateID(second))
	assert.False(t, IsUnknownID(second))
}

func TestWrap_UnsupportedValue(t *testing.T) {
	l, s := setup(t)

	cyclic := model.Object{}
	cyclic["self"] = cyclic

	var fnErr, cycleErr, nilErr error
	var has bool
	do(t, l, func() {
		fnErr = s.Wrap("fn", model.Object{"f": func() {}})
		cycleErr = s.Wrap("cycle", cyclic)
		nilErr = s.Wrap("nil", nil)
		has = s.Has("fn") || s.Has("cycle") || s.Has("nil")
	})
	assert.True(t, model.IsUnsupported(fnErr))
	assert.True(t, model.IsUnsupported(cycleErr))
	assert.True(t, model.IsUnsupported(nilErr))
	assert.False(t, has)
}

func TestUnknownID(t *testing.T) {
	l, s := setup(t)

	var errs []error
	var proj model.Object
	var projErr error
	do(t, l, func() {
		errs = append(errs, s.Unwrap("x"))
		errs = append(errs, s.Change("x", model.Object{}))
		_, err := s.Observe("x", NewCallback(func(model.Object) {}))
		errs = append(errs, err)
		_, err = s.CreatePromise("x", func(func(any), func(error)) {})
		errs = append(errs, err)
		_, err = s.ModelState("x")
		errs = append(errs, err)
		_, err = s.PendingCount("x")
		errs = append(errs, err)

		proj, projErr = s.Projection("x")
		s.Unobserve("x", NewCallback(func(model.Object) {}))
	})

	for _, err := range errs {
		assert.True(t, IsUnknownID(err), "got %v", err)
	}
	assert.NoError(t, projErr)
	assert.Nil(t, proj)
}

func TestUnwrap_ProjectionAbsent(t *testing.T) {
	l, s := setup(t)
	m := model.Object{"a": 1}
	cb := &testutil.Recorder{}

	var err error
	var proj model.Object
	do(t, l, func() {
		if err = s.Wrap("m", m); err != nil {
			return
		}
		if _, err = s.Observe("m", cb); err != nil {
			return
		}
		m["a"] = 2
		if err = s.Unwrap("m"); err != nil {
			return
		}
		proj, err = s.Projection("m")
	})
	require.NoError(t, err)
	assert.Nil(t, proj)

	drain(t, l)
	assert.Empty(t, cb.Calls(), "pending changes are dropped on unwrap")

	do(t, l, func() { err = s.Wrap("m", model.Object{}) })
	assert.NoError(t, err, "id is free again after unwrap")
}

func TestChange_ObserversSeeNewShape(t *testing.T) {
	l, s := setup(t)
	old := model.Object{"a": 1}
	next := model.Object{"b": 2}
	plain := &testutil.Recorder{}
	strong := &testutil.Recorder{}

	var err error
	var mirror model.Object
	do(t, l, func() {
		if err = s.Wrap("m", old); err != nil {
			return
		}
		if _, err = s.Observe("m", plain); err != nil {
			return
		}
		mirror, err = s.Observe("m", strong, WithMirror(false))
	})
	require.NoError(t, err)

	do(t, l, func() { err = s.Change("m", next) })
	require.NoError(t, err)
	drain(t, l)

	require.Len(t, plain.Calls(), 1)
	assert.Equal(t, model.Object{"b": 2}, plain.Calls()[0])
	require.Len(t, strong.Calls(), 1)
	assert.Equal(t, identity(mirror), identity(strong.Last()))
	assert.Equal(t, model.Object{"b": 2}, mirror)

	// The old model is no longer watched; the new one is.
	do(t, l, func() {
		old["a"] = 99
		next["b"] = 3
	})
	drain(t, l)
	require.Len(t, plain.Calls(), 2)
	assert.Equal(t, model.Object{"b": 3}, plain.Calls()[1])

	var proj model.Object
	do(t, l, func() { proj, err = s.Projection("m") })
	require.NoError(t, err)
	assert.Equal(t, model.Object{"b": 3}, proj)
}

func TestChange_RejectsUnsupportedModel(t *testing.T) {
	l, s := setup(t)
	m := model.Object{"a": 1}

	var err error
	var proj model.Object
	do(t, l, func() {
		if err = s.Wrap("m", m); err != nil {
			return
		}
		err = s.Change("m", model.Object{"ch": make(chan int)})
		proj, _ = s.Projection("m")
	})
	assert.True(t, model.IsUnsupported(err))
	assert.Equal(t, model.Object{"a": 1}, proj)
}

func TestChange_KeepsValidityState(t *testing.T) {
	l, s := setup(t)

	var err error
	var before, after State
	do(t, l, func() {
		if err = s.Wrap("m", model.Object{}); err != nil {
			return
		}
		if _, err = s.CreatePromise("m", func(func(any), func(error)) {}); err != nil {
			return
		}
		before, _ = s.ModelState("m")
		if err = s.Change("m", model.Object{"x": 1}); err != nil {
			return
		}
		after, _ = s.ModelState("m")
	})
	require.NoError(t, err)
	assert.Equal(t, StatePending, before)
	assert.Equal(t, StatePending, after)
}

func TestChange_NotifiesAfterQueuedWork(t *testing.T) {
	l, s := setup(t)
	m := model.Object{"n": 0}

	var order []string
	cb := NewCallback(func(obj model.Object) {
		order = append(order, "notify")
	})

	var err error
	do(t, l, func() {
		if err = s.Wrap("m", m); err != nil {
			return
		}
		_, err = s.Observe("m", cb)
	})
	require.NoError(t, err)

	do(t, l, func() {
		l.Post(func() { order = append(order, "queued") })
		err = s.Change("m", model.Object{"n": 1})
	})
	require.NoError(t, err)
	drain(t, l)

	assert.Equal(t, []string{"queued", "notify"}, order)
}

func TestChange_SameTurnMutationNotifiesOnce(t *testing.T) {
	l, s := setup(t)
	cb := &testutil.Recorder{}

	var err error
	do(t, l, func() {
		if err = s.Wrap("m", model.Object{"a": 1}); err != nil {
			return
		}
		_, err = s.Observe("m", cb)
	})
	require.NoError(t, err)

	next := model.Object{}
	do(t, l, func() {
		if err = s.Change("m", next); err != nil {
			return
		}
		next["x"] = 1
	})
	require.NoError(t, err)
	drain(t, l)

	require.Len(t, cb.Calls(), 1)
	assert.Equal(t, model.Object{"x": 1}, cb.Calls()[0])

	// Later mutations of the swapped-in model still notify.
	do(t, l, func() { next["x"] = 2 })
	drain(t, l)
	require.Len(t, cb.Calls(), 2)
	assert.Equal(t, model.Object{"x": 2}, cb.Calls()[1])
}

func TestObserve_NaNNotifiesOnce(t *testing.T) {
	l, s := setup(t)
	m := model.Object{"a": 1.0}
	cb := &testutil.Recorder{}

	var err error
	do(t, l, func() {
		if err = s.Wrap("m", m); err != nil {
			return
		}
		_, err = s.Observe("m", cb)
	})
	require.NoError(t, err)

	do(t, l, func() { m["a"] = math.NaN() })
	drain(t, l)

	require.Len(t, cb.Calls(), 1)
	assert.True(t, math.IsNaN(cb.Calls()[0]["a"].(float64)))

	do(t, l, func() {})
	drain(t, l)
	assert.Len(t, cb.Calls(), 1)
}

func TestStore_Introspection(t *testing.T) {
	l, s := setup(t)

	var ids []string
	var count int
	do(t, l, func() {
		_ = s.Wrap("b", model.Object{})
		_ = s.Wrap("a", model.Object{})
		_, _ = s.Observe("a", NewCallback(func(model.Object) {}))
		ids = s.IDs()
		count = s.ObserverCount("a")
	})
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.Equal(t, 1, count)
	assert.Same(t, l, s.Loop())
}
