package loop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l
}

func TestLoop_FIFO(t *testing.T) {
	l := startLoop(t)

	var got []int
	for i := 1; i <= 3; i++ {
		i := i
		require.True(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Do(context.Background(), func() {}))

	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestLoop_TurnHooksRunAfterEachTask(t *testing.T) {
	l := New()
	var events []string
	l.OnTurnEnd(func() { events = append(events, "hook") })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	l.Post(func() { events = append(events, "a") })
	require.NoError(t, l.Do(ctx, func() { events = append(events, "b") }))

	assert.Equal(t, []string{"a", "hook", "b", "hook"}, events)
}

func TestLoop_PanicIsolated(t *testing.T) {
	l := startLoop(t)

	l.Post(func() { panic("boom") })
	ran := false
	require.NoError(t, l.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)

	err := l.Do(context.Background(), func() { panic("inside do") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inside do")
}

func TestLoop_AfterAndDrain(t *testing.T) {
	l := startLoop(t)

	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}

	l.Post(func() {
		l.After(20*time.Millisecond, func() {
			record("late")
			l.After(5*time.Millisecond, func() { record("chained") })
		})
		l.After(5*time.Millisecond, func() { record("early") })
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Drain(ctx))

	assert.Equal(t, []string{"early", "late", "chained"}, order)
	assert.Equal(t, 0, l.Pending())
}

func TestLoop_TimerStop(t *testing.T) {
	l := startLoop(t)

	fired := false
	tm := l.After(time.Hour, func() { fired = true })
	assert.Equal(t, 1, l.Pending())
	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop(), "second stop is a no-op")
	assert.Equal(t, 0, l.Pending())

	require.NoError(t, l.Drain(context.Background()))
	assert.False(t, fired)
}

func TestLoop_StopRejectsWork(t *testing.T) {
	l := New()
	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.NoError(t, l.Do(ctx, func() {}))
	l.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}

	assert.False(t, l.Post(func() {}))
	assert.ErrorIs(t, l.Do(ctx, func() {}), ErrClosed)
}

func TestLoop_RunCancelled(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLoop_RunCancelledWhileBusy(t *testing.T) {
	l := New()
	var repost func()
	repost = func() { l.Post(repost) }
	l.Post(repost)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return while tasks kept arriving")
	}
}

func TestClock_Monotonic(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}
