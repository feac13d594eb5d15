package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/restrictedstore/internal/loop"
)

// DrainTimeout bounds Drain so a stuck timer fails the test instead of
// hanging it.
const DrainTimeout = 5 * time.Second

// StartLoop creates a loop and runs it until the test ends.
//
// Cleanup cancels the loop and waits for Run to return, so no task from one
// test can run during the next.
func StartLoop(t testing.TB, opts ...loop.Option) *loop.Loop {
	t.Helper()
	l := loop.New(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l
}

// Do runs fn as one turn of l and fails the test if it panics.
//
// fn runs on the loop goroutine; assertions that stop the test (require)
// belong after Do returns.
func Do(t testing.TB, l *loop.Loop, fn func()) {
	t.Helper()
	require.NoError(t, l.Do(context.Background(), fn))
}

// Drain waits for every queued task and armed timer of l.
func Drain(t testing.TB, l *loop.Loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DrainTimeout)
	defer cancel()
	require.NoError(t, l.Drain(ctx))
}
