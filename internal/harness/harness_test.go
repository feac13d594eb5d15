package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/restrictedstore/internal/journal"
	"github.com/roach88/restrictedstore/internal/store"
)

func runScenario(t *testing.T, s *Scenario, opts ...Option) *Result {
	t.Helper()
	result, err := Run(context.Background(), s, opts...)
	require.NoError(t, err)
	return result
}

func TestRun_TestdataScenariosPass(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result := runScenario(t, s)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_ModelSummary(t *testing.T) {
	result := runScenario(t, &Scenario{
		Name:        "summary",
		Description: "final state is summarized",
		Steps: []Step{
			{Wrap: &WrapStep{ID: "b", Model: map[string]any{"n": 1}}},
			{Wrap: &WrapStep{ID: "a", Model: map[string]any{"n": 2}}},
			{Observe: &ObserveStep{ID: "a", Observer: "o"}},
			{Mutate: &MutateStep{ID: "a", Ops: []Op{{Op: OpSet, Path: "/n", Value: 3}}}},
			{Unwrap: &IDStep{ID: "b"}},
		},
	})

	require.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "summary", result.Session)
	require.Len(t, result.Models, 1)

	a := result.Models["a"]
	assert.Equal(t, map[string]any{"n": 3}, a.Projection)
	assert.Equal(t, "valid", a.State)
	assert.Equal(t, 0, a.Pending)
	assert.Equal(t, 1, a.Observers)
	assert.Len(t, a.Fingerprint, 64)
}

func TestRun_FailedAssertion(t *testing.T) {
	result := runScenario(t, &Scenario{
		Name:        "failing",
		Description: "assertion does not hold",
		Steps: []Step{
			{Wrap: &WrapStep{ID: "m", Model: map[string]any{"n": 1}}},
			{Assert: &AssertStep{Expr: "projection('m').n == 2", Message: "n should be 2"}},
		},
	})

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "n should be 2")
}

func TestRun_AssertionCompileError(t *testing.T) {
	result := runScenario(t, &Scenario{
		Name:        "bad_expr",
		Description: "assertion does not compile",
		Steps: []Step{
			{Assert: &AssertStep{Expr: "projection('m') +"}},
		},
	})

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "compile assertion")
}

func TestRun_UnexpectedError(t *testing.T) {
	result := runScenario(t, &Scenario{
		Name:        "unexpected",
		Description: "unwrap of an unknown id without an expected error",
		Steps: []Step{
			{Unwrap: &IDStep{ID: "ghost"}},
		},
	})

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "UNKNOWN_ID")
}

func TestRun_ExpectedErrorMissing(t *testing.T) {
	result := runScenario(t, &Scenario{
		Name:        "missing_error",
		Description: "expected error never happens",
		Steps: []Step{
			{Wrap: &WrapStep{ID: "m", Model: map[string]any{}}, Error: codeDuplicateID},
		},
	})

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected error DUPLICATE_ID, got none")
}

func TestRun_WrongErrorCode(t *testing.T) {
	result := runScenario(t, &Scenario{
		Name:        "wrong_code",
		Description: "a different error than expected",
		Steps: []Step{
			{Unwrap: &IDStep{ID: "ghost"}, Error: codeDuplicateID},
		},
	})

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected error DUPLICATE_ID")
}

func TestRun_OnNotifyTimes(t *testing.T) {
	result := runScenario(t, &Scenario{
		Name:        "times",
		Description: "callback steps run a bounded number of times",
		Steps: []Step{
			{Wrap: &WrapStep{ID: "m", Model: map[string]any{"log": []any{}}}},
			{Observe: &ObserveStep{
				ID:            "m",
				Observer:      "o",
				OnNotifyTimes: 2,
				OnNotify: []Step{
					{Mutate: &MutateStep{ID: "m", Ops: []Op{{Op: OpAppend, Path: "/log", Value: "echo"}}}},
				},
			}},
			{Mutate: &MutateStep{ID: "m", Ops: []Op{{Op: OpAppend, Path: "/log", Value: "start"}}}},
			{Drain: &DrainStep{}},
			{Assert: &AssertStep{Expr: "calls('o') == 3 && len(projection('m').log) == 3"}},
		},
	})

	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := store.NewMetrics(reg, "test")

	scenario, err := LoadScenario("testdata/scenarios/promise_states.yaml")
	require.NoError(t, err)

	result := runScenario(t, scenario, WithMetrics(metrics))
	require.True(t, result.Pass, "errors: %v", result.Errors)

	count, err := testutil.GatherAndCount(reg, "test_promises_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count, "created, fulfilled and rejected series")

	count, err = testutil.GatherAndCount(reg, "test_state_transitions_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count, "pending, valid and invalid series")
}

func TestRun_Tracer(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	scenario, err := LoadScenario("testdata/scenarios/promise_states.yaml")
	require.NoError(t, err)

	result := runScenario(t, scenario, WithTracer(tp.Tracer("harness-test")))
	require.True(t, result.Pass, "errors: %v", result.Errors)

	spans := exporter.GetSpans()
	assert.Len(t, spans, 7, "one span per tracked promise")
	for _, span := range spans {
		assert.Equal(t, "store.promise", span.Name)
	}
}

func TestRun_JournalPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(scenarios), 2)

	var sessions []string
	for _, s := range scenarios[:2] {
		result := runScenario(t, s, WithJournalPath(path))
		require.True(t, result.Pass, "errors: %v", result.Errors)
		sessions = append(sessions, result.Session)
	}
	assert.NotEqual(t, sessions[0], sessions[1])

	j, err := journal.Open(context.Background(), path)
	require.NoError(t, err)
	defer j.Close()

	recorded, err := j.Sessions(context.Background())
	require.NoError(t, err)

	labels := make(map[string]string)
	for _, s := range recorded {
		labels[s.ID] = s.Label
	}
	assert.Equal(t, scenarios[0].Name, labels[sessions[0]])
	assert.Equal(t, scenarios[1].Name, labels[sessions[1]])
}

func TestRun_Timeout(t *testing.T) {
	_, err := Run(context.Background(), &Scenario{
		Name:        "slow",
		Description: "promise outlives the run timeout",
		Steps: []Step{
			{Wrap: &WrapStep{ID: "m", Model: map[string]any{}}},
			{Promise: &PromiseStep{ID: "m", Name: "p", After: Duration(10 * time.Second)}},
			{Drain: &DrainStep{}},
		},
	}, WithTimeout(50*time.Millisecond))

	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "deadline exceeded"), err.Error())
}
