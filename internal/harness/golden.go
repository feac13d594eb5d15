package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/restrictedstore/internal/model"
)

// GoldenDir is where golden traces live, relative to the test's package.
const GoldenDir = "testdata/golden"

// Snapshot renders a result's trace as indented canonical JSON.
// Keys are sorted and empty fields are omitted, so the bytes are stable
// across runs.
func Snapshot(name string, result *Result) ([]byte, error) {
	trace := make(model.Array, len(result.Trace))
	for i, ev := range result.Trace {
		trace[i] = ev.canonical()
	}
	doc := model.Object{
		"scenario": name,
		"trace":    trace,
	}
	if len(result.Errors) > 0 {
		errs := make(model.Array, len(result.Errors))
		for i, e := range result.Errors {
			errs[i] = e
		}
		doc["errors"] = errs
	}

	data, err := model.MarshalCanonical(doc)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func (ev TraceEvent) canonical() model.Object {
	out := model.Object{
		"event": ev.Event,
		"step":  ev.Step,
	}
	set := func(key, v string) {
		if v != "" {
			out[key] = v
		}
	}
	set("model", ev.Model)
	set("observer", ev.Observer)
	set("promise", ev.Promise)
	set("outcome", ev.Outcome)
	set("state", ev.State)
	set("code", ev.Code)
	set("expr", ev.Expr)
	if ev.Payload != nil {
		out["payload"] = ev.Payload
	}
	if ev.Index != 0 {
		out["index"] = ev.Index
	}
	if ev.Value != nil {
		out["value"] = ev.Value
	}
	return out
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result's trace against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
