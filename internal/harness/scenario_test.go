package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, "test.yaml", `
name: test_scenario
description: "Test scenario for validation"
steps:
  - wrap:
      id: m
      model: {attr: 1, list: [a, b]}
  - observe: {id: m, observer: o, mirror: weak}
  - promise: {id: m, name: p, after: 10ms, chain: 2}
  - drain: {}
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	require.Len(t, scenario.Steps, 4)
	assert.Equal(t, "m", scenario.Steps[0].Wrap.ID)
	assert.Equal(t, 1, scenario.Steps[0].Wrap.Model["attr"])
	assert.Equal(t, "weak", scenario.Steps[1].Observe.Mirror)
	assert.Equal(t, Duration(10*time.Millisecond), scenario.Steps[2].Promise.After)
	assert.Equal(t, 2, scenario.Steps[2].Promise.Chain)
	assert.NotNil(t, scenario.Steps[3].Drain)
}

func TestLoadScenario_CUE(t *testing.T) {
	path := writeScenario(t, "test.cue", `
#Item: {id: string, qty: int & >0}
_item: #Item & {id: "widget", qty: 3}

name: "cue_scenario"
description: "Scenario written in CUE"
steps: [
	{wrap: {id: "cart", model: {items: [_item]}}},
	{promise: {id: "cart", name: "save", after: "5ms", value: 1.5}},
	{drain: {}},
]
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "cue_scenario", scenario.Name)
	require.Len(t, scenario.Steps, 3)

	m := toObject(scenario.Steps[0].Wrap.Model)
	items := m["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, map[string]any{"id": "widget", "qty": 3}, items[0])

	assert.Equal(t, Duration(5*time.Millisecond), scenario.Steps[1].Promise.After)
	assert.Equal(t, 1.5, toModel(scenario.Steps[1].Promise.Value))
}

func TestLoadScenario_CUEConstraintViolation(t *testing.T) {
	path := writeScenario(t, "test.cue", `
#Item: {qty: int & >0}
name: "bad"
description: "Negative quantity"
steps: [{wrap: {id: "m", model: #Item & {qty: -1}}}]
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUE")
}

func TestLoadScenario_CUENotConcrete(t *testing.T) {
	path := writeScenario(t, "test.cue", `
name: string
description: "Name left open"
steps: [{drain: {}}]
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not concrete")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, "test.yaml", `
name: typo
description: "observer instead of observe"
steps:
  - observer: {id: m, observer: o}
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
description: "x"
steps: [{drain: {}}]
`,
			wantErr: "name is required",
		},
		{
			name: "missing description",
			content: `
name: x
steps: [{drain: {}}]
`,
			wantErr: "description is required",
		},
		{
			name: "no steps",
			content: `
name: x
description: "x"
steps: []
`,
			wantErr: "steps list is required",
		},
		{
			name: "two actions",
			content: `
name: x
description: "x"
steps:
  - wrap: {id: m, model: {}}
    unwrap: {id: m}
`,
			wantErr: "exactly one action",
		},
		{
			name: "unknown error code",
			content: `
name: x
description: "x"
steps:
  - unwrap: {id: m}
    error: NOPE
`,
			wantErr: `unknown error code "NOPE"`,
		},
		{
			name: "bad mirror",
			content: `
name: x
description: "x"
steps:
  - observe: {id: m, observer: o, mirror: deep}
`,
			wantErr: "mirror must be none, weak or strong",
		},
		{
			name: "drain in callback",
			content: `
name: x
description: "x"
steps:
  - observe:
      id: m
      observer: o
      on_notify: [{drain: {}}]
`,
			wantErr: "drain is not allowed inside a callback",
		},
		{
			name: "unknown op",
			content: `
name: x
description: "x"
steps:
  - mutate: {id: m, ops: [{op: move, path: /a}]}
`,
			wantErr: `unknown op "move"`,
		},
		{
			name: "relative path",
			content: `
name: x
description: "x"
steps:
  - mutate: {id: m, ops: [{op: set, path: a, value: 1}]}
`,
			wantErr: "path must be a JSON pointer",
		},
		{
			name: "bad duration",
			content: `
name: x
description: "x"
steps:
  - promise: {id: m, name: p, after: soon}
`,
			wantErr: "invalid duration",
		},
		{
			name: "promise without name",
			content: `
name: x
description: "x"
steps:
  - promise: {id: m}
`,
			wantErr: "id and name are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, "test.yaml", tt.content)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenarios_SortedByFileName(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "c.cue"} {
		content := "name: " + name[:1] + "\ndescription: d\nsteps: [{drain: {}}]\n"
		if filepath.Ext(name) == ".cue" {
			content = `name: "c", description: "d", steps: [{drain: {}}]`
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	scenarios, err := LoadScenarios(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 3)
	assert.Equal(t, "a", scenarios[0].Name)
	assert.Equal(t, "b", scenarios[1].Name)
	assert.Equal(t, "c", scenarios[2].Name)
}

func TestLoadScenarios_Testdata(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)
	assert.NotEmpty(t, scenarios)

	names := make(map[string]bool)
	for _, s := range scenarios {
		assert.False(t, names[s.Name], "duplicate scenario name %s", s.Name)
		names[s.Name] = true
	}
}
