package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a store scenario.
type Scenario struct {
	// Name uniquely identifies this scenario; golden files are named after it.
	Name string `yaml:"name" json:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description" json:"description"`

	// Steps run in order.
	Steps []Step `yaml:"steps" json:"steps"`
}

// Step is one scenario action. Exactly one action field must be set.
type Step struct {
	Wrap      *WrapStep      `yaml:"wrap,omitempty" json:"wrap,omitempty"`
	Change    *WrapStep      `yaml:"change,omitempty" json:"change,omitempty"`
	Unwrap    *IDStep        `yaml:"unwrap,omitempty" json:"unwrap,omitempty"`
	Observe   *ObserveStep   `yaml:"observe,omitempty" json:"observe,omitempty"`
	Unobserve *ObserverRef   `yaml:"unobserve,omitempty" json:"unobserve,omitempty"`
	Mutate    *MutateStep    `yaml:"mutate,omitempty" json:"mutate,omitempty"`
	Mirror    *MirrorStep    `yaml:"mirror,omitempty" json:"mirror,omitempty"`
	Promise   *PromiseStep   `yaml:"promise,omitempty" json:"promise,omitempty"`
	Drain     *DrainStep     `yaml:"drain,omitempty" json:"drain,omitempty"`
	Assert    *AssertStep    `yaml:"assert,omitempty" json:"assert,omitempty"`

	// Error is the error code the step is expected to fail with.
	Error string `yaml:"error,omitempty" json:"error,omitempty"`
}

// WrapStep registers (or swaps in) a model.
type WrapStep struct {
	ID    string         `yaml:"id" json:"id"`
	Model map[string]any `yaml:"model" json:"model"`
}

// IDStep references a model.
type IDStep struct {
	ID string `yaml:"id" json:"id"`
}

// ObserveStep registers a named observer.
type ObserveStep struct {
	ID       string `yaml:"id" json:"id"`
	Observer string `yaml:"observer" json:"observer"`

	// Mirror is none (default), weak or strong.
	Mirror string `yaml:"mirror,omitempty" json:"mirror,omitempty"`

	// OnNotify runs inside the callback for the first OnNotifyTimes
	// notifications (default 1).
	OnNotify      []Step `yaml:"on_notify,omitempty" json:"on_notify,omitempty"`
	OnNotifyTimes int    `yaml:"on_notify_times,omitempty" json:"on_notify_times,omitempty"`
}

// ObserverRef names an observer registered on a model.
type ObserverRef struct {
	ID       string `yaml:"id" json:"id"`
	Observer string `yaml:"observer" json:"observer"`
}

// MutateStep edits a live model.
type MutateStep struct {
	ID  string `yaml:"id" json:"id"`
	Ops []Op   `yaml:"ops" json:"ops"`
}

// MirrorStep edits an observer's mirror.
type MirrorStep struct {
	Observer string `yaml:"observer" json:"observer"`
	Ops      []Op   `yaml:"ops" json:"ops"`
}

// Op is one edit.
type Op struct {
	// Op is set, remove, append or link.
	Op string `yaml:"op" json:"op"`

	// Path is a JSON pointer.
	Path string `yaml:"path" json:"path"`

	// Value is the new value for set and append.
	Value any `yaml:"value,omitempty" json:"value,omitempty"`

	// From is the JSON pointer of the container that link stores at Path,
	// by reference. Linking a container into itself creates a cycle.
	From string `yaml:"from,omitempty" json:"from,omitempty"`
}

// Op names.
const (
	OpSet    = "set"
	OpRemove = "remove"
	OpAppend = "append"
	OpLink   = "link"
)

// PromiseStep creates tracked promises.
type PromiseStep struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`

	// After delays settlement (e.g. "10ms"). Zero settles on a later turn.
	After Duration `yaml:"after,omitempty" json:"after,omitempty"`

	// Reject settles with this reason instead of fulfilling.
	Reject string `yaml:"reject,omitempty" json:"reject,omitempty"`

	// Value is the fulfillment value.
	Value any `yaml:"value,omitempty" json:"value,omitempty"`

	// Ops are applied to the model right before settling.
	Ops []Op `yaml:"ops,omitempty" json:"ops,omitempty"`

	// Chain creates this many promises one after another, each created
	// when the previous one fulfills (default 1).
	Chain int `yaml:"chain,omitempty" json:"chain,omitempty"`
}

// DrainStep waits for quiescence.
type DrainStep struct{}

// AssertStep evaluates an expr-lang expression that must yield true.
type AssertStep struct {
	Expr    string `yaml:"expr" json:"expr"`
	Message string `yaml:"message,omitempty" json:"message,omitempty"`
}

// Duration is a time.Duration written as a string ("10ms").
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

// UnmarshalJSON parses a quoted duration string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	return d.parse(strings.Trim(string(data), `"`))
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// kind returns the name of the step's action, or "" if none or several
// are set.
func (s *Step) kind() string {
	var kinds []string
	add := func(set bool, name string) {
		if set {
			kinds = append(kinds, name)
		}
	}
	add(s.Wrap != nil, "wrap")
	add(s.Change != nil, "change")
	add(s.Unwrap != nil, "unwrap")
	add(s.Observe != nil, "observe")
	add(s.Unobserve != nil, "unobserve")
	add(s.Mutate != nil, "mutate")
	add(s.Mirror != nil, "mirror")
	add(s.Promise != nil, "promise")
	add(s.Drain != nil, "drain")
	add(s.Assert != nil, "assert")
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// LoadScenario reads and parses a scenario file. The format follows the
// extension: .cue for CUE, anything else YAML.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario *Scenario
	if filepath.Ext(path) == ".cue" {
		scenario, err = parseCUE(path, data)
	} else {
		scenario, err = parseYAML(data)
	}
	if err != nil {
		return nil, err
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// LoadScenarios loads every scenario file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml", ".cue":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func parseYAML(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "observer:" vs "observe:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	return validateSteps("steps", s.Steps)
}

func validateSteps(prefix string, steps []Step) error {
	for i := range steps {
		if err := validateStep(fmt.Sprintf("%s[%d]", prefix, i), &steps[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(where string, s *Step) error {
	kind := s.kind()
	if kind == "" {
		return fmt.Errorf("%s: exactly one action is required", where)
	}

	switch s.Error {
	case "", codeDuplicateID, codeUnknownID, codeInvalidCallback, codeUnsupported:
	default:
		return fmt.Errorf("%s: unknown error code %q", where, s.Error)
	}

	switch kind {
	case "wrap", "change":
		w := s.Wrap
		if w == nil {
			w = s.Change
		}
		if w.ID == "" {
			return fmt.Errorf("%s.%s: id is required", where, kind)
		}
	case "unwrap":
		if s.Unwrap.ID == "" {
			return fmt.Errorf("%s.unwrap: id is required", where)
		}
	case "observe":
		o := s.Observe
		if o.ID == "" || o.Observer == "" {
			return fmt.Errorf("%s.observe: id and observer are required", where)
		}
		switch o.Mirror {
		case "", "none", "weak", "strong":
		default:
			return fmt.Errorf("%s.observe: mirror must be none, weak or strong, got %q", where, o.Mirror)
		}
		if o.OnNotifyTimes < 0 {
			return fmt.Errorf("%s.observe: on_notify_times must be non-negative", where)
		}
		for i := range o.OnNotify {
			switch o.OnNotify[i].kind() {
			case "drain", "assert", "observe":
				return fmt.Errorf("%s.observe.on_notify[%d]: %s is not allowed inside a callback", where, i, o.OnNotify[i].kind())
			}
		}
		if err := validateSteps(where+".observe.on_notify", o.OnNotify); err != nil {
			return err
		}
	case "unobserve":
		if s.Unobserve.ID == "" || s.Unobserve.Observer == "" {
			return fmt.Errorf("%s.unobserve: id and observer are required", where)
		}
	case "mutate":
		if s.Mutate.ID == "" {
			return fmt.Errorf("%s.mutate: id is required", where)
		}
		return validateOps(where+".mutate", s.Mutate.Ops)
	case "mirror":
		if s.Mirror.Observer == "" {
			return fmt.Errorf("%s.mirror: observer is required", where)
		}
		return validateOps(where+".mirror", s.Mirror.Ops)
	case "promise":
		p := s.Promise
		if p.ID == "" || p.Name == "" {
			return fmt.Errorf("%s.promise: id and name are required", where)
		}
		if p.Chain < 0 || p.After < 0 {
			return fmt.Errorf("%s.promise: chain and after must be non-negative", where)
		}
		return validateOps(where+".promise", p.Ops)
	case "assert":
		if s.Assert.Expr == "" {
			return fmt.Errorf("%s.assert: expr is required", where)
		}
	}
	return nil
}

func validateOps(where string, ops []Op) error {
	for i, op := range ops {
		switch op.Op {
		case OpSet, OpRemove, OpAppend:
		case OpLink:
			if op.Path == "" {
				return fmt.Errorf("%s.ops[%d]: link needs a non-root path", where, i)
			}
		default:
			return fmt.Errorf("%s.ops[%d]: unknown op %q", where, i, op.Op)
		}
		if op.Path != "" && !strings.HasPrefix(op.Path, "/") {
			return fmt.Errorf("%s.ops[%d]: path must be a JSON pointer, got %q", where, i, op.Path)
		}
	}
	return nil
}
