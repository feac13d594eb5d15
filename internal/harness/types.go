package harness

import (
	"github.com/roach88/restrictedstore/internal/model"
)

// Trace event types.
const (
	EventNotify  = "notify"
	EventPromise = "promise"
	EventSettled = "settled"
	EventError   = "error"
	EventAssert  = "assert"
)

// TraceEvent is one observable event of a run.
type TraceEvent struct {
	Event    string       `json:"event"`
	Step     int          `json:"step"`
	Model    string       `json:"model,omitempty"`
	Observer string       `json:"observer,omitempty"`
	Payload  model.Object `json:"payload,omitempty"`
	Promise  string       `json:"promise,omitempty"`
	Index    int          `json:"index,omitempty"`
	Outcome  string       `json:"outcome,omitempty"`
	Value    any          `json:"value,omitempty"`
	State    string       `json:"state,omitempty"`
	Code     string       `json:"code,omitempty"`
	Expr     string       `json:"expr,omitempty"`
}

// ModelSummary is the final state of one registered model.
type ModelSummary struct {
	Projection  model.Object `json:"projection"`
	State       string       `json:"state"`
	Pending     int          `json:"pending"`
	Observers   int          `json:"observers"`
	Fingerprint string       `json:"fingerprint"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every expectation held.
	Pass bool `json:"pass"`

	// Trace lists events in the order they happened.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Models holds the final state of every model still registered.
	Models map[string]ModelSummary `json:"models,omitempty"`

	// Session is the journal session the run recorded into.
	Session string `json:"session,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(session string) *Result {
	return &Result{
		Session: session,
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Models:  make(map[string]ModelSummary),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
