package harness

import (
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/roach88/restrictedstore/internal/model"
)

// assert evaluates a boolean expr-lang expression against the run.
//
// Available functions:
//
//	state(id)       validity state ("valid", "pending", "invalid"; "" if unknown)
//	pending(id)     outstanding promise count
//	projection(id)  fresh projection, nil if unknown
//	model(id)       copy of the live model the scenario wrapped, nil if unknown
//	has(id)         whether id is registered
//	observers(id)   number of observers on id
//	mirror(name)    the observer's mirror, nil if it has none
//	calls(name)     number of notifications the observer received
//	payload(name)   payload of the observer's last notification
//	equal(a, b)     deep model equality
//	json(v)         canonical JSON of v
func (r *runner) assert(a *AssertStep) error {
	env := r.env()
	program, err := expr.Compile(a.Expr, expr.Env(env), expr.AsBool())
	if err != nil {
		return fmt.Errorf("compile assertion %q: %w", a.Expr, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return fmt.Errorf("evaluate assertion %q: %w", a.Expr, err)
	}

	r.result.add(TraceEvent{Event: EventAssert, Step: r.step, Expr: a.Expr})
	if ok, _ := out.(bool); !ok {
		msg := a.Message
		if msg == "" {
			msg = "assertion failed"
		}
		r.result.AddError(fmt.Sprintf("step %d: %s: %s", r.step, msg, a.Expr))
	}
	return nil
}

func (r *runner) env() map[string]any {
	return map[string]any{
		"state": func(id string) string {
			return r.state(id)
		},
		"pending": func(id string) int {
			n, _ := r.store.PendingCount(id)
			return n
		},
		"projection": func(id string) any {
			proj, err := r.store.Projection(id)
			if err != nil || proj == nil {
				return nil
			}
			return proj
		},
		"model": func(id string) any {
			m, ok := r.models[id]
			if !ok {
				return nil
			}
			c, err := model.Clone(m)
			if err != nil {
				return nil
			}
			return c
		},
		"has": func(id string) bool {
			return r.store.Has(id)
		},
		"observers": func(id string) int {
			return r.store.ObserverCount(id)
		},
		"mirror": func(name string) any {
			rec, ok := r.observers[name]
			if !ok || rec.mirror == nil {
				return nil
			}
			return rec.mirror
		},
		"calls": func(name string) int {
			rec, ok := r.observers[name]
			if !ok {
				return 0
			}
			return rec.calls
		},
		"payload": func(name string) any {
			rec, ok := r.observers[name]
			if !ok || rec.last == nil {
				return nil
			}
			return rec.last
		},
		"equal": func(a, b any) bool {
			return model.Equal(toModel(a), toModel(b))
		},
		"json": func(v any) string {
			data, err := model.MarshalCanonical(toModel(v))
			if err != nil {
				return fmt.Sprintf("<%v>", err)
			}
			return string(data)
		},
	}
}
