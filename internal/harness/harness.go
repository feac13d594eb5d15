package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/restrictedstore/internal/journal"
	"github.com/roach88/restrictedstore/internal/loop"
	"github.com/roach88/restrictedstore/internal/model"
	"github.com/roach88/restrictedstore/internal/store"
)

// DefaultTimeout bounds a scenario run when no timeout is given.
const DefaultTimeout = 30 * time.Second

// Error codes a step can expect.
const (
	codeDuplicateID     = string(store.ErrCodeDuplicateID)
	codeUnknownID       = string(store.ErrCodeUnknownID)
	codeInvalidCallback = string(store.ErrCodeInvalidCallback)
	codeUnsupported     = "UNSUPPORTED_VALUE"
)

// Option configures a run.
type Option func(*runOptions)

type runOptions struct {
	logger  *slog.Logger
	metrics *store.Metrics
	tracer  trace.Tracer
	journal string
	timeout time.Duration
}

// WithLogger sets the logger passed to the loop, store and journal.
// Default: logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(o *runOptions) {
		o.logger = l
	}
}

// WithMetrics sets the store metrics.
func WithMetrics(m *store.Metrics) Option {
	return func(o *runOptions) {
		o.metrics = m
	}
}

// WithTracer sets the tracer for promise spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *runOptions) {
		o.tracer = t
	}
}

// WithJournalPath records into the SQLite database at path, in a new
// session labelled with the scenario name. Default: a private in-memory
// journal whose session id is the scenario name.
func WithJournalPath(path string) Option {
	return func(o *runOptions) {
		o.journal = path
	}
}

// WithTimeout bounds the whole run. Zero means DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *runOptions) {
		o.timeout = d
	}
}

// Run executes a scenario and returns the result.
//
// Each run gets a fresh loop and store. Scenario failures (unexpected
// errors, failed assertions, journal divergence) are reported in the
// Result; the returned error is for infrastructure failures only.
//
// Execution flow:
// 1. Start a loop, a store and a journal recorder
// 2. Run each step as one loop turn; drain steps wait for quiescence
// 3. Drain once more
// 4. Summarize every registered model and replay it from the journal
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := runOptions{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		journal: journal.MemoryPath,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	journalOpts := []journal.Option{
		journal.WithLabel(scenario.Name),
		journal.WithLogger(o.logger),
	}
	if o.journal == journal.MemoryPath {
		journalOpts = append(journalOpts, journal.WithSessionID(scenario.Name))
	}
	j, err := journal.Open(ctx, o.journal, journalOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer j.Close()

	l := loop.New(loop.WithLogger(o.logger))
	storeOpts := []store.Option{
		store.WithLogger(o.logger),
		store.WithRecorder(j.Recorder(ctx)),
	}
	if o.metrics != nil {
		storeOpts = append(storeOpts, store.WithMetrics(o.metrics))
	}
	if o.tracer != nil {
		storeOpts = append(storeOpts, store.WithTracer(o.tracer))
	}
	s := store.New(l, storeOpts...)

	loopCtx, stopLoop := context.WithCancel(ctx)
	go func() { _ = l.Run(loopCtx) }()
	defer func() {
		stopLoop()
		<-l.Done()
	}()

	r := &runner{
		loop:      l,
		store:     s,
		result:    NewResult(j.Session()),
		models:    make(map[string]model.Object),
		observers: make(map[string]*observerRec),
	}

	for i, st := range scenario.Steps {
		if err := r.run(ctx, i, st); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	if err := l.Drain(ctx); err != nil {
		return nil, fmt.Errorf("final drain: %w", err)
	}

	var ids []string
	if err := l.Do(ctx, func() { ids = r.summarize() }); err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}
	for _, id := range ids {
		r.verifyJournal(ctx, j, id)
	}
	return r.result, nil
}

// runner holds the state of one run. Everything except run and
// verifyJournal executes on the loop.
type runner struct {
	loop   *loop.Loop
	store  *store.Store
	result *Result

	models    map[string]model.Object
	observers map[string]*observerRec

	step int // index of the top-level step being run or drained
}

func (r *runner) run(ctx context.Context, i int, st Step) error {
	if st.Drain != nil {
		if err := r.loop.Do(ctx, func() { r.step = i }); err != nil {
			return err
		}
		return r.loop.Drain(ctx)
	}
	return r.loop.Do(ctx, func() {
		r.step = i
		r.exec(fmt.Sprintf("steps[%d]", i), st)
	})
}

// exec applies st and checks its outcome against st.Error.
func (r *runner) exec(where string, st Step) {
	if st.Drain != nil {
		r.result.AddError(fmt.Sprintf("%s: drain cannot run inside a callback", where))
		return
	}

	err := r.apply(st)
	code := errorCode(err)
	switch {
	case st.Error != "" && err == nil:
		r.result.AddError(fmt.Sprintf("%s: expected error %s, got none", where, st.Error))
	case st.Error != "" && code != st.Error:
		r.result.AddError(fmt.Sprintf("%s: expected error %s, got %v", where, st.Error, err))
	case st.Error != "":
		r.result.add(TraceEvent{Event: EventError, Step: r.step, Code: code})
	case err != nil:
		r.result.AddError(fmt.Sprintf("%s: %v", where, err))
	}
}

func (r *runner) apply(st Step) error {
	switch {
	case st.Wrap != nil:
		m := toObject(st.Wrap.Model)
		if err := r.store.Wrap(st.Wrap.ID, m); err != nil {
			return err
		}
		r.models[st.Wrap.ID] = m
		return nil

	case st.Change != nil:
		m := toObject(st.Change.Model)
		if err := r.store.Change(st.Change.ID, m); err != nil {
			return err
		}
		r.models[st.Change.ID] = m
		return nil

	case st.Unwrap != nil:
		if err := r.store.Unwrap(st.Unwrap.ID); err != nil {
			return err
		}
		delete(r.models, st.Unwrap.ID)
		return nil

	case st.Observe != nil:
		return r.observe(st.Observe)

	case st.Unobserve != nil:
		if rec, ok := r.observers[st.Unobserve.Observer]; ok {
			r.store.Unobserve(st.Unobserve.ID, rec)
		}
		return nil

	case st.Mutate != nil:
		m, ok := r.models[st.Mutate.ID]
		if !ok {
			return fmt.Errorf("model %q is not wrapped", st.Mutate.ID)
		}
		return applyOps(m, st.Mutate.Ops)

	case st.Mirror != nil:
		rec, ok := r.observers[st.Mirror.Observer]
		if !ok || rec.mirror == nil {
			return fmt.Errorf("observer %q has no mirror", st.Mirror.Observer)
		}
		return applyOps(rec.mirror, st.Mirror.Ops)

	case st.Promise != nil:
		return r.promise(st.Promise, 0)

	case st.Assert != nil:
		return r.assert(st.Assert)
	}
	return fmt.Errorf("empty step")
}

func (r *runner) observe(o *ObserveStep) error {
	rec, ok := r.observers[o.Observer]
	if !ok {
		rec = &observerRec{r: r, name: o.Observer}
	}

	var opts []store.ObserveOption
	switch o.Mirror {
	case "weak":
		opts = append(opts, store.WithMirror(true))
	case "strong":
		opts = append(opts, store.WithMirror(false))
	}

	obj, err := r.store.Observe(o.ID, rec, opts...)
	if err != nil {
		return err
	}

	rec.id = o.ID
	rec.mirror = nil
	if len(opts) > 0 {
		rec.mirror = obj
	}
	rec.onNotify = o.OnNotify
	rec.times = o.OnNotifyTimes
	if rec.times == 0 {
		rec.times = 1
	}
	rec.ran = 0
	r.observers[o.Observer] = rec
	return nil
}

// promise creates the index-th promise of a chain.
func (r *runner) promise(p *PromiseStep, index int) error {
	chain := max(p.Chain, 1)

	pr, err := r.store.CreatePromise(p.ID, func(resolve func(any), reject func(error)) {
		r.loop.After(time.Duration(p.After), func() {
			if m, ok := r.models[p.ID]; ok {
				if err := applyOps(m, p.Ops); err != nil {
					r.result.AddError(fmt.Sprintf("promise %s: %v", p.Name, err))
				}
			}
			if p.Reject != "" {
				reject(errors.New(p.Reject))
				return
			}
			resolve(toModel(p.Value))
		})
	})
	if err != nil {
		return err
	}

	r.result.add(TraceEvent{
		Event:   EventPromise,
		Step:    r.step,
		Model:   p.ID,
		Promise: p.Name,
		Index:   index + 1,
		State:   r.state(p.ID),
	})

	pr.Handle(
		func(v any) (any, error) {
			r.result.add(TraceEvent{
				Event:   EventSettled,
				Step:    r.step,
				Model:   p.ID,
				Promise: p.Name,
				Index:   index + 1,
				Outcome: "fulfilled",
				Value:   v,
				State:   r.state(p.ID),
			})
			if index+1 < chain {
				if err := r.promise(p, index+1); err != nil {
					r.result.AddError(fmt.Sprintf("promise %s[%d]: %v", p.Name, index+1, err))
				}
			}
			return v, nil
		},
		func(reason error) (any, error) {
			r.result.add(TraceEvent{
				Event:   EventSettled,
				Step:    r.step,
				Model:   p.ID,
				Promise: p.Name,
				Index:   index + 1,
				Outcome: "rejected",
				Value:   reason.Error(),
				State:   r.state(p.ID),
			})
			return nil, nil
		},
	)
	return nil
}

func (r *runner) state(id string) string {
	st, err := r.store.ModelState(id)
	if err != nil {
		return ""
	}
	return string(st)
}

// summarize records the final state of every registered model and returns
// their ids in sorted order.
func (r *runner) summarize() []string {
	ids := r.store.IDs()
	for _, id := range ids {
		proj, err := r.store.Projection(id)
		if err != nil {
			r.result.AddError(fmt.Sprintf("model %s: %v", id, err))
			continue
		}
		fp, err := model.Fingerprint(proj)
		if err != nil {
			r.result.AddError(fmt.Sprintf("model %s: %v", id, err))
			continue
		}
		pending, _ := r.store.PendingCount(id)
		r.result.Models[id] = ModelSummary{
			Projection:  proj,
			State:       r.state(id),
			Pending:     pending,
			Observers:   r.store.ObserverCount(id),
			Fingerprint: fp,
		}
	}
	sort.Strings(ids)
	return ids
}

// verifyJournal replays id from the journal and compares it with the live
// model's final fingerprint.
func (r *runner) verifyJournal(ctx context.Context, j *journal.Journal, id string) {
	summary, ok := r.result.Models[id]
	if !ok {
		return
	}
	res, err := j.Replay(ctx, "", id)
	if err != nil {
		r.result.AddError(fmt.Sprintf("journal replay of %s: %v", id, err))
		return
	}
	if res.Fingerprint != summary.Fingerprint {
		r.result.AddError(fmt.Sprintf("journal replay of %s: fingerprint %s, live model %s",
			id, res.Fingerprint, summary.Fingerprint))
	}
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var se *store.Error
	if errors.As(err, &se) {
		return string(se.Code)
	}
	if model.IsUnsupported(err) {
		return codeUnsupported
	}
	return "ERROR"
}

// observerRec is the store callback for one named observer.
type observerRec struct {
	r    *runner
	id   string
	name string

	calls  int
	last   model.Object
	mirror model.Object

	onNotify []Step
	times    int
	ran      int
}

// Notify records the notification and runs the observer's on_notify steps.
func (o *observerRec) Notify(obj model.Object) {
	o.calls++
	o.last = model.MustClone(obj)
	o.r.result.add(TraceEvent{
		Event:    EventNotify,
		Step:     o.r.step,
		Model:    o.id,
		Observer: o.name,
		Payload:  o.last,
	})

	if len(o.onNotify) == 0 || o.ran >= o.times {
		return
	}
	o.ran++
	for i, st := range o.onNotify {
		o.r.exec(fmt.Sprintf("observer %s on_notify[%d]", o.name, i), st)
	}
}
