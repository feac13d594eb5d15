package store

import (
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/restrictedstore/internal/feed"
	"github.com/roach88/restrictedstore/internal/loop"
	"github.com/roach88/restrictedstore/internal/model"
)

// TracerName is the instrumentation name used for promise spans.
const TracerName = "github.com/roach88/restrictedstore/internal/store"

// Store is the registry of wrapped models.
//
// Thread-safety model: none. A Store belongs to the loop it was created
// with and must only be used from that loop's tasks (including observer
// callbacks and promise continuations). Use loop.Do from other goroutines.
type Store struct {
	loop     *loop.Loop
	feed     feed.Feed
	logger   *slog.Logger
	metrics  *Metrics
	recorder Recorder
	tracer   trace.Tracer

	entries map[string]*entry
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithFeed replaces the change feed. Default: a feed.PollingFeed on the
// store's loop.
func WithFeed(f feed.Feed) Option {
	return func(s *Store) {
		s.feed = f
	}
}

// WithMetrics sets the metrics sink. Default: unregistered metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithRecorder installs a recorder (e.g. the change journal).
func WithRecorder(r Recorder) Option {
	return func(s *Store) {
		s.recorder = r
	}
}

// WithTracer sets the tracer for promise spans. Default: the global
// OpenTelemetry provider's tracer named TracerName.
func WithTracer(t trace.Tracer) Option {
	return func(s *Store) {
		s.tracer = t
	}
}

// New creates an empty store bound to l.
func New(l *loop.Loop, opts ...Option) *Store {
	s := &Store{
		loop:     l,
		logger:   slog.Default(),
		recorder: nopRecorder{},
		entries:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.feed == nil {
		s.feed = feed.NewPollingFeed(l, feed.WithLogger(s.logger))
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil, DefaultNamespace)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(TracerName)
	}
	return s
}

// Loop returns the loop the store runs on.
func (s *Store) Loop() *loop.Loop {
	return s.loop
}

// IDs returns the registered model ids in sorted order.
func (s *Store) IDs() []string {
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Has reports whether id is registered.
func (s *Store) Has(id string) bool {
	_, ok := s.entries[id]
	return ok
}

// ObserverCount returns the number of observers registered for id.
func (s *Store) ObserverCount(id string) int {
	e, ok := s.entries[id]
	if !ok {
		return 0
	}
	return len(e.observers)
}

// PendingCount returns the number of outstanding promises for id.
func (s *Store) PendingCount(id string) (int, error) {
	e, ok := s.entries[id]
	if !ok {
		return 0, unknownID("pending count", id)
	}
	return e.pending, nil
}

func (s *Store) lookup(op, id string) (*entry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, unknownID(op, id)
	}
	return e, nil
}

// snapshot clones m for recorders; failures are logged, not returned,
// because m was already validated by the feed.
func (s *Store) snapshot(m model.Object) model.Object {
	snap, err := model.Clone(m)
	if err != nil {
		s.logger.Warn("store: snapshot failed", "error", err)
		return nil
	}
	return snap
}
