// Package feed delivers batches of structural change records for watched
// models.
//
// The store depends only on the Feed interface. PollingFeed is the
// dirty-checking implementation: at the end of every loop turn it diffs
// each watched model against the snapshot taken at the previous delivery,
// so all mutations made during one turn arrive as a single batch.
package feed

import (
	"log/slog"

	"github.com/roach88/restrictedstore/internal/loop"
	"github.com/roach88/restrictedstore/internal/model"
)

// Batch is a coalesced set of changes to one model.
type Batch struct {
	// Seq orders batches across all models.
	Seq int64

	// Records lists the changes in apply order.
	Records []model.Change

	// State is a read-only snapshot of the model after the batch. It is
	// shared with the feed and must not be mutated.
	State model.Object
}

// Subscription identifies one Subscribe call.
type Subscription interface {
	ID() uint64
}

// Feed watches models and delivers change batches asynchronously.
type Feed interface {
	// Subscribe starts watching obj. deliver is called on the loop, after
	// the turn in which mutations happened.
	Subscribe(obj model.Object, deliver func(Batch)) (Subscription, error)

	// Unsubscribe stops watching. Changes not yet delivered are dropped.
	// Unsubscribing twice is a no-op.
	Unsubscribe(sub Subscription)
}

// PollingFeed dirty-checks subscribed models at the end of every loop turn.
//
// All methods must be called on the loop goroutine.
type PollingFeed struct {
	loop   *loop.Loop
	logger *slog.Logger

	nextID uint64
	subs   []*pollSub
}

type pollSub struct {
	id       uint64
	obj      model.Object
	snapshot model.Object
	deliver  func(Batch)
	active   bool
	lastErr  string
}

func (s *pollSub) ID() uint64 { return s.id }

// Option configures a PollingFeed.
type Option func(*PollingFeed)

// WithLogger sets the logger used for models that cannot be snapshotted.
func WithLogger(l *slog.Logger) Option {
	return func(f *PollingFeed) {
		f.logger = l
	}
}

// NewPollingFeed creates a feed and hooks it to the end of every turn of l.
func NewPollingFeed(l *loop.Loop, opts ...Option) *PollingFeed {
	f := &PollingFeed{
		loop:   l,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	l.OnTurnEnd(f.check)
	return f
}

// Subscribe snapshots obj as the baseline for its first batch.
func (f *PollingFeed) Subscribe(obj model.Object, deliver func(Batch)) (Subscription, error) {
	snap, err := model.Clone(obj)
	if err != nil {
		return nil, err
	}
	f.nextID++
	s := &pollSub{
		id:       f.nextID,
		obj:      obj,
		snapshot: snap,
		deliver:  deliver,
		active:   true,
	}
	f.subs = append(f.subs, s)
	return s, nil
}

// Unsubscribe removes sub. A batch being delivered when this is called
// still completes, but sub receives nothing further.
func (f *PollingFeed) Unsubscribe(sub Subscription) {
	if sub == nil {
		return
	}
	for i, s := range f.subs {
		if s.id == sub.ID() {
			s.active = false
			f.subs = append(f.subs[:i:i], f.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of active subscriptions.
func (f *PollingFeed) Len() int {
	return len(f.subs)
}

// check runs at the end of a turn. Subscribers are visited in subscription
// order. Deliveries may mutate models again; if anything was delivered a
// recheck turn is posted so those mutations are picked up on the next turn
// instead of re-entering this one.
func (f *PollingFeed) check() {
	subs := append([]*pollSub(nil), f.subs...)
	delivered := false

	for _, s := range subs {
		if !s.active {
			continue
		}
		cur, err := model.Clone(s.obj)
		if err != nil {
			if msg := err.Error(); msg != s.lastErr {
				s.lastErr = msg
				f.logger.Warn("feed: model cannot be snapshotted; changes withheld",
					"subscription", s.id,
					"error", err,
				)
			}
			continue
		}
		s.lastErr = ""

		records := model.Diff(s.snapshot, cur)
		if len(records) == 0 {
			continue
		}
		s.snapshot = cur
		delivered = true

		batch := Batch{
			Seq:     f.loop.Clock().Next(),
			Records: records,
			State:   cur,
		}
		f.logger.Debug("feed: delivering batch",
			"subscription", s.id,
			"seq", batch.Seq,
			"records", len(records),
		)
		s.deliver(batch)
	}

	if delivered {
		f.loop.Post(func() {})
	}
}
