package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/restrictedstore/internal/journal"
	"github.com/roach88/restrictedstore/internal/model"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string // optional - defaults to the latest session
	Model    string // optional - filter to one model
	Kind     string // optional - filter to one event kind
}

// TraceEvent represents a single journal event in the timeline.
type TraceEvent struct {
	Seq         int64  `json:"seq"`
	Model       string `json:"model"`
	Kind        string `json:"kind"`
	Payload     any    `json:"payload,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session  string       `json:"session"`
	Label    string       `json:"label,omitempty"`
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	Models      int            `json:"models"`
	ByKind      map[string]int `json:"by_kind"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journal timeline of a session",
		Long: `Show the recorded timeline of one journal session.

Events are listed in sequence order: model snapshots (wrap, change),
change batches as JSON patches, validity transitions and unwraps.

Examples:
  rstore trace --db ./rstore.db
  rstore trace --db ./rstore.db --session 0192... --model m
  rstore trace --db ./rstore.db --kind transition --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default: latest)")
	cmd.Flags().StringVar(&opts.Model, "model", "", "filter to one model id")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to one event kind (wrap|change|batch|transition|unwrap)")

	return cmd
}

func runTrace(ctx context.Context, opts *TraceOptions, cmd *cobra.Command) error {
	p := newPrinter(cmd, opts.RootOptions)

	j, err := journal.OpenReadOnly(ctx, opts.Database, journal.WithLogger(opts.logger(cmd)))
	if err != nil {
		return commandError(err, "failed to open journal")
	}
	defer j.Close()

	session, err := resolveSession(ctx, j, opts.Session)
	if err != nil {
		return commandError(err, "failed to resolve session")
	}
	if session.ID == "" {
		if p.json {
			return p.ok(TraceResult{Timeline: []TraceEvent{}, Stats: TraceStats{ByKind: map[string]int{}}})
		}
		return p.ok("No sessions found in journal.")
	}

	events, err := j.Events(ctx, session.ID, opts.Model)
	if err != nil {
		return commandError(err, "failed to read events")
	}

	result := TraceResult{
		Session:  session.ID,
		Label:    session.Label,
		Timeline: buildTimeline(events, opts.Kind),
	}
	result.Stats = traceStats(result.Timeline)

	p.inSession(session.ID)
	if p.json {
		return p.ok(result)
	}
	return outputTraceText(p.out, result)
}

// resolveSession returns the named session, or the latest one when id is
// empty. A journal without sessions yields a zero Session.
func resolveSession(ctx context.Context, j *journal.Journal, id string) (journal.Session, error) {
	sessions, err := j.Sessions(ctx)
	if err != nil {
		return journal.Session{}, err
	}
	if id == "" {
		if len(sessions) == 0 {
			return journal.Session{}, nil
		}
		return sessions[len(sessions)-1], nil
	}
	for _, s := range sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return journal.Session{}, fmt.Errorf("session %q not found", id)
}

// buildTimeline converts journal events to timeline entries, keeping only
// kind when it is set.
func buildTimeline(events []journal.Event, kind string) []TraceEvent {
	timeline := make([]TraceEvent, 0, len(events))
	for _, ev := range events {
		if kind != "" && string(ev.Kind) != kind {
			continue
		}
		te := TraceEvent{
			Seq:         ev.Seq,
			Model:       ev.ModelID,
			Kind:        string(ev.Kind),
			Fingerprint: ev.Fingerprint,
		}
		var payload any
		if err := json.Unmarshal([]byte(ev.Payload), &payload); err == nil {
			te.Payload = payload
		}
		timeline = append(timeline, te)
	}
	return timeline
}

func traceStats(timeline []TraceEvent) TraceStats {
	stats := TraceStats{TotalEvents: len(timeline), ByKind: make(map[string]int)}
	models := make(map[string]bool)
	for _, ev := range timeline {
		stats.ByKind[ev.Kind]++
		models[ev.Model] = true
	}
	stats.Models = len(models)
	return stats
}

// outputTraceText outputs the trace result as a timeline.
func outputTraceText(w io.Writer, result TraceResult) error {

	fmt.Fprintf(w, "Session: %s", result.Session)
	if result.Label != "" {
		fmt.Fprintf(w, " (%s)", result.Label)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)

	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "No events.")
		return nil
	}

	for _, ev := range result.Timeline {
		fmt.Fprintf(w, "[%d] %-10s %s %s\n", ev.Seq, ev.Kind, ev.Model, describePayload(ev))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Events: %d across %d model(s)\n", result.Stats.TotalEvents, result.Stats.Models)
	return nil
}

// describePayload summarizes an event's payload for text output.
func describePayload(ev TraceEvent) string {
	switch ev.Kind {
	case string(journal.KindTransition):
		t, _ := ev.Payload.(map[string]any)
		from, _ := t["from"].(string)
		to, _ := t["to"].(string)
		return fmt.Sprintf("%s -> %s (pending %v)", stateColor(from), stateColor(to), t["pending"])
	case string(journal.KindBatch):
		ops, _ := ev.Payload.([]any)
		return fmt.Sprintf("%d op(s)", len(ops))
	case string(journal.KindUnwrap):
		return ""
	default:
		data, err := model.MarshalCanonical(ev.Payload)
		if err != nil {
			return fmt.Sprintf("<%v>", err)
		}
		return string(data)
	}
}
