package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/restrictedstore/internal/journal"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Session  string // optional - defaults to the latest session
	Model    string // optional - replay one model only
}

// ModelReplay is the replayed outcome of one model.
type ModelReplay struct {
	Model       string `json:"model"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Validity    string `json:"validity,omitempty"`
	Batches     int    `json:"batches"`
	LastSeq     int64  `json:"last_seq"`
	Unwrapped   bool   `json:"unwrapped"`
	State       any    `json:"state,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ReplayResult holds the outcome of replaying a session.
type ReplayResult struct {
	Session    string        `json:"session"`
	Models     []ModelReplay `json:"models"`
	Mismatches int           `json:"mismatches"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild models from a journal and verify fingerprints",
		Long: `Rebuild every model of a journal session from its recorded snapshots.

Each recorded batch patch is applied in order and the resulting state is
fingerprinted. A fingerprint that differs from the recorded one is a
divergence and fails the command.

Exit codes:
  0 - Every model replayed to its recorded fingerprints
  1 - One or more models diverged
  2 - Command error (journal missing, unknown session, etc.)`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default: latest)")
	cmd.Flags().StringVar(&opts.Model, "model", "", "replay only this model id")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, cmd *cobra.Command) error {
	p := newPrinter(cmd, opts.RootOptions)

	j, err := journal.OpenReadOnly(ctx, opts.Database, journal.WithLogger(opts.logger(cmd)))
	if err != nil {
		return p.fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}
	defer j.Close()

	session, err := resolveSession(ctx, j, opts.Session)
	if err != nil {
		return p.fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}
	if session.ID == "" {
		return p.fail(ExitCommandError, ErrCodeNotFound, "no sessions found in journal", nil)
	}
	p.inSession(session.ID)

	models := []string{opts.Model}
	if opts.Model == "" {
		models, err = j.Models(ctx, session.ID)
		if err != nil {
			return commandError(err, "failed to list models")
		}
	}

	result := ReplayResult{Session: session.ID, Models: []ModelReplay{}}
	for _, id := range models {
		p.logf("Replaying %s", id)
		mr := ModelReplay{Model: id}
		res, err := j.Replay(ctx, session.ID, id)
		if err != nil {
			var mismatch *journal.MismatchError
			if !errors.As(err, &mismatch) {
				return commandError(err, "failed to replay %s", id)
			}
			result.Mismatches++
			mr.Error = err.Error()
			mr.LastSeq = mismatch.Seq
			result.Models = append(result.Models, mr)
			continue
		}
		mr.Fingerprint = res.Fingerprint
		mr.Validity = string(res.Validity)
		mr.Batches = res.Batches
		mr.LastSeq = res.LastSeq
		mr.Unwrapped = res.Unwrapped
		mr.State = res.State
		result.Models = append(result.Models, mr)
	}

	if result.Mismatches > 0 {
		msg := fmt.Sprintf("%d model(s) diverged", result.Mismatches)
		if p.json {
			return p.fail(ExitFailure, ErrCodeReplayMismatch, msg, result)
		}
		outputReplayText(p.out, result)
		return failed("%s", msg)
	}
	if p.json {
		return p.ok(result)
	}
	outputReplayText(p.out, result)
	return nil
}

func outputReplayText(w io.Writer, result ReplayResult) {
	fmt.Fprintf(w, "Session: %s\n\n", result.Session)
	for _, m := range result.Models {
		if m.Error != "" {
			fmt.Fprintf(w, "%s %s\n  %s\n", mark(false), m.Model, m.Error)
			continue
		}
		status := stateColor(m.Validity)
		if m.Unwrapped {
			status += ", unwrapped"
		}
		fmt.Fprintf(w, "%s %s  %s  %d batch(es)  [%s]\n", mark(true), m.Model, shortFingerprint(m.Fingerprint), m.Batches, status)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Replayed %d model(s), %d diverged\n", len(result.Models), result.Mismatches)
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
