package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/roach88/restrictedstore/internal/harness"
	"github.com/roach88/restrictedstore/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Filter    string // scenario filter (glob pattern)
	GoldenDir string // compare traces against <dir>/<scenario>.golden
	Update    bool   // regenerate golden files
	Journal   string // record into this SQLite file (overrides config)
	Metrics   bool   // print Prometheus metrics after the run
	ShowTrace bool   // print every trace event
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name    string                          `json:"name"`
	File    string                          `json:"file"`
	Pass    bool                            `json:"pass"`
	Session string                          `json:"session,omitempty"`
	Errors  []string                        `json:"errors,omitempty"`
	Trace   []harness.TraceEvent            `json:"trace,omitempty"`
	Models  map[string]harness.ModelSummary `json:"models,omitempty"`
}

// RunResult holds the overall run result.
type RunResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario-file-or-dir>...",
		Short: "Run scenarios against a fresh store",
		Long: `Run scenario files against a store.

Each scenario gets its own loop and store. Steps run in order; the
scenario passes when no step fails unexpectedly, every assertion holds and
every surviving model replays from the journal to the same fingerprint.

With --golden, the trace of each scenario is also compared against
<dir>/<scenario-name>.golden (missing files are skipped unless --update).

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  rstore run ./scenarios
  rstore run ./scenarios --filter "weak_*"
  rstore run ./scenarios --golden ./golden --update
  rstore run ./scenarios/errors.yaml --journal ./rstore.db --metrics
  rstore run ./scenarios --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runScenarios(ctx, opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden", "", "directory of golden trace files")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files (requires --golden)")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "record every scenario into this SQLite journal")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print store metrics in Prometheus text format")
	cmd.Flags().BoolVar(&opts.ShowTrace, "trace", false, "print trace events")

	return cmd
}

func runScenarios(ctx context.Context, opts *RunOptions, paths []string, cmd *cobra.Command) error {
	if opts.Update && opts.GoldenDir == "" {
		return commandError(nil, "--update requires --golden")
	}

	files, err := FindScenarioFiles(paths, opts.Filter)
	if err != nil {
		return commandError(err, "failed to find scenarios")
	}

	if len(files) == 0 {
		if opts.Format == "json" {
			return outputRunJSON(cmd, opts, RunResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	reg := prometheus.NewRegistry()
	runOpts := []harness.Option{
		harness.WithLogger(opts.logger(cmd)),
		harness.WithMetrics(store.NewMetrics(reg, opts.Config.Metrics.Namespace)),
		harness.WithTimeout(opts.Config.Run.Timeout),
	}
	if path := opts.journalPath(); path != "" {
		runOpts = append(runOpts, harness.WithJournalPath(path))
	}

	result := RunResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, file := range files {
		sr := runOne(ctx, opts, file, runOpts)
		if opts.Format != "json" {
			printScenarioText(cmd.OutOrStdout(), sr, opts.ShowTrace)
		}
		if !opts.ShowTrace {
			sr.Trace = nil
		}
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Metrics {
		if err := writeMetrics(cmd.ErrOrStderr(), reg); err != nil {
			return commandError(err, "failed to write metrics")
		}
	}

	if opts.Format == "json" {
		return outputRunJSON(cmd, opts, result)
	}
	return outputRunText(cmd, result)
}

// journalPath returns where scenarios are recorded, or "" for a private
// in-memory journal per scenario.
func (o *RunOptions) journalPath() string {
	if o.Journal != "" {
		return o.Journal
	}
	if o.Config.Journal.Enabled {
		return o.Config.Journal.Path
	}
	return ""
}

// runOne loads, runs and golden-checks a single scenario file.
func runOne(ctx context.Context, opts *RunOptions, file string, runOpts []harness.Option) ScenarioResult {
	sr := ScenarioResult{Name: filepath.Base(file), File: file}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return sr
	}
	sr.Name = scenario.Name

	result, err := harness.Run(ctx, scenario, runOpts...)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return sr
	}
	sr.Pass = result.Pass
	sr.Session = result.Session
	sr.Errors = result.Errors
	sr.Trace = result.Trace
	sr.Models = result.Models

	if opts.GoldenDir == "" {
		return sr
	}
	if err := checkGolden(opts, scenario.Name, result); err != nil {
		sr.Pass = false
		sr.Errors = append(sr.Errors, err.Error())
	}
	return sr
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(dir, name string) string {
	return filepath.Join(dir, name+".golden")
}

// checkGolden compares or rewrites the golden file for one result.
func checkGolden(opts *RunOptions, name string, result *harness.Result) error {
	current, err := harness.Snapshot(name, result)
	if err != nil {
		return fmt.Errorf("failed to snapshot trace: %w", err)
	}
	path := goldenFilePath(opts.GoldenDir, name)

	if opts.Update {
		if err := os.MkdirAll(opts.GoldenDir, 0755); err != nil {
			return fmt.Errorf("failed to create golden directory: %w", err)
		}
		if err := os.WriteFile(path, current, 0644); err != nil {
			return fmt.Errorf("failed to write golden file: %w", err)
		}
		return nil
	}

	golden, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read golden file: %w", err)
	}
	if !bytes.Equal(golden, current) {
		return fmt.Errorf("trace does not match %s (run with --update to regenerate)", path)
	}
	return nil
}

// writeMetrics dumps every gathered metric family in text exposition format.
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func printScenarioText(w io.Writer, sr ScenarioResult, showTrace bool) {
	fmt.Fprintf(w, "%s %s\n", mark(sr.Pass), sr.Name)
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
	if showTrace {
		for _, ev := range sr.Trace {
			fmt.Fprintf(w, "  %s\n", formatTraceEvent(ev))
		}
	}
}

// formatTraceEvent renders one harness trace event on a single line.
func formatTraceEvent(ev harness.TraceEvent) string {
	prefix := fmt.Sprintf("[%d] %-8s", ev.Step, ev.Event)
	switch ev.Event {
	case harness.EventNotify:
		payload, _ := json.Marshal(ev.Payload)
		return fmt.Sprintf("%s %s -> %s %s", prefix, ev.Model, ev.Observer, payload)
	case harness.EventPromise:
		return fmt.Sprintf("%s %s %s#%d %s", prefix, ev.Model, ev.Promise, ev.Index, stateColor(ev.State))
	case harness.EventSettled:
		return fmt.Sprintf("%s %s %s#%d %s (%v) %s", prefix, ev.Model, ev.Promise, ev.Index, ev.Outcome, ev.Value, stateColor(ev.State))
	case harness.EventError:
		return fmt.Sprintf("%s %s", prefix, ev.Code)
	case harness.EventAssert:
		return fmt.Sprintf("%s %s", prefix, ev.Expr)
	default:
		return prefix
	}
}

// outputRunJSON writes the run result. A failed run carries both the
// result and an error body.
func outputRunJSON(cmd *cobra.Command, opts *RunOptions, result RunResult) error {
	p := newPrinter(cmd, opts.RootOptions)
	if result.Failed == 0 {
		return p.ok(result)
	}
	msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
	if err := p.respond(Response{
		Status: "error",
		Data:   result,
		Error:  &ErrorBody{Code: ErrCodeRunFailed, Message: msg},
	}); err != nil {
		return err
	}
	return failed("%s", msg)
}

// outputRunText outputs the run summary as text.
func outputRunText(cmd *cobra.Command, result RunResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return failed("%d scenario(s) failed", result.Failed)
	}

	fmt.Fprintf(w, "%s All scenarios passed\n", mark(true))
	return nil
}
