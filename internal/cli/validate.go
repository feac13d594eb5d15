package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/restrictedstore/internal/harness"
)

// ValidationError describes one scenario file that failed to load.
type ValidationError struct {
	File    string `json:"file"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	Scenarios []string          `json:"scenarios"`
	Errors    []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario-file-or-dir>...",
		Short: "Validate scenario files without running them",
		Long: `Parse and validate scenario files without running them.

YAML files are decoded strictly (unknown fields are errors); CUE files are
evaluated and must be fully concrete. Every step is checked for exactly one
action, known error codes, valid ops and JSON pointer paths.

Exit codes:
  0 - All scenarios are valid
  1 - One or more scenarios are invalid
  2 - Command error (path not found, etc.)`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	p := newPrinter(cmd, opts)

	files, err := FindScenarioFiles(paths, "")
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return p.fail(ExitCommandError, loadErr.Code, loadErr.Message, nil)
		}
		return commandError(err, "failed to find scenarios")
	}
	if len(files) == 0 {
		return p.fail(ExitCommandError, ErrCodeNoFiles, "no scenario files found", paths)
	}

	p.logf("Found %d scenario file(s)", len(files))

	result := ValidationResult{Valid: true, Scenarios: []string{}}
	names := make(map[string]string)
	for _, file := range files {
		s, err := harness.LoadScenario(file)
		if err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				File:    file,
				Code:    ErrCodeInvalid,
				Message: err.Error(),
			})
			continue
		}
		if prev, ok := names[s.Name]; ok {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				File:    file,
				Code:    ErrCodeInvalid,
				Message: fmt.Sprintf("scenario name %q already used by %s", s.Name, prev),
			})
			continue
		}
		names[s.Name] = file
		result.Scenarios = append(result.Scenarios, s.Name)
		p.logf("  %s: %d step(s)", s.Name, len(s.Steps))
	}

	if !result.Valid {
		if p.json {
			return p.fail(ExitFailure, ErrCodeInvalid, "validation failed", result.Errors)
		}
		for _, e := range result.Errors {
			fmt.Fprintf(p.out, "%s %s\n  %s\n", mark(false), e.File, e.Message)
		}
		return failed("%d scenario file(s) invalid", len(result.Errors))
	}

	if p.json {
		return p.ok(result)
	}
	return p.ok(fmt.Sprintf("%s %d scenario(s) valid", mark(true), len(result.Scenarios)))
}
