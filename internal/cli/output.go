package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Process exit codes.
const (
	ExitSuccess      = 0 // every scenario passed, every model replayed
	ExitFailure      = 1 // a scenario failed, a file is invalid or a replay diverged
	ExitCommandError = 2 // bad flags, paths, config or journal
)

// ExitError is a command error carrying the process exit code.
type ExitError struct {
	Code int
	msg  string
	err  error
}

func (e *ExitError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *ExitError) Unwrap() error { return e.err }

// failed reports an unsuccessful outcome: ExitFailure.
func failed(format string, args ...any) *ExitError {
	return &ExitError{Code: ExitFailure, msg: fmt.Sprintf(format, args...)}
}

// commandError reports a command that could not do its job: ExitCommandError.
// err may be nil.
func commandError(err error, format string, args ...any) *ExitError {
	return &ExitError{Code: ExitCommandError, msg: fmt.Sprintf(format, args...), err: err}
}

// ExitCode maps err to a process exit code. Errors without an ExitError in
// their chain, such as cobra flag errors, are failures.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response is the envelope every command writes with --format json.
type Response struct {
	Status  string     `json:"status"` // "ok" or "error"
	Session string     `json:"session,omitempty"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody says why a command did not succeed.
type ErrorBody struct {
	Code    string `json:"code"` // "E003", "E_REPLAY_MISMATCH", ...
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// printer writes command output. Results go to out and diagnostics to diag,
// so JSON on stdout stays parseable with --verbose.
type printer struct {
	json    bool
	verbose bool
	out     io.Writer
	diag    io.Writer
	session string
}

func newPrinter(cmd *cobra.Command, opts *RootOptions) *printer {
	return &printer{
		json:    opts.Format == "json",
		verbose: opts.Verbose,
		out:     cmd.OutOrStdout(),
		diag:    cmd.ErrOrStderr(),
	}
}

// inSession tags later JSON responses with a journal session id.
func (p *printer) inSession(id string) *printer {
	p.session = id
	return p
}

// respond writes resp as indented JSON, filling in the session.
func (p *printer) respond(resp Response) error {
	if resp.Session == "" {
		resp.Session = p.session
	}
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// ok writes a successful result. Text mode prints data as is.
func (p *printer) ok(data any) error {
	if p.json {
		return p.respond(Response{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(p.out, data)
	return err
}

// fail writes an error response and returns the ExitError the command
// should return. In text mode details are shown with --verbose only.
func (p *printer) fail(exit int, code, message string, details any) error {
	if p.json {
		if err := p.respond(Response{
			Status: "error",
			Error:  &ErrorBody{Code: code, Message: message, Details: details},
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(p.out, "%s [%s]: %s\n", color.RedString("Error"), code, message)
		if p.verbose && details != nil {
			fmt.Fprintf(p.out, "Details: %v\n", details)
		}
	}
	return &ExitError{Code: exit, msg: message}
}

// logf writes a diagnostic line when --verbose is set.
func (p *printer) logf(format string, args ...any) {
	if p.verbose {
		fmt.Fprintf(p.diag, format+"\n", args...)
	}
}

// mark returns the pass or fail mark. Evaluated per call so --no-color
// takes effect.
func mark(ok bool) string {
	if ok {
		return color.GreenString("✓")
	}
	return color.RedString("✗")
}

// stateColor renders a validity state: valid green, pending yellow,
// invalid red.
func stateColor(state string) string {
	switch state {
	case "valid":
		return color.GreenString(state)
	case "pending":
		return color.YellowString(state)
	case "invalid":
		return color.RedString(state)
	default:
		return state
	}
}
