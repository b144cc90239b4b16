package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/configur8/internal/injector"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // One or more entries failed to resolve; output was still written
	ExitCommandError = 2 // Command error (unreadable document, bad config, store unavailable)
)

// Error codes reported in JSON error responses.
const (
	ErrCodeDocument = "E001" // document could not be loaded or written
	ErrCodeConfig   = "E002" // configuration invalid or unreadable
	ErrCodeResolve  = "E003" // entries failed during resolution
	ErrCodeStore    = "E004" // kv store unavailable or query failed
	ErrCodeNotFound = "E005" // requested key does not exist
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int    // Exit code (ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitSuccess for nil and ExitCommandError for errors that carry no
// code, which covers cobra's own flag and argument errors.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// OutputFormatter writes command results as text or JSON.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostic output; defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope for command output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
	PassID string    `json:"pass_id,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success writes data. Text output uses fmt's default formatting unless data
// implements fmt.Stringer.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes an error response.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Report writes a pass summary. In JSON mode the report is the payload and
// failures are listed under details.
func (f *OutputFormatter) Report(r *injector.Report) error {
	if f.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: r, PassID: r.PassID}
		if len(r.Failures) > 0 {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    ErrCodeResolve,
				Message: fmt.Sprintf("%d entries failed", len(r.Failures)),
				Details: failureDetails(r.Failures),
			}
		}
		return json.NewEncoder(f.Writer).Encode(resp)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "pass %s: %d replaced, %d unresolved, %d failed\n",
		r.PassID, len(r.Replaced), len(r.Unresolved), len(r.Failures))
	if f.Verbose {
		for _, rep := range r.Replaced {
			fmt.Fprintf(&b, "  replaced   %s <- %s\n", rep.Key, rep.Token)
		}
		for _, u := range r.Unresolved {
			fmt.Fprintf(&b, "  unresolved %s (%s)\n", u.Key, u.Token)
		}
	}
	for _, fail := range r.Failures {
		fmt.Fprintf(&b, "  failed     %s (%s) at %s: %v\n", fail.Key, fail.Token, fail.Stage, fail.Err)
	}
	_, err := io.WriteString(f.Writer, b.String())
	return err
}

// VerboseLog writes a diagnostic line when verbose mode is on. Diagnostics go
// to ErrWriter so they never corrupt a document or JSON written to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

type failureDetail struct {
	Key   string `json:"key"`
	Token string `json:"token"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

func failureDetails(failures []*injector.EntryError) []failureDetail {
	out := make([]failureDetail, len(failures))
	for i, f := range failures {
		out[i] = failureDetail{Key: f.Key, Token: f.Token, Stage: string(f.Stage), Error: f.Err.Error()}
	}
	return out
}
