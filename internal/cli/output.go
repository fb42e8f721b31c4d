package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/storekit/internal/api"
	"github.com/roach88/storekit/internal/datastore"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Scenario or validation failure, or a rejected call
	ExitCommandError = 2 // Bad arguments, missing paths, unusable journal
)

// Error codes reported by commands. Configuration errors use the codes of
// config.LoadError.
const (
	ErrCodeBadArgs       = "E201" // Arguments are not a JSON array
	ErrCodeSetup         = "E202" // Registry or client setup failed
	ErrCodeRejected      = "E203" // The action or resolution failed
	ErrCodeTestFailed    = "E204" // One or more scenarios failed
	ErrCodeUnknownName   = "E205" // No such store, selector or action
	ErrCodeRequestFailed = "E206" // The REST API or transport failed
	ErrCodeResolverCycle = "E207" // A resolver waited on itself
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
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
// Errors that are not ExitErrors exit with ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// rejection describes why a store call failed, for the error response.
type rejection struct {
	Code   string `json:"code,omitempty"`
	Status int    `json:"status,omitempty"`
}

// classify maps a failed call to an error code and, for request failures,
// the details the REST API reported.
func classify(err error) (string, any) {
	var (
		apiErr   *api.Error
		fetchErr *datastore.FetchError
	)
	switch {
	case datastore.IsNotFound(err):
		return ErrCodeUnknownName, nil
	case datastore.IsResolverCycleError(err):
		return ErrCodeResolverCycle, nil
	case errors.As(err, &apiErr):
		return ErrCodeRequestFailed, rejection{Code: apiErr.Code, Status: apiErr.Status}
	case errors.As(err, &fetchErr):
		return ErrCodeRequestFailed, rejection{Code: fetchErr.Code, Status: fetchErr.Status}
	}
	return ErrCodeRejected, nil
}

// OutputFormatter writes command results as JSON or text.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose output; kept off Writer so JSON stays parseable
	Verbose   bool
}

// newFormatter builds the formatter for a command from the root flags.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"`           // "ok" or "error"
	Data   any       `json:"data,omitempty"`   // success payload
	Error  *CLIError `json:"error,omitempty"`  // error details
	RunID  string    `json:"run_id,omitempty"` // journal run, if journaled
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (f *OutputFormatter) isJSON() bool {
	return f.Format == "json"
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.isJSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.isJSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %+v\n", details)
	}
	return nil
}

// Rejected reports a failed store call, classifying the error.
func (f *OutputFormatter) Rejected(err error) error {
	code, details := classify(err)
	return f.Error(code, err.Error(), details)
}

// Encode writes v as indented JSON.
func (f *OutputFormatter) Encode(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// VerboseLog writes a line to ErrWriter when verbose output is on.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
