package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/storekit/internal/config"
)

// ValidationError is one configuration problem.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Site   *config.Site      `json:"site,omitempty"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config-dir>",
		Short: "Validate a site configuration",
		Long: `Validate the CUE site configuration in a directory against the
site schema without contacting the site.

Every violation is reported with its file position.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, configDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	formatter.VerboseLog("Loading site configuration from %s", configDir)
	site, errs := config.Load(configDir)
	if len(errs) == 0 {
		return outputValidateSuccess(formatter, site)
	}

	// Directory-level problems are command errors, not invalid configuration.
	var loadErr *config.LoadError
	if len(errs) == 1 && errors.As(errs[0], &loadErr) && isCommandErrorCode(loadErr.Code) {
		_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
		return NewExitError(ExitCommandError, loadErr.Error())
	}

	return outputValidationErrors(formatter, toValidationErrors(errs))
}

func isCommandErrorCode(code string) bool {
	switch code {
	case config.ErrCodeNotFound, config.ErrCodeScanError, config.ErrCodeNoFiles:
		return true
	}
	return false
}

func toValidationErrors(errs []error) []ValidationError {
	out := make([]ValidationError, 0, len(errs))
	for _, err := range errs {
		var loadErr *config.LoadError
		if !errors.As(err, &loadErr) {
			out = append(out, ValidationError{Code: config.ErrCodeGeneric, Message: err.Error()})
			continue
		}
		ve := ValidationError{Code: loadErr.Code, Message: loadErr.Message}
		if loadErr.Pos.IsValid() {
			ve.File = loadErr.Pos.Filename()
			ve.Line = loadErr.Pos.Line()
		}
		out = append(out, ve)
	}
	return out
}

func outputValidateSuccess(formatter *OutputFormatter, site *config.Site) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Site: site})
	}

	fmt.Fprintln(formatter.Writer, "✓ Site configuration valid")
	formatter.VerboseLog("  referenceSiteURL: %s", site.ReferenceSiteURL)
	formatter.VerboseLog("  modules: %v", site.Modules)
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:  false,
				Errors: errs,
			},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := formatter.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s:%d\n", err.File, err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
