package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/storekit/internal/datastore"
	"github.com/roach88/storekit/internal/ir"
)

// CallOptions holds flags for the resolve and dispatch commands.
type CallOptions struct {
	*RootOptions
	Config  string
	Journal string
	Timeout time.Duration
	Trace   bool
}

// CallResult is the outcome of a resolve or dispatch.
type CallResult struct {
	Store string          `json:"store"`
	Name  string          `json:"name"`
	Value any             `json:"value"`
	Trace []ir.TraceEntry `json:"trace,omitempty"`
}

type callFunc func(ctx context.Context, h *datastore.Handle, store, name string, args []any) (any, error)

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	return newCallCommand(rootOpts, callSpec{
		use:   "resolve <store> <selector> [json-args]",
		short: "Resolve a selector and print its value",
		long: `Run a selector's resolver, waiting for any requests it issues,
then print the selector's value.

Arguments are a JSON array, e.g. '["P1"]'.

Examples:
  storekit resolve modules/analytics-4 getAccountSummaries --config ./site
  storekit resolve modules/analytics-4 getWebDataStreams '["P1"]' --journal trace.db`,
		call: func(ctx context.Context, h *datastore.Handle, store, name string, args []any) (any, error) {
			return h.ResolveSelect(store).Get(name, args...).Wait(ctx)
		},
	})
}

// NewDispatchCommand creates the dispatch command.
func NewDispatchCommand(rootOpts *RootOptions) *cobra.Command {
	return newCallCommand(rootOpts, callSpec{
		use:   "dispatch <store> <action> [json-args]",
		short: "Dispatch an action and print its result",
		long: `Run an action to completion, including the resolutions and
requests it waits for, then print its result.

Arguments are a JSON array, e.g. '[["P1","P2"], "https://example.com"]'.

Examples:
  storekit dispatch modules/analytics-4 matchAccountID --config ./site
  storekit dispatch core/site setReferenceSiteURL '["https://example.org"]'`,
		call: func(ctx context.Context, h *datastore.Handle, store, name string, args []any) (any, error) {
			return h.Dispatch(store).Do(name, args...).Wait(ctx)
		},
	})
}

type callSpec struct {
	use, short, long string
	call             callFunc
}

func newCallCommand(rootOpts *RootOptions, spec callSpec) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           spec.use,
		Short:         spec.short,
		Long:          spec.long,
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(opts, spec.call, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", ".", "site configuration directory")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "append the trace to this SQLite journal")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "give up waiting after this long")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "include the trace in the output")

	return cmd
}

func runCall(opts *CallOptions, call callFunc, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	store, name := args[0], args[1]
	var callArgs []any
	if len(args) == 3 {
		if err := json.Unmarshal([]byte(args[2]), &callArgs); err != nil {
			_ = formatter.Error(ErrCodeBadArgs, "arguments must be a JSON array", args[2])
			return WrapExitError(ExitCommandError, "invalid arguments", err)
		}
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: opts.logLevel(),
	}))
	s, err := openSession(sessionOptions{
		configDir:   opts.Config,
		journalPath: opts.Journal,
		logger:      logger,
	})
	if err != nil {
		_ = formatter.Error(ErrCodeSetup, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to set up registry", err)
	}
	defer s.close()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	formatter.VerboseLog("Calling %s/%s with %d argument(s)", store, name, len(callArgs))
	value, err := call(ctx, s.registry.Handle(ctx), store, name, callArgs)
	if err != nil {
		_ = formatter.Rejected(err)
		return WrapExitError(ExitFailure, fmt.Sprintf("%s/%s failed", store, name), err)
	}

	result := CallResult{Store: store, Name: name, Value: value}
	if opts.Trace {
		result.Trace = s.registry.Trace()
	}
	return outputCall(formatter, result, s.runID())
}

func outputCall(formatter *OutputFormatter, result CallResult, runID string) error {
	if formatter.Format == "json" {
		return formatter.Encode(CLIResponse{Status: "ok", Data: result, RunID: runID})
	}

	data, err := json.MarshalIndent(result.Value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render value: %w", err)
	}
	fmt.Fprintln(formatter.Writer, string(data))

	if len(result.Trace) > 0 {
		fmt.Fprintln(formatter.Writer)
		writeTrace(formatter.Writer, result.Trace)
	}
	if runID != "" {
		formatter.VerboseLog("journal run: %s", runID)
	}
	return nil
}
