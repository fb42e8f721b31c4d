package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/storekit/internal/ir"
	"github.com/roach88/storekit/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Journal string
	Run     string // run to show; default: the latest
	List    bool   // list runs instead of entries
	Kind    string // optional - filter to one entry kind
	Store   string // optional - filter to one store
	Key     string // optional - every entry for this resolver or request key, across runs
	Prefix  string // optional - entries whose key starts with this prefix
	Limit   int
}

// TraceResult holds the trace output.
type TraceResult struct {
	Run     string          `json:"run,omitempty"`
	Entries []ir.TraceEntry `json:"entries"`
	Stats   TraceStats      `json:"stats"`
}

// TraceStats holds summary statistics for a trace.
type TraceStats struct {
	TotalEntries int `json:"total_entries"`
	Dispatches   int `json:"dispatches"`
	Resolutions  int `json:"resolutions"`
	Requests     int `json:"requests"`
	Deduplicated int `json:"deduplicated"`
	Failures     int `json:"failures"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show a journaled trace",
		Long: `Show the trace entries a run appended to a journal.

Each run of resolve or dispatch with --journal appends one run. Without
--run the latest run is shown.

Examples:
  storekit trace --journal trace.db --list
  storekit trace --journal trace.db --kind fetch_start
  storekit trace --journal trace.db --key 'modules/analytics-4/getAccountSummaries()'
  storekit trace --journal trace.db --key-prefix 'modules/analytics-4/getWebDataStreams('`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.Run, "run", "", "run id (default: latest)")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list runs")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to entries of this kind")
	cmd.Flags().StringVar(&opts.Store, "store", "", "filter to entries of this store")
	cmd.Flags().StringVar(&opts.Key, "key", "", "entries for this key across all runs")
	cmd.Flags().StringVar(&opts.Prefix, "key-prefix", "", "filter to entries whose key starts with this prefix")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show at most this many entries (0 = all)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	j, err := journal.Open(opts.Journal, journal.ReadOnly())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	runs, err := j.Runs(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	if opts.List {
		return outputRuns(formatter, runs)
	}

	result := TraceResult{Run: opts.Run}
	filter := journal.Filter{
		Kind:      ir.Kind(opts.Kind),
		Store:     opts.Store,
		KeyPrefix: opts.Prefix,
		Limit:     opts.Limit,
	}
	switch {
	case opts.Key != "":
		result.Run = ""
		result.Entries, err = entriesForKey(ctx, j, opts.Key, filter)
	default:
		if result.Run == "" && len(runs) > 0 {
			result.Run = runs[len(runs)-1].ID
		}
		if result.Run == "" {
			result.Entries = []ir.TraceEntry{}
			break
		}
		filter.Run = result.Run
		result.Entries, err = j.Query(ctx, filter)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read entries", err)
	}

	result.Stats = computeStats(result.Entries)

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return outputTraceText(formatter, result)
}

// entriesForKey looks a key up by the digests it may have been recorded
// under: as a resolver key first, then by the key text itself.
func entriesForKey(ctx context.Context, j *journal.Journal, key string, filter journal.Filter) ([]ir.TraceEntry, error) {
	if digest := resolverDigest(key); digest != "" {
		byDigest := filter
		byDigest.Digest = digest
		entries, err := j.Query(ctx, byDigest)
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			return entries, nil
		}
	}

	// Request digests include the fetch store's base name, which the key
	// alone does not carry.
	filter.Key = key
	return j.Query(ctx, filter)
}

// resolverDigest computes the digest of a key written "store/selector(args)".
// The store name may itself contain slashes; the selector never does.
func resolverDigest(key string) string {
	open := strings.IndexByte(key, '(')
	if open < 0 || !strings.HasSuffix(key, ")") {
		return ""
	}
	slash := strings.LastIndexByte(key[:open], '/')
	if slash < 0 {
		return ""
	}
	k := ir.ResolverKey{
		Store:    key[:slash],
		Selector: key[slash+1 : open],
		Args:     "[" + key[open+1:len(key)-1] + "]",
	}
	return k.Digest()
}

func computeStats(entries []ir.TraceEntry) TraceStats {
	stats := TraceStats{TotalEntries: len(entries)}
	for _, e := range entries {
		switch e.Kind {
		case ir.KindDispatch:
			stats.Dispatches++
		case ir.KindResolverStart:
			stats.Resolutions++
		case ir.KindFetchStart:
			stats.Requests++
		case ir.KindFetchDedup:
			stats.Deduplicated++
		case ir.KindResolverError:
			stats.Failures++
		case ir.KindFetchFinish:
			if e.Error != "" {
				stats.Failures++
			}
		}
	}
	return stats
}

func outputRuns(formatter *OutputFormatter, runs []journal.Run) error {
	if formatter.Format == "json" {
		return formatter.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs journaled.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(formatter.Writer, "%s  %s  %d entries  (runtime %s)\n", r.ID, r.StartedAt, r.Entries, r.RuntimeVersion)
	}
	return nil
}

func outputTraceText(formatter *OutputFormatter, result TraceResult) error {
	w := formatter.Writer
	if result.Run != "" {
		fmt.Fprintf(w, "Run: %s\n\n", result.Run)
	}
	if len(result.Entries) == 0 {
		fmt.Fprintln(w, "No entries found.")
		return nil
	}

	writeTrace(w, result.Entries)

	s := result.Stats
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Stats: %d entries, %d dispatches, %d resolutions, %d requests (%d deduplicated), %d failures\n",
		s.TotalEntries, s.Dispatches, s.Resolutions, s.Requests, s.Deduplicated, s.Failures)
	return nil
}

// writeTrace prints one line per entry.
func writeTrace(w io.Writer, entries []ir.TraceEntry) {
	for _, e := range entries {
		line := fmt.Sprintf("[%d] %-16s %s %s", e.Seq, e.Kind, e.Store, e.Type)
		if e.Key != "" {
			line += " " + e.Key
		}
		if e.Request != "" {
			line += " " + e.Request
		}
		if e.Error != "" {
			line += " error=" + e.Error
		}
		fmt.Fprintln(w, line)
	}
}
