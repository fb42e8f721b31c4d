package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/storekit/internal/ir"
)

// Run describes one journaled run.
type Run struct {
	ID             string `json:"id"`
	RuntimeVersion string `json:"runtimeVersion"`
	StartedAt      string `json:"startedAt"`
	Entries        int    `json:"entries"`
}

// Runs lists journaled runs, oldest first.
func (j *Journal) Runs(ctx context.Context) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT r.run_id, r.runtime_version, r.started_at, COUNT(e.seq)
		FROM runs r
		LEFT JOIN entries e ON e.run_id = r.run_id
		GROUP BY r.run_id
		ORDER BY r.started_at ASC, r.run_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.RuntimeVersion, &r.StartedAt, &r.Entries); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Entries returns the entries of a run ordered by seq.
// An empty runID selects the journal's current run.
//
// Returns an empty slice (not nil) if the run has no entries.
func (j *Journal) Entries(ctx context.Context, runID string) ([]ir.TraceEntry, error) {
	if runID == "" {
		runID = j.runID
	}
	return j.Query(ctx, Filter{Run: runID})
}

// EntriesByDigest returns every entry about one resolver key or request,
// across runs, ordered by run then seq.
func (j *Journal) EntriesByDigest(ctx context.Context, digest string) ([]ir.TraceEntry, error) {
	if digest == "" {
		return []ir.TraceEntry{}, nil
	}
	return j.Query(ctx, Filter{Digest: digest})
}

func (j *Journal) query(ctx context.Context, query string, args ...any) ([]ir.TraceEntry, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []ir.TraceEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (ir.TraceEntry, error) {
	var (
		e       ir.TraceEntry
		kind    string
		payload sql.NullString
	)
	err := rows.Scan(&e.Seq, &kind, &e.Store, &e.Type, &e.Key, &e.Digest, &payload, &e.Error, &e.Request)
	if err != nil {
		return ir.TraceEntry{}, fmt.Errorf("scan entry: %w", err)
	}
	e.Kind = ir.Kind(kind)
	if e.Payload, err = unmarshalPayload(payload); err != nil {
		return ir.TraceEntry{}, fmt.Errorf("entry %d: %w", e.Seq, err)
	}
	return e, nil
}
