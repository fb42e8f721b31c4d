package journal

import (
	"context"
	"fmt"

	"github.com/roach88/storekit/internal/ir"
)

func (j *Journal) startRun() error {
	_, err := j.db.Exec(`
		INSERT INTO runs (run_id, runtime_version)
		VALUES (?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`, j.runID, ir.RuntimeVersion)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// Append inserts a trace entry into the current run.
// Uses ON CONFLICT DO NOTHING for idempotency - an entry whose seq is
// already journaled is silently ignored.
//
// The payload is stored as canonical JSON.
func (j *Journal) Append(ctx context.Context, e ir.TraceEntry) error {
	if j.readOnly {
		return fmt.Errorf("append entry %d: journal is read-only", e.Seq)
	}
	payload, err := marshalPayload(e.Payload)
	if err != nil {
		return fmt.Errorf("append entry %d: %w", e.Seq, err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO entries
		(run_id, seq, kind, store, type, key, digest, payload, error, request_id, trace_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		j.runID,
		e.Seq,
		string(e.Kind),
		e.Store,
		e.Type,
		e.Key,
		e.Digest,
		payload,
		e.Error,
		e.Request,
		ir.TraceVersion,
	)
	if err != nil {
		return fmt.Errorf("append entry %d: %w", e.Seq, err)
	}
	return nil
}
