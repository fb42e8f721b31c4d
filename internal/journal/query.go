package journal

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/storekit/internal/ir"
)

// Filter selects journal entries. Zero fields match everything.
//
// An empty Run matches every run, so callers that want the current run set
// it explicitly.
type Filter struct {
	Run    string
	Kind   ir.Kind
	Store  string
	Type   string
	Digest string
	Key    string
	// KeyPrefix matches entries whose key starts with the prefix.
	KeyPrefix string
	Limit     int
}

// Query returns the entries matching f ordered by run, then seq.
func (j *Journal) Query(ctx context.Context, f Filter) ([]ir.TraceEntry, error) {
	query, params := f.compile()
	return j.query(ctx, query, params...)
}

// compile renders f as a SELECT over entries.
// Values are always bound as parameters, never interpolated.
func (f Filter) compile() (string, []any) {
	var (
		where  []string
		params []any
	)
	eq := func(column, value string) {
		if value == "" {
			return
		}
		where = append(where, column+" = ?")
		params = append(params, value)
	}
	eq("run_id", f.Run)
	eq("kind", string(f.Kind))
	eq("store", f.Store)
	eq("type", f.Type)
	eq("digest", f.Digest)
	eq("key", f.Key)
	if f.KeyPrefix != "" {
		where = append(where, "substr(key, 1, length(?)) = ?")
		params = append(params, f.KeyPrefix, f.KeyPrefix)
	}

	whereClause := "1 = 1"
	if len(where) > 0 {
		whereClause = strings.Join(where, " AND ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM entries WHERE %s ORDER BY %s",
		entryColumns, whereClause, stableOrder)
	if f.Limit > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, f.Limit)
	}
	return b.String(), params
}

const (
	entryColumns = "seq, kind, store, type, key, digest, payload, error, request_id"

	// Every entries query orders by this key so results never depend on
	// SQLite's scan order.
	stableOrder = "run_id COLLATE BINARY ASC, seq ASC"
)
