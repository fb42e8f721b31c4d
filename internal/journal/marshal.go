package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/storekit/internal/ir"
)

// marshalPayload serializes a payload to canonical JSON. A nil payload is
// stored as SQL NULL.
func marshalPayload(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal payload: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// unmarshalPayload decodes a stored payload into its JSON shape.
func unmarshalPayload(s sql.NullString) (any, error) {
	if !s.Valid {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return v, nil
}
