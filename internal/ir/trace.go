package ir

// Kind classifies a TraceEntry.
type Kind string

const (
	KindDispatch        Kind = "dispatch"         // action reached a reducer
	KindResolverStart   Kind = "resolver_start"   // resolution began for a key
	KindResolverFinish  Kind = "resolver_finish"  // resolution completed
	KindResolverError   Kind = "resolver_error"   // resolution failed
	KindResolverInvalid Kind = "resolver_invalid" // resolution invalidated
	KindFetchStart      Kind = "fetch_start"      // network request issued
	KindFetchDedup      Kind = "fetch_dedup"      // request joined an in-flight fetch
	KindFetchFinish     Kind = "fetch_finish"     // network request settled
)

// TraceEntry is one diagnostic record of runtime activity.
//
// Entries are ordered by Seq, a logical clock; they carry no wall-clock
// timestamps so that traces of identical runs are identical.
type TraceEntry struct {
	Seq     int64  `json:"seq"`
	Kind    Kind   `json:"kind"`
	Store   string `json:"store,omitempty"`
	Type    string `json:"type,omitempty"`  // action type, control tag or selector name
	Key     string `json:"key,omitempty"`   // resolver key or request key
	Digest  string `json:"-"`               // fixed-length hash of Key, for indexing
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
	Request string `json:"request,omitempty"` // fetch request id
}
