package ir

// Version constants for the trace format and runtime.
const (
	// TraceVersion is the trace entry schema version.
	TraceVersion = "1"

	// RuntimeVersion is the storekit runtime version.
	RuntimeVersion = "0.1.0"
)
