// Package journal provides a SQLite record of a registry's trace.
//
// A Journal receives every trace entry a datastore.Registry records:
// dispatched actions, resolution start and settlement, and network
// requests. Entries are grouped by run, one run per process, and ordered
// by their logical-clock sequence number.
//
// The journal is diagnostic only. Store state is never restored from it;
// a new registry always starts from its definitions' initial state.
//
// Usage:
//
//	j, err := journal.Open("trace.db")
//	if err != nil { ... }
//	defer j.Close()
//	reg := datastore.NewRegistry(datastore.WithJournal(j))
package journal
