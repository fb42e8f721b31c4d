// Package api is the network collaborator of the store runtime.
//
// Fetch stores never talk to the network themselves; their control callbacks
// call a [Client]. Two implementations are provided:
//
//   - [HTTPClient]: issues GET requests against a site's REST API
//   - [Fixtures]: answers from canned responses, for tests and scenarios
//
// Failures are reported as [*Error] values carrying the REST error code and
// HTTP status, so that fetch stores can record them in state.
package api
