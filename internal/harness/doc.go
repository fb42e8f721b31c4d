// Package harness runs conformance scenarios against a registry.
//
// A scenario declares a site, canned network responses, and a sequence of
// registry operations. The harness builds a fresh registry for each
// scenario with deterministic request ids, performs the steps, and checks
// expectations and assertions against the outcome and the trace.
//
// # Scenario Format
//
//	name: match-account-id
//	description: "Matches the site to its account"
//	site:
//	  referenceSiteURL: https://example.com
//	  modules: [analytics-4]
//	fixtures:
//	  - request: { type: modules, identifier: analytics-4, datapoint: account-summaries }
//	    response: [...]
//	steps:
//	  - dispatch: { store: modules/analytics-4, name: matchAccountID }
//	    expect: { value: "A1" }
//	assertions:
//	  - type: trace_count
//	    kind: fetch_start
//	    count: 2
//	  - type: final_state
//	    store: modules/analytics-4
//	    path: webdatastreams.P1.0._id
//	    value: S1
//
// Instead of site, config names a directory of CUE site configuration.
//
// # Golden Files
//
// RunWithGolden compares a scenario's trace against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
