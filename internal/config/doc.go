// Package config loads site configuration written in CUE.
//
// A configuration directory holds one or more .cue files declaring a site:
//
//	site: {
//		referenceSiteURL: "https://example.com"
//		apiBase:          "https://example.com/wp-json/google-site-kit/v1"
//		modules: ["analytics-4"]
//	}
//
// The site value is unified with the embedded #Site schema before it is
// decoded, so constraint violations are reported with file positions.
package config
