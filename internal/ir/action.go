package ir

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Action is a dispatched state transition request.
// Immutable once dispatched.
type Action struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Control is a tagged side-effect description yielded by an action or
// resolver body. It is opaque to the body and interpreted only by the
// handler registered for its Type.
type Control struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

var upper = cases.Upper(language.Und)

// ConstantCase converts a camelCase identifier to CONSTANT_CASE.
//
// Examples:
//
//	"getAccountSummaries" → "GET_ACCOUNT_SUMMARIES"
//	"getWebDataStreams"   → "GET_WEB_DATA_STREAMS"
//	"getGA4Settings"      → "GET_GA4_SETTINGS"
func ConstantCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(r)
	}
	return upper.String(b.String())
}

// PascalCase upper-cases the first letter of a camelCase identifier.
// "getAccountSummaries" → "GetAccountSummaries"
func PascalCase(name string) string {
	if name == "" {
		return name
	}
	runes := []rune(name)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
