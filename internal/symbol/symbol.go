// Package symbol normalizes and validates equity ticker symbols (spec §3).
package symbol

import (
	"fmt"
	"regexp"
	"strings"
)

// pattern matches a bare 1-6 character uppercase ticker.
var pattern = regexp.MustCompile(`^[A-Z]{1,6}$`)

// Normalize upper-cases s and validates it is a well-formed ticker.
func Normalize(s string) (string, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	if !pattern.MatchString(up) {
		return "", fmt.Errorf("symbol: %q is not a 1-6 character ticker", s)
	}
	return up, nil
}

// cashtagOrTicker matches an optional $-prefixed 1-5 uppercase letter
// token, per spec §3's article symbol-extraction regex.
var cashtagOrTicker = regexp.MustCompile(`\$?[A-Z]{1,5}\b`)

// ExtractCandidates returns every uppercase token in text that could be a
// ticker mention, cashtags stripped of their leading '$'. Callers must
// still intersect against a known universe (spec §4.D/E).
func ExtractCandidates(text string) []string {
	matches := ExtractCandidatesRaw(text)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimPrefix(m, "$"))
	}
	return out
}

// ExtractCandidatesRaw is ExtractCandidates without the '$' stripped,
// so callers that need to distinguish cashtagged mentions (via
// IsCashtag) from bare tokens can do so positionally.
func ExtractCandidatesRaw(text string) []string {
	return cashtagOrTicker.FindAllString(text, -1)
}

// IsCashtag reports whether raw (as found in text, e.g. "$ACME") carried
// the '$' prefix — used to prefer cashtagged mentions (spec §4.E (ii)).
func IsCashtag(raw string) bool {
	return strings.HasPrefix(raw, "$")
}
