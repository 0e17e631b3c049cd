// Package analyzers ships the built-in analyzer set that runs over parsed
// SQL buffers. Each analyzer is a small stateful visitor; the analysis
// dispatcher drives them all through one shared tree traversal and resets
// them between runs.
package analyzers

import (
	"strings"

	"github.com/nixlim/sqlsidecar/internal/analysis"
)

// Default returns the built-in analyzers in activation order. The order is
// load-bearing: diagnostics on the same line keep it as a tiebreak.
func Default() []analysis.Analyzer {
	return []analysis.Analyzer{
		NewKeywordCase(),
		NewSelectStar(),
		NewSchemaCheck(),
	}
}

// Names lists the built-in analyzer names. Host configuration uses these as
// enable/disable keys.
func Names() []string {
	set := Default()
	names := make([]string, len(set))
	for i, a := range set {
		names[i] = a.Name()
	}
	return names
}

// normalizeIdentifier strips SQL quoting (double quotes, backticks, square
// brackets) and lowercases. Qualified references keep only the final
// segment, so "Main"."Users" and users compare equal.
func normalizeIdentifier(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.Trim(s, "\"`")
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	return strings.ToLower(s)
}
