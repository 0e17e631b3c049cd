package settings

import "strings"

// detectIndent returns the indentation string a JSON document uses, taken
// from its first indented line. Falls back to two spaces for flat or empty
// input so rewrites stay readable.
func detectIndent(data []byte) string {
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		if len(trimmed) > 0 && len(trimmed) < len(line) {
			return line[:len(line)-len(trimmed)]
		}
	}
	return "  "
}
