// Package strings holds small string helpers shared across maestro's output
// formatting.
package strings

import (
	"strings"
)

// DefaultDescriptionMaxLen is the default maximum length for operation
// descriptions in formatted output.
const DefaultDescriptionMaxLen = 60

// MinTruncateLen is the smallest usable maxLen for TruncateDescription.
// Anything shorter leaves no room for content plus "...".
const MinTruncateLen = 4

// TruncateDescription collapses a string to a single line and truncates it to
// maxLen runes, appending "..." when content was cut. Broker-provided
// operation descriptions are free text and may contain newlines or run to
// arbitrary length.
func TruncateDescription(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
