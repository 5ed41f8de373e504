package chat

import (
	"strings"
)

// SuggestionPrefix marks a line of an answer as a follow-up question
const SuggestionPrefix = "SUGGESTION:"

// ParseSuggestions separates follow-up suggestion lines from the answer.
// Non-marker lines are kept in order together with their own line breaks;
// suggestions are returned without the prefix and trimmed.
func ParseSuggestions(text string) (answer string, suggestions []string) {
	suggestions = []string{}

	var b strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		if body, ok := IsSuggestionLine(line); ok {
			suggestions = append(suggestions, body)
			continue
		}
		b.WriteString(line)
	}

	return b.String(), suggestions
}

// IsSuggestionLine reports whether line is a suggestion marker and returns its body
func IsSuggestionLine(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, SuggestionPrefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(trimmed, SuggestionPrefix)), true
}
