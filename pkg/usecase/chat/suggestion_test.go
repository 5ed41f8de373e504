package chat_test

import (
	"strings"
	"testing"

	"github.com/m-mizutani/docqa/pkg/usecase/chat"
	"github.com/m-mizutani/gt"
)

func TestParseSuggestions(t *testing.T) {
	testCases := []struct {
		name        string
		text        string
		answer      string
		suggestions []string
	}{
		{
			name:        "no markers",
			text:        "The contract ends after 12 months.\nIt renews yearly.",
			answer:      "The contract ends after 12 months.\nIt renews yearly.",
			suggestions: []string{},
		},
		{
			name:        "empty",
			text:        "",
			answer:      "",
			suggestions: []string{},
		},
		{
			name:        "trailing marker",
			text:        "The contract ends after 12 months.\nSUGGESTION: What is the renewal policy?",
			answer:      "The contract ends after 12 months.\n",
			suggestions: []string{"What is the renewal policy?"},
		},
		{
			name:        "several markers keep order",
			text:        "Answer.\nSUGGESTION: First?\nSUGGESTION:Second?\n",
			answer:      "Answer.\n",
			suggestions: []string{"First?", "Second?"},
		},
		{
			name:        "indented marker",
			text:        "Answer.\n   SUGGESTION:   Padded?   \nMore.",
			answer:      "Answer.\nMore.",
			suggestions: []string{"Padded?"},
		},
		{
			name:        "marker between paragraphs",
			text:        "Para one.\n\nSUGGESTION: Ask?\nPara two.\n",
			answer:      "Para one.\n\nPara two.\n",
			suggestions: []string{"Ask?"},
		},
		{
			name:        "prefix not at line start is text",
			text:        "Reply with SUGGESTION: to add one.",
			answer:      "Reply with SUGGESTION: to add one.",
			suggestions: []string{},
		},
		{
			name:        "lowercase is text",
			text:        "suggestion: not a marker",
			answer:      "suggestion: not a marker",
			suggestions: []string{},
		},
		{
			name:        "crlf line endings",
			text:        "Answer.\r\nSUGGESTION: Next?\r\n",
			answer:      "Answer.\r\n",
			suggestions: []string{"Next?"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			answer, suggestions := chat.ParseSuggestions(tc.text)
			gt.Equal(t, answer, tc.answer)
			gt.Equal(t, suggestions, tc.suggestions)
		})
	}
}

// Putting marker lines back at their positions must give the original text
// up to the stripped prefix and whitespace.
func TestParseSuggestionsLosesNothing(t *testing.T) {
	texts := []string{
		"a\nSUGGESTION: b\nc\nSUGGESTION: d",
		"SUGGESTION: only",
		"x\ny\nz\n",
		"\n\nSUGGESTION: q\n\n",
	}

	for _, text := range texts {
		answer, suggestions := chat.ParseSuggestions(text)

		answerLines := strings.SplitAfter(answer, "\n")
		var rebuilt strings.Builder
		ai, si := 0, 0
		for _, line := range strings.SplitAfter(text, "\n") {
			if _, ok := chat.IsSuggestionLine(line); ok {
				rebuilt.WriteString(chat.SuggestionPrefix + " " + suggestions[si])
				if strings.HasSuffix(line, "\n") {
					rebuilt.WriteString("\n")
				}
				si++
				continue
			}
			rebuilt.WriteString(answerLines[ai])
			ai++
		}

		gt.Equal(t, si, len(suggestions))
		gt.Equal(t, rebuilt.String(), text)
	}
}
