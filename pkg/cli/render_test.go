package cli

import (
	"bytes"
	"testing"

	"github.com/m-mizutani/docqa/pkg/model"
	"github.com/m-mizutani/gt"
)

func TestVisibleText(t *testing.T) {
	testCases := map[string]struct {
		input    string
		expected string
	}{
		"plain partial line": {
			input:    "The con",
			expected: "The con",
		},
		"possible marker is held back": {
			input:    "Answer.\nSUGG",
			expected: "Answer.\n",
		},
		"marker with body is held back": {
			input:    "Answer.\n  SUGGESTION: What is",
			expected: "Answer.\n",
		},
		"line that cannot be a marker": {
			input:    "Answer.\nSure",
			expected: "Answer.\nSure",
		},
		"complete marker line removed": {
			input:    "a\nSUGGESTION: x\nb",
			expected: "a\nb",
		},
		"whitespace only": {
			input:    "  ",
			expected: "",
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			gt.Equal(t, visibleText(tc.input), tc.expected)
		})
	}
}

func streamEvents(r *renderer, turn model.Turn, texts ...string) {
	turn.Pending = true
	r.handle(model.ConversationEvent{Kind: model.EventAppended, Turn: &turn})
	for _, text := range texts {
		update := turn
		update.Text = text
		r.handle(model.ConversationEvent{Kind: model.EventUpdated, Turn: &update})
	}
}

func TestRendererStreamsAnswerWithoutMarkers(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	var outputs int
	r.onOutput = func() { outputs++ }

	turn := model.NewTurn(model.SpeakerAssistant, "")
	streamEvents(r, turn,
		"The con",
		"The contract ends after ",
		"The contract ends after 12 months.\n",
		"The contract ends after 12 months.\nSUGGESTION: What",
		"The contract ends after 12 months.\nSUGGESTION: What is the renewal policy?",
	)
	gt.Equal(t, buf.String(), "The contract ends after 12 months.\n")

	final := turn
	final.Text = "The contract ends after 12 months.\n"
	final.Sources = []string{"p.4: termination section"}
	r.handle(model.ConversationEvent{Kind: model.EventUpdated, Turn: &final})
	r.handle(model.ConversationEvent{Kind: model.EventSuggestions, Suggestions: []string{"What is the renewal policy?"}})

	gt.Equal(t, buf.String(), "The contract ends after 12 months.\n"+
		"(1 sources, /sources to view)\n"+
		"Suggested questions:\n"+
		"  /1 What is the renewal policy?\n")
	gt.True(t, outputs > 0)
}

func TestRendererErrorAfterPartialAnswer(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	turn := model.NewTurn(model.SpeakerAssistant, "")
	streamEvents(r, turn, "partial")

	failed := turn
	failed.Text = model.DispatchErrorText
	failed.IsError = true
	r.handle(model.ConversationEvent{Kind: model.EventUpdated, Turn: &failed})

	gt.Equal(t, buf.String(), "partial\n"+model.DispatchErrorText+"\n")
}

func TestRendererIgnoresOtherTurns(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	user := model.NewTurn(model.SpeakerUser, "question")
	r.handle(model.ConversationEvent{Kind: model.EventAppended, Turn: &user})

	stale := model.NewTurn(model.SpeakerAssistant, "late text")
	r.handle(model.ConversationEvent{Kind: model.EventUpdated, Turn: &stale})
	r.handle(model.ConversationEvent{Kind: model.EventSuggestions, Suggestions: []string{}})

	gt.Equal(t, buf.String(), "")
}

func TestRendererReset(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	turn := model.NewTurn(model.SpeakerAssistant, "")
	streamEvents(r, turn, "abandoned")

	greeting := model.NewGreeting()
	r.handle(model.ConversationEvent{Kind: model.EventReset, Turn: &greeting})

	late := turn
	late.Text = "abandoned answer"
	r.handle(model.ConversationEvent{Kind: model.EventUpdated, Turn: &late})

	gt.Equal(t, buf.String(), "abandoned\n"+model.GreetingText+"\n")
}

func TestRendererSuggestionsOnCompletion(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	turn := model.NewTurn(model.SpeakerAssistant, "")
	streamEvents(r, turn, "Answer.\n")

	final := turn
	final.Text = "Answer.\n"
	r.handle(model.ConversationEvent{
		Kind:        model.EventUpdated,
		Turn:        &final,
		Suggestions: []string{"Next?"},
	})

	gt.Equal(t, buf.String(), "Answer.\nSuggested questions:\n  /1 Next?\n")
}
