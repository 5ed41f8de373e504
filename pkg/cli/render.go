package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode"

	"github.com/m-mizutani/docqa/pkg/model"
	"github.com/m-mizutani/docqa/pkg/usecase/chat"
)

// renderer prints conversation events as a terminal transcript. Answers are
// written as they stream in; suggestion lines are held back and shown as a
// numbered list once the answer is complete.
type renderer struct {
	w io.Writer

	mu      sync.Mutex
	turnID  model.TurnID
	printed string

	// onOutput is called before anything is written, e.g. to stop a spinner
	onOutput func()
	// sourceHint is printed after an answer with sources, empty to omit
	sourceHint string
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{
		w:          w,
		sourceHint: "(%d sources, /sources to view)\n",
	}
}

func (r *renderer) handle(ev model.ConversationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Kind {
	case model.EventAppended:
		if ev.Turn.Speaker == model.SpeakerAssistant && ev.Turn.Pending {
			r.turnID = ev.Turn.ID
			r.printed = ""
		}

	case model.EventUpdated:
		if ev.Turn.ID != r.turnID {
			return
		}
		if ev.Turn.Pending {
			r.stream(visibleText(ev.Turn.Text))
			return
		}
		r.finish(ev.Turn)
		r.suggestions(ev.Suggestions)

	case model.EventSuggestions:
		r.suggestions(ev.Suggestions)

	case model.EventReset:
		r.turnID = ""
		r.printed = ""
		r.write("\n" + ev.Turn.Text + "\n")
	}
}

func (r *renderer) suggestions(suggestions []string) {
	if len(suggestions) == 0 {
		return
	}
	r.write("Suggested questions:\n")
	for i, s := range suggestions {
		r.write(fmt.Sprintf("  /%d %s\n", i+1, s))
	}
}

func (r *renderer) stream(visible string) {
	if !strings.HasPrefix(visible, r.printed) || len(visible) == len(r.printed) {
		return
	}
	r.write(visible[len(r.printed):])
	r.printed = visible
}

func (r *renderer) finish(turn *model.Turn) {
	defer func() {
		r.turnID = ""
		r.printed = ""
	}()

	if turn.IsError {
		if r.printed != "" && !strings.HasSuffix(r.printed, "\n") {
			r.write("\n")
		}
		r.write(turn.Text + "\n")
		return
	}

	if strings.HasPrefix(turn.Text, r.printed) {
		r.write(turn.Text[len(r.printed):])
	} else {
		r.write("\n" + turn.Text)
	}
	if !strings.HasSuffix(turn.Text, "\n") {
		r.write("\n")
	}

	if n := len(turn.Sources); n > 0 && r.sourceHint != "" {
		r.write(fmt.Sprintf(r.sourceHint, n))
	}
}

func (r *renderer) write(s string) {
	if s == "" {
		return
	}
	if r.onOutput != nil {
		r.onOutput()
	}
	_, _ = io.WriteString(r.w, s)
}

// visibleText is the part of a partial answer that is safe to show: complete
// non-suggestion lines, plus the unfinished last line once it can no longer
// turn into a suggestion.
func visibleText(text string) string {
	complete, partial := "", text
	if i := strings.LastIndex(text, "\n"); i >= 0 {
		complete, partial = text[:i+1], text[i+1:]
	}

	answer, _ := chat.ParseSuggestions(complete)
	if maybeSuggestion(partial) {
		return answer
	}
	return answer + partial
}

func maybeSuggestion(line string) bool {
	trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
	return strings.HasPrefix(trimmed, chat.SuggestionPrefix) ||
		strings.HasPrefix(chat.SuggestionPrefix, trimmed)
}
