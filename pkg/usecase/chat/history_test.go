package chat_test

import (
	"fmt"
	"testing"

	"github.com/m-mizutani/docqa/pkg/model"
	"github.com/m-mizutani/docqa/pkg/usecase/chat"
	"github.com/m-mizutani/gt"
)

func buildTurns(n int) []model.Turn {
	turns := []model.Turn{model.NewGreeting()}
	for i := 1; i < n; i++ {
		speaker := model.SpeakerUser
		if i%2 == 0 {
			speaker = model.SpeakerAssistant
		}
		turn := model.NewTurn(speaker, fmt.Sprintf("turn %d", i))
		turn.Sources = []string{"source"}
		turn.IsError = i == 2
		turns = append(turns, turn)
	}
	return turns
}

func TestComputeContextShortConversation(t *testing.T) {
	entries := chat.ComputeContext(buildTurns(1), chat.HistoryLimit)
	gt.Equal(t, entries, []model.HistoryEntry{
		{Speaker: model.SpeakerAssistant, Text: model.GreetingText},
	})
}

func TestComputeContextKeepsLastTurnsInOrder(t *testing.T) {
	entries := chat.ComputeContext(buildTurns(7), chat.HistoryLimit)
	gt.Equal(t, entries, []model.HistoryEntry{
		{Speaker: model.SpeakerUser, Text: "turn 3"},
		{Speaker: model.SpeakerAssistant, Text: "turn 4"},
		{Speaker: model.SpeakerUser, Text: "turn 5"},
		{Speaker: model.SpeakerAssistant, Text: "turn 6"},
	})
}

func TestComputeContextNeverExceedsLimit(t *testing.T) {
	for n := 1; n <= 12; n++ {
		entries := chat.ComputeContext(buildTurns(n), chat.HistoryLimit)
		gt.Equal(t, len(entries), min(n, chat.HistoryLimit))
	}
}

func TestComputeContextNonPositiveLimit(t *testing.T) {
	gt.A(t, chat.ComputeContext(buildTurns(5), 0)).Length(0)
	gt.A(t, chat.ComputeContext(buildTurns(5), -1)).Length(0)
}

func TestComputeContextDoesNotAlias(t *testing.T) {
	turns := buildTurns(3)
	entries := chat.ComputeContext(turns, chat.HistoryLimit)
	turns[2].Text = "changed"
	gt.Equal(t, entries[2].Text, "turn 2")
}
