package model

import (
	"slices"

	"github.com/google/uuid"
)

const (
	// GreetingText is the synthetic first turn of every conversation
	GreetingText = "Hello! I have read your document. What would you like to know?"

	// DispatchErrorText replaces the answer of a failed exchange
	DispatchErrorText = "Sorry, I encountered an error. Please try again."
)

type TurnID string

// NewTurnID generates a new unique, time ordered TurnID
func NewTurnID() TurnID {
	return TurnID(uuid.Must(uuid.NewV7()).String())
}

type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "ai"
)

// Turn is one message of a conversation
type Turn struct {
	ID      TurnID   `json:"id"`
	Speaker Speaker  `json:"speaker"`
	Text    string   `json:"text"`
	Sources []string `json:"sources"`
	IsError bool     `json:"is_error"`

	// Pending is true while an assistant answer is still streaming
	Pending bool `json:"pending"`
}

// NewTurn creates a turn with a fresh ID
func NewTurn(speaker Speaker, text string) Turn {
	return Turn{
		ID:      NewTurnID(),
		Speaker: speaker,
		Text:    text,
		Sources: []string{},
	}
}

// NewGreeting creates the assistant turn that opens a conversation
func NewGreeting() Turn {
	return NewTurn(SpeakerAssistant, GreetingText)
}

// Clone returns a copy that shares no memory with t
func (t Turn) Clone() Turn {
	t.Sources = slices.Clone(t.Sources)
	if t.Sources == nil {
		t.Sources = []string{}
	}
	return t
}

// Entry projects the turn to what is sent upstream as context
func (t Turn) Entry() HistoryEntry {
	return HistoryEntry{
		Speaker: t.Speaker,
		Text:    t.Text,
	}
}

// HistoryEntry is a turn reduced to speaker and text
type HistoryEntry struct {
	Speaker Speaker `json:"sender"`
	Text    string  `json:"text"`
}
