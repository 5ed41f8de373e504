package model

type EventKind string

const (
	EventAppended    EventKind = "appended"
	EventUpdated     EventKind = "updated"
	EventReset       EventKind = "reset"
	EventSuggestions EventKind = "suggestions"
)

// ConversationEvent describes one mutation of a conversation.
// Turn is set for appended and updated events. Suggestions is set for
// suggestions events and for the update that completes an answer.
type ConversationEvent struct {
	Kind        EventKind `json:"kind"`
	Turn        *Turn     `json:"turn,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
}
