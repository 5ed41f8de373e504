package repository

import (
	"slices"
	"sync"

	"github.com/m-mizutani/docqa/pkg/model"
)

// Subscriber receives every mutation of a Conversation. It is called on the
// mutating goroutine after the conversation lock is released. It may read the
// conversation, but must not call back into the owner of the mutation (e.g.
// chat.Session.Ask or Reset) on the same goroutine; hand such work to another
// goroutine.
type Subscriber func(ev model.ConversationEvent)

// Conversation is the in-memory, ordered log of turns of one session. It is
// the single source of truth for renderers: every mutation is pushed to
// subscribers instead of being polled.
type Conversation struct {
	mu          sync.RWMutex
	turns       []model.Turn
	suggestions []string

	subMu   sync.RWMutex
	subs    []subscription
	nextSub int
}

type subscription struct {
	id int
	fn Subscriber
}

// NewConversation creates a conversation seeded with the greeting turn
func NewConversation() *Conversation {
	return &Conversation{
		turns: []model.Turn{model.NewGreeting()},
	}
}

// Subscribe registers fn for all future events and returns a function that removes it
func (c *Conversation) Subscribe(fn Subscriber) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs = append(c.subs, subscription{id: id, fn: fn})

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		c.subs = slices.DeleteFunc(c.subs, func(s subscription) bool { return s.id == id })
	}
}

func (c *Conversation) notify(ev model.ConversationEvent) {
	c.subMu.RLock()
	subs := slices.Clone(c.subs)
	c.subMu.RUnlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

// Append adds turn at the end of the log
func (c *Conversation) Append(turn model.Turn) {
	turn = turn.Clone()

	c.mu.Lock()
	c.turns = append(c.turns, turn)
	c.mu.Unlock()

	ev := turn.Clone()
	c.notify(model.ConversationEvent{Kind: model.EventAppended, Turn: &ev})
}

// Update applies mutate to the turn with the given id. An unknown id is not an
// error: updates that arrive after Reset are dropped and false is returned.
func (c *Conversation) Update(id model.TurnID, mutate func(t *model.Turn)) bool {
	c.mu.Lock()
	idx := slices.IndexFunc(c.turns, func(t model.Turn) bool { return t.ID == id })
	if idx < 0 {
		c.mu.Unlock()
		return false
	}

	turn := c.turns[idx].Clone()
	mutate(&turn)
	turn.ID = id
	c.turns[idx] = turn.Clone()
	c.mu.Unlock()

	c.notify(model.ConversationEvent{Kind: model.EventUpdated, Turn: &turn})
	return true
}

// Finalize applies mutate to the turn with the given id and replaces the
// suggestions in one step, so a Reset can never separate a completed answer
// from its suggestions. Like Update, an unknown id changes nothing and
// returns false. One EventUpdated carrying both is emitted.
func (c *Conversation) Finalize(id model.TurnID, mutate func(t *model.Turn), suggestions []string) bool {
	suggestions = slices.Clone(suggestions)

	c.mu.Lock()
	idx := slices.IndexFunc(c.turns, func(t model.Turn) bool { return t.ID == id })
	if idx < 0 {
		c.mu.Unlock()
		return false
	}

	turn := c.turns[idx].Clone()
	mutate(&turn)
	turn.ID = id
	c.turns[idx] = turn.Clone()
	c.suggestions = suggestions
	c.mu.Unlock()

	c.notify(model.ConversationEvent{
		Kind:        model.EventUpdated,
		Turn:        &turn,
		Suggestions: slices.Clone(suggestions),
	})
	return true
}

// Get returns a copy of the turn with the given id
func (c *Conversation) Get(id model.TurnID) (model.Turn, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, t := range c.turns {
		if t.ID == id {
			return t.Clone(), true
		}
	}
	return model.Turn{}, false
}

// All returns a snapshot of every turn in chronological order
func (c *Conversation) All() []model.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	turns := make([]model.Turn, len(c.turns))
	for i, t := range c.turns {
		turns[i] = t.Clone()
	}
	return turns
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// Last returns the most recent turn
func (c *Conversation) Last() model.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.turns[len(c.turns)-1].Clone()
}

// SetSuggestions replaces the follow-up suggestions of the latest answer
func (c *Conversation) SetSuggestions(suggestions []string) {
	suggestions = slices.Clone(suggestions)

	c.mu.Lock()
	c.suggestions = suggestions
	c.mu.Unlock()

	c.notify(model.ConversationEvent{Kind: model.EventSuggestions, Suggestions: slices.Clone(suggestions)})
}

func (c *Conversation) Suggestions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.suggestions)
}

// Reset discards every turn and suggestion and starts over with a fresh greeting
func (c *Conversation) Reset() {
	greeting := model.NewGreeting()

	c.mu.Lock()
	c.turns = []model.Turn{greeting}
	c.suggestions = nil
	c.mu.Unlock()

	c.notify(model.ConversationEvent{Kind: model.EventReset, Turn: &greeting})
}
