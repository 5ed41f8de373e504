package chat

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/m-mizutani/docqa/pkg/adapter"
	"github.com/m-mizutani/docqa/pkg/model"
	"github.com/m-mizutani/docqa/pkg/repository"
	"github.com/m-mizutani/docqa/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Session manages a question/answer conversation about one uploaded document
type Session struct {
	backend      adapter.Backend
	conv         *repository.Conversation
	historyLimit int

	// sessionID and busy are readable from conversation subscribers, which
	// run while mu is held
	sessionID atomic.Value
	busy      atomic.Bool

	mu     sync.Mutex
	flight *flight
}

// flight is the one dispatch that may be running at a time
type flight struct {
	cancel context.CancelFunc
}

// NewInput contains parameters for creating a new chat session
type NewInput struct {
	Backend   adapter.Backend
	SessionID model.SessionID

	// Conversation is optional, a fresh one is created if nil
	Conversation *repository.Conversation
	// HistoryLimit defaults to HistoryLimit
	HistoryLimit int
}

func New(input NewInput) (*Session, error) {
	if input.Backend == nil {
		return nil, goerr.New("backend is required")
	}
	if input.SessionID == "" {
		return nil, goerr.New("session id is required")
	}

	conv := input.Conversation
	if conv == nil {
		conv = repository.NewConversation()
	}
	limit := input.HistoryLimit
	if limit <= 0 {
		limit = HistoryLimit
	}

	s := &Session{
		backend:      input.Backend,
		conv:         conv,
		historyLimit: limit,
	}
	s.sessionID.Store(input.SessionID)
	return s, nil
}

// Conversation returns the store renderers subscribe to. Events of a new
// question and of Reset are delivered while the session lock is held, so a
// subscriber must not call Ask or Reset synchronously.
func (s *Session) Conversation() *repository.Conversation {
	return s.conv
}

func (s *Session) SessionID() model.SessionID {
	return s.sessionID.Load().(model.SessionID)
}

// InFlight reports whether a question is being answered
func (s *Session) InFlight() bool {
	return s.busy.Load()
}

// Ask sends question with the recent history and streams the answer into a
// placeholder turn. A transport or status failure is not retried: the
// placeholder becomes an error turn and the wrapped error is returned. An
// empty question or a question asked while another is in flight is rejected
// without touching the conversation.
func (s *Session) Ask(ctx context.Context, question string) error {
	if strings.TrimSpace(question) == "" {
		return model.ErrEmptyQuestion
	}

	s.mu.Lock()
	if s.flight != nil {
		s.mu.Unlock()
		return model.ErrDispatchInFlight
	}

	ctx, cancel := context.WithCancel(ctx)
	f := &flight{cancel: cancel}
	s.flight = f
	s.busy.Store(true)
	sessionID := s.SessionID()

	history := ComputeContext(s.conv.All(), s.historyLimit)
	placeholder := model.NewTurn(model.SpeakerAssistant, "")
	placeholder.Pending = true

	s.conv.Append(model.NewTurn(model.SpeakerUser, question))
	s.conv.Append(placeholder)
	s.conv.SetSuggestions(nil)
	s.mu.Unlock()

	defer s.land(f)

	ctx = logging.WithAttrs(ctx, "session_id", sessionID, "turn_id", placeholder.ID)
	logging.From(ctx).Debug("dispatching question", "history", len(history))

	resp, err := s.backend.Query(ctx, &adapter.QueryRequest{
		SessionID:   sessionID,
		Question:    question,
		ChatHistory: history,
	})
	if err != nil {
		s.fail(placeholder.ID)
		return goerr.Wrap(err, "failed to dispatch question", goerr.V("session_id", sessionID))
	}
	defer resp.Body.Close()

	var answer strings.Builder
	for fragment, err := range DecodeStream(resp.Body) {
		if err != nil {
			s.fail(placeholder.ID)
			return goerr.Wrap(err, "answer stream broke", goerr.V("session_id", sessionID))
		}

		answer.WriteString(fragment)
		text := answer.String()
		s.conv.Update(placeholder.ID, func(t *model.Turn) {
			t.Text = text
		})
	}

	mainAnswer, suggestions := ParseSuggestions(answer.String())
	sources := DecodeSources(ctx, resp.SourcesToken)

	finalized := s.conv.Finalize(placeholder.ID, func(t *model.Turn) {
		t.Text = mainAnswer
		t.Sources = sources
		t.Pending = false
	}, suggestions)
	if !finalized {
		// the conversation was reset while streaming
		logging.From(ctx).Debug("dropping answer of abandoned turn")
		return nil
	}

	logging.From(ctx).Debug("answer completed",
		"length", len(mainAnswer),
		"sources", len(sources),
		"suggestions", len(suggestions),
	)
	return nil
}

// Reset abandons any answer in flight and starts a new conversation for
// sessionID. Updates from the abandoned answer are dropped by the store.
func (s *Session) Reset(sessionID model.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.flight != nil {
		s.flight.cancel()
		s.flight = nil
		s.busy.Store(false)
	}
	if sessionID != "" {
		s.sessionID.Store(sessionID)
	}
	s.conv.Reset()
}

// land clears the in-flight state if it still belongs to f
func (s *Session) land(f *flight) {
	f.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flight == f {
		s.flight = nil
		s.busy.Store(false)
	}
}

func (s *Session) fail(id model.TurnID) {
	s.conv.Update(id, func(t *model.Turn) {
		t.Text = model.DispatchErrorText
		t.Sources = []string{}
		t.IsError = true
		t.Pending = false
	})
}
