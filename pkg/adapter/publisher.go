package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/m-mizutani/docqa/pkg/model"
	"github.com/m-mizutani/docqa/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/nats-io/nats.go"
)

// DefaultEventSubject is the NATS subject conversation events are published to
const DefaultEventSubject = "docqa.conversation.events"

// Publisher fans conversation events out to NATS so that external renderers
// can follow a conversation by subscribing
type Publisher interface {
	Publish(ctx context.Context, sessionID model.SessionID, ev model.ConversationEvent) error
	Close()
}

type eventEnvelope struct {
	SessionID model.SessionID         `json:"session_id"`
	Timestamp time.Time               `json:"timestamp"`
	Event     model.ConversationEvent `json:"event"`
}

type natsPublisher struct {
	conn    *nats.Conn
	subject string
}

func NewNATSPublisher(ctx context.Context, url, subject string) (Publisher, error) {
	if url == "" {
		return nil, goerr.New("nats url is required")
	}
	if subject == "" {
		subject = DefaultEventSubject
	}

	logger := logging.From(ctx)
	conn, err := nats.Connect(url,
		nats.Name("docqa"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect to nats", goerr.V("url", url))
	}

	return &natsPublisher{conn: conn, subject: subject}, nil
}

func (p *natsPublisher) Publish(ctx context.Context, sessionID model.SessionID, ev model.ConversationEvent) error {
	data, err := json.Marshal(eventEnvelope{
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Event:     ev,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to marshal conversation event")
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		return goerr.Wrap(err, "failed to publish conversation event",
			goerr.V("subject", p.subject),
			goerr.V("kind", ev.Kind))
	}
	return nil
}

func (p *natsPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
