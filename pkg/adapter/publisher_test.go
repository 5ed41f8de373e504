package adapter_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/docqa/pkg/adapter"
	"github.com/m-mizutani/docqa/pkg/model"
	"github.com/m-mizutani/gt"
	"github.com/nats-io/nats.go"
)

func TestNewNATSPublisherRequiresURL(t *testing.T) {
	_, err := adapter.NewNATSPublisher(context.Background(), "", "")
	gt.Error(t, err)
}

func TestNATSPublisher(t *testing.T) {
	url := os.Getenv("TEST_NATS_URL")
	if url == "" {
		t.Skip("TEST_NATS_URL is not set")
	}

	ctx := context.Background()
	subject := "docqa.test." + time.Now().Format("150405.000000")

	sub, err := nats.Connect(url)
	gt.NoError(t, err)
	defer sub.Close()

	received := make(chan *nats.Msg, 1)
	_, err = sub.ChanSubscribe(subject, received)
	gt.NoError(t, err)
	gt.NoError(t, sub.Flush())

	pub, err := adapter.NewNATSPublisher(ctx, url, subject)
	gt.NoError(t, err)
	defer pub.Close()

	turn := model.NewTurn(model.SpeakerUser, "What is the termination clause?")
	gt.NoError(t, pub.Publish(ctx, "s1", model.ConversationEvent{
		Kind: model.EventAppended,
		Turn: &turn,
	}))

	select {
	case msg := <-received:
		var envelope struct {
			SessionID string                  `json:"session_id"`
			Event     model.ConversationEvent `json:"event"`
		}
		gt.NoError(t, json.Unmarshal(msg.Data, &envelope))
		gt.Equal(t, envelope.SessionID, "s1")
		gt.Equal(t, envelope.Event.Kind, model.EventAppended)
		gt.Equal(t, envelope.Event.Turn.Text, "What is the termination clause?")
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}
