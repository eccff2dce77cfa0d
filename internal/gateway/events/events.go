// Package events publishes session lifecycle events for other services
// (analytics, fraud checks) to consume.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// Topic every session event is published on.
const Topic = "craftconnect.session"

type Type string

const (
	SessionEstablished Type = "session.established"
	SessionRefreshed   Type = "session.refreshed"
	SessionRevoked     Type = "session.revoked"
	RefreshReused      Type = "session.refresh_reused"
)

// Event is the JSON payload. JTI names the refresh token the event is about,
// when there is one.
type Event struct {
	Type Type      `json:"type"`
	UID  string    `json:"uid"`
	JTI  string    `json:"jti,omitempty"`
	At   time.Time `json:"at"`
}

// Publisher sends session events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// WatermillPublisher sends events through any watermill backend.
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher, topic: Topic}
}

func (p *WatermillPublisher) Publish(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set("type", string(e.Type))
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("events: publish: %w", err)
	}
	return nil
}

func (p *WatermillPublisher) Close() error { return p.publisher.Close() }

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
