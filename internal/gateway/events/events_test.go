package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/craftconnect/internal/gateway/events"
	"github.com/aussiebroadwan/craftconnect/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestWatermillPublisher(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pubsub := events.NewInProcess(slogx.Discard())
	t.Cleanup(func() { _ = pubsub.Close() })

	msgs, err := pubsub.Subscribe(ctx, events.Topic)
	require.NoError(t, err)

	pub := events.NewWatermillPublisher(pubsub)
	require.NoError(t, pub.Publish(ctx, events.Event{Type: events.SessionRefreshed, UID: "u1", JTI: "jti-1"}))

	select {
	case msg := <-msgs:
		msg.Ack()
		require.NotEmpty(t, msg.UUID)
		require.Equal(t, string(events.SessionRefreshed), msg.Metadata.Get("type"))

		var got events.Event
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		require.Equal(t, events.SessionRefreshed, got.Type)
		require.Equal(t, "u1", got.UID)
		require.Equal(t, "jti-1", got.JTI)
		require.False(t, got.At.IsZero())
	case <-ctx.Done():
		t.Fatal("event not delivered")
	}
}

func TestDiscard(t *testing.T) {
	require.NoError(t, events.Discard{}.Publish(context.Background(), events.Event{Type: events.SessionRevoked}))
}

func TestDrain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var buf syncBuffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	pubsub := events.NewInProcess(slogx.Discard())
	t.Cleanup(func() { _ = pubsub.Close() })
	require.NoError(t, events.Drain(ctx, pubsub, logger))

	pub := events.NewWatermillPublisher(pubsub)
	require.NoError(t, pub.Publish(ctx, events.Event{Type: events.SessionEstablished, UID: "u1"}))

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), `"type":"session.established"`)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBackendLogsThroughSlog(t *testing.T) {
	var buf syncBuffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil)).With("service", "craftconnect")

	pubsub := events.NewInProcess(logger)
	require.NoError(t, pubsub.Close())

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &line))
	require.Equal(t, "Pub/Sub closed", line["msg"])
	require.Equal(t, "craftconnect", line["service"])
	require.Equal(t, "events", line["component"])
	require.Equal(t, "gochannel", line["backend"])
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
