package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

// NewRedisStreamPublisher publishes onto a redis stream named after Topic.
func NewRedisStreamPublisher(client redis.UniversalClient, logger *slog.Logger) (message.Publisher, error) {
	pub, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{Client: client},
		backendLogger(logger, "redisstream"),
	)
	if err != nil {
		return nil, fmt.Errorf("events: redis stream publisher: %w", err)
	}
	return pub, nil
}

// NewInProcess returns an in-memory pubsub. Events only reach subscribers in
// the same process; used in development and tests.
func NewInProcess(logger *slog.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{}, backendLogger(logger, "gochannel"))
}

func backendLogger(logger *slog.Logger, backend string) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger.With("component", "events", "backend", backend))
}

// Drain logs every event on Topic until ctx ends. With the in-process
// backend it is the only consumer.
func Drain(ctx context.Context, sub message.Subscriber, logger *slog.Logger) error {
	msgs, err := sub.Subscribe(ctx, Topic)
	if err != nil {
		return fmt.Errorf("events: subscribe: %w", err)
	}

	go func() {
		for msg := range msgs {
			var e Event
			if err := json.Unmarshal(msg.Payload, &e); err != nil {
				logger.Warn("dropping malformed session event", "msg_id", msg.UUID, "err", err)
				msg.Ack()
				continue
			}
			logger.Debug("session event", "type", e.Type, "uid", e.UID, "jti", e.JTI, "msg_id", msg.UUID)
			msg.Ack()
		}
	}()
	return nil
}
