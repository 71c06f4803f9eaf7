package events

import (
	"context"

	"go.uber.org/zap"
)

// Publisher delivers relayed outbox messages to downstream consumers
// (receipt minting, notifications).
type Publisher interface {
	Publish(ctx context.Context, msgs []Message) error
	Close() error
}

// LogPublisher writes messages to the structured log. It is used when no
// broker is configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log.Named("events.log_publisher")}
}

func (p *LogPublisher) Publish(ctx context.Context, msgs []Message) error {
	for _, msg := range msgs {
		p.log.Info("settlement event",
			zap.String("event_id", msg.ID),
			zap.String("event_type", string(msg.Type)),
			zap.String("aggregate_type", string(msg.AggregateType)),
			zap.Int64("aggregate_id", msg.AggregateID),
			zap.ByteString("payload", msg.Payload),
		)
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }
