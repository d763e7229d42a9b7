package redis

import (
	"context"
	"encoding/json"

	"letknow-gateway/pkg/errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StreamClient interface for Redis stream operations
type StreamClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// EventPublisher publishes payment events to Redis streams
type EventPublisher struct {
	redis  StreamClient
	maxLen int64
	logger *zap.Logger
}

// NewEventPublisher creates a publisher. maxLen > 0 trims streams approximately to that length.
func NewEventPublisher(rdb StreamClient, maxLen int64, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{
		redis:  rdb,
		maxLen: maxLen,
		logger: logger,
	}
}

// PublishEvent appends event to stream as JSON under the "data" field.
func (p *EventPublisher) PublishEvent(ctx context.Context, stream, eventType string, event interface{}) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return errors.WrapDomainError(err, errors.CodeInternal, "event serialization failed", "failed to marshal event")
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"event_type": eventType,
			"data":       string(eventJSON),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.redis.XAdd(ctx, args).Result()
	if err != nil {
		return errors.WrapDomainError(err, errors.CodeDependencyUnavailable, "event publication failed", "redis error")
	}

	p.logger.Debug("payment event published",
		zap.String("stream", stream),
		zap.String("event_type", eventType),
		zap.String("entry_id", id),
	)
	return nil
}
