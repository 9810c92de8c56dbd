package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"arena-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// EventChannel is the pub/sub channel game lifecycle events go to.
const EventChannel = "quiz:events"

type eventEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EventPublisher pushes room lifecycle events over Redis pub/sub.
type EventPublisher struct {
	client  *redis.Client
	channel string
}

func NewEventPublisher(client *redis.Client) *EventPublisher {
	return &EventPublisher{client: client, channel: EventChannel}
}

func (p *EventPublisher) PublishGameStarted(ctx context.Context, evt domain.GameStarted) error {
	raw, err := json.Marshal(eventEnvelope{Type: "gameStarted", Data: evt})
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish game started: %w", err)
	}
	return nil
}
