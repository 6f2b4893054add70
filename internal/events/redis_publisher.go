package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisPublisher broadcasts events over redis pub/sub, one channel per
// event type prefixed with the configured channel prefix.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

func NewRedisPublisher(addr string, password string, db int, prefix string) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if prefix == "" {
		prefix = "livrocaixa"
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

type envelope struct {
	Event      string `json:"event"`
	OccurredAt string `json:"occurred_at"`
	Payload    any    `json:"payload"`
}

func (p *RedisPublisher) Publish(ctx context.Context, eventType string, payload any) {
	body, err := json.Marshal(envelope{
		Event:      eventType,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
		Payload:    payload,
	})
	if err != nil {
		log.Printf("[events] WARN: failed to marshal %s payload: %v", eventType, err)
		return
	}

	channel := p.prefix + ":" + eventType
	if err := p.client.Publish(ctx, channel, body).Err(); err != nil {
		log.Printf("[events] WARN: failed to publish %s: %v", eventType, err)
	}
}
