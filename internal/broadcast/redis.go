package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "hearth:events:"

// RedisBroadcaster publishes events to a per-room Redis channel. Every API
// instance runs a Hub subscribed to the same channels, so fan-out works
// across processes.
type RedisBroadcaster struct {
	client *redis.Client
}

func NewRedisBroadcaster(redisURL string) (*RedisBroadcaster, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisBroadcaster{client: client}, nil
}

// NewRedisBroadcasterWithClient wraps an existing client (tests).
func NewRedisBroadcasterWithClient(client *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{client: client}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, channelPrefix+event.RoomID, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe listens on every room channel. The caller owns the PubSub.
func (b *RedisBroadcaster) Subscribe(ctx context.Context) *redis.PubSub {
	return b.client.PSubscribe(ctx, channelPrefix+"*")
}

func (b *RedisBroadcaster) Close() error {
	return b.client.Close()
}
