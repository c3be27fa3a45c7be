// Package bus wraps the Redis client used as the simulator's message
// bus. Consumption lives in the listener package; this file covers the
// outbound side shared by agents and the stats publisher.
package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher emits JSON-encoded events on Redis channels.
type Publisher struct {
	rdb *redis.Client
}

// NewPublisher wraps an existing Redis client.
func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// Publish marshals payload and publishes it on channel.
func (p *Publisher) Publish(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bus: encode %s payload: %w", channel, err)
	}
	if err := p.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("bus: publish %s: %w", channel, err)
	}
	return nil
}
