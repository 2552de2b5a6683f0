// Package history queues finished-round results onto a Redis list for the
// historian service to persist asynchronously. The game server never blocks
// on Postgres.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/barrage-gg/barrage/internal/models"
)

// DefaultQueueName is the Redis list (queue) name for match results.
const DefaultQueueName = "barrage_match_results"

// Publisher pushes match results onto the Redis queue. Construct one at
// startup and inject it wherever results are produced.
type Publisher struct {
	rdb   *redis.Client
	queue string
}

// NewPublisher connects a Redis client and verifies the connection.
func NewPublisher(addr string, db int, queue string) (*Publisher, error) {
	if queue == "" {
		queue = DefaultQueueName
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &Publisher{rdb: rdb, queue: queue}, nil
}

// PublishMatchResult serializes the result to JSON and RPushes it onto the
// queue. Quick network send only; persistence happens in the historian.
func (p *Publisher) PublishMatchResult(ctx context.Context, res models.MatchResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal MatchResult: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}
