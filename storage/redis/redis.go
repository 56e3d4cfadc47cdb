// Package redisstore holds the Redis backed reminder lock and application event publisher.
package redisstore

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/edulens/core/application"
)

// Open creates a Redis client from url and checks the connection.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

// Publisher publishes JSON encoded events over Redis pub/sub.
type Publisher struct {
	client redis.UniversalClient
}

var _ application.EventPublisher = (*Publisher)(nil) // interface compliance check

func NewPublisher(client redis.UniversalClient) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, channel string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encoding event")
	}
	return errors.Wrap(p.client.Publish(ctx, channel, data).Err(), "publishing event")
}
