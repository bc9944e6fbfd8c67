package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// NewClient connects to redis and verifies the connection with a ping.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("invalid redis address: %q", addr)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return client, nil
}
