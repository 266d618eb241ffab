// Package cache connects to the Redis instance that holds final election
// tallies and backs the asynq job queue.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Namespace prefixes every key electcore writes so a shared Redis can host
// other tenants.
const Namespace = "electcore"

const pingTimeout = 5 * time.Second

// New dials Redis and fails fast when the server cannot answer a PING.
// The API treats a failure as "tally cache disabled"; the worker treats it as fatal.
func New(ctx context.Context, addr string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping %s: %w", addr, err)
	}
	return client, nil
}

// Key joins parts under Namespace, e.g. Key("tally", "v1", "7") is
// "electcore:tally:v1:7".
func Key(parts ...string) string {
	return Namespace + ":" + strings.Join(parts, ":")
}
