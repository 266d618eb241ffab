package voting

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/electcore/electcore/internal/platform/cache"
)

// TallyCache keeps final tallies of ended elections in Redis. Concurrent misses
// for the same election share one store read.
type TallyCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewTallyCache instantiates the cache helper.
func NewTallyCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *TallyCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &TallyCache{client: client, ttl: ttl, logger: logger}
}

func tallyKey(electionID int64) string {
	return cache.Key("tally", "v1", strconv.FormatInt(electionID, 10))
}

// Load returns the cached tally or populates it using loader. Redis errors fall
// back to the loader so an unavailable cache never fails a read.
func (c *TallyCache) Load(ctx context.Context, electionID int64, loader func(context.Context) ([]TallyRow, error)) ([]TallyRow, error) {
	if loader == nil {
		return nil, errors.New("voting: tally loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key := tallyKey(electionID)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var rows []TallyRow
		if err := json.Unmarshal(payload, &rows); err == nil {
			return rows, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("tally cache read", slog.Int64("election_id", electionID), slog.Any("error", err))
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		rows, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(rows)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("tally cache write", slog.Int64("election_id", electionID), slog.Any("error", err))
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]TallyRow), nil
}

// Invalidate drops the cached tally of an election.
func (c *TallyCache) Invalidate(ctx context.Context, electionID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, tallyKey(electionID)).Err()
}
