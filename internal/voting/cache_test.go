package voting

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*TallyCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTallyCache(client, time.Minute, nil), mr
}

func TestResultsCachesEndedElections(t *testing.T) {
	cache, mr := newTestCache(t)
	f := newFixture(t, cache)
	ctx := context.Background()

	first, err := f.svc.Results(ctx, closedElection)
	require.NoError(t, err)
	second, err := f.svc.Results(ctx, closedElection)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.votes.tallyCalls)
	assert.True(t, mr.Exists(tallyKey(closedElection)))

	require.NoError(t, cache.Invalidate(ctx, closedElection))
	_, err = f.svc.Results(ctx, closedElection)
	require.NoError(t, err)
	assert.Equal(t, 2, f.votes.tallyCalls)
}

func TestResultsBypassCacheWhileActive(t *testing.T) {
	cache, mr := newTestCache(t)
	f := newFixture(t, cache)
	ctx := context.Background()

	_, err := f.svc.Results(ctx, activeElection)
	require.NoError(t, err)
	_, err = f.svc.Results(ctx, activeElection)
	require.NoError(t, err)
	assert.Equal(t, 2, f.votes.tallyCalls)
	assert.False(t, mr.Exists(tallyKey(activeElection)))
}

func TestTallyCacheFallsBackWhenRedisDown(t *testing.T) {
	cache, mr := newTestCache(t)
	mr.Close()

	rows, err := cache.Load(context.Background(), 7, func(context.Context) ([]TallyRow, error) {
		return []TallyRow{{CandidateID: 1, Votes: 4}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []TallyRow{{CandidateID: 1, Votes: 4}}, rows)
}
