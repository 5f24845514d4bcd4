package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/premium-ledger/internal/model"
)

// fakeRedis реализует только команды, которые использует VotesCache.
type fakeRedis struct {
	redis.Cmdable
	data   map[string]string
	ttl    time.Duration
	getErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	f.ttl = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestVotesCache_RoundTrip(t *testing.T) {
	fake := newFakeRedis()
	c := NewVotesCache(fake, time.Minute)
	ctx := context.Background()

	_, ok, err := c.GetAllVotes(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	votes := []model.IssueVotes{{IssueID: 42, VoteCount: 10}, {IssueID: 7, VoteCount: 3}}
	require.NoError(t, c.SetAllVotes(ctx, votes))
	assert.Equal(t, time.Minute, fake.ttl)

	got, ok, err := c.GetAllVotes(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, votes, got)

	require.NoError(t, c.Invalidate(ctx))
	_, ok, err = c.GetAllVotes(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVotesCache_GetError(t *testing.T) {
	fake := newFakeRedis()
	fake.getErr = errors.New("i/o timeout")
	c := NewVotesCache(fake, time.Minute)

	_, ok, err := c.GetAllVotes(context.Background())
	require.Error(t, err)
	assert.False(t, ok)
}

func TestVotesCache_CorruptedEntry(t *testing.T) {
	fake := newFakeRedis()
	fake.data[allVotesKey] = "{"
	c := NewVotesCache(fake, time.Minute)

	_, _, err := c.GetAllVotes(context.Background())
	require.Error(t, err)
}
