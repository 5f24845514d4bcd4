// Package cache содержит кеш сумм голосов по задачам в Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mmeshcher/premium-ledger/internal/model"
)

const allVotesKey = "premium:votes:all"

// VotesCache хранит суммы голосов по всем задачам одной записью с ограниченным сроком жизни.
type VotesCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewVotesCache создаёт кеш поверх клиента Redis.
func NewVotesCache(client redis.Cmdable, ttl time.Duration) *VotesCache {
	return &VotesCache{client: client, ttl: ttl}
}

// Connect подключается к Redis по адресу addr и проверяет соединение.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// GetAllVotes возвращает закешированные суммы голосов; ok == false при промахе.
func (c *VotesCache) GetAllVotes(ctx context.Context) ([]model.IssueVotes, bool, error) {
	data, err := c.client.Get(ctx, allVotesKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get cached votes: %w", err)
	}

	var votes []model.IssueVotes
	if err := json.Unmarshal(data, &votes); err != nil {
		return nil, false, fmt.Errorf("decode cached votes: %w", err)
	}
	return votes, true, nil
}

// SetAllVotes сохраняет суммы голосов.
func (c *VotesCache) SetAllVotes(ctx context.Context, votes []model.IssueVotes) error {
	data, err := json.Marshal(votes)
	if err != nil {
		return fmt.Errorf("encode votes: %w", err)
	}
	if err := c.client.Set(ctx, allVotesKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached votes: %w", err)
	}
	return nil
}

// Invalidate удаляет закешированные суммы.
func (c *VotesCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, allVotesKey).Err(); err != nil {
		return fmt.Errorf("invalidate cached votes: %w", err)
	}
	return nil
}
