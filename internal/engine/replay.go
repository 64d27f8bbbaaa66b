package engine

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xela07ax/roby-guard/internal/infra"
)

// ReplayGuard помнит идентификаторы принятых транзакций в течение окна.
type ReplayGuard interface {
	// Claim возвращает false, если транзакция уже была принята.
	Claim(ctx context.Context, txID string, ttl time.Duration) (bool, error)
	// Release снимает отметку, если транзакция не дошла до фиксации.
	Release(ctx context.Context, txID string) error
}

type RedisReplayGuard struct {
	rdb *redis.Client
}

func NewRedisReplayGuard(rdb *redis.Client) *RedisReplayGuard {
	return &RedisReplayGuard{rdb: rdb}
}

func (g *RedisReplayGuard) Claim(ctx context.Context, txID string, ttl time.Duration) (bool, error) {
	return g.rdb.SetNX(ctx, infra.GetReplayKey(txID), 1, ttl).Result()
}

func (g *RedisReplayGuard) Release(ctx context.Context, txID string) error {
	return g.rdb.Del(ctx, infra.GetReplayKey(txID)).Err()
}

// MemoryReplayGuard — вариант для одного инстанса и тестов.
type MemoryReplayGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryReplayGuard() *MemoryReplayGuard {
	return &MemoryReplayGuard{seen: make(map[string]time.Time), now: time.Now}
}

func (g *MemoryReplayGuard) Claim(_ context.Context, txID string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for id, until := range g.seen {
		if now.After(until) {
			delete(g.seen, id)
		}
	}
	if _, ok := g.seen[txID]; ok {
		return false, nil
	}
	g.seen[txID] = now.Add(ttl)
	return true, nil
}

func (g *MemoryReplayGuard) Release(_ context.Context, txID string) error {
	g.mu.Lock()
	delete(g.seen, txID)
	g.mu.Unlock()
	return nil
}
