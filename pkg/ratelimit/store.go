package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoBudget is returned by a Store that has not recorded a budget yet.
var ErrNoBudget = errors.New("no budget recorded")

// Redis keys for budget storage.
const (
	RedisKeyRemaining  = "comments:rate_limit:remaining"
	RedisKeyResetAt    = "comments:rate_limit:reset_at"
	RedisKeyLastUpdate = "comments:rate_limit:last_update"
)

// Store persists the latest Budget.
type Store interface {
	Load(ctx context.Context) (*Budget, error)
	Save(ctx context.Context, b *Budget) error
}

// MemoryStore keeps the budget in process memory. It is the default store.
type MemoryStore struct {
	mu     sync.Mutex
	budget *Budget
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored budget.
func (s *MemoryStore) Load(_ context.Context) (*Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.budget == nil {
		return nil, ErrNoBudget
	}
	b := *s.budget
	return &b, nil
}

// Save replaces the stored budget.
func (s *MemoryStore) Save(_ context.Context, b *Budget) error {
	if b == nil {
		return fmt.Errorf("budget cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.budget = &cp
	return nil
}

// RedisStore shares the budget between processes talking to the same API.
// Keys expire once the advertised window has reset.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient}
}

// Load reads the budget fields from Redis.
func (s *RedisStore) Load(ctx context.Context) (*Budget, error) {
	remaining, err := s.redis.Get(ctx, RedisKeyRemaining).Int()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNoBudget
		}
		return nil, fmt.Errorf("get remaining: %w", err)
	}

	resetAt, err := s.redis.Get(ctx, RedisKeyResetAt).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get reset timestamp: %w", err)
	}

	lastUpdateStr, err := s.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	b := &Budget{
		Remaining:  remaining,
		ResetAt:    time.Unix(resetAt, 0),
		LastUpdate: lastUpdate,
	}
	b.UpdateHealth()
	return b, nil
}

// Save writes all budget fields in one pipeline.
func (s *RedisStore) Save(ctx context.Context, b *Budget) error {
	if b == nil {
		return fmt.Errorf("budget cannot be nil")
	}

	lastUpdateJSON, err := json.Marshal(b.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	// Keep the keys a little past the reset so a blocked budget is still visible at the edge.
	ttl := b.TimeUntilReset() + time.Minute

	pipe := s.redis.Pipeline()
	pipe.Set(ctx, RedisKeyRemaining, b.Remaining, ttl)
	pipe.Set(ctx, RedisKeyResetAt, b.ResetAt.Unix(), ttl)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store budget in redis: %w", err)
	}
	return nil
}
