// Package reservation guarantees a product identity is handed out at most once.
package reservation

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Reserver claims identities. Reserve returns false when id was already claimed.
type Reserver interface {
	Reserve(ctx context.Context, id uint64) (bool, error)
}

// MemoryReserver scopes uniqueness to the process.
type MemoryReserver struct {
	mu   sync.Mutex
	seen map[uint64]struct{}
}

func NewMemoryReserver() *MemoryReserver {
	return &MemoryReserver{seen: make(map[uint64]struct{})}
}

func (m *MemoryReserver) Reserve(_ context.Context, id uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[id]; ok {
		return false, nil
	}
	m.seen[id] = struct{}{}
	return true, nil
}

// RedisReserver scopes uniqueness to every process sharing the Redis instance.
type RedisReserver struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	owner  string
}

// NewRedisReserver connects to addr. ttl of zero keeps claims forever.
func NewRedisReserver(addr, password string, db int, ttl time.Duration, owner string) *RedisReserver {
	return NewRedisReserverFromClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), ttl, owner)
}

func NewRedisReserverFromClient(client *redis.Client, ttl time.Duration, owner string) *RedisReserver {
	return &RedisReserver{client: client, prefix: "productledger:token:", ttl: ttl, owner: owner}
}

func (r *RedisReserver) Reserve(ctx context.Context, id uint64) (bool, error) {
	key := r.prefix + strconv.FormatUint(id, 10)
	ok, err := r.client.SetNX(ctx, key, r.owner, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve %d: %w", id, err)
	}
	return ok, nil
}

// Ping checks connectivity.
func (r *RedisReserver) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisReserver) Close() error {
	return r.client.Close()
}
