// README: Device token registry backing the FCM sink.
package notify

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/oxymore-tech/liane-sub002/internal/types"
)

// TokenRegistry stores the device tokens a user registered and resolves them
// for push delivery.
type TokenRegistry interface {
	TokenResolver
	Register(ctx context.Context, userID types.ID, token string) error
	Unregister(ctx context.Context, userID types.ID, token string) error
}

const tokenKeyPrefix = "liane:device_tokens:"

// RedisTokenRegistry keeps tokens in a set per user.
type RedisTokenRegistry struct {
	rdb *redis.Client
}

func NewRedisTokenRegistry(rdb *redis.Client) *RedisTokenRegistry {
	return &RedisTokenRegistry{rdb: rdb}
}

func (r *RedisTokenRegistry) Register(ctx context.Context, userID types.ID, token string) error {
	return r.rdb.SAdd(ctx, tokenKeyPrefix+string(userID), token).Err()
}

func (r *RedisTokenRegistry) Unregister(ctx context.Context, userID types.ID, token string) error {
	return r.rdb.SRem(ctx, tokenKeyPrefix+string(userID), token).Err()
}

func (r *RedisTokenRegistry) Tokens(ctx context.Context, userID types.ID) ([]string, error) {
	return r.rdb.SMembers(ctx, tokenKeyPrefix+string(userID)).Result()
}

// MemoryTokenRegistry backs local runs and tests.
type MemoryTokenRegistry struct {
	mu     sync.RWMutex
	tokens map[types.ID]map[string]struct{}
}

func NewMemoryTokenRegistry() *MemoryTokenRegistry {
	return &MemoryTokenRegistry{tokens: make(map[types.ID]map[string]struct{})}
}

func (r *MemoryTokenRegistry) Register(_ context.Context, userID types.ID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.tokens[userID]
	if !ok {
		set = make(map[string]struct{})
		r.tokens[userID] = set
	}
	set[token] = struct{}{}
	return nil
}

func (r *MemoryTokenRegistry) Unregister(_ context.Context, userID types.ID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens[userID], token)
	return nil
}

func (r *MemoryTokenRegistry) Tokens(_ context.Context, userID types.ID) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tokens[userID]))
	for token := range r.tokens[userID] {
		out = append(out, token)
	}
	return out, nil
}
