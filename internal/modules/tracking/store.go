// README: Tracking store contract and the Redis implementation.
package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oxymore-tech/liane-sub002/internal/types"
)

// Store holds the last known location per trip member. Writes are per
// member; there is no whole-trip lock, concurrent pings from different
// members never contend.
type Store interface {
	SetMember(ctx context.Context, tripID types.ID, loc MemberLocation) error
	GetMember(ctx context.Context, tripID, userID types.ID) (*MemberLocation, bool, error)
	ListMembers(ctx context.Context, tripID types.ID) ([]MemberLocation, error)
	RemoveMember(ctx context.Context, tripID, userID types.ID) error
	Clear(ctx context.Context, tripID types.ID) error
}

// RedisStore keeps one hash per trip, one field per member. The hash expires
// after the configured TTL so finished trips clean themselves up.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func trackingKey(tripID types.ID) string {
	return "liane:tracking:" + string(tripID)
}

func (s *RedisStore) SetMember(ctx context.Context, tripID types.ID, loc MemberLocation) error {
	doc, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("marshal member location: %w", err)
	}
	key := trackingKey(tripID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, string(loc.UserID), doc)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store member location: %w", err)
	}
	return nil
}

func (s *RedisStore) GetMember(ctx context.Context, tripID, userID types.ID) (*MemberLocation, bool, error) {
	doc, err := s.client.HGet(ctx, trackingKey(tripID), string(userID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get member location: %w", err)
	}
	var loc MemberLocation
	if err := json.Unmarshal(doc, &loc); err != nil {
		return nil, false, fmt.Errorf("decode member location: %w", err)
	}
	return &loc, true, nil
}

func (s *RedisStore) ListMembers(ctx context.Context, tripID types.ID) ([]MemberLocation, error) {
	fields, err := s.client.HGetAll(ctx, trackingKey(tripID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list member locations: %w", err)
	}
	out := make([]MemberLocation, 0, len(fields))
	for _, doc := range fields {
		var loc MemberLocation
		if err := json.Unmarshal([]byte(doc), &loc); err != nil {
			return nil, fmt.Errorf("decode member location: %w", err)
		}
		out = append(out, loc)
	}
	return out, nil
}

func (s *RedisStore) RemoveMember(ctx context.Context, tripID, userID types.ID) error {
	if err := s.client.HDel(ctx, trackingKey(tripID), string(userID)).Err(); err != nil {
		return fmt.Errorf("remove member location: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, tripID types.ID) error {
	if err := s.client.Del(ctx, trackingKey(tripID)).Err(); err != nil {
		return fmt.Errorf("clear tracking: %w", err)
	}
	return nil
}
