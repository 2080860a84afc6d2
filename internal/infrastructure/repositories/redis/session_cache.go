package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisSessionCache keeps one TTL-bounded key per participant presence:
// livecast:session:{streamID}:{userID}. Entries that are never explicitly
// deleted expire on their own, so a crashed client's presence self-heals.
type RedisSessionCache struct {
	client *redis.Client
}

func NewRedisSessionCache(client *redis.Client) ports.SessionCache {
	return &RedisSessionCache{client: client}
}

func (c *RedisSessionCache) sessionKey(streamID domain.StreamID, userID domain.UserID) string {
	return fmt.Sprintf("%ssession:%s:%s", keyPrefix, streamID, userID)
}

func (c *RedisSessionCache) sessionPattern(streamID domain.StreamID) string {
	return fmt.Sprintf("%ssession:%s:*", keyPrefix, streamID)
}

func (c *RedisSessionCache) Put(ctx context.Context, session *domain.Session, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	key := c.sessionKey(session.StreamID, session.UserID)
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session in Redis: %w", err)
	}
	return nil
}

func (c *RedisSessionCache) Get(ctx context.Context, streamID domain.StreamID, userID domain.UserID) (*domain.Session, error) {
	data, err := c.client.Get(ctx, c.sessionKey(streamID, userID)).Result()
	if err == redis.Nil {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (c *RedisSessionCache) Delete(ctx context.Context, streamID domain.StreamID, userID domain.UserID) error {
	if err := c.client.Del(ctx, c.sessionKey(streamID, userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from Redis: %w", err)
	}
	return nil
}

func (c *RedisSessionCache) DeleteAll(ctx context.Context, streamID domain.StreamID) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.sessionPattern(streamID), 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan sessions in Redis: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete sessions from Redis: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (c *RedisSessionCache) CountByRole(ctx context.Context, streamID domain.StreamID, role domain.Role) (int, error) {
	count := 0
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.sessionPattern(streamID), 100).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to scan sessions in Redis: %w", err)
		}

		for _, key := range keys {
			data, err := c.client.Get(ctx, key).Result()
			if err == redis.Nil {
				// Expired between scan and fetch.
				continue
			}
			if err != nil {
				return 0, fmt.Errorf("failed to get session from Redis: %w", err)
			}

			var session domain.Session
			if err := json.Unmarshal([]byte(data), &session); err != nil {
				continue
			}
			if session.Role == role {
				count++
			}
		}

		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}
