package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
)

type cacheEntry struct {
	session   domain.Session
	expiresAt time.Time
}

// MemorySessionCache mirrors the Redis session cache semantics, including
// TTL expiry, for tests and single-node development. Expired entries are
// dropped lazily on access.
type MemorySessionCache struct {
	entries map[string]cacheEntry
	mu      sync.Mutex
}

func NewMemorySessionCache() ports.SessionCache {
	return &MemorySessionCache{
		entries: make(map[string]cacheEntry),
	}
}

func sessionKey(streamID domain.StreamID, userID domain.UserID) string {
	return string(streamID) + ":" + string(userID)
}

func (c *MemorySessionCache) Put(ctx context.Context, session *domain.Session, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[sessionKey(session.StreamID, session.UserID)] = cacheEntry{
		session:   *session,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (c *MemorySessionCache) Get(ctx context.Context, streamID domain.StreamID, userID domain.UserID) (*domain.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := sessionKey(streamID, userID)
	entry, exists := c.entries[key]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, domain.ErrSessionNotFound
	}

	session := entry.session
	return &session, nil
}

func (c *MemorySessionCache) Delete(ctx context.Context, streamID domain.StreamID, userID domain.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, sessionKey(streamID, userID))
	return nil
}

func (c *MemorySessionCache) DeleteAll(ctx context.Context, streamID domain.StreamID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := string(streamID) + ":"
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

func (c *MemorySessionCache) CountByRole(ctx context.Context, streamID domain.StreamID, role domain.Role) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	prefix := string(streamID) + ":"
	count := 0
	for key, entry := range c.entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			continue
		}
		if entry.session.Role == role {
			count++
		}
	}
	return count, nil
}
