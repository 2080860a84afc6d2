package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "livecast:"

// casStatusScript swaps the Status field of a stream document only when
// the stored value still matches the expected one, and keeps the status
// index sets in step. Single round trip, so racing transitions are
// disambiguated entirely server-side.
var casStatusScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return -1
end
local doc = cjson.decode(raw)
if doc.Status ~= ARGV[1] then
  return 0
end
doc.Status = ARGV[2]
redis.call('SET', KEYS[1], cjson.encode(doc))
redis.call('SREM', KEYS[2], ARGV[3])
redis.call('SADD', KEYS[3], ARGV[3])
return 1
`)

// updateStreamScript writes the document only while the stored status
// still matches the one the caller read. A write that lost a race against
// a status transition is rejected instead of silently undoing it, which
// would also desynchronize the status index sets.
var updateStreamScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return -1
end
if cjson.decode(raw).Status ~= ARGV[2] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

// decrViewersScript decrements the viewer counter without ever letting it
// go below zero.
var decrViewersScript = redis.NewScript(`
local n = redis.call('DECR', KEYS[1])
if n < 0 then
  redis.call('SET', KEYS[1], 0)
  return 0
end
return n
`)

type RedisStreamRepository struct {
	client *redis.Client
}

func NewRedisStreamRepository(client *redis.Client) ports.StreamRepository {
	return &RedisStreamRepository{client: client}
}

func (r *RedisStreamRepository) streamKey(id domain.StreamID) string {
	return keyPrefix + "stream:" + string(id)
}

func (r *RedisStreamRepository) viewersKey(id domain.StreamID) string {
	return keyPrefix + "stream:" + string(id) + ":viewers"
}

func (r *RedisStreamRepository) ownerKey(ownerID domain.UserID) string {
	return keyPrefix + "streams:owner:" + string(ownerID)
}

func (r *RedisStreamRepository) statusKey(status domain.StreamStatus) string {
	return keyPrefix + "streams:status:" + string(status)
}

func (r *RedisStreamRepository) Create(ctx context.Context, stream *domain.Stream) error {
	data, err := json.Marshal(stream)
	if err != nil {
		return fmt.Errorf("failed to marshal stream: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.streamKey(stream.ID), data, 0)
	pipe.Set(ctx, r.viewersKey(stream.ID), 0, 0)
	pipe.SAdd(ctx, r.ownerKey(stream.OwnerID), string(stream.ID))
	pipe.SAdd(ctx, r.statusKey(stream.Status), string(stream.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create stream in Redis: %w", err)
	}
	return nil
}

func (r *RedisStreamRepository) GetByID(ctx context.Context, id domain.StreamID) (*domain.Stream, error) {
	data, err := r.client.Get(ctx, r.streamKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrStreamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stream from Redis: %w", err)
	}

	var stream domain.Stream
	if err := json.Unmarshal([]byte(data), &stream); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stream: %w", err)
	}

	// The counter key is the authoritative viewer count.
	viewers, err := r.client.Get(ctx, r.viewersKey(id)).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get viewer count from Redis: %w", err)
	}
	stream.CurrentViewers = viewers

	return &stream, nil
}

func (r *RedisStreamRepository) Update(ctx context.Context, stream *domain.Stream) error {
	data, err := json.Marshal(stream)
	if err != nil {
		return fmt.Errorf("failed to marshal stream: %w", err)
	}

	res, err := updateStreamScript.Run(ctx, r.client,
		[]string{r.streamKey(stream.ID)},
		data, string(stream.Status),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to update stream in Redis: %w", err)
	}

	switch res {
	case -1:
		return domain.ErrStreamNotFound
	case 0:
		return domain.ErrStreamModified
	}
	return nil
}

func (r *RedisStreamRepository) Delete(ctx context.Context, id domain.StreamID) error {
	stream, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.streamKey(id), r.viewersKey(id))
	pipe.SRem(ctx, r.ownerKey(stream.OwnerID), string(id))
	pipe.SRem(ctx, r.statusKey(stream.Status), string(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete stream from Redis: %w", err)
	}
	return nil
}

func (r *RedisStreamRepository) ListByOwner(ctx context.Context, ownerID domain.UserID) ([]*domain.Stream, error) {
	ids, err := r.client.SMembers(ctx, r.ownerKey(ownerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get owner streams from Redis: %w", err)
	}
	return r.loadAll(ctx, ids)
}

func (r *RedisStreamRepository) ListByStatus(ctx context.Context, status domain.StreamStatus) ([]*domain.Stream, error) {
	ids, err := r.client.SMembers(ctx, r.statusKey(status)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get streams by status from Redis: %w", err)
	}
	return r.loadAll(ctx, ids)
}

func (r *RedisStreamRepository) CountByOwnerAndStatus(ctx context.Context, ownerID domain.UserID, statuses ...domain.StreamStatus) (int, error) {
	total := 0
	for _, status := range statuses {
		ids, err := r.client.SInter(ctx, r.ownerKey(ownerID), r.statusKey(status)).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to intersect owner/status sets: %w", err)
		}
		total += len(ids)
	}
	return total, nil
}

func (r *RedisStreamRepository) CompareAndSwapStatus(ctx context.Context, id domain.StreamID, from, to domain.StreamStatus) (bool, error) {
	if !domain.CanTransition(from, to) {
		return false, nil
	}

	res, err := casStatusScript.Run(ctx, r.client,
		[]string{r.streamKey(id), r.statusKey(from), r.statusKey(to)},
		string(from), string(to), string(id),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to compare-and-swap status: %w", err)
	}

	switch res {
	case -1:
		return false, domain.ErrStreamNotFound
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

func (r *RedisStreamRepository) IncrViewers(ctx context.Context, id domain.StreamID) (int, error) {
	n, err := r.client.Incr(ctx, r.viewersKey(id)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment viewer count: %w", err)
	}
	return int(n), nil
}

func (r *RedisStreamRepository) DecrViewers(ctx context.Context, id domain.StreamID) (int, error) {
	n, err := decrViewersScript.Run(ctx, r.client, []string{r.viewersKey(id)}).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to decrement viewer count: %w", err)
	}
	return n, nil
}

func (r *RedisStreamRepository) SetViewers(ctx context.Context, id domain.StreamID, count int) error {
	if err := r.client.Set(ctx, r.viewersKey(id), count, 0).Err(); err != nil {
		return fmt.Errorf("failed to set viewer count: %w", err)
	}
	return nil
}

func (r *RedisStreamRepository) loadAll(ctx context.Context, ids []string) ([]*domain.Stream, error) {
	var streams []*domain.Stream
	for _, id := range ids {
		stream, err := r.GetByID(ctx, domain.StreamID(id))
		if err != nil {
			// Skip streams removed between the index read and the fetch.
			continue
		}
		streams = append(streams, stream)
	}
	return streams, nil
}
