package memory

import (
	"context"
	"fmt"
	"sync"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
)

// MemoryStreamRepository is a mutex-guarded map implementation used in
// tests and single-node development. Streams are stored and returned as
// copies so callers never alias the repository's state.
type MemoryStreamRepository struct {
	streams map[domain.StreamID]*domain.Stream
	viewers map[domain.StreamID]int
	mu      sync.RWMutex
}

func NewMemoryStreamRepository() ports.StreamRepository {
	return &MemoryStreamRepository{
		streams: make(map[domain.StreamID]*domain.Stream),
		viewers: make(map[domain.StreamID]int),
	}
}

func clone(stream *domain.Stream) *domain.Stream {
	c := *stream
	c.CoHosts = append([]domain.UserID(nil), stream.CoHosts...)
	c.RecordingFiles = append([]domain.RecordingFile(nil), stream.RecordingFiles...)
	return &c
}

func (r *MemoryStreamRepository) Create(ctx context.Context, stream *domain.Stream) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.streams[stream.ID]; exists {
		return fmt.Errorf("stream already exists: %s", stream.ID)
	}

	r.streams[stream.ID] = clone(stream)
	r.viewers[stream.ID] = 0
	return nil
}

func (r *MemoryStreamRepository) GetByID(ctx context.Context, id domain.StreamID) (*domain.Stream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stream, exists := r.streams[id]
	if !exists {
		return nil, domain.ErrStreamNotFound
	}

	c := clone(stream)
	c.CurrentViewers = r.viewers[id]
	return c, nil
}

func (r *MemoryStreamRepository) Update(ctx context.Context, stream *domain.Stream) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.streams[stream.ID]
	if !exists {
		return domain.ErrStreamNotFound
	}
	if stored.Status != stream.Status {
		return domain.ErrStreamModified
	}

	r.streams[stream.ID] = clone(stream)
	return nil
}

func (r *MemoryStreamRepository) Delete(ctx context.Context, id domain.StreamID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.streams[id]; !exists {
		return domain.ErrStreamNotFound
	}

	delete(r.streams, id)
	delete(r.viewers, id)
	return nil
}

func (r *MemoryStreamRepository) ListByOwner(ctx context.Context, ownerID domain.UserID) ([]*domain.Stream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var streams []*domain.Stream
	for id, stream := range r.streams {
		if stream.OwnerID == ownerID {
			c := clone(stream)
			c.CurrentViewers = r.viewers[id]
			streams = append(streams, c)
		}
	}
	return streams, nil
}

func (r *MemoryStreamRepository) ListByStatus(ctx context.Context, status domain.StreamStatus) ([]*domain.Stream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var streams []*domain.Stream
	for id, stream := range r.streams {
		if stream.Status == status {
			c := clone(stream)
			c.CurrentViewers = r.viewers[id]
			streams = append(streams, c)
		}
	}
	return streams, nil
}

func (r *MemoryStreamRepository) CountByOwnerAndStatus(ctx context.Context, ownerID domain.UserID, statuses ...domain.StreamStatus) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, stream := range r.streams {
		if stream.OwnerID != ownerID {
			continue
		}
		for _, status := range statuses {
			if stream.Status == status {
				count++
				break
			}
		}
	}
	return count, nil
}

func (r *MemoryStreamRepository) CompareAndSwapStatus(ctx context.Context, id domain.StreamID, from, to domain.StreamStatus) (bool, error) {
	if !domain.CanTransition(from, to) {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stream, exists := r.streams[id]
	if !exists {
		return false, domain.ErrStreamNotFound
	}
	if stream.Status != from {
		return false, nil
	}

	stream.Status = to
	return true, nil
}

func (r *MemoryStreamRepository) IncrViewers(ctx context.Context, id domain.StreamID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.streams[id]; !exists {
		return 0, domain.ErrStreamNotFound
	}

	r.viewers[id]++
	return r.viewers[id], nil
}

func (r *MemoryStreamRepository) DecrViewers(ctx context.Context, id domain.StreamID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.streams[id]; !exists {
		return 0, domain.ErrStreamNotFound
	}

	if r.viewers[id] > 0 {
		r.viewers[id]--
	}
	return r.viewers[id], nil
}

func (r *MemoryStreamRepository) SetViewers(ctx context.Context, id domain.StreamID, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.streams[id]; !exists {
		return domain.ErrStreamNotFound
	}

	r.viewers[id] = count
	return nil
}
