package memory

import (
	"context"
	"testing"
	"time"

	"livecast/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func newStream(id domain.StreamID, owner domain.UserID, status domain.StreamStatus) *domain.Stream {
	now := time.Now()
	return &domain.Stream{
		ID:        id,
		OwnerID:   owner,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemoryStreamRepository_CRUD(t *testing.T) {
	repo := NewMemoryStreamRepository()
	ctx := context.Background()

	stream := newStream("s1", "owner", domain.StatusPreparing)
	stream.Title = "original"
	assert.NoError(t, repo.Create(ctx, stream))

	// Creating twice is an error.
	assert.Error(t, repo.Create(ctx, stream))

	got, err := repo.GetByID(ctx, "s1")
	assert.NoError(t, err)
	assert.Equal(t, "original", got.Title)

	// The returned copy does not alias repository state.
	got.Title = "mutated"
	again, err := repo.GetByID(ctx, "s1")
	assert.NoError(t, err)
	assert.Equal(t, "original", again.Title)

	again.Title = "updated"
	assert.NoError(t, repo.Update(ctx, again))
	got, err = repo.GetByID(ctx, "s1")
	assert.NoError(t, err)
	assert.Equal(t, "updated", got.Title)

	assert.NoError(t, repo.Delete(ctx, "s1"))
	_, err = repo.GetByID(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "s1"), domain.ErrStreamNotFound)
}

func TestMemoryStreamRepository_ListByOwner(t *testing.T) {
	repo := NewMemoryStreamRepository()
	ctx := context.Background()

	assert.NoError(t, repo.Create(ctx, newStream("s1", "alice", domain.StatusPreparing)))
	assert.NoError(t, repo.Create(ctx, newStream("s2", "alice", domain.StatusLive)))
	assert.NoError(t, repo.Create(ctx, newStream("s3", "bob", domain.StatusLive)))

	streams, err := repo.ListByOwner(ctx, "alice")
	assert.NoError(t, err)
	assert.Len(t, streams, 2)

	streams, err = repo.ListByOwner(ctx, "nobody")
	assert.NoError(t, err)
	assert.Empty(t, streams)
}

func TestMemoryStreamRepository_CountByOwnerAndStatus(t *testing.T) {
	repo := NewMemoryStreamRepository()
	ctx := context.Background()

	assert.NoError(t, repo.Create(ctx, newStream("s1", "alice", domain.StatusPreparing)))
	assert.NoError(t, repo.Create(ctx, newStream("s2", "alice", domain.StatusLive)))
	assert.NoError(t, repo.Create(ctx, newStream("s3", "alice", domain.StatusEnded)))

	count, err := repo.CountByOwnerAndStatus(ctx, "alice", domain.StatusPreparing, domain.StatusLive)
	assert.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = repo.CountByOwnerAndStatus(ctx, "alice", domain.StatusEnded)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryStreamRepository_CompareAndSwapStatus(t *testing.T) {
	repo := NewMemoryStreamRepository()
	ctx := context.Background()

	assert.NoError(t, repo.Create(ctx, newStream("s1", "owner", domain.StatusPreparing)))

	ok, err := repo.CompareAndSwapStatus(ctx, "s1", domain.StatusPreparing, domain.StatusLive)
	assert.NoError(t, err)
	assert.True(t, ok)

	// The same swap again fails: status no longer matches.
	ok, err = repo.CompareAndSwapStatus(ctx, "s1", domain.StatusPreparing, domain.StatusLive)
	assert.NoError(t, err)
	assert.False(t, ok)

	// Illegal transitions are refused before touching the store.
	ok, err = repo.CompareAndSwapStatus(ctx, "s1", domain.StatusLive, domain.StatusPreparing)
	assert.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.CompareAndSwapStatus(ctx, "missing", domain.StatusPreparing, domain.StatusLive)
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)

	got, err := repo.GetByID(ctx, "s1")
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusLive, got.Status)
}

func TestMemoryStreamRepository_ViewerCounter(t *testing.T) {
	repo := NewMemoryStreamRepository()
	ctx := context.Background()

	assert.NoError(t, repo.Create(ctx, newStream("s1", "owner", domain.StatusLive)))

	count, err := repo.IncrViewers(ctx, "s1")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = repo.IncrViewers(ctx, "s1")
	assert.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := repo.GetByID(ctx, "s1")
	assert.NoError(t, err)
	assert.Equal(t, 2, got.CurrentViewers)

	count, err = repo.DecrViewers(ctx, "s1")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)

	// The counter floors at zero.
	_, err = repo.DecrViewers(ctx, "s1")
	assert.NoError(t, err)
	count, err = repo.DecrViewers(ctx, "s1")
	assert.NoError(t, err)
	assert.Equal(t, 0, count)

	assert.NoError(t, repo.SetViewers(ctx, "s1", 7))
	got, err = repo.GetByID(ctx, "s1")
	assert.NoError(t, err)
	assert.Equal(t, 7, got.CurrentViewers)

	_, err = repo.IncrViewers(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)
}

func TestMemoryStreamRepository_UpdateRejectsStaleStatus(t *testing.T) {
	repo := NewMemoryStreamRepository()
	ctx := context.Background()

	assert.NoError(t, repo.Create(ctx, newStream("s1", "owner", domain.StatusLive)))

	stale, err := repo.GetByID(ctx, "s1")
	assert.NoError(t, err)

	ok, err := repo.CompareAndSwapStatus(ctx, "s1", domain.StatusLive, domain.StatusEnded)
	assert.NoError(t, err)
	assert.True(t, ok)

	// The stale write lost the race; the committed transition must not
	// roll back to live.
	stale.Title = "late edit"
	err = repo.Update(ctx, stale)
	assert.ErrorIs(t, err, domain.ErrStreamModified)

	got, err := repo.GetByID(ctx, "s1")
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, got.Status)
	assert.Empty(t, got.Title)
}

func TestMemoryStreamRepository_UpdateMatchingStatusSucceeds(t *testing.T) {
	repo := NewMemoryStreamRepository()
	ctx := context.Background()

	assert.NoError(t, repo.Create(ctx, newStream("s1", "owner", domain.StatusPreparing)))

	current, err := repo.GetByID(ctx, "s1")
	assert.NoError(t, err)
	current.Title = "renamed"
	assert.NoError(t, repo.Update(ctx, current))

	got, err := repo.GetByID(ctx, "s1")
	assert.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Equal(t, domain.StatusPreparing, got.Status)
}
