package ports

import (
	"context"
	"time"

	"livecast/internal/core/domain"
)

type StreamRepository interface {
	Create(ctx context.Context, stream *domain.Stream) error
	GetByID(ctx context.Context, id domain.StreamID) (*domain.Stream, error)

	// Update persists the document only while the stored status still
	// matches stream.Status. It returns domain.ErrStreamModified when a
	// concurrent transition committed in between, so a stale write can
	// never roll a stream's status backward. Status changes go through
	// CompareAndSwapStatus exclusively.
	Update(ctx context.Context, stream *domain.Stream) error
	Delete(ctx context.Context, id domain.StreamID) error
	ListByOwner(ctx context.Context, ownerID domain.UserID) ([]*domain.Stream, error)
	ListByStatus(ctx context.Context, status domain.StreamStatus) ([]*domain.Stream, error)
	CountByOwnerAndStatus(ctx context.Context, ownerID domain.UserID, statuses ...domain.StreamStatus) (int, error)

	// CompareAndSwapStatus atomically moves the stream's status from one
	// value to another in a single round trip against the store. It
	// returns false without mutating anything when the stored status no
	// longer matches the expected value.
	CompareAndSwapStatus(ctx context.Context, id domain.StreamID, from, to domain.StreamStatus) (bool, error)

	// IncrViewers and DecrViewers move the live viewer counter using the
	// store's atomic counter primitive. DecrViewers never goes below zero.
	IncrViewers(ctx context.Context, id domain.StreamID) (int, error)
	DecrViewers(ctx context.Context, id domain.StreamID) (int, error)
	SetViewers(ctx context.Context, id domain.StreamID, count int) error
}

type SessionCache interface {
	Put(ctx context.Context, session *domain.Session, ttl time.Duration) error
	Get(ctx context.Context, streamID domain.StreamID, userID domain.UserID) (*domain.Session, error)
	Delete(ctx context.Context, streamID domain.StreamID, userID domain.UserID) error
	DeleteAll(ctx context.Context, streamID domain.StreamID) error
	CountByRole(ctx context.Context, streamID domain.StreamID, role domain.Role) (int, error)
}
