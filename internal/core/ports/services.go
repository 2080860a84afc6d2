package ports

import (
	"context"
	"time"

	"livecast/internal/core/domain"
)

type Lifecycle interface {
	Create(ctx context.Context, ownerID domain.UserID, spec domain.StreamSpec) (*domain.Stream, error)
	Get(ctx context.Context, id domain.StreamID) (*domain.Stream, error)
	Start(ctx context.Context, id domain.StreamID, callerID domain.UserID) (*domain.Stream, error)
	End(ctx context.Context, id domain.StreamID, callerID domain.UserID) (*domain.Stream, error)
	Update(ctx context.Context, id domain.StreamID, callerID domain.UserID, patch domain.StreamPatch) (*domain.Stream, error)
	Delete(ctx context.Context, id domain.StreamID, callerID domain.UserID) error
	Join(ctx context.Context, id domain.StreamID, callerID domain.UserID, req domain.JoinRequest) (*domain.JoinGrant, error)
	Leave(ctx context.Context, id domain.StreamID, callerID domain.UserID) error
	ListByOwner(ctx context.Context, ownerID domain.UserID) ([]*domain.Stream, error)
	ReconcileViewers(ctx context.Context, id domain.StreamID) (int, error)
}

// TokenIssuer mints the time-bounded media and messaging credentials the
// vendor verifies on its side. Tokens are opaque to everything but the
// vendor; re-issuance on every join is expected.
type TokenIssuer interface {
	IssueRTC(channelName string, uid uint32, role domain.Role, ttl time.Duration) (string, error)
	IssueRTM(userID string, ttl time.Duration) (string, error)
	GenerateUID() uint32
	GenerateChannelName(prefix string) string
}

// PlanService exposes the owning account's plan entitlements.
type PlanService interface {
	IsPremium(ctx context.Context, ownerID domain.UserID) (bool, error)
	MaxConcurrentStreams(ctx context.Context, ownerID domain.UserID) (int, error)
	MaxConcurrentViewers(ctx context.Context, ownerID domain.UserID) (int, error)
}

// RecordingBackend is the vendor cloud recording contract.
type RecordingBackend interface {
	AcquireResource(ctx context.Context, channelName string, uid uint32) (string, error)
	Start(ctx context.Context, channelName string, uid uint32, resourceID string) (string, error)
	Stop(ctx context.Context, channelName string, uid uint32, resourceID, sessionID string) ([]domain.RecordingFile, error)
}

// MessagingBackend delivers chat messages into a channel.
type MessagingBackend interface {
	SendChannelMessage(ctx context.Context, channelName string, senderID domain.UserID, text string) (string, error)
}
