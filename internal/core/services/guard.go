package services

import (
	"context"
	"fmt"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
)

// ConcurrencyGuard enforces the plan's concurrent-stream ceiling before
// creation and the stream's viewer cap before audience joins. The
// check-then-act pair is deliberately not globally atomic: counts are
// reconstructed from the store, so heavy concurrency can over-admit by a
// small margin, never under-admit.
type ConcurrencyGuard struct {
	streams ports.StreamRepository
	plans   ports.PlanService
}

func NewConcurrencyGuard(streams ports.StreamRepository, plans ports.PlanService) *ConcurrencyGuard {
	return &ConcurrencyGuard{
		streams: streams,
		plans:   plans,
	}
}

// CheckCreateAllowed rejects creation when the owner already runs as many
// preparing/live streams as the plan permits.
func (g *ConcurrencyGuard) CheckCreateAllowed(ctx context.Context, ownerID domain.UserID) error {
	limit, err := g.plans.MaxConcurrentStreams(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to resolve concurrent stream limit: %w", err)
	}

	count, err := g.streams.CountByOwnerAndStatus(ctx, ownerID, domain.StatusPreparing, domain.StatusLive)
	if err != nil {
		return fmt.Errorf("failed to count active streams: %w", err)
	}

	if count >= limit {
		return domain.ErrTooManyActiveStreams
	}
	return nil
}

// CheckJoinAllowed rejects audience joins once the viewer cap is reached.
// Publishers (owner, authorized co-hosts) bypass the cap. The effective
// cap is the owner-configured MaxViewers, further bounded by the plan's
// per-stream viewer ceiling when the plan sets one.
func (g *ConcurrencyGuard) CheckJoinAllowed(ctx context.Context, stream *domain.Stream, role domain.Role) error {
	if role != domain.RoleSubscriber {
		return nil
	}

	cap := stream.MaxViewers
	planCap, err := g.plans.MaxConcurrentViewers(ctx, stream.OwnerID)
	if err != nil {
		return fmt.Errorf("failed to resolve viewer limit: %w", err)
	}
	if planCap > 0 && planCap < cap {
		cap = planCap
	}

	if stream.CurrentViewers >= cap {
		return domain.ErrCapacityExceeded
	}
	return nil
}
