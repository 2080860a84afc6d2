package services

import (
	"context"
	"testing"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/infrastructure/plans"
	"livecast/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
)

func seedStream(t *testing.T, repo interface {
	Create(ctx context.Context, stream *domain.Stream) error
}, id domain.StreamID, owner domain.UserID, status domain.StreamStatus) {
	t.Helper()
	err := repo.Create(context.Background(), &domain.Stream{
		ID:        id,
		OwnerID:   owner,
		Status:    status,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	})
	assert.NoError(t, err)
}

func TestConcurrencyGuard_CheckCreateAllowed(t *testing.T) {
	streams := memory.NewMemoryStreamRepository()
	planService := plans.NewStaticPlanService(plans.Limits{MaxConcurrentStreams: 2}, nil)
	guard := NewConcurrencyGuard(streams, planService)
	ctx := context.Background()

	assert.NoError(t, guard.CheckCreateAllowed(ctx, "owner"))

	seedStream(t, streams, "s1", "owner", domain.StatusPreparing)
	assert.NoError(t, guard.CheckCreateAllowed(ctx, "owner"))

	seedStream(t, streams, "s2", "owner", domain.StatusLive)
	assert.ErrorIs(t, guard.CheckCreateAllowed(ctx, "owner"), domain.ErrTooManyActiveStreams)

	// Ended streams do not count against the ceiling.
	seedStream(t, streams, "s3", "other", domain.StatusEnded)
	assert.NoError(t, guard.CheckCreateAllowed(ctx, "other"))
}

func TestConcurrencyGuard_CheckJoinAllowed(t *testing.T) {
	streams := memory.NewMemoryStreamRepository()
	planService := plans.NewStaticPlanService(plans.Limits{MaxConcurrentViewers: 0}, nil)
	guard := NewConcurrencyGuard(streams, planService)
	ctx := context.Background()

	stream := &domain.Stream{OwnerID: "owner", MaxViewers: 2, CurrentViewers: 1}
	assert.NoError(t, guard.CheckJoinAllowed(ctx, stream, domain.RoleSubscriber))

	stream.CurrentViewers = 2
	assert.ErrorIs(t, guard.CheckJoinAllowed(ctx, stream, domain.RoleSubscriber), domain.ErrCapacityExceeded)

	// Publishers bypass the audience cap entirely.
	assert.NoError(t, guard.CheckJoinAllowed(ctx, stream, domain.RolePublisher))
}

func TestConcurrencyGuard_PlanCeilingTightensCap(t *testing.T) {
	streams := memory.NewMemoryStreamRepository()
	planService := plans.NewStaticPlanService(plans.Limits{MaxConcurrentViewers: 5}, nil)
	guard := NewConcurrencyGuard(streams, planService)
	ctx := context.Background()

	stream := &domain.Stream{OwnerID: "owner", MaxViewers: 100, CurrentViewers: 5}
	assert.ErrorIs(t, guard.CheckJoinAllowed(ctx, stream, domain.RoleSubscriber), domain.ErrCapacityExceeded)

	stream.CurrentViewers = 4
	assert.NoError(t, guard.CheckJoinAllowed(ctx, stream, domain.RoleSubscriber))

	// A plan without a viewer ceiling leaves the stream cap in charge.
	openPlan := plans.NewStaticPlanService(plans.Limits{MaxConcurrentViewers: 0}, nil)
	openGuard := NewConcurrencyGuard(streams, openPlan)
	stream.CurrentViewers = 50
	assert.NoError(t, openGuard.CheckJoinAllowed(ctx, stream, domain.RoleSubscriber))
}
