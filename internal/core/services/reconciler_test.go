package services

import (
	"context"
	"testing"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/infrastructure/plans"
	"livecast/internal/infrastructure/repositories/memory"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func newReconcilerFixture(t *testing.T) (*fixture, *MetricsService) {
	logger := zaptest.NewLogger(t).Sugar()

	streams := memory.NewMemoryStreamRepository()
	sessions := memory.NewMemorySessionCache()
	planService := plans.NewStaticPlanService(permissiveLimits(), nil)
	metrics := NewMetricsService(prometheus.NewRegistry())
	notifier := NewStreamNotifier()
	recBackend := &MockRecordingBackend{}

	lifecycle := NewLifecycleService(
		streams,
		sessions,
		planService,
		NewConcurrencyGuard(streams, planService),
		NewTokenService("test-app", "rtc-secret", "rtm-secret"),
		NewRecordingController(recBackend, logger),
		metrics,
		notifier,
		logger,
		LifecycleConfig{ChannelPrefix: "live"},
	)

	return &fixture{
		streams:   streams,
		sessions:  sessions,
		recording: recBackend,
		notifier:  notifier,
		lifecycle: lifecycle,
	}, metrics
}

func TestReconciler_SweepHealsLiveStreams(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	f, metrics := newReconcilerFixture(t)
	ctx := context.Background()

	stream, err := f.lifecycle.Create(ctx, "owner", domain.StreamSpec{Title: "s", MaxViewers: 10})
	assert.NoError(t, err)
	_, err = f.lifecycle.Start(ctx, stream.ID, "owner")
	assert.NoError(t, err)

	_, err = f.lifecycle.Join(ctx, stream.ID, "viewer1", domain.JoinRequest{})
	assert.NoError(t, err)
	_, err = f.lifecycle.Join(ctx, stream.ID, "viewer2", domain.JoinRequest{})
	assert.NoError(t, err)

	// One session vanishes without a leave, as a TTL expiry would.
	assert.NoError(t, f.sessions.Delete(ctx, stream.ID, "viewer1"))

	reconciler := NewReconciler(f.lifecycle, f.streams, metrics, 10*time.Millisecond, logger)
	reconciler.Start(ctx)

	assert.Eventually(t, func() bool {
		current, err := f.lifecycle.Get(ctx, stream.ID)
		return err == nil && current.CurrentViewers == 1
	}, time.Second, 10*time.Millisecond)

	reconciler.Stop()
}

func TestReconciler_SweepUpdatesActiveStreamsGauge(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	f, metrics := newReconcilerFixture(t)
	ctx := context.Background()

	// One preparing stream, one live, one ended; only the first two
	// count as active.
	_, err := f.lifecycle.Create(ctx, "owner", domain.StreamSpec{Title: "preparing"})
	assert.NoError(t, err)

	live, err := f.lifecycle.Create(ctx, "owner", domain.StreamSpec{Title: "live"})
	assert.NoError(t, err)
	_, err = f.lifecycle.Start(ctx, live.ID, "owner")
	assert.NoError(t, err)

	done, err := f.lifecycle.Create(ctx, "owner", domain.StreamSpec{Title: "done"})
	assert.NoError(t, err)
	_, err = f.lifecycle.End(ctx, done.ID, "owner")
	assert.NoError(t, err)

	reconciler := NewReconciler(f.lifecycle, f.streams, metrics, 10*time.Millisecond, logger)
	reconciler.Start(ctx)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.activeStreams) == 2
	}, time.Second, 10*time.Millisecond)

	reconciler.Stop()
}

func TestReconciler_StopIsIdempotent(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	streams := memory.NewMemoryStreamRepository()
	metrics := NewMetricsService(prometheus.NewRegistry())

	reconciler := NewReconciler(nil, streams, metrics, time.Hour, logger)
	reconciler.Start(context.Background())

	reconciler.Stop()
	reconciler.Stop()
}
