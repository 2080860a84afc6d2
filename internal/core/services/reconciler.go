package services

import (
	"context"
	"sync"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"

	"go.uber.org/zap"
)

// Reconciler periodically recomputes viewer counters for live streams from
// the session cache. Clients that disconnect without calling leave stop
// being counted once their cache entry expires.
type Reconciler struct {
	lifecycle ports.Lifecycle
	streams   ports.StreamRepository
	metrics   *MetricsService
	interval  time.Duration
	logger    *zap.SugaredLogger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewReconciler(lifecycle ports.Lifecycle, streams ports.StreamRepository, metrics *MetricsService, interval time.Duration, logger *zap.SugaredLogger) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{
		lifecycle: lifecycle,
		streams:   streams,
		metrics:   metrics,
		interval:  interval,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the background sweep. Call Stop to terminate it.
func (r *Reconciler) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.sweep(ctx)
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the sweep and waits for the current pass to finish.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.wg.Wait()
}

func (r *Reconciler) sweep(ctx context.Context) {
	live, err := r.streams.ListByStatus(ctx, domain.StatusLive)
	if err != nil {
		r.logger.Warnw("viewer reconciliation sweep failed to list live streams", "error", err)
		return
	}

	// The sweep already walks the status index, so it also refreshes the
	// active-streams gauge.
	preparing, err := r.streams.ListByStatus(ctx, domain.StatusPreparing)
	if err != nil {
		r.logger.Warnw("viewer reconciliation sweep failed to list preparing streams", "error", err)
	} else {
		r.metrics.SetActiveStreams(len(live) + len(preparing))
	}

	for _, stream := range live {
		count, err := r.lifecycle.ReconcileViewers(ctx, stream.ID)
		if err != nil {
			r.logger.Warnw("failed to reconcile viewers",
				"stream_id", stream.ID,
				"error", err,
			)
			continue
		}
		if count != stream.CurrentViewers {
			r.logger.Infow("viewer count reconciled",
				"stream_id", stream.ID,
				"previous", stream.CurrentViewers,
				"current", count,
			)
		}
	}
}
