package services

import (
	"livecast/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsService exposes orchestrator counters to Prometheus. It takes an
// explicit Registerer so tests can use a private registry.
type MetricsService struct {
	streamsCreated     prometheus.Counter
	transitions        *prometheus.CounterVec
	joins              prometheus.Counter
	leaves             prometheus.Counter
	joinRejections     *prometheus.CounterVec
	recordingFailures  prometheus.Counter
	activeStreams      prometheus.Gauge
	streamViewers      *prometheus.GaugeVec
}

func NewMetricsService(reg prometheus.Registerer) *MetricsService {
	factory := promauto.With(reg)

	return &MetricsService{
		streamsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "livecast_streams_created_total",
			Help: "Total number of streams created",
		}),

		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livecast_lifecycle_transitions_total",
			Help: "Total number of successful lifecycle transitions",
		}, []string{"to"}),

		joins: factory.NewCounter(prometheus.CounterOpts{
			Name: "livecast_joins_total",
			Help: "Total number of successful stream joins",
		}),

		leaves: factory.NewCounter(prometheus.CounterOpts{
			Name: "livecast_leaves_total",
			Help: "Total number of stream leaves",
		}),

		joinRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livecast_join_rejections_total",
			Help: "Total number of rejected join attempts",
		}, []string{"reason"}),

		recordingFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "livecast_recording_failures_total",
			Help: "Total number of swallowed recording start/stop failures",
		}),

		activeStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "livecast_streams_active",
			Help: "Number of streams currently preparing or live",
		}),

		streamViewers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "livecast_stream_viewers",
			Help: "Current audience viewer count per stream",
		}, []string{"stream_id"}),
	}
}

func (m *MetricsService) StreamCreated() {
	m.streamsCreated.Inc()
}

func (m *MetricsService) Transition(to domain.StreamStatus) {
	m.transitions.WithLabelValues(string(to)).Inc()
}

func (m *MetricsService) Join() {
	m.joins.Inc()
}

func (m *MetricsService) Leave() {
	m.leaves.Inc()
}

func (m *MetricsService) JoinRejected(reason string) {
	m.joinRejections.WithLabelValues(reason).Inc()
}

func (m *MetricsService) RecordingFailure() {
	m.recordingFailures.Inc()
}

func (m *MetricsService) SetActiveStreams(n int) {
	m.activeStreams.Set(float64(n))
}

func (m *MetricsService) SetStreamViewers(streamID domain.StreamID, n int) {
	m.streamViewers.WithLabelValues(string(streamID)).Set(float64(n))
}

func (m *MetricsService) DropStream(streamID domain.StreamID) {
	m.streamViewers.DeleteLabelValues(string(streamID))
}
