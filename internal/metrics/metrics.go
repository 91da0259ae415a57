package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionStreaming = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_session_streaming",
		Help: "1 while a bridge session is streaming, 0 when idle",
	})

	SessionsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_sessions_started_total",
		Help: "Total number of sessions started",
	}, []string{"mode"}) // "cloud" | "self_hosted"

	ExchangesSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_exchanges_submitted_total",
		Help: "Total number of SDP exchanges submitted",
	}, []string{"kind"}) // "whip" | "whep" | "scope"

	ExchangesCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_exchanges_completed_total",
		Help: "Total number of SDP exchanges that reached a terminal status",
	}, []string{"kind", "status"})

	ExchangeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bridge_exchange_duration_seconds",
		Help:    "Time spent negotiating with the upstream backend",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 11), // 50ms to ~50s
	}, []string{"kind"})

	PendingExchanges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_exchanges_in_table",
		Help: "Number of exchanges currently held by the correlator",
	})

	ExchangesEvictedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_exchanges_evicted_total",
		Help: "Exchanges removed without being collected",
	}, []string{"reason"}) // "expired" | "purged" | "capacity"

	ICECandidatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_ice_candidates_total",
		Help: "Total number of trickled ICE candidates",
	}, []string{"result"}) // "queued" | "forwarded" | "failed" | "dropped"

	ActiveViewers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_active_viewers",
		Help: "Number of connected preview viewers",
	})

	ViewersConnectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_viewers_connected_total",
		Help: "Total number of viewers connected",
	})

	ViewersPrunedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_viewers_pruned_total",
		Help: "Viewers removed after a failed delivery",
	})

	FrameDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_frame_drops_total",
		Help: "Frames skipped for a viewer whose send queue was full",
	})

	FramesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_frames_sent_total",
		Help: "Frames produced by the pipeline",
	})

	PlaceholderFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_placeholder_frames_total",
		Help: "Frames substituted because the capture source had nothing",
	})

	FrameBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_frame_bytes_total",
		Help: "Encoded bytes produced by the pipeline",
	})

	FrameErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_frame_errors_total",
		Help: "Pipeline iterations that failed",
	})

	FrameOverrunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_frame_overruns_total",
		Help: "Iterations that took longer than the target interval",
	})

	FrameProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bridge_frame_processing_seconds",
		Help:    "Time spent in capture, normalize, encode and broadcast",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~0.5s
	})

	SourceFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_source_frames_total",
		Help: "Frames received from capture producers",
	})

	ActiveSources = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_active_sources",
		Help: "Number of connected capture producers",
	})

	UpstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_upstream_requests_total",
		Help: "Requests sent to transformation backends",
	}, []string{"backend", "operation", "result"})

	ConfigReloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_config_reloads_total",
		Help: "Number of configuration reloads",
	})

	StartTime = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_start_time_seconds",
		Help: "Server start time in Unix seconds",
	})
)
