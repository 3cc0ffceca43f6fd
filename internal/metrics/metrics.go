package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxbridge_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	IntentExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxbridge_intent_executions_total",
			Help: "Intent executions by type, category and outcome",
		},
		[]string{"type", "category", "status"},
	)

	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxbridge_token_refreshes_total",
			Help: "OAuth token refresh exchanges by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxbridge_rate_limit_rejections_total",
			Help: "Requests rejected by the per-IP rate limiter, by route",
		},
		[]string{"path"},
	)

	ProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "voxbridge_voice_processing_seconds",
			Help: "Transcription and classification round-trip duration",
		},
	)

	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxbridge_sync_runs_total",
			Help: "Provider sync runs by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)
)
