package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Research call metrics
	ResearchCallsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sounder_research_calls_started_total",
			Help: "Total number of research calls started",
		},
	)

	ResearchCallsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sounder_research_calls_completed_total",
			Help: "Total number of research calls completed",
		},
		[]string{"status"},
	)

	ResearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sounder_research_duration_seconds",
			Help:    "End-to-end research call duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	AnswerConfidence = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sounder_answer_confidence_total",
			Help: "Final answers by confidence level",
		},
		[]string{"level"},
	)

	ConflictsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sounder_answer_conflicts_total",
			Help: "Answers flagged with cross-source conflicts",
		},
	)

	// Step metrics
	StepAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sounder_step_attempts_used",
			Help:    "Search/refine attempts used per step",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	StepsDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sounder_steps_degraded_total",
			Help: "Steps that exhausted their retry budget without meeting quality",
		},
	)

	AcceptedSources = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sounder_step_accepted_sources",
			Help:    "Accepted evidence items per completed step",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		},
	)

	// Gateway metrics
	ModelGatewayLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sounder_model_gateway_latency_seconds",
			Help:    "Model gateway call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"prompt_id"},
	)

	ModelGatewayErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sounder_model_gateway_errors_total",
			Help: "Model gateway calls that failed after transport retries",
		},
		[]string{"prompt_id"},
	)

	ModelTokensUsed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sounder_model_tokens_total",
			Help: "Total tokens reported by the model service",
		},
	)

	SearchGatewayLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sounder_search_gateway_latency_seconds",
			Help:    "Search gateway call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	SearchGatewayErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sounder_search_gateway_errors_total",
			Help: "Search gateway calls that failed after transport retries",
		},
		[]string{"provider"},
	)

	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sounder_sessions_created_total",
			Help: "Total number of sessions created",
		},
	)

	TurnsAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sounder_turns_appended_total",
			Help: "Research turns appended to the session store",
		},
	)

	SessionCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sounder_session_cache_hits_total",
			Help: "Session lookups served from the local cache",
		},
	)

	SessionCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sounder_session_cache_misses_total",
			Help: "Session lookups that fell through to Redis",
		},
	)
)
