package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics for production monitoring
var (
	// Run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_agent_runs_total",
			Help: "Total number of pipeline runs by terminal status",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysis_agent_run_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"strategy"},
	)

	// Intent resolution metrics
	ConsensusTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_agent_consensus_total",
			Help: "Total number of intent resolutions by consensus level",
		},
		[]string{"level"},
	)

	ExtractionVotes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_agent_extraction_votes_total",
			Help: "Total number of extraction votes by method and disposition",
		},
		[]string{"method", "disposition"}, // disposition: voted/declined/failed
	)

	// Tool invocation metrics
	ToolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_agent_tool_invocations_total",
			Help: "Total number of tool invocations by tool and outcome",
		},
		[]string{"tool", "status"},
	)

	ToolInvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysis_agent_tool_invocation_duration_seconds",
			Help:    "Tool invocation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"tool"},
	)

	ToolRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_agent_tool_retries_total",
			Help: "Total number of retried tool invocation attempts",
		},
		[]string{"tool"},
	)

	// Planner metrics
	PlanConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_agent_plan_conflicts_total",
			Help: "Total number of planning conflicts by kind and resolution",
		},
		[]string{"kind", "resolution"},
	)

	// Registry metrics
	RegistryRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_agent_registry_refreshes_total",
			Help: "Total number of registry snapshot refreshes",
		},
		[]string{"source", "status"}, // source: file/http
	)

	RegistryTools = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "analysis_agent_registry_tools",
			Help: "Number of tool descriptors in the latest registry snapshot",
		},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "analysis_agent_websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)
)
