package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "translation_gateway_active_connections",
		Help: "Number of open WebSocket connections",
	})

	totalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "translation_gateway_connections_total",
		Help: "Total number of WebSocket connections accepted",
	})

	connectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "translation_gateway_connection_duration_seconds",
		Help:    "Duration of WebSocket connections in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// Room metrics
	activeRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "translation_gateway_active_rooms",
		Help: "Number of rooms with at least one member",
	})

	roomMembers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "translation_gateway_room_members",
		Help: "Total room memberships across all rooms",
	})

	broadcastDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "translation_gateway_broadcast_drops_total",
		Help: "Broadcast frames dropped because a member queue was full",
	})

	// Frame metrics
	inboundFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translation_gateway_inbound_frames_total",
		Help: "Inbound frames by message type",
	}, []string{"type"})

	// Pipeline stage metrics
	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "translation_gateway_stage_latency_seconds",
		Help:    "Per-stage pipeline latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	}, []string{"stage"}) // stage: "transcribe", "translate", "synthesize"

	stageRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translation_gateway_stage_requests_total",
		Help: "Pipeline stage invocations by outcome",
	}, []string{"stage", "status"})

	pipelineLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "translation_gateway_pipeline_latency_seconds",
		Help:    "End-to-end pipeline latency in seconds",
		Buckets: []float64{0.5, 1.0, 2.0, 5.0, 10.0, 20.0},
	}, []string{"kind"}) // kind: "audio" or "text"

	pipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translation_gateway_pipeline_runs_total",
		Help: "Pipeline runs by kind and outcome",
	}, []string{"kind", "outcome"}) // outcome: "completed", "degraded", "no_speech"

	realtimeResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translation_gateway_realtime_results_total",
		Help: "Pipeline results by whether they met the real-time target",
	}, []string{"met"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translation_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "translation_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translation_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// RecordConnectionOpen records an accepted WebSocket connection
func RecordConnectionOpen() {
	activeConnections.Inc()
	totalConnections.Inc()
}

// RecordConnectionClose records a closed connection and its lifetime
func RecordConnectionClose(start time.Time) {
	activeConnections.Dec()
	connectionDuration.Observe(time.Since(start).Seconds())
}

// SetRoomCounts updates the room and membership gauges
func SetRoomCounts(rooms, members int) {
	activeRooms.Set(float64(rooms))
	roomMembers.Set(float64(members))
}

// RecordBroadcastDrop records a frame dropped on a full member queue
func RecordBroadcastDrop() {
	broadcastDrops.Inc()
}

// RecordInboundFrame records a dispatched inbound frame
func RecordInboundFrame(msgType string) {
	inboundFrames.WithLabelValues(msgType).Inc()
}

// RecordStage records one pipeline stage invocation
func RecordStage(stage string, elapsed time.Duration, success bool) {
	stageLatency.WithLabelValues(stage).Observe(elapsed.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	stageRequests.WithLabelValues(stage, status).Inc()
}

// RecordPipeline records a completed pipeline run
func RecordPipeline(kind, outcome string, total time.Duration, realtime bool) {
	pipelineLatency.WithLabelValues(kind).Observe(total.Seconds())
	pipelineRuns.WithLabelValues(kind, outcome).Inc()
	met := "false"
	if realtime {
		met = "true"
	}
	realtimeResults.WithLabelValues(met).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
