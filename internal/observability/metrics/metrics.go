package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicdesk_http_requests_total",
		Help: "Total number of HTTP requests served by the development backend",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clinicdesk_http_request_duration_seconds",
		Help:    "Duration of HTTP requests served by the development backend",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	gatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicdesk_gateway_requests_total",
		Help: "Backend gateway calls by operation and result",
	}, []string{"op", "result"})

	gatewayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clinicdesk_gateway_request_duration_seconds",
		Help:    "Duration of backend gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	breakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicdesk_gateway_breaker_transitions_total",
		Help: "Circuit breaker state transitions",
	}, []string{"from", "to"})

	reconcileOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicdesk_reconcile_operations_total",
		Help: "Reconciler operations by kind and result",
	}, []string{"op", "result"})

	cachedItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clinicdesk_cache_items",
		Help: "Items held in the local mirror per collection",
	}, []string{"collection"})

	staleSnapshots = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicdesk_cache_stale_snapshots_total",
		Help: "Fetch results discarded because a newer snapshot was already applied",
	}, []string{"collection"})

	sessionWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicdesk_session_writes_total",
		Help: "Session persistence writes by entry and result",
	}, []string{"entry", "result"})

	syncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicdesk_sync_runs_total",
		Help: "Background sync runs by result",
	}, []string{"result"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveGatewayRequest records one backend call.
func ObserveGatewayRequest(op, result string, duration time.Duration) {
	gatewayRequests.WithLabelValues(op, result).Inc()
	if duration > 0 {
		gatewayDuration.WithLabelValues(op).Observe(duration.Seconds())
	}
}

// ObserveBreakerTransition counts a circuit breaker state change.
func ObserveBreakerTransition(from, to string) {
	breakerTransitions.WithLabelValues(from, to).Inc()
}

// ObserveReconcile counts a reconciler operation.
func ObserveReconcile(op, result string) {
	reconcileOperations.WithLabelValues(op, result).Inc()
}

// SetCachedItems sets the mirror size for a collection.
func SetCachedItems(collection string, count int) {
	if count < 0 {
		count = 0
	}
	cachedItems.WithLabelValues(collection).Set(float64(count))
}

// ObserveStaleSnapshot counts a discarded out-of-order fetch result.
func ObserveStaleSnapshot(collection string) {
	staleSnapshots.WithLabelValues(collection).Inc()
}

// ObserveSessionWrite counts a session persistence write.
func ObserveSessionWrite(entry, result string) {
	sessionWrites.WithLabelValues(entry, result).Inc()
}

// ObserveSync counts a background sync run.
func ObserveSync(result string) {
	syncRuns.WithLabelValues(result).Inc()
}
