package observability

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var backendLabel atomic.Value

func init() {
	backendLabel.Store("memory")
}

// SetBackend names the storage backend stamped on request and source metrics.
func SetBackend(s string) {
	if s == "" {
		s = "memory"
	}
	backendLabel.Store(s)
}

func getBackend() string {
	if v := backendLabel.Load(); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "memory"
}

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status", "backend"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status", "backend"},
	)

	sourceOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spatial_source_ops_total",
			Help: "Spatial source operations by layer, op and outcome.",
		},
		[]string{"layer", "op", "outcome", "backend"},
	)

	sourceOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spatial_source_op_duration_seconds",
			Help:    "Latency of spatial source operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
		[]string{"layer", "op", "backend"},
	)

	filterCandidates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spatial_filter_candidates_total",
			Help: "Candidates returned by the filter step, split by refine result.",
		},
		[]string{"layer", "result"},
	)

	backendLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_latency_seconds",
			Help:    "Latency of remote backend calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"backend", "call"},
	)

	coveringCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "h3_covering_cache_total",
			Help: "H3 covering cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	extentsCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spatial_extents_cache_total",
			Help: "Extents cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mutation_events_total",
			Help: "Mutation events by direction and result.",
		},
		[]string{"direction", "op", "result"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spatial_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

// Collectors returns every vector so a dedicated registry can expose them too.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds,
		sourceOpsTotal, sourceOpDurationSeconds, filterCandidates,
		backendLatencySeconds, coveringCache, extentsCache, eventsTotal, buildInfo,
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	b := getBackend()
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st, b).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st, b).Observe(durationSeconds)
}

// ObserveSourceOp records one source call; outcome is "ok" or an error class.
func ObserveSourceOp(layer, op, outcome string, durationSeconds float64) {
	b := getBackend()
	sourceOpsTotal.WithLabelValues(layer, op, outcome, b).Inc()
	sourceOpDurationSeconds.WithLabelValues(layer, op, b).Observe(durationSeconds)
}

func ObserveFilterRefine(layer string, kept, discarded int) {
	if kept > 0 {
		filterCandidates.WithLabelValues(layer, "kept").Add(float64(kept))
	}
	if discarded > 0 {
		filterCandidates.WithLabelValues(layer, "discarded").Add(float64(discarded))
	}
}

func ObserveBackendLatency(backend, call string, durationSeconds float64) {
	backendLatencySeconds.WithLabelValues(backend, call).Observe(durationSeconds)
}

func IncCoveringHit()  { coveringCache.WithLabelValues("hit").Inc() }
func IncCoveringMiss() { coveringCache.WithLabelValues("miss").Inc() }

func IncExtentsHit()  { extentsCache.WithLabelValues("hit").Inc() }
func IncExtentsMiss() { extentsCache.WithLabelValues("miss").Inc() }

// IncEvent counts a published ("out") or consumed ("in") mutation event.
func IncEvent(direction, op, result string) {
	eventsTotal.WithLabelValues(direction, op, result).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
