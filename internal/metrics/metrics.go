package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the engine.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// ResolveCalls counts routing-provider resolutions by outcome
	// (ok, error, empty, stale).
	ResolveCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "route_resolve_total", Help: "Routing provider resolutions by outcome."},
		[]string{"outcome"},
	)
	// ResolveDuration tracks provider round-trip latency in seconds.
	ResolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "route_resolve_duration_seconds", Help: "Routing provider latency in seconds.", Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}},
	)

	// PartitionIterations observes how many refinement iterations a
	// partition run needed before converging or hitting the cap.
	PartitionIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "partition_iterations", Help: "Centroid refinement iterations per partition run.", Buckets: []float64{1, 2, 3, 5, 8, 13, 20}},
	)

	// ReconcileMerges counts loose stops merged into their segment.
	ReconcileMerges = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "reconcile_merged_stops_total", Help: "Loose unassigned stops merged into segments."},
	)
	// ReconcileOrphans counts stops evicted because their order is no
	// longer linked to the batch.
	ReconcileOrphans = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "reconcile_orphaned_stops_total", Help: "Stops removed after losing their upstream linkage."},
	)
	// ReconcileSkips counts segments skipped in a pass because their
	// patch failed.
	ReconcileSkips = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "reconcile_segment_skips_total", Help: "Segments skipped due to persistence errors."},
	)

	// RoutesCommitted counts committed routes by outcome (ok, error).
	RoutesCommitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "routes_committed_total", Help: "Route commit writes by outcome."},
		[]string{"outcome"},
	)
)

// RegisterDefault registers all collectors on the engine registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(ResolveCalls)
		Registry.MustRegister(ResolveDuration)
		Registry.MustRegister(PartitionIterations)
		Registry.MustRegister(ReconcileMerges)
		Registry.MustRegister(ReconcileOrphans)
		Registry.MustRegister(ReconcileSkips)
		Registry.MustRegister(RoutesCommitted)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
