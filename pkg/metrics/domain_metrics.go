package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// cacheLookups and singleflightCoalesced instrument the resolution cache
// (pkg/rescache); resolverLatency and backendLatency instrument the
// identity/repository resolvers and the S3/Azure backends respectively.
var (
	cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "s3_read_proxy_cache_lookups_total",
		Help: "Resolution cache lookups, partitioned by cache name and hit/miss.",
	}, []string{"cache", "result"})

	singleflightCoalesced = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "s3_read_proxy_singleflight_coalesced_total",
		Help: "Resolution cache misses that were served by an already in-flight upstream call.",
	}, []string{"cache"})

	resolverLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "s3_read_proxy_resolver_latency_seconds",
		Help: "Time spent in an upstream identity/repository resolver call.",
	}, []string{"resolver"})

	backendLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "s3_read_proxy_backend_latency_seconds",
		Help: "Time spent in a backend Head/Get/List call, partitioned by backend kind and operation.",
	}, []string{"backend", "operation"})
)

func init() {
	prometheus.MustRegister(cacheLookups, singleflightCoalesced, resolverLatency, backendLatency)
}

// RecordCacheLookup increments the hit/miss counter for a named resolution cache.
func RecordCacheLookup(cache, result string) {
	cacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordSingleflightCoalesced increments the counter tracking how often a
// cache miss was served by an already in-flight upstream call rather than
// triggering a new one.
func RecordSingleflightCoalesced(cache string) {
	singleflightCoalesced.WithLabelValues(cache).Inc()
}

// ObserveResolverLatency records how long an upstream resolver call against
// the metadata API took.
func ObserveResolverLatency(resolver string, d time.Duration) {
	resolverLatency.WithLabelValues(resolver).Observe(d.Seconds())
}

// ObserveBackendLatency records how long a backend Head/Get/List call took.
func ObserveBackendLatency(backend, operation string, d time.Duration) {
	backendLatency.WithLabelValues(backend, operation).Observe(d.Seconds())
}
