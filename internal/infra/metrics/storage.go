package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbConnections, cacheRequestsTotal) }

const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

var (
	dbConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections",
			Help:      "Storage pool connections by state (total, idle, in_use).",
		},
		[]string{"state"},
	)

	cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Redis cache lookups by cache and result (hit, miss, error).",
		},
		[]string{"cache", "result"},
	)
)

// SetDBPoolStats publishes one pool snapshot.
func SetDBPoolStats(total, idle, inUse int) {
	dbConnections.WithLabelValues("total").Set(float64(total))
	dbConnections.WithLabelValues("idle").Set(float64(idle))
	dbConnections.WithLabelValues("in_use").Set(float64(inUse))
}

func IncCacheRequest(cache, result string) {
	cacheRequestsTotal.WithLabelValues(norm(cache), norm(result)).Inc()
}
