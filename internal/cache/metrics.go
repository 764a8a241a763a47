package cache

import "github.com/prometheus/client_golang/prometheus"

// Result label values for cacheReqs.
const (
	resultHit   = "hit"
	resultMiss  = "miss"
	resultError = "error"
)

var (
	// cacheReqs counts lookups by snapshot kind (user|preferences) and outcome.
	cacheReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Total number of user cache lookups.",
		},
		[]string{"namespace", "result"},
	)

	// cacheWriteErrs counts failed Set/Delete calls by operation.
	cacheWriteErrs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_write_errors_total",
			Help: "Total number of failed user cache writes and invalidations.",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(cacheReqs, cacheWriteErrs)
}
