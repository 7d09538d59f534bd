package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(guardChecksTotal, guardSimilarity) }

var (
	guardChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_checks_total",
			Help:      "Self-message guard checks by command, outcome (allowed, blocked, error) and reason.",
		},
		[]string{"command", "outcome", "reason"},
	)

	guardSimilarity = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "guard_similarity",
			Help:      "Best similarity found by the self-message guard.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 1},
		},
	)
)

func ObserveGuardCheck(command, outcome, reason string, similarity float64) {
	guardChecksTotal.WithLabelValues(norm(command), norm(outcome), norm(reason)).Inc()
	if outcome != "error" {
		guardSimilarity.Observe(similarity)
	}
}
