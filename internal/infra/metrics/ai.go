package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(aiTokensTotal, aiRequestDuration, aiFallbacksTotal) }

var (
	aiTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_tokens_total",
			Help:      "Tokens billed by successful completions, by direction (prompt, completion).",
		},
		[]string{"provider", "model", "direction"},
	)

	aiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ai_request_duration_seconds",
			Help:      "Completion latency by provider, model and outcome.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60, 120},
		},
		[]string{"provider", "model", "success"},
	)

	aiFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_fallbacks_total",
			Help:      "Completions re-routed to the fallback model after a transient error.",
		},
		[]string{"from", "to"},
	)
)

// ObserveCompletion records one provider call. Token counts are only added
// for successful calls; total is kept for providers that report it alone.
func ObserveCompletion(provider, model string, tokensIn, tokensOut, tokensTotal int, latency time.Duration, success bool) {
	p, m := norm(provider), norm(model)
	if success {
		if tokensIn == 0 && tokensOut == 0 {
			tokensIn = tokensTotal
		}
		aiTokensTotal.WithLabelValues(p, m, "prompt").Add(float64(tokensIn))
		aiTokensTotal.WithLabelValues(p, m, "completion").Add(float64(tokensOut))
	}
	aiRequestDuration.WithLabelValues(p, m, strconv.FormatBool(success)).Observe(latency.Seconds())
}

func IncAIFallback(from, to string) {
	aiFallbacksTotal.WithLabelValues(norm(from), norm(to)).Inc()
}
