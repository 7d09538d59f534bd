//go:build !integration

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobCounters(t *testing.T) {
	before := testutil.ToFloat64(llmJobsFinishedTotal.WithLabelValues("ask", "done"))
	ObserveJobFinished(" ASK ", JobOutcomeDone, 2*time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(llmJobsFinishedTotal.WithLabelValues("ask", "done")))

	SetJobsActive(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(llmJobsActive))

	SetQueueDepth(map[string]int{"pending": 4, "failed": 1})
	assert.Equal(t, 4.0, testutil.ToFloat64(llmJobsQueueDepth.WithLabelValues("pending")))
}

func TestGuardCounter(t *testing.T) {
	before := testutil.ToFloat64(guardChecksTotal.WithLabelValues("roast", "blocked", "substring"))
	ObserveGuardCheck("roast", "blocked", "substring", 1)
	assert.Equal(t, before+1, testutil.ToFloat64(guardChecksTotal.WithLabelValues("roast", "blocked", "substring")))
}

func TestTelegramSendDefaultsParseMode(t *testing.T) {
	before := testutil.ToFloat64(tgSends.WithLabelValues("plain", "ok"))
	IncTelegramSend("", "ok")
	assert.Equal(t, before+1, testutil.ToFloat64(tgSends.WithLabelValues("plain", "ok")))
}

func TestTelegramCommandOutcomes(t *testing.T) {
	accepted := testutil.ToFloat64(tgCommands.WithLabelValues("/ask", "accepted"))
	limited := testutil.ToFloat64(tgCommands.WithLabelValues("/ask", "rate_limited"))
	IncTelegramCommand("/ASK")
	IncRateLimitTriggered(" /ask")
	assert.Equal(t, accepted+1, testutil.ToFloat64(tgCommands.WithLabelValues("/ask", "accepted")))
	assert.Equal(t, limited+1, testutil.ToFloat64(tgCommands.WithLabelValues("/ask", "rate_limited")))
}

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	SetBuildInfo("1.2.3", "abc", "SQLite")

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["veritheo_build_info"])
	assert.True(t, names["veritheo_llm_jobs_active"])

	// a second registration of the same collectors must conflict
	assert.Error(t, Register(reg))
}

func TestObserveCompletion(t *testing.T) {
	prompt := aiTokensTotal.WithLabelValues("gemini", "gemini-2.5-flash", "prompt")
	completion := aiTokensTotal.WithLabelValues("gemini", "gemini-2.5-flash", "completion")
	p0, c0 := testutil.ToFloat64(prompt), testutil.ToFloat64(completion)

	ObserveCompletion("Gemini", "gemini-2.5-flash", 120, 30, 150, time.Second, true)
	assert.Equal(t, p0+120, testutil.ToFloat64(prompt))
	assert.Equal(t, c0+30, testutil.ToFloat64(completion))

	ObserveCompletion("gemini", "gemini-2.5-flash", 0, 0, 0, time.Second, false)
	assert.Equal(t, p0+120, testutil.ToFloat64(prompt), "failed calls add no tokens")

	ObserveCompletion("gemini", "gemini-2.5-flash", 0, 0, 40, time.Second, true)
	assert.Equal(t, p0+160, testutil.ToFloat64(prompt), "a bare total is booked as prompt tokens")
}

func TestStorageMetrics(t *testing.T) {
	SetDBPoolStats(10, 7, 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(dbConnections.WithLabelValues("in_use")))

	before := testutil.ToFloat64(cacheRequestsTotal.WithLabelValues("heresy", CacheError))
	IncCacheRequest("Heresy", CacheError)
	assert.Equal(t, before+1, testutil.ToFloat64(cacheRequestsTotal.WithLabelValues("heresy", CacheError)))
}
