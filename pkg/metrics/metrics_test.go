package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	// None of these may panic.
	m.SamplePublished()
	m.SampleQueued()
	m.SampleDropped()
	m.FailsafeClose()
	m.ReconnectAttempt("link")
	m.SetPending(10, 5)
	m.SetValveOpen(true)
}

func TestCounters(t *testing.T) {
	m := New()

	m.SamplePublished()
	m.SamplePublished()
	m.SampleDropped()
	m.FailsafeClose()
	m.ReconnectAttempt("broker")
	m.SetPending(2048, 512)
	m.SetValveOpen(true)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.samplesPublished))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.samplesDropped))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.failsafeCloses))
	assert.Equal(t, float64(2048), testutil.ToFloat64(m.pendingBytes))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.valveOpen))

	m.SetValveOpen(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.valveOpen))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.SampleQueued()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "agroedge_samples_queued_total 1"),
		"metrics output missing queued counter: %s", body)
}
