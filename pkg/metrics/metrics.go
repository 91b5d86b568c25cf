package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the controller's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	samplesPublished prometheus.Counter
	samplesQueued    prometheus.Counter
	samplesDropped   prometheus.Counter
	failsafeCloses   prometheus.Counter
	reconnects       *prometheus.CounterVec

	pendingBytes  prometheus.Gauge
	pendingCursor prometheus.Gauge
	valveOpen     prometheus.Gauge
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.samplesPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agroedge_samples_published_total",
		Help: "Telemetry samples delivered to the broker.",
	})
	m.samplesQueued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agroedge_samples_queued_total",
		Help: "Telemetry samples appended to the pending queue.",
	})
	m.samplesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agroedge_samples_dropped_total",
		Help: "Telemetry samples dropped (queue full, storage fault, channel full).",
	})
	m.failsafeCloses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agroedge_failsafe_closes_total",
		Help: "Valve closes forced by the failsafe path.",
	})
	m.reconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agroedge_reconnect_attempts_total",
		Help: "Reconnection attempts per subsystem.",
	}, []string{"subsystem"})

	m.pendingBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agroedge_pending_bytes",
		Help: "Size of the pending queue file.",
	})
	m.pendingCursor = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agroedge_pending_cursor",
		Help: "Delivered-prefix cursor into the pending queue file.",
	})
	m.valveOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agroedge_valve_open",
		Help: "1 while the valve is open.",
	})

	m.registry.MustRegister(
		m.samplesPublished, m.samplesQueued, m.samplesDropped,
		m.failsafeCloses, m.reconnects,
		m.pendingBytes, m.pendingCursor, m.valveOpen,
	)
	return m
}

// SamplePublished counts one delivered sample.
func (m *Metrics) SamplePublished() {
	if m != nil {
		m.samplesPublished.Inc()
	}
}

// SampleQueued counts one sample appended to the pending queue.
func (m *Metrics) SampleQueued() {
	if m != nil {
		m.samplesQueued.Inc()
	}
}

// SampleDropped counts one dropped sample.
func (m *Metrics) SampleDropped() {
	if m != nil {
		m.samplesDropped.Inc()
	}
}

// FailsafeClose counts one forced valve close.
func (m *Metrics) FailsafeClose() {
	if m != nil {
		m.failsafeCloses.Inc()
	}
}

// ReconnectAttempt counts one reconnection attempt for a subsystem
// ("link" or "broker").
func (m *Metrics) ReconnectAttempt(subsystem string) {
	if m != nil {
		m.reconnects.WithLabelValues(subsystem).Inc()
	}
}

// SetPending records the pending file size and cursor.
func (m *Metrics) SetPending(bytes, cursor int64) {
	if m != nil {
		m.pendingBytes.Set(float64(bytes))
		m.pendingCursor.Set(float64(cursor))
	}
}

// SetValveOpen records the valve state.
func (m *Metrics) SetValveOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.valveOpen.Set(1)
	} else {
		m.valveOpen.Set(0)
	}
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing /metrics and /healthz on addr.
// It returns once the listener is up; server errors after that are
// ignored, metrics are best-effort.
func (m *Metrics) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Metrics must never take the controller down.
			_ = err
		}
	}()
	return srv
}
