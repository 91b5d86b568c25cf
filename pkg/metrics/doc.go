// Package metrics exposes the controller's operational counters and
// gauges through Prometheus.
//
// The set is deliberately small: delivery outcomes, failsafe closes,
// reconnect attempts, and the pending backlog. A nil *Metrics is valid
// everywhere one is accepted; all methods are no-ops on nil, so the
// binary can run without the metrics endpoint.
package metrics
