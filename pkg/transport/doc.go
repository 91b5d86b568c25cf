// Package transport abstracts the broker connection used for
// telemetry, acknowledgements, and inbound commands.
//
// The controller depends only on the Transport interface; TLS, socket
// handling, and broker quirks stay inside the implementation. The MQTT
// implementation wraps eclipse/paho with manual connection management:
// the controller's own backoff policy decides when to reconnect, so
// paho's auto-reconnect is disabled.
//
// Message handlers run on the transport's receive path and must stay
// minimal (parse and hand off); side effects happen in the
// controller's own loops.
package transport
