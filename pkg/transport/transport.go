package transport

import "errors"

// ErrNotConnected is returned by Publish when the transport has no
// broker connection.
var ErrNotConnected = errors.New("transport not connected")

// MessageHandler receives inbound messages. Handlers must return
// quickly: they run on the transport's receive path.
type MessageHandler func(topic string, payload []byte)

// Transport is the broker connection the controller publishes and
// subscribes through.
type Transport interface {
	// Connect establishes the broker connection. Blocking, bounded
	// by the implementation's own timeout.
	Connect() error

	// Disconnect tears the connection down.
	Disconnect()

	// IsConnected reports whether the connection is currently up.
	IsConnected() bool

	// Publish sends a payload to a topic. Returns ErrNotConnected
	// when no connection is up; other errors are transient.
	Publish(topic string, payload []byte) error

	// Subscribe registers interest in a topic. The handler runs for
	// every message received on it.
	Subscribe(topic string, handler MessageHandler) error

	// RSSI returns the link signal strength if the implementation
	// knows it. ok is false when unavailable.
	RSSI() (rssi int, ok bool)
}
