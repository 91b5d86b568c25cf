package log

import "time"

// Logger is the interface the controller uses to emit events.
// Pass nil or NoopLogger to disable logging.
type Logger interface {
	// Log records an event. Implementations must be thread-safe.
	// The event should be processed quickly or queued; blocking
	// affects the controller's timing loops.
	Log(event Event)
}

// NoopLogger discards all events. Use when logging is disabled.
// NoopLogger is safe for concurrent use and usable as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// StampLogger fills in the identity fields every event shares before
// forwarding to the wrapped logger. Components emit events with only
// their own payload; the stamp supplies BootID, DeviceID, and a
// timestamp when the emitter left them empty.
type StampLogger struct {
	next     Logger
	bootID   string
	deviceID string
}

// NewStampLogger wraps next with the given identity.
func NewStampLogger(next Logger, bootID, deviceID string) *StampLogger {
	return &StampLogger{next: next, bootID: bootID, deviceID: deviceID}
}

// Log stamps and forwards the event.
func (l *StampLogger) Log(event Event) {
	if event.BootID == "" {
		event.BootID = l.bootID
	}
	if event.DeviceID == "" {
		event.DeviceID = l.deviceID
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	l.next.Log(event)
}

// Compile-time interface satisfaction checks.
var (
	_ Logger = NoopLogger{}
	_ Logger = (*StampLogger)(nil)
)
