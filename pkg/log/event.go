package log

import "time"

// Event is one operational log record.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// BootID uniquely identifies the current process run (UUID).
	BootID string `cbor:"2,keyasint"`

	// DeviceID is the device identifier.
	DeviceID string `cbor:"3,keyasint,omitempty"`

	// Category classifies the event type.
	Category Category `cbor:"4,keyasint"`

	// Severity indicates how serious the event is.
	Severity Severity `cbor:"5,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Delivery *DeliveryEvent  `cbor:"10,keyasint,omitempty"` // Telemetry delivery attempts
	Command  *CommandEvent   `cbor:"11,keyasint,omitempty"` // Command lifecycle
	Valve    *ValveEvent     `cbor:"12,keyasint,omitempty"` // Valve transitions
	Storage  *StorageEvent   `cbor:"13,keyasint,omitempty"` // Pending queue / KV store
	Network  *NetworkEvent   `cbor:"14,keyasint,omitempty"` // Link/broker connectivity
	Error    *ErrorEventData `cbor:"15,keyasint,omitempty"` // Errors in any category
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryTelemetry covers sample production and delivery.
	CategoryTelemetry Category = 0
	// CategoryCommand covers inbound command handling.
	CategoryCommand Category = 1
	// CategoryValve covers actuator state transitions.
	CategoryValve Category = 2
	// CategoryStorage covers pending queue and KV store operations.
	CategoryStorage Category = 3
	// CategoryNetwork covers link and broker connectivity.
	CategoryNetwork Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTelemetry:
		return "TELEMETRY"
	case CategoryCommand:
		return "COMMAND"
	case CategoryValve:
		return "VALVE"
	case CategoryStorage:
		return "STORAGE"
	case CategoryNetwork:
		return "NETWORK"
	default:
		return "UNKNOWN"
	}
}

// Severity indicates how serious an event is.
type Severity uint8

const (
	// SeverityInfo is routine operation.
	SeverityInfo Severity = 0
	// SeverityWarning is a tolerated degradation (dropped sample,
	// skipped display frame, transient publish failure).
	SeverityWarning Severity = 1
	// SeverityFailsafe is a safety-bias action (forced valve close,
	// invariant repair, data-loss cursor reset).
	SeverityFailsafe Severity = 2
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityFailsafe:
		return "FAILSAFE"
	default:
		return "UNKNOWN"
	}
}

// DeliveryEvent describes one telemetry delivery attempt.
type DeliveryEvent struct {
	// TelemetryID identifies the sample.
	TelemetryID string `cbor:"1,keyasint"`

	// Outcome is SENT, PENDING, or DROP.
	Outcome string `cbor:"2,keyasint"`

	// FromQueue is true when the sample was drained from the pending
	// queue rather than delivered directly.
	FromQueue bool `cbor:"3,keyasint,omitempty"`

	// PendingBytes is the pending file size after the attempt.
	PendingBytes int64 `cbor:"4,keyasint,omitempty"`

	// Cursor is the pending cursor after the attempt.
	Cursor int64 `cbor:"5,keyasint,omitempty"`
}

// CommandEvent describes a step in a command's lifecycle.
type CommandEvent struct {
	// CommandID anchors the acknowledgement chain.
	CommandID string `cbor:"1,keyasint"`

	// Action is the verb as received.
	Action string `cbor:"2,keyasint,omitempty"`

	// DurationS is the requested duration.
	DurationS uint32 `cbor:"3,keyasint,omitempty"`

	// Status mirrors the acknowledgement status.
	Status string `cbor:"4,keyasint"`

	// Reason carries the terminal reason, if any.
	Reason string `cbor:"5,keyasint,omitempty"`
}

// ValveEvent describes an actuator transition.
type ValveEvent struct {
	// Open is the state after the transition.
	Open bool `cbor:"1,keyasint"`

	// DurationS is the clamped open duration (open transitions).
	DurationS uint32 `cbor:"2,keyasint,omitempty"`

	// RemainingMs is the time left at close (timeout/debug events).
	RemainingMs uint32 `cbor:"3,keyasint,omitempty"`

	// CommandID is the owning command, if any.
	CommandID string `cbor:"4,keyasint,omitempty"`

	// Forced is true when the close bypassed the state machine
	// (lock contention or invariant repair).
	Forced bool `cbor:"5,keyasint,omitempty"`
}

// StorageEvent describes a pending queue or KV store operation.
type StorageEvent struct {
	// Op is the operation: append, read, compact, recover, drop.
	Op string `cbor:"1,keyasint"`

	// Bytes is the size involved, when meaningful.
	Bytes int64 `cbor:"2,keyasint,omitempty"`

	// Detail carries extra context (file name, reason).
	Detail string `cbor:"3,keyasint,omitempty"`
}

// NetworkEvent describes a connectivity change or attempt.
type NetworkEvent struct {
	// Subsystem is "link" or "broker".
	Subsystem string `cbor:"1,keyasint"`

	// Connected is the state after the event.
	Connected bool `cbor:"2,keyasint"`

	// Attempt is the backoff attempt count at the time.
	Attempt uint32 `cbor:"3,keyasint,omitempty"`
}

// ErrorEventData carries error details for any category.
type ErrorEventData struct {
	// Message is the error text.
	Message string `cbor:"1,keyasint"`

	// Op is the operation that failed.
	Op string `cbor:"2,keyasint,omitempty"`
}
