package command

import "encoding/json"

// Ack statuses, in lifecycle order.
const (
	StatusReceived = "received"
	StatusStarted  = "started"
	StatusDone     = "done"
	StatusError    = "error"
)

// Ack reasons for terminal statuses.
const (
	ReasonTimeout  = "timeout"
	ReasonStopped  = "stopped"
	ReasonFailsafe = "failsafe"
)

// Ack is the acknowledgement publish message.
type Ack struct {
	DeviceID  string `json:"device_id"`
	CommandID string `json:"command_id"`
	Status    string `json:"status"`
	Ts        int64  `json:"ts"`
	Action    string `json:"action,omitempty"`
	DurationS uint32 `json:"duration,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewAck builds an acknowledgement for a command id.
func NewAck(deviceID, commandID, status string, ts int64) Ack {
	return Ack{
		DeviceID:  deviceID,
		CommandID: commandID,
		Status:    status,
		Ts:        ts,
	}
}

// WithAction attaches the original verb and duration.
func (a Ack) WithAction(action string, durationS uint32) Ack {
	a.Action = action
	a.DurationS = durationS
	return a
}

// WithReason attaches a terminal reason.
func (a Ack) WithReason(reason string) Ack {
	a.Reason = reason
	return a
}

// WithError attaches an error description.
func (a Ack) WithError(msg string) Ack {
	a.Error = msg
	return a
}

// Encode serializes the acknowledgement for publishing.
func (a Ack) Encode() ([]byte, error) {
	return json.Marshal(a)
}
