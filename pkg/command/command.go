package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Parse errors.
var (
	ErrInvalidPayload = errors.New("invalid payload")
	ErrMissingAction  = errors.New("missing action")
	ErrUnknownAction  = errors.New("unknown action")

	// ErrNotForDevice marks a command addressed to another device.
	// It is dropped silently, with no acknowledgement.
	ErrNotForDevice = errors.New("command not for this device")
)

// Action is the normalized command verb.
type Action uint8

const (
	// ActionOpen opens the valve for the command's duration.
	ActionOpen Action = iota + 1

	// ActionStop closes the valve immediately. Covers both the "off"
	// verb and the historical "on with duration 0" overload.
	ActionStop
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionOpen:
		return "OPEN"
	case ActionStop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// Command is one validated actuator command.
type Command struct {
	// Action is the normalized verb.
	Action Action

	// DurationS is the requested open duration in seconds.
	// Zero for ActionStop.
	DurationS uint32

	// ID anchors the acknowledgement chain. Never empty after Parse:
	// a missing wire id is replaced with a synthesized one.
	ID string

	// RawAction is the verb as received, kept for acknowledgements.
	RawAction string
}

// wireCommand is the inbound JSON shape.
type wireCommand struct {
	DeviceID  string `json:"device_id"`
	Action    string `json:"action"`
	Duration  int64  `json:"duration"`
	CommandID string `json:"command_id"`
}

// Parse validates an inbound payload for the given device.
//
// Returns ErrNotForDevice when the command targets a different device.
// Other errors still carry a usable Command: its ID is populated so the
// caller can emit the error acknowledgement.
func Parse(payload []byte, deviceID string) (Command, error) {
	var w wireCommand
	if err := json.Unmarshal(payload, &w); err != nil {
		return Command{ID: fallbackID()}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if w.DeviceID != "" && w.DeviceID != deviceID {
		return Command{}, ErrNotForDevice
	}

	cmd := Command{ID: w.CommandID, RawAction: w.Action}
	if cmd.ID == "" {
		cmd.ID = fallbackID()
	}

	if w.Action == "" {
		return cmd, ErrMissingAction
	}
	if w.Duration < 0 {
		return cmd, fmt.Errorf("%w: negative duration %d", ErrInvalidPayload, w.Duration)
	}

	switch w.Action {
	case "on":
		if w.Duration == 0 {
			cmd.Action = ActionStop
			return cmd, nil
		}
		cmd.Action = ActionOpen
		// Oversized wire durations saturate; uint32 truncation would
		// alias them to small values, a multiple of 2^32 to a stop.
		if w.Duration > math.MaxUint32 {
			w.Duration = math.MaxUint32
		}
		cmd.DurationS = uint32(w.Duration)
		return cmd, nil
	case "off":
		cmd.Action = ActionStop
		return cmd, nil
	default:
		return cmd, fmt.Errorf("%w: %q", ErrUnknownAction, w.Action)
	}
}

// fallbackID synthesizes a locally-unique command id.
func fallbackID() string {
	return "local-" + uuid.NewString()
}
