package log

import (
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter specifies criteria for filtering log events.
// Empty/nil fields match all events for that criterion.
type Filter struct {
	// BootID filters by exact boot session match.
	BootID string

	// Category filters by event category.
	Category *Category

	// Severity filters by minimum severity.
	MinSeverity *Severity

	// TimeStart filters events at or after this time.
	TimeStart *time.Time

	// TimeEnd filters events before this time.
	TimeEnd *time.Time

	// DeviceID filters by device ID.
	DeviceID string

	// CommandID filters by command ID (command and valve events).
	CommandID string
}

// matches returns true if the event matches all filter criteria.
func (f *Filter) matches(event Event) bool {
	if f.BootID != "" && event.BootID != f.BootID {
		return false
	}
	if f.Category != nil && event.Category != *f.Category {
		return false
	}
	if f.MinSeverity != nil && event.Severity < *f.MinSeverity {
		return false
	}
	if f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	if f.DeviceID != "" && event.DeviceID != f.DeviceID {
		return false
	}
	if f.CommandID != "" {
		switch {
		case event.Command != nil && event.Command.CommandID == f.CommandID:
		case event.Valve != nil && event.Valve.CommandID == f.CommandID:
		default:
			return false
		}
	}
	return true
}

// Reader reads log events from a CBOR-encoded file.
// It provides an iterator interface for streaming large files.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  *Filter
}

// NewReader opens a log file for reading.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{
		file:    f,
		decoder: NewDecoder(f),
	}, nil
}

// SetFilter restricts Next to events matching the filter.
// Pass nil to clear the filter.
func (r *Reader) SetFilter(f *Filter) {
	r.filter = f
}

// Next returns the next matching event.
// Returns io.EOF when the file is exhausted.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.decoder.Decode(&event); err != nil {
			if err == io.EOF {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if r.filter == nil || r.filter.matches(event) {
			return event, nil
		}
	}
}

// ReadAll returns all matching events in the file.
func (r *Reader) ReadAll() ([]Event, error) {
	var events []Event
	for {
		event, err := r.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
