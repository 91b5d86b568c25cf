package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes events to an slog.Logger.
// Useful for development when you want to see controller events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger. Failsafe events log at Warn
// level, everything else at Debug.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("boot_id", event.BootID),
		slog.String("category", event.Category.String()),
		slog.String("severity", event.Severity.String()),
	}

	// Add optional identifiers
	if event.DeviceID != "" {
		attrs = append(attrs, slog.String("device_id", event.DeviceID))
	}

	// Add type-specific attributes
	switch {
	case event.Delivery != nil:
		attrs = append(attrs,
			slog.String("telemetry_id", event.Delivery.TelemetryID),
			slog.String("outcome", event.Delivery.Outcome),
		)
		if event.Delivery.FromQueue {
			attrs = append(attrs, slog.Bool("from_queue", true))
		}
		if event.Delivery.PendingBytes > 0 {
			attrs = append(attrs, slog.Int64("pending_bytes", event.Delivery.PendingBytes))
		}
	case event.Command != nil:
		attrs = append(attrs,
			slog.String("command_id", event.Command.CommandID),
			slog.String("status", event.Command.Status),
		)
		if event.Command.Action != "" {
			attrs = append(attrs, slog.String("action", event.Command.Action))
		}
		if event.Command.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.Command.Reason))
		}
	case event.Valve != nil:
		attrs = append(attrs, slog.Bool("open", event.Valve.Open))
		if event.Valve.DurationS > 0 {
			attrs = append(attrs, slog.Uint64("duration_s", uint64(event.Valve.DurationS)))
		}
		if event.Valve.RemainingMs > 0 {
			attrs = append(attrs, slog.Uint64("remaining_ms", uint64(event.Valve.RemainingMs)))
		}
		if event.Valve.CommandID != "" {
			attrs = append(attrs, slog.String("command_id", event.Valve.CommandID))
		}
		if event.Valve.Forced {
			attrs = append(attrs, slog.Bool("forced", true))
		}
	case event.Storage != nil:
		attrs = append(attrs, slog.String("op", event.Storage.Op))
		if event.Storage.Bytes > 0 {
			attrs = append(attrs, slog.Int64("bytes", event.Storage.Bytes))
		}
		if event.Storage.Detail != "" {
			attrs = append(attrs, slog.String("detail", event.Storage.Detail))
		}
	case event.Network != nil:
		attrs = append(attrs,
			slog.String("subsystem", event.Network.Subsystem),
			slog.Bool("connected", event.Network.Connected),
		)
		if event.Network.Attempt > 0 {
			attrs = append(attrs, slog.Uint64("attempt", uint64(event.Network.Attempt)))
		}
	}

	if event.Error != nil {
		attrs = append(attrs, slog.String("error", event.Error.Message))
		if event.Error.Op != "" {
			attrs = append(attrs, slog.String("op", event.Error.Op))
		}
	}

	level := slog.LevelDebug
	if event.Severity == SeverityFailsafe {
		level = slog.LevelWarn
	}

	a.logger.LogAttrs(context.Background(), level, "edge event", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
