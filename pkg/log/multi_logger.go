package log

// MultiLogger fans each event out to several loggers. The controller
// binary runs one in production: the on-disk CBOR event log plus the
// slog console adapter.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a MultiLogger over the given loggers.
// Events reach them in argument order.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log hands the event to every configured logger. A slow or failing
// logger delays the ones after it; file and console loggers both
// swallow their own errors.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

// Compile-time interface satisfaction check.
var _ Logger = (*MultiLogger)(nil)
