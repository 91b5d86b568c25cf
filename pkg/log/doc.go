// Package log provides structured event logging for the edge
// controller.
//
// The controller records operational events (telemetry delivery
// attempts, command lifecycles, valve transitions, storage faults,
// connectivity changes) as typed Event values. Applications choose
// where events go by picking a Logger implementation:
//
//   - FileLogger: appends CBOR-encoded events to a file for later
//     retrieval with the agroedge-log tool
//   - SlogAdapter: forwards events to a log/slog logger for console
//     output during development
//   - MultiLogger: fans out to several loggers at once
//   - NoopLogger: discards everything
//
// Events use integer CBOR keys to keep the on-flash log compact.
// Logging must never disrupt the controller: implementations swallow
// encoding errors and Log is safe to call from any goroutine.
package log
