// Package pending implements the durable queue of undelivered
// telemetry records.
//
// The queue is an append-only file with one JSON record per line. A
// record occupies a contiguous byte range terminated by a newline and
// is never mutated in place; consumers read by byte offset and discard
// delivered prefixes through compaction. The read cursor itself is
// owned by the delivery scheduler and persisted elsewhere; this
// package only guarantees that offsets it returns stay valid until the
// next compaction.
//
// # Crash safety
//
// Append flushes and closes the file before returning, so no buffered
// dirty state survives past the call. Compact rewrites the keep-range
// into a temporary file and swaps it in with two renames (live to
// backup, then temporary to live); Open inspects leftover *.bak and
// *.tmp siblings and resolves any interrupted swap so a power loss at
// any point costs at most the record being written.
//
// All operations serialize through one mutex covering the file. The
// mutex is never held across a network call.
package pending
