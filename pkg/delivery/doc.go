// Package delivery routes telemetry to the broker and drains the
// pending queue.
//
// Fresh samples are delivered directly while the transport is
// connected; the pending queue is purely a fallback for offline
// periods, never the primary path. The drain loop reads one record at
// the cursor, publishes it, and only then advances the cursor, so a
// failed publish is retried from the same point on the next cycle
// (at-least-once, stop-don't-skip). Each drain pass is bounded by an
// item count and a wall-clock budget so a large backlog never starves
// acquisition or command handling.
//
// Cursor persistence is batched to bound wear on the durable store;
// a restart re-sends at most one batch. When the cursor has advanced
// past the compaction threshold the delivered prefix is discarded and
// the cursor resets to zero.
//
// Every attempt is recorded in the local history log with a
// SENT/PENDING/DROP status. Storage faults mark the subsystem
// unhealthy; writes are skipped (not queued in memory) until a
// cooldown expires.
package delivery
