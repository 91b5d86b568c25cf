/*
Package agent is the device orchestrator. It runs the three loops of
the controller and owns all the wiring between them:

  - The acquisition loop samples the sensors on the configured
    interval, stamps each sample with a persisted sequence number, and
    hands it off through a bounded channel. A full channel drops the
    newest sample; acquisition never blocks on downstream backpressure.

  - The network/storage loop drives everything with side effects: link
    and broker reconnection (independent backoff state per subsystem),
    sample routing through the delivery scheduler, pending-queue
    draining, valve supervision, command dispatch, and the time-sync
    retry window.

  - The presentation loop renders a status frame from the shared cells.
    It only ever reads, with short lock timeouts; a missed lock skips
    the frame.

No loop blocks indefinitely. Every cross-loop wait is a bounded channel
operation or a timed lock, and every timeout has a defined fallback.
The loops run for the process lifetime; the context passed to Run is
only the shutdown signal.
*/
package agent
