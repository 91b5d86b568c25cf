// Package command parses inbound actuator commands and builds the
// acknowledgement messages tied to their lifecycle.
//
// A command addressed to another device is dropped without an
// acknowledgement. Every accepted or malformed command addressed to
// this device produces an acknowledgement chain anchored on its
// command id: "received" on parse, "started" or "error" after the
// actuator acted, and eventually "done" or "error" when the watering
// session ends. If the sender supplied no command id, a local one is
// synthesized so the chain still has an anchor.
//
// For compatibility with the deployed protocol, action "on" with
// duration 0 means an immediate stop. The parser normalizes that case
// to ActionStop so a future protocol-level "stop" verb only touches
// the parsing table.
package command
