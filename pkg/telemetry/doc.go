// Package telemetry defines the sample model and the JSON envelope
// published to the broker.
//
// A Sample is one timestamped reading of all sensors, produced once per
// acquisition interval. Samples are immutable after production;
// ownership passes from the acquisition loop to the network loop over a
// bounded channel and the producer does not retain a reference.
//
// The telemetry id (device id + timestamp + sequence) identifies a
// sample deterministically so downstream consumers can deduplicate.
// The device-side contract is at-least-once; deduplication is not
// enforced here.
package telemetry
