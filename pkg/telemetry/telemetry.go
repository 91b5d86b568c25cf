package telemetry

import (
	"encoding/json"
	"fmt"
)

// Readings is the fixed set of sensor values in one sample.
type Readings struct {
	AirTemp      float64 `json:"air_temp"`
	AirHumidity  float64 `json:"air_humidity"`
	SoilMoisture int     `json:"soil_moisture"`
	LightLevel   int     `json:"light_level"`
	RainRaw      int     `json:"rain_raw"`
	UVIndex      float64 `json:"uv_index"`
}

// Sample is one acquisition cycle's worth of sensor readings.
type Sample struct {
	// Timestamp is seconds since the Unix epoch.
	Timestamp int64 `json:"timestamp"`

	// Seq is the strictly increasing per-device sequence number.
	Seq uint32 `json:"telemetry_seq"`

	// Sensors holds the readings.
	Sensors Readings `json:"sensors"`
}

// ID derives the deterministic telemetry id for a sample.
func ID(deviceID string, s Sample) string {
	return fmt.Sprintf("%s-%d-%d", deviceID, s.Timestamp, s.Seq)
}

// SysInfo is the device health block attached to each published
// envelope. Populated at publish time, not at sample time.
type SysInfo struct {
	FwVersion     string `json:"fw_version"`
	UptimeS       uint32 `json:"uptime_s"`
	RSSI          *int   `json:"rssi,omitempty"`
	PendingBytes  int64  `json:"pending_bytes"`
	PendingOffset int64  `json:"pending_offset"`
}

// Envelope is the telemetry publish message.
type Envelope struct {
	DeviceID    string   `json:"device_id"`
	Timestamp   int64    `json:"timestamp"`
	Seq         uint32   `json:"telemetry_seq"`
	TelemetryID string   `json:"telemetry_id"`
	Sensors     Readings `json:"sensors"`
	Sys         SysInfo  `json:"sys"`
}

// NewEnvelope builds the publish envelope for a sample.
func NewEnvelope(deviceID string, s Sample, sys SysInfo) Envelope {
	return Envelope{
		DeviceID:    deviceID,
		Timestamp:   s.Timestamp,
		Seq:         s.Seq,
		TelemetryID: ID(deviceID, s),
		Sensors:     s.Sensors,
		Sys:         sys,
	}
}

// EncodeEnvelope serializes an envelope for publishing.
func EncodeEnvelope(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// EncodeSample serializes a sample for the pending queue. The result
// contains no line terminator; the queue adds it.
func EncodeSample(s Sample) ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSample parses one pending-queue record back into a sample.
func DecodeSample(data []byte) (Sample, error) {
	var s Sample
	if err := json.Unmarshal(data, &s); err != nil {
		return Sample{}, fmt.Errorf("decode sample: %w", err)
	}
	return s, nil
}
