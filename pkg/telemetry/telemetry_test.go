package telemetry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID(t *testing.T) {
	s := Sample{Timestamp: 1700000000, Seq: 42}
	assert.Equal(t, "field-7-1700000000-42", ID("field-7", s))

	// Same inputs, same id.
	assert.Equal(t, ID("field-7", s), ID("field-7", s))

	// Any component change produces a different id.
	assert.NotEqual(t, ID("field-7", s), ID("field-8", s))
	assert.NotEqual(t, ID("field-7", s), ID("field-7", Sample{Timestamp: 1700000000, Seq: 43}))
}

func TestEnvelopeShape(t *testing.T) {
	rssi := -67
	s := Sample{
		Timestamp: 1700000100,
		Seq:       7,
		Sensors: Readings{
			AirTemp:      23.5,
			AirHumidity:  61,
			SoilMoisture: 48,
			LightLevel:   80,
			RainRaw:      2100,
			UVIndex:      3.2,
		},
	}
	e := NewEnvelope("field-7", s, SysInfo{
		FwVersion:     "5.15.0",
		UptimeS:       3600,
		RSSI:          &rssi,
		PendingBytes:  128,
		PendingOffset: 64,
	})

	data, err := EncodeEnvelope(e)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))

	assert.Equal(t, "field-7", m["device_id"])
	assert.Equal(t, float64(1700000100), m["timestamp"])
	assert.Equal(t, "field-7-1700000100-7", m["telemetry_id"])

	sensors, ok := m["sensors"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(48), sensors["soil_moisture"])
	assert.Equal(t, float64(2100), sensors["rain_raw"])

	sys, ok := m["sys"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(-67), sys["rssi"])
	assert.Equal(t, float64(64), sys["pending_offset"])
}

func TestEnvelopeOmitsAbsentRSSI(t *testing.T) {
	e := NewEnvelope("d", Sample{}, SysInfo{})
	data, err := EncodeEnvelope(e)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	sys := m["sys"].(map[string]any)
	_, present := sys["rssi"]
	assert.False(t, present)
}

func TestSampleRoundTrip(t *testing.T) {
	s := Sample{
		Timestamp: 1700000200,
		Seq:       3,
		Sensors:   Readings{AirTemp: -1.25, SoilMoisture: 100, UVIndex: 0},
	}

	data, err := EncodeSample(s)
	require.NoError(t, err)

	got, err := DecodeSample(data)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestDecodeSampleRejectsGarbage(t *testing.T) {
	_, err := DecodeSample([]byte("not json"))
	assert.Error(t, err)
}
