package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"github.com/agrosmart/edge-go/pkg/telemetry"
)

// Default hardware paths. The sensor driver daemon refreshes the
// readings file; the valve solenoid hangs off a GPIO line exported by
// the init scripts.
const (
	readingsPath  = "/run/agroedge/readings.json"
	valveGPIOPath = "/sys/class/gpio/gpio26/value"
)

// Capacitive soil probe calibration defaults. Raw counts fall as
// moisture rises; the bounds are tunable through the KV store.
const (
	defaultSoilRawWet = 1200
	defaultSoilRawDry = 3000
)

// rawReadings is the shape the driver daemon writes. Soil arrives as a
// raw probe count and is calibrated to percent here.
type rawReadings struct {
	AirTemp     float64 `json:"air_temp"`
	AirHumidity float64 `json:"air_humidity"`
	SoilRaw     int     `json:"soil_raw"`
	LightLevel  int     `json:"light_level"`
	RainRaw     int     `json:"rain_raw"`
	UVIndex     float64 `json:"uv_index"`
}

// hardwareSensors reads the latest readings the driver daemon wrote.
type hardwareSensors struct {
	path   string
	rawWet int
	rawDry int
}

func newHardwareSensors(rawWet, rawDry int) *hardwareSensors {
	if rawWet <= 0 {
		rawWet = defaultSoilRawWet
	}
	if rawDry <= rawWet {
		rawDry = defaultSoilRawDry
	}
	return &hardwareSensors{path: readingsPath, rawWet: rawWet, rawDry: rawDry}
}

func (h *hardwareSensors) Read() (telemetry.Readings, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return telemetry.Readings{}, fmt.Errorf("read sensors: %w", err)
	}
	var raw rawReadings
	if err := json.Unmarshal(data, &raw); err != nil {
		return telemetry.Readings{}, fmt.Errorf("parse sensors: %w", err)
	}
	return telemetry.Readings{
		AirTemp:      raw.AirTemp,
		AirHumidity:  raw.AirHumidity,
		SoilMoisture: h.soilPercent(raw.SoilRaw),
		LightLevel:   raw.LightLevel,
		RainRaw:      raw.RainRaw,
		UVIndex:      raw.UVIndex,
	}, nil
}

// soilPercent maps a raw probe count onto 0-100 between the calibration
// bounds.
func (h *hardwareSensors) soilPercent(raw int) int {
	pct := (h.rawDry - raw) * 100 / (h.rawDry - h.rawWet)
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// simSensors produces a slow diurnal drift with noise, good enough to
// exercise the full pipeline against a test broker.
type simSensors struct {
	start time.Time
}

func newSimSensors() *simSensors {
	return &simSensors{start: time.Now()}
}

func (s *simSensors) Read() (telemetry.Readings, error) {
	phase := time.Since(s.start).Hours() / 24 * 2 * math.Pi
	return telemetry.Readings{
		AirTemp:      22 + 6*math.Sin(phase) + rand.Float64(),
		AirHumidity:  55 - 10*math.Sin(phase) + 2*rand.Float64(),
		SoilMoisture: 40 + int(5*math.Sin(phase/3)) + rand.IntN(3),
		LightLevel:   int(max(0, 800*math.Sin(phase)) + 20*rand.Float64()),
		RainRaw:      4095 - rand.IntN(50),
		UVIndex:      max(0, 5*math.Sin(phase)) + 0.2*rand.Float64(),
	}, nil
}

// simOutput only logs valve transitions.
type simOutput struct {
	log *slog.Logger
}

func (o simOutput) Set(open bool) {
	o.log.Info("valve (simulated)", "open", open)
}

// gpioOutput drives the valve solenoid through a sysfs GPIO line.
// Write failures are logged, not returned: the valve contract wants
// Set to never block or fail upward, and a dead GPIO line is caught by
// the operator through the log, not by the control loop.
type gpioOutput struct {
	path string
	log  *slog.Logger
}

func newValveOutput(logger *slog.Logger) *gpioOutput {
	return &gpioOutput{path: valveGPIOPath, log: logger}
}

func (o *gpioOutput) Set(open bool) {
	v := []byte("0")
	if open {
		v = []byte("1")
	}
	if err := os.WriteFile(o.path, v, 0o644); err != nil {
		o.log.Warn("valve gpio write failed", "open", open, "error", err)
	}
	o.log.Info("valve", "open", open)
}
