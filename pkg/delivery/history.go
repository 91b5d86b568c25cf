package delivery

import (
	"fmt"
	"os"

	"github.com/agrosmart/edge-go/pkg/telemetry"
)

// Delivery statuses recorded in the history log.
const (
	StatusSent    = "SENT"
	StatusPending = "PENDING"
	StatusDrop    = "DROP"
)

// historyHeader is written once when the log file is created.
const historyHeader = "timestamp,air_temp,air_humidity,soil_moisture,light_level,rain_raw,uv_index,status,telemetry_id\n"

// HistoryLog is the append-only delimited-text record of every
// telemetry attempt. One row per attempt; the file is opened and
// closed per write so no handle survives a power loss.
type HistoryLog struct {
	path string
}

// NewHistoryLog creates a history log at path. The file is created on
// first append.
func NewHistoryLog(path string) *HistoryLog {
	return &HistoryLog{path: path}
}

// Append records one attempt.
func (h *HistoryLog) Append(s telemetry.Sample, status, telemetryID string) error {
	_, statErr := os.Stat(h.path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	if fresh {
		if _, err := f.WriteString(historyHeader); err != nil {
			f.Close()
			return err
		}
	}

	row := fmt.Sprintf("%d,%.1f,%.0f,%d,%d,%d,%.2f,%s,%s\n",
		s.Timestamp,
		s.Sensors.AirTemp, s.Sensors.AirHumidity,
		s.Sensors.SoilMoisture, s.Sensors.LightLevel,
		s.Sensors.RainRaw, s.Sensors.UVIndex,
		status, telemetryID)
	if _, err := f.WriteString(row); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
