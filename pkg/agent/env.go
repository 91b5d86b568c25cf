package agent

import (
	"github.com/agrosmart/edge-go/pkg/state"
	"github.com/agrosmart/edge-go/pkg/telemetry"
)

// Sensors is the acquisition loop's view of the hardware. Read is
// called once per acquisition interval and must return within it.
type Sensors interface {
	// Read samples every sensor once.
	Read() (telemetry.Readings, error)
}

// Frame is one presentation update.
type Frame struct {
	// Status is the connectivity/health snapshot.
	Status state.Status

	// Sample is the latest sample, valid only when HasSample is true.
	Sample    telemetry.Sample
	HasSample bool
}

// Display renders frames for a local operator. Implementations must
// not block; a slow display starves nothing, it just shows stale data.
type Display interface {
	// Render shows one frame.
	Render(Frame)
}

// Link reports and establishes the underlying network link. On hosts
// where the operating system owns the link this is a constant "up";
// constrained builds plug in the real radio here.
type Link interface {
	// IsUp reports whether the link is currently usable.
	IsUp() bool

	// Connect attempts to bring the link up. Blocking, bounded by the
	// implementation's own timeout.
	Connect() error
}

// TimeSync establishes wall-clock time. Sync is retried on a fixed
// window until it first succeeds; samples produced before that carry
// uptime-relative timestamps and are flagged in the status cell.
type TimeSync interface {
	// Sync attempts one synchronization.
	Sync() error
}

// SystemLink is the Link for hosts where the OS manages networking.
type SystemLink struct{}

func (SystemLink) IsUp() bool     { return true }
func (SystemLink) Connect() error { return nil }

// SystemTimeSync is the TimeSync for hosts where the OS runs NTP.
type SystemTimeSync struct{}

func (SystemTimeSync) Sync() error { return nil }

// NoopDisplay discards frames. Headless deployments use it.
type NoopDisplay struct{}

func (NoopDisplay) Render(Frame) {}
