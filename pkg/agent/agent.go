package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agrosmart/edge-go/pkg/backoff"
	"github.com/agrosmart/edge-go/pkg/delivery"
	"github.com/agrosmart/edge-go/pkg/log"
	"github.com/agrosmart/edge-go/pkg/metrics"
	"github.com/agrosmart/edge-go/pkg/pending"
	"github.com/agrosmart/edge-go/pkg/persistence"
	"github.com/agrosmart/edge-go/pkg/state"
	"github.com/agrosmart/edge-go/pkg/telemetry"
	"github.com/agrosmart/edge-go/pkg/tick"
	"github.com/agrosmart/edge-go/pkg/transport"
	"github.com/agrosmart/edge-go/pkg/valve"
)

// Loop cadences and channel bounds.
const (
	// NetTick is the network/storage loop cadence. Every pass runs
	// reconnection, sample routing, queue draining, and valve
	// supervision.
	NetTick = 250 * time.Millisecond

	// PresentEvery is the presentation loop cadence.
	PresentEvery = 1 * time.Second

	// SampleChanCap bounds acquisition-to-network handoff. A full
	// channel drops the newest sample.
	SampleChanCap = 10

	// CommandChanCap bounds transport-to-network command handoff.
	CommandChanCap = 10

	// TimeSyncRetryMs is the retry window until the first successful
	// time synchronization.
	TimeSyncRetryMs = 60000
)

// Reconnection backoff policies, independent per subsystem.
var (
	linkBackoff   = backoff.Policy{BaseMs: 1000, MaxMs: 30000}
	brokerBackoff = backoff.Policy{BaseMs: 1000, MaxMs: 30000}
)

// Deps are the environment hooks the binary wires in.
type Deps struct {
	Transport transport.Transport
	Link      Link
	Sensors   Sensors
	Display   Display
	TimeSync  TimeSync

	// ValveOutput drives the physical valve pin.
	ValveOutput valve.Output

	// Clock defaults to the process monotonic clock.
	Clock tick.Clock

	// Logger defaults to NoopLogger. It is stamped with the boot id
	// and device id before use.
	Logger log.Logger

	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// Agent owns the controller's loops and state.
type Agent struct {
	cfg  Config
	deps Deps

	bootID string
	logger log.Logger

	store *persistence.Store
	queue *pending.Queue
	sched *delivery.Scheduler
	valve *valve.Controller

	statusCell *state.StatusCell
	sampleCell *state.SampleCell

	samples  chan telemetry.Sample
	commands chan inbound

	// Network loop owned state. Never touched by the other loops.
	linkState   backoff.State
	brokerState backoff.State
	subscribed  bool
	timeSynced  bool
	nextSyncMs  uint32
	syncArmed   bool
}

// New wires an agent from its configuration and environment. The
// durable stores under cfg.DataDir are opened here; the valve is reset
// to closed as a side effect of construction.
func New(cfg Config, deps Deps) (*Agent, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Clock == nil {
		deps.Clock = tick.NewSystemClock()
	}
	if deps.Logger == nil {
		deps.Logger = log.NoopLogger{}
	}
	if deps.Link == nil {
		deps.Link = SystemLink{}
	}
	if deps.TimeSync == nil {
		deps.TimeSync = SystemTimeSync{}
	}
	if deps.Display == nil {
		deps.Display = NoopDisplay{}
	}

	bootID := uuid.NewString()
	logger := log.NewStampLogger(deps.Logger, bootID, cfg.DeviceID)

	store, err := persistence.OpenStore(cfg.StorePath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	queue, err := pending.Open(cfg.PendingPath(), pending.Config{}, logger)
	if err != nil {
		return nil, fmt.Errorf("open pending queue: %w", err)
	}

	sched, err := delivery.NewScheduler(delivery.Config{
		DeviceID:       cfg.DeviceID,
		TelemetryTopic: cfg.Topics.Telemetry,
		FwVersion:      cfg.FwVersion,
	}, queue, deps.Transport, store, delivery.NewHistoryLog(cfg.HistoryPath()), deps.Clock, logger, deps.Metrics)
	if err != nil {
		return nil, fmt.Errorf("delivery scheduler: %w", err)
	}

	a := &Agent{
		cfg:        cfg,
		deps:       deps,
		bootID:     bootID,
		logger:     logger,
		store:      store,
		queue:      queue,
		sched:      sched,
		valve:      valve.NewController(deps.ValveOutput, deps.Clock, logger),
		statusCell: state.NewStatusCell(),
		sampleCell: state.NewSampleCell(),
		samples:    make(chan telemetry.Sample, SampleChanCap),
		commands:   make(chan inbound, CommandChanCap),
	}
	a.valve.OnSessionEnd(a.sessionEnded)
	a.valve.OnFailsafe(deps.Metrics.FailsafeClose)

	a.statusCell.Update(state.FlagTimeout, func(s *state.Status) {
		s.StorageHealthy = true
	})
	return a, nil
}

// BootID identifies this process run in the event log.
func (a *Agent) BootID() string {
	return a.bootID
}

// Run starts the three loops and blocks until ctx is cancelled. On
// shutdown the valve is closed and the transport disconnected.
func (a *Agent) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); a.acquisitionLoop(ctx) }()
	go func() { defer wg.Done(); a.networkLoop(ctx) }()
	go func() { defer wg.Done(); a.presentationLoop(ctx) }()
	wg.Wait()

	// Shutdown is a stop like any other; the owning command, if one is
	// running, gets its terminal acknowledgement on a best-effort basis.
	_ = a.valve.Close("stopped")
	if a.deps.Transport.IsConnected() {
		a.deps.Transport.Disconnect()
	}
	return nil
}

// TelemetryInterval is the effective acquisition interval: the durable
// store's value when one was set, otherwise the config file's.
func (a *Agent) TelemetryInterval() time.Duration {
	s := a.store.Uint32(persistence.KeyTelemetryIntervalS, a.cfg.TelemetryIntervalS)
	if s == 0 {
		s = DefaultTelemetryIntervalS
	}
	return time.Duration(s) * time.Second
}

// acquisitionLoop samples the sensors on the configured interval.
func (a *Agent) acquisitionLoop(ctx context.Context) {
	seq := a.store.Uint32(persistence.KeyTelemetrySeq, 0)

	ticker := time.NewTicker(a.TelemetryInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		readings, err := a.deps.Sensors.Read()
		if err != nil {
			a.logger.Log(log.Event{
				Category: log.CategoryTelemetry,
				Severity: log.SeverityWarning,
				Error:    &log.ErrorEventData{Message: err.Error(), Op: "sensor-read"},
			})
			continue
		}

		seq++
		if err := a.store.SetUint32(persistence.KeyTelemetrySeq, seq); err != nil {
			a.logger.Log(log.Event{
				Category: log.CategoryStorage,
				Severity: log.SeverityWarning,
				Error:    &log.ErrorEventData{Message: err.Error(), Op: "persist-seq"},
			})
		}

		sample := telemetry.Sample{
			Timestamp: time.Now().Unix(),
			Seq:       seq,
			Sensors:   readings,
		}
		a.sampleCell.Set(sample, state.SampleWriteTimeout)

		select {
		case a.samples <- sample:
		default:
			// Downstream is stalled. Acquisition never blocks; the
			// newest sample is the one sacrificed.
			a.deps.Metrics.SampleDropped()
			a.logger.Log(log.Event{
				Category: log.CategoryTelemetry,
				Severity: log.SeverityWarning,
				Delivery: &log.DeliveryEvent{
					TelemetryID: telemetry.ID(a.cfg.DeviceID, sample),
					Outcome:     delivery.StatusDrop,
				},
			})
		}
	}
}

// networkLoop is the side-effect loop: connectivity, sample routing,
// queue draining, command dispatch, and valve supervision.
func (a *Agent) networkLoop(ctx context.Context) {
	ticker := time.NewTicker(NetTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		a.tendLink()
		a.tendBroker()
		a.tendTimeSync()

		a.drainCommands()
		a.drainSamples()
		a.sched.DrainOnce()

		a.valve.Supervise()
		a.publishStatus()
	}
}

// tendLink brings the network link up under its backoff policy.
func (a *Agent) tendLink() {
	if a.deps.Link.IsUp() {
		a.linkState.OnSuccess()
		a.statusCell.Update(state.FlagTimeout, func(s *state.Status) { s.LinkConnected = true })
		return
	}

	a.statusCell.Update(state.FlagTimeout, func(s *state.Status) { s.LinkConnected = false })
	now := a.deps.Clock.NowMs()
	if !a.linkState.CanTry(now) {
		return
	}

	a.deps.Metrics.ReconnectAttempt("link")
	if err := a.deps.Link.Connect(); err != nil {
		a.linkState.OnFailure(now, linkBackoff)
		a.logger.Log(log.Event{
			Category: log.CategoryNetwork,
			Severity: log.SeverityWarning,
			Network:  &log.NetworkEvent{Subsystem: "link", Connected: false, Attempt: a.linkState.Attempt},
			Error:    &log.ErrorEventData{Message: err.Error(), Op: "link-connect"},
		})
		return
	}
	a.linkState.OnSuccess()
}

// tendBroker manages the broker connection under its own backoff.
func (a *Agent) tendBroker() {
	if !a.deps.Link.IsUp() {
		return
	}
	if a.deps.Transport.IsConnected() {
		a.brokerState.OnSuccess()
		if !a.subscribed {
			a.subscribe()
		}
		return
	}

	// Connection dropped: the next successful connect resubscribes.
	a.subscribed = false

	now := a.deps.Clock.NowMs()
	if !a.brokerState.CanTry(now) {
		return
	}

	a.deps.Metrics.ReconnectAttempt("broker")
	if err := a.deps.Transport.Connect(); err != nil {
		a.brokerState.OnFailure(now, brokerBackoff)
		a.logger.Log(log.Event{
			Category: log.CategoryNetwork,
			Severity: log.SeverityWarning,
			Network:  &log.NetworkEvent{Subsystem: "broker", Connected: false, Attempt: a.brokerState.Attempt},
			Error:    &log.ErrorEventData{Message: err.Error(), Op: "broker-connect"},
		})
		return
	}

	a.brokerState.OnSuccess()
	a.logger.Log(log.Event{
		Category: log.CategoryNetwork,
		Network:  &log.NetworkEvent{Subsystem: "broker", Connected: true},
	})
	a.subscribe()
}

// subscribe registers the command topic handler. Retried on the next
// pass when it fails.
func (a *Agent) subscribe() {
	if err := a.deps.Transport.Subscribe(a.cfg.Topics.Command, a.handleMessage); err != nil {
		a.logger.Log(log.Event{
			Category: log.CategoryNetwork,
			Severity: log.SeverityWarning,
			Error:    &log.ErrorEventData{Message: err.Error(), Op: "subscribe"},
		})
		return
	}
	a.subscribed = true
}

// tendTimeSync retries time synchronization on a fixed window until the
// first success.
func (a *Agent) tendTimeSync() {
	if a.timeSynced || !a.deps.Link.IsUp() {
		return
	}

	now := a.deps.Clock.NowMs()
	if a.syncArmed && !tick.Reached(now, a.nextSyncMs) {
		return
	}

	if err := a.deps.TimeSync.Sync(); err != nil {
		a.syncArmed = true
		a.nextSyncMs = now + TimeSyncRetryMs
		a.logger.Log(log.Event{
			Category: log.CategoryNetwork,
			Severity: log.SeverityWarning,
			Error:    &log.ErrorEventData{Message: err.Error(), Op: "time-sync"},
		})
		return
	}

	a.timeSynced = true
	a.statusCell.Update(state.FlagTimeout, func(s *state.Status) { s.TimeSynced = true })
}

// drainSamples routes everything the acquisition loop produced since
// the last pass.
func (a *Agent) drainSamples() {
	for {
		select {
		case sample := <-a.samples:
			a.sched.HandleSample(sample)
		default:
			return
		}
	}
}

// publishStatus refreshes the shared status cell for the presentation
// loop.
func (a *Agent) publishStatus() {
	open, _, _, ok := a.valve.State(state.FlagTimeout)
	broker := a.deps.Transport.IsConnected()
	storage := a.sched.StorageHealthy()

	a.statusCell.Update(state.FlagTimeout, func(s *state.Status) {
		s.BrokerConnected = broker
		s.StorageHealthy = storage
		if ok {
			s.ValveOpen = open
		}
	})
	if ok {
		a.deps.Metrics.SetValveOpen(open)
	}
}

// presentationLoop renders status frames. Strictly read-only; a missed
// lock means a skipped frame, never a wait.
func (a *Agent) presentationLoop(ctx context.Context) {
	ticker := time.NewTicker(PresentEvery)
	defer ticker.Stop()

	var last Frame
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, ok := a.statusCell.Get(state.FlagTimeout)
		if !ok {
			// Contended: render the previous frame's data.
			status = last.Status
		}
		frame := Frame{Status: status}
		if sample, ok := a.sampleCell.Get(state.SampleReadTimeout); ok {
			frame.Sample = sample
			frame.HasSample = true
		} else {
			frame.Sample = last.Sample
			frame.HasSample = last.HasSample
		}

		a.deps.Display.Render(frame)
		last = frame
	}
}
