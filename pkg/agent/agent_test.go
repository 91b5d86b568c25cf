package agent

import (
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrosmart/edge-go/pkg/command"
	"github.com/agrosmart/edge-go/pkg/log"
	"github.com/agrosmart/edge-go/pkg/metrics"
	"github.com/agrosmart/edge-go/pkg/state"
	"github.com/agrosmart/edge-go/pkg/telemetry"
	"github.com/agrosmart/edge-go/pkg/tick"
	"github.com/agrosmart/edge-go/pkg/transport"
	"github.com/agrosmart/edge-go/pkg/valve"
)

type fakeTransport struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	connects   int
	published  map[string][][]byte
	subscribed map[string]transport.MessageHandler
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		published:  make(map[string][][]byte),
		subscribed: make(map[string]transport.MessageHandler),
	}
}

func (f *fakeTransport) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return transport.ErrNotConnected
	}
	f.published[topic] = append(f.published[topic], payload)
	return nil
}

func (f *fakeTransport) Subscribe(topic string, h transport.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed[topic] = h
	return nil
}

func (f *fakeTransport) RSSI() (int, bool) { return 0, false }

func (f *fakeTransport) acks(t *testing.T, topic string) []command.Ack {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []command.Ack
	for _, payload := range f.published[topic] {
		var a command.Ack
		require.NoError(t, json.Unmarshal(payload, &a))
		out = append(out, a)
	}
	return out
}

type fakeOutput struct {
	mu   sync.Mutex
	open bool
}

func (o *fakeOutput) Set(open bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.open = open
}

func (o *fakeOutput) isOpen() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.open
}

type fakeSensors struct{}

func (fakeSensors) Read() (telemetry.Readings, error) {
	return telemetry.Readings{AirTemp: 22, SoilMoisture: 40}, nil
}

type fakeLink struct{ up bool }

func (l *fakeLink) IsUp() bool     { return l.up }
func (l *fakeLink) Connect() error { l.up = true; return nil }

type fakeSync struct {
	calls int
	err   error
}

func (s *fakeSync) Sync() error {
	s.calls++
	return s.err
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		DeviceID:  "greenhouse-7",
		FwVersion: "5.15.0",
		DataDir:   t.TempDir(),
		Broker:    BrokerConfig{URL: "tcp://localhost:1883"},
	}
}

func newTestAgent(t *testing.T, tr transport.Transport, clock tick.Clock) (*Agent, *fakeOutput) {
	t.Helper()
	out := &fakeOutput{}
	a, err := New(testConfig(t), Deps{
		Transport:   tr,
		Link:        &fakeLink{up: true},
		Sensors:     fakeSensors{},
		TimeSync:    &fakeSync{},
		ValveOutput: out,
		Clock:       clock,
	})
	require.NoError(t, err)
	return a, out
}

func commandPayload(t *testing.T, action string, duration int, id string) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"action":     action,
		"duration":   duration,
		"command_id": id,
	})
	require.NoError(t, err)
	return data
}

func TestBootResetsValve(t *testing.T) {
	tr := newFakeTransport()
	out := &fakeOutput{}
	out.Set(true) // pretend the pin was left high

	_, err := New(testConfig(t), Deps{
		Transport:   tr,
		ValveOutput: out,
		Clock:       tick.NewManualClock(0),
	})
	require.NoError(t, err)
	assert.False(t, out.isOpen(), "boot must drive the valve closed")
}

func TestOpenCommandAckChain(t *testing.T) {
	tr := newFakeTransport()
	tr.connected = true
	clock := tick.NewManualClock(0)
	a, out := newTestAgent(t, tr, clock)

	a.handleMessage("", commandPayload(t, "on", 30, "cmd-1"))
	a.drainCommands()

	assert.True(t, out.isOpen())

	acks := tr.acks(t, a.cfg.Topics.Ack)
	require.Len(t, acks, 2)
	assert.Equal(t, command.StatusReceived, acks[0].Status)
	assert.Equal(t, "cmd-1", acks[0].CommandID)
	assert.Equal(t, command.StatusStarted, acks[1].Status)
	assert.Equal(t, uint32(30), acks[1].DurationS)
}

// A duration wider than uint32 opens at the hard cap. It must never
// fold back to zero and turn the open into a stop.
func TestHugeDurationOpensAtCap(t *testing.T) {
	tr := newFakeTransport()
	tr.connected = true
	clock := tick.NewManualClock(0)
	a, out := newTestAgent(t, tr, clock)

	a.handleMessage("", []byte(`{"action":"on","duration":4294967296,"command_id":"cmd-big"}`))
	a.drainCommands()

	assert.True(t, out.isOpen())

	acks := tr.acks(t, a.cfg.Topics.Ack)
	require.Len(t, acks, 2)
	assert.Equal(t, command.StatusStarted, acks[1].Status)
	assert.Equal(t, uint32(valve.MaxOpenSeconds), acks[1].DurationS)
}

// gateLogger blocks the first open event until released, so a test can
// hold the valve lock past its acquisition window.
type gateLogger struct {
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func (g *gateLogger) Log(ev log.Event) {
	if ev.Category == log.CategoryValve && ev.Valve != nil && ev.Valve.Open {
		g.once.Do(func() {
			close(g.entered)
			<-g.gate
		})
	}
}

func TestFailsafeCloseRecordedInMetrics(t *testing.T) {
	tr := newFakeTransport()
	tr.connected = true
	m := metrics.New()
	blocker := &gateLogger{entered: make(chan struct{}), gate: make(chan struct{})}
	a, err := New(testConfig(t), Deps{
		Transport:   tr,
		Link:        &fakeLink{up: true},
		Sensors:     fakeSensors{},
		TimeSync:    &fakeSync{},
		ValveOutput: &fakeOutput{},
		Clock:       tick.NewManualClock(0),
		Logger:      blocker,
		Metrics:     m,
	})
	require.NoError(t, err)

	// First open parks inside the logger while holding the valve lock.
	done := make(chan struct{})
	go func() {
		_, _ = a.valve.Open(60, "c-1")
		close(done)
	}()
	<-blocker.entered

	_, err = a.valve.Open(30, "c-2")
	require.ErrorIs(t, err, valve.ErrLockTimeout)
	close(blocker.gate)
	<-done

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "agroedge_failsafe_closes_total 1")
}

func TestTimeoutEmitsDoneAckForOriginalCommand(t *testing.T) {
	tr := newFakeTransport()
	tr.connected = true
	clock := tick.NewManualClock(0)
	a, out := newTestAgent(t, tr, clock)

	a.handleMessage("", commandPayload(t, "on", 20, "cmd-1"))
	a.drainCommands()
	require.True(t, out.isOpen())

	clock.Advance(21_000)
	a.valve.Supervise()

	assert.False(t, out.isOpen())

	acks := tr.acks(t, a.cfg.Topics.Ack)
	require.Len(t, acks, 3)
	final := acks[2]
	assert.Equal(t, command.StatusDone, final.Status)
	assert.Equal(t, command.ReasonTimeout, final.Reason)
	assert.Equal(t, "cmd-1", final.CommandID)
}

func TestStopCommandEndsSession(t *testing.T) {
	tr := newFakeTransport()
	tr.connected = true
	clock := tick.NewManualClock(0)
	a, out := newTestAgent(t, tr, clock)

	a.handleMessage("", commandPayload(t, "on", 120, "cmd-open"))
	a.drainCommands()
	require.True(t, out.isOpen())

	a.handleMessage("", commandPayload(t, "off", 0, "cmd-stop"))
	a.drainCommands()
	assert.False(t, out.isOpen())

	acks := tr.acks(t, a.cfg.Topics.Ack)
	// open: received, started. stop: received, session-end for
	// cmd-open, done for cmd-stop.
	require.Len(t, acks, 5)
	assert.Equal(t, "cmd-open", acks[3].CommandID)
	assert.Equal(t, command.StatusDone, acks[3].Status)
	assert.Equal(t, command.ReasonStopped, acks[3].Reason)
	assert.Equal(t, "cmd-stop", acks[4].CommandID)
	assert.Equal(t, command.StatusDone, acks[4].Status)
}

func TestOnWithZeroDurationIsStop(t *testing.T) {
	tr := newFakeTransport()
	tr.connected = true
	clock := tick.NewManualClock(0)
	a, out := newTestAgent(t, tr, clock)

	a.handleMessage("", commandPayload(t, "on", 300, "cmd-open"))
	a.drainCommands()
	require.True(t, out.isOpen())

	a.handleMessage("", commandPayload(t, "on", 0, "cmd-zero"))
	a.drainCommands()
	assert.False(t, out.isOpen())
}

func TestCommandForOtherDeviceDroppedSilently(t *testing.T) {
	tr := newFakeTransport()
	tr.connected = true
	clock := tick.NewManualClock(0)
	a, out := newTestAgent(t, tr, clock)

	payload, err := json.Marshal(map[string]any{
		"device_id": "greenhouse-9",
		"action":    "on",
		"duration":  60,
	})
	require.NoError(t, err)

	a.handleMessage("", payload)
	a.drainCommands()

	assert.False(t, out.isOpen())
	assert.Empty(t, tr.acks(t, a.cfg.Topics.Ack))
}

func TestMalformedCommandGetsErrorAck(t *testing.T) {
	tr := newFakeTransport()
	tr.connected = true
	clock := tick.NewManualClock(0)
	a, _ := newTestAgent(t, tr, clock)

	a.handleMessage("", []byte("{not json"))
	a.drainCommands()

	acks := tr.acks(t, a.cfg.Topics.Ack)
	require.Len(t, acks, 1)
	assert.Equal(t, command.StatusError, acks[0].Status)
	assert.NotEmpty(t, acks[0].CommandID, "synthesized id anchors the chain")
}

func TestUnknownActionGetsErrorAck(t *testing.T) {
	tr := newFakeTransport()
	tr.connected = true
	clock := tick.NewManualClock(0)
	a, out := newTestAgent(t, tr, clock)

	a.handleMessage("", commandPayload(t, "explode", 0, "cmd-1"))
	a.drainCommands()

	assert.False(t, out.isOpen())
	acks := tr.acks(t, a.cfg.Topics.Ack)
	require.Len(t, acks, 1)
	assert.Equal(t, command.StatusError, acks[0].Status)
	assert.Equal(t, "cmd-1", acks[0].CommandID)
}

func TestBrokerBackoffSpacesAttempts(t *testing.T) {
	tr := newFakeTransport()
	tr.connectErr = transport.ErrNotConnected
	clock := tick.NewManualClock(0)
	a, _ := newTestAgent(t, tr, clock)

	a.tendBroker()
	assert.Equal(t, 1, tr.connects)

	// Within the backoff window: no second attempt.
	a.tendBroker()
	a.tendBroker()
	assert.Equal(t, 1, tr.connects)

	// Past the maximum first delay (1000ms * 125% jitter ceiling).
	clock.Advance(1300)
	a.tendBroker()
	assert.Equal(t, 2, tr.connects)
}

func TestBrokerConnectSubscribesToCommands(t *testing.T) {
	tr := newFakeTransport()
	clock := tick.NewManualClock(0)
	a, _ := newTestAgent(t, tr, clock)

	a.tendBroker()

	require.True(t, tr.IsConnected())
	_, ok := tr.subscribed[a.cfg.Topics.Command]
	assert.True(t, ok, "command topic must be subscribed after connect")
}

func TestTimeSyncRetriesOnWindow(t *testing.T) {
	tr := newFakeTransport()
	clock := tick.NewManualClock(0)
	out := &fakeOutput{}
	ts := &fakeSync{err: transport.ErrNotConnected}

	a, err := New(testConfig(t), Deps{
		Transport:   tr,
		Link:        &fakeLink{up: true},
		TimeSync:    ts,
		ValveOutput: out,
		Clock:       clock,
	})
	require.NoError(t, err)

	a.tendTimeSync()
	assert.Equal(t, 1, ts.calls)

	// Within the window: no retry.
	a.tendTimeSync()
	assert.Equal(t, 1, ts.calls)

	clock.Advance(TimeSyncRetryMs)
	ts.err = nil
	a.tendTimeSync()
	assert.Equal(t, 2, ts.calls)

	status, ok := a.statusCell.Get(state.FlagTimeout)
	require.True(t, ok)
	assert.True(t, status.TimeSynced)

	// Synced once: never called again.
	clock.Advance(10 * TimeSyncRetryMs)
	a.tendTimeSync()
	assert.Equal(t, 2, ts.calls)
}

func TestSampleRoutingThroughScheduler(t *testing.T) {
	tr := newFakeTransport()
	tr.connected = true
	clock := tick.NewManualClock(0)
	a, _ := newTestAgent(t, tr, clock)

	a.samples <- telemetry.Sample{Timestamp: 1700000000, Seq: 1}
	a.drainSamples()

	require.Len(t, tr.published[a.cfg.Topics.Telemetry], 1)
	assert.Contains(t, string(tr.published[a.cfg.Topics.Telemetry][0]),
		`"telemetry_id":"greenhouse-7-1700000000-1"`)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{DeviceID: "dev-1", Broker: BrokerConfig{URL: "tcp://b:1883"}}
	cfg.ApplyDefaults()

	assert.Equal(t, "agrosmart/dev-1/telemetry", cfg.Topics.Telemetry)
	assert.Equal(t, "agrosmart/dev-1/command", cfg.Topics.Command)
	assert.Equal(t, "agrosmart/dev-1/ack", cfg.Topics.Ack)
	assert.Equal(t, "dev-1", cfg.Broker.ClientID)
	assert.Equal(t, uint32(DefaultTelemetryIntervalS), cfg.TelemetryIntervalS)
}

func TestConfigValidation(t *testing.T) {
	cfg := Config{Broker: BrokerConfig{URL: "tcp://b:1883"}}
	assert.Error(t, cfg.Validate())

	cfg = Config{DeviceID: "dev-1"}
	assert.Error(t, cfg.Validate())
}
