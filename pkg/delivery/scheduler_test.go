package delivery

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrosmart/edge-go/pkg/pending"
	"github.com/agrosmart/edge-go/pkg/persistence"
	"github.com/agrosmart/edge-go/pkg/telemetry"
	"github.com/agrosmart/edge-go/pkg/tick"
	"github.com/agrosmart/edge-go/pkg/transport"
)

// fakeTransport is a scriptable in-memory broker connection.
type fakeTransport struct {
	connected bool
	failNext  int
	published [][]byte
	topics    []string
}

func (f *fakeTransport) Connect() error    { f.connected = true; return nil }
func (f *fakeTransport) Disconnect()       { f.connected = false }
func (f *fakeTransport) IsConnected() bool { return f.connected }

func (f *fakeTransport) Publish(topic string, payload []byte) error {
	if !f.connected {
		return transport.ErrNotConnected
	}
	if f.failNext > 0 {
		f.failNext--
		return transport.ErrNotConnected
	}
	f.topics = append(f.topics, topic)
	f.published = append(f.published, payload)
	return nil
}

func (f *fakeTransport) Subscribe(string, transport.MessageHandler) error { return nil }
func (f *fakeTransport) RSSI() (int, bool)                                { return -61, true }

func newTestScheduler(t *testing.T, tr transport.Transport, clock tick.Clock) (*Scheduler, *pending.Queue, *persistence.Store, string) {
	t.Helper()
	dir := t.TempDir()

	queue, err := pending.Open(filepath.Join(dir, "pending.jsonl"), pending.Config{}, nil)
	require.NoError(t, err)

	store, err := persistence.OpenStore(filepath.Join(dir, "store.json"))
	require.NoError(t, err)

	hist := NewHistoryLog(filepath.Join(dir, "history.csv"))

	s, err := NewScheduler(Config{
		DeviceID:       "greenhouse-7",
		TelemetryTopic: "agrosmart/greenhouse-7/telemetry",
		FwVersion:      "5.15.0",
	}, queue, tr, store, hist, clock, nil, nil)
	require.NoError(t, err)
	return s, queue, store, dir
}

func sampleN(seq uint32) telemetry.Sample {
	return telemetry.Sample{
		Timestamp: 1700000000 + int64(seq),
		Seq:       seq,
		Sensors: telemetry.Readings{
			AirTemp:      23.5,
			AirHumidity:  61,
			SoilMoisture: 47,
			LightLevel:   820,
			RainRaw:      4095,
			UVIndex:      3.1,
		},
	}
}

func readHistory(t *testing.T, dir string) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "history.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	return lines[1:] // skip header
}

func TestHandleSampleDirectWhenConnected(t *testing.T) {
	tr := &fakeTransport{connected: true}
	clock := tick.NewManualClock(0)
	s, queue, _, dir := newTestScheduler(t, tr, clock)

	s.HandleSample(sampleN(1))

	require.Len(t, tr.published, 1)
	assert.Contains(t, string(tr.published[0]), `"telemetry_id":"greenhouse-7-1700000001-1"`)
	assert.Contains(t, string(tr.published[0]), `"rssi":-61`)

	size, err := queue.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(0), size, "direct delivery must not touch the queue")

	rows := readHistory(t, dir)
	require.Len(t, rows, 1)
	assert.Contains(t, rows[0], ",SENT,greenhouse-7-1700000001-1")
}

func TestHandleSampleQueuesWhenOffline(t *testing.T) {
	tr := &fakeTransport{}
	clock := tick.NewManualClock(0)
	s, queue, _, dir := newTestScheduler(t, tr, clock)

	for seq := uint32(1); seq <= 3; seq++ {
		s.HandleSample(sampleN(seq))
	}

	assert.Empty(t, tr.published)
	size, err := queue.Size()
	require.NoError(t, err)
	assert.Greater(t, size, int64(0))
	assert.Equal(t, int64(0), s.Cursor())

	rows := readHistory(t, dir)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Contains(t, row, ",PENDING,")
	}
}

func TestDrainAfterReconnect(t *testing.T) {
	tr := &fakeTransport{}
	clock := tick.NewManualClock(0)
	s, queue, store, dir := newTestScheduler(t, tr, clock)

	for seq := uint32(1); seq <= 3; seq++ {
		s.HandleSample(sampleN(seq))
	}

	tr.connected = true
	s.DrainOnce()

	require.Len(t, tr.published, 3)
	for i, seq := range []string{"1", "2", "3"} {
		assert.Contains(t, string(tr.published[i]), `"telemetry_seq":`+seq)
	}

	size, err := queue.Size()
	require.NoError(t, err)
	assert.Equal(t, size, s.Cursor(), "cursor must reach end of file")
	assert.Equal(t, s.Cursor(), store.Int64(persistence.KeyPendingOffset, -1),
		"cursor must be persisted on pass exit")

	rows := readHistory(t, dir)
	require.Len(t, rows, 6) // 3 PENDING + 3 SENT
	for _, row := range rows[3:] {
		assert.Contains(t, row, ",SENT,")
	}
}

func TestDrainStopsOnPublishFailure(t *testing.T) {
	tr := &fakeTransport{}
	clock := tick.NewManualClock(0)
	s, _, _, _ := newTestScheduler(t, tr, clock)

	for seq := uint32(1); seq <= 3; seq++ {
		s.HandleSample(sampleN(seq))
	}

	tr.connected = true
	tr.failNext = 1
	s.DrainOnce()

	// First publish failed: nothing delivered, cursor unmoved.
	assert.Empty(t, tr.published)
	assert.Equal(t, int64(0), s.Cursor())

	// Next pass retries from the same record, in order.
	s.DrainOnce()
	require.Len(t, tr.published, 3)
	assert.Contains(t, string(tr.published[0]), `"telemetry_seq":1`)
}

func TestDrainSkipsCorruptRecord(t *testing.T) {
	tr := &fakeTransport{}
	clock := tick.NewManualClock(0)
	s, queue, _, _ := newTestScheduler(t, tr, clock)

	s.HandleSample(sampleN(1))
	require.NoError(t, queue.Append([]byte("{not json")))
	s.HandleSample(sampleN(2))

	tr.connected = true
	s.DrainOnce()

	require.Len(t, tr.published, 2)
	assert.Contains(t, string(tr.published[0]), `"telemetry_seq":1`)
	assert.Contains(t, string(tr.published[1]), `"telemetry_seq":2`)

	size, err := queue.Size()
	require.NoError(t, err)
	assert.Equal(t, size, s.Cursor())
}

func TestDrainItemBound(t *testing.T) {
	tr := &fakeTransport{}
	clock := tick.NewManualClock(0)
	dir := t.TempDir()

	queue, err := pending.Open(filepath.Join(dir, "pending.jsonl"), pending.Config{}, nil)
	require.NoError(t, err)
	store, err := persistence.OpenStore(filepath.Join(dir, "store.json"))
	require.NoError(t, err)

	s, err := NewScheduler(Config{
		DeviceID:       "greenhouse-7",
		TelemetryTopic: "t",
		MaxBatchItems:  2,
	}, queue, tr, store, NewHistoryLog(filepath.Join(dir, "history.csv")), clock, nil, nil)
	require.NoError(t, err)

	for seq := uint32(1); seq <= 5; seq++ {
		s.HandleSample(sampleN(seq))
	}

	tr.connected = true
	s.DrainOnce()
	assert.Len(t, tr.published, 2)

	s.DrainOnce()
	assert.Len(t, tr.published, 4)

	s.DrainOnce()
	assert.Len(t, tr.published, 5)
}

func TestCompactionResetsCursor(t *testing.T) {
	tr := &fakeTransport{}
	clock := tick.NewManualClock(0)
	dir := t.TempDir()

	queue, err := pending.Open(filepath.Join(dir, "pending.jsonl"), pending.Config{}, nil)
	require.NoError(t, err)
	store, err := persistence.OpenStore(filepath.Join(dir, "store.json"))
	require.NoError(t, err)

	s, err := NewScheduler(Config{
		DeviceID:         "greenhouse-7",
		TelemetryTopic:   "t",
		CompactThreshold: 64,
	}, queue, tr, store, NewHistoryLog(filepath.Join(dir, "history.csv")), clock, nil, nil)
	require.NoError(t, err)

	for seq := uint32(1); seq <= 3; seq++ {
		s.HandleSample(sampleN(seq))
	}

	tr.connected = true
	s.DrainOnce()

	assert.Equal(t, int64(0), s.Cursor(), "compaction must reset the cursor")
	assert.Equal(t, int64(0), store.Int64(persistence.KeyPendingOffset, -1))

	size, err := queue.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(0), size, "fully drained queue compacts to empty")
}

func TestCursorBeyondFileSizeResets(t *testing.T) {
	tr := &fakeTransport{}
	clock := tick.NewManualClock(0)
	dir := t.TempDir()

	store, err := persistence.OpenStore(filepath.Join(dir, "store.json"))
	require.NoError(t, err)
	require.NoError(t, store.SetInt64(persistence.KeyPendingOffset, 9999))

	queue, err := pending.Open(filepath.Join(dir, "pending.jsonl"), pending.Config{}, nil)
	require.NoError(t, err)

	s, err := NewScheduler(Config{
		DeviceID:       "greenhouse-7",
		TelemetryTopic: "t",
	}, queue, tr, store, NewHistoryLog(filepath.Join(dir, "history.csv")), clock, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(0), s.Cursor())
	assert.Equal(t, int64(0), store.Int64(persistence.KeyPendingOffset, -1))
}

func TestQueueFullDropsNewSample(t *testing.T) {
	tr := &fakeTransport{}
	clock := tick.NewManualClock(0)
	dir := t.TempDir()

	queue, err := pending.Open(filepath.Join(dir, "pending.jsonl"), pending.Config{MaxFileBytes: 256}, nil)
	require.NoError(t, err)
	store, err := persistence.OpenStore(filepath.Join(dir, "store.json"))
	require.NoError(t, err)

	s, err := NewScheduler(Config{
		DeviceID:       "greenhouse-7",
		TelemetryTopic: "t",
	}, queue, tr, store, NewHistoryLog(filepath.Join(dir, "history.csv")), clock, nil, nil)
	require.NoError(t, err)

	var dropped bool
	for seq := uint32(1); seq <= 10; seq++ {
		before, err := queue.Size()
		require.NoError(t, err)
		s.HandleSample(sampleN(seq))
		after, err := queue.Size()
		require.NoError(t, err)
		if after == before {
			dropped = true
		}
	}
	assert.True(t, dropped, "samples past the size cap must be dropped")

	rows := readHistory(t, dir)
	assert.Contains(t, rows[len(rows)-1], ",DROP,")
}

func TestSentRowsRecordTelemetryID(t *testing.T) {
	tr := &fakeTransport{connected: true}
	clock := tick.NewManualClock(0)
	s, _, _, dir := newTestScheduler(t, tr, clock)

	s.HandleSample(sampleN(42))

	rows := readHistory(t, dir)
	require.Len(t, rows, 1)
	assert.True(t, strings.HasSuffix(rows[0], "greenhouse-7-1700000042-42"))
}
