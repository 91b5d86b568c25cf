package delivery

import (
	"errors"
	"runtime"
	"time"

	"github.com/agrosmart/edge-go/pkg/log"
	"github.com/agrosmart/edge-go/pkg/metrics"
	"github.com/agrosmart/edge-go/pkg/pending"
	"github.com/agrosmart/edge-go/pkg/persistence"
	"github.com/agrosmart/edge-go/pkg/telemetry"
	"github.com/agrosmart/edge-go/pkg/tick"
	"github.com/agrosmart/edge-go/pkg/transport"
)

// Scheduler defaults.
const (
	// DefaultMaxBatchItems bounds records per drain pass.
	DefaultMaxBatchItems = 16

	// DefaultMaxBatchMs bounds wall time per drain pass.
	DefaultMaxBatchMs = 2000

	// DefaultCompactThreshold is the delivered-prefix size that
	// triggers compaction.
	DefaultCompactThreshold = 8 * 1024

	// DefaultCursorPersistEvery batches cursor writes to the durable
	// store; a restart re-sends at most this many records.
	DefaultCursorPersistEvery = 8

	// DefaultStorageCooldownMs is how long storage writes are skipped
	// after a fault.
	DefaultStorageCooldownMs = 30000
)

// Config configures the scheduler.
type Config struct {
	DeviceID       string
	TelemetryTopic string
	FwVersion      string

	// MaxBatchItems bounds records per drain pass. Zero means the
	// default.
	MaxBatchItems int

	// MaxBatchMs bounds wall time per drain pass. Zero means the
	// default.
	MaxBatchMs uint32

	// CompactThreshold is the delivered-prefix size in bytes that
	// triggers compaction. Zero means the default.
	CompactThreshold int64

	// CursorPersistEvery batches cursor persistence. Zero means the
	// default.
	CursorPersistEvery int

	// StorageCooldownMs is the unhealthy-storage retry window. Zero
	// means the default.
	StorageCooldownMs uint32
}

// Scheduler owns the pending cursor and all telemetry publishing.
// Methods are called from the network/storage loop only; the scheduler
// is not safe for concurrent use.
type Scheduler struct {
	cfg     Config
	queue   *pending.Queue
	tr      transport.Transport
	store   *persistence.Store
	history *HistoryLog
	clock   tick.Clock
	log     log.Logger
	met     *metrics.Metrics

	bootAt time.Time

	// cursor is the delivered-prefix boundary. Exclusive owner: this
	// scheduler. Advances only after confirmed delivery.
	cursor         int64
	cursorDirty    int
	storageRetryMs uint32
	storageBad     bool
}

// NewScheduler loads the persisted cursor and validates it against the
// queue file. A cursor beyond the file size means the file shrank
// underneath us: it is reset to zero and recorded as data loss.
func NewScheduler(cfg Config, queue *pending.Queue, tr transport.Transport, store *persistence.Store, history *HistoryLog, clock tick.Clock, logger log.Logger, met *metrics.Metrics) (*Scheduler, error) {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	if cfg.MaxBatchItems <= 0 {
		cfg.MaxBatchItems = DefaultMaxBatchItems
	}
	if cfg.MaxBatchMs == 0 {
		cfg.MaxBatchMs = DefaultMaxBatchMs
	}
	if cfg.CompactThreshold <= 0 {
		cfg.CompactThreshold = DefaultCompactThreshold
	}
	if cfg.CursorPersistEvery <= 0 {
		cfg.CursorPersistEvery = DefaultCursorPersistEvery
	}
	if cfg.StorageCooldownMs == 0 {
		cfg.StorageCooldownMs = DefaultStorageCooldownMs
	}

	s := &Scheduler{
		cfg:     cfg,
		queue:   queue,
		tr:      tr,
		store:   store,
		history: history,
		clock:   clock,
		log:     logger,
		met:     met,
		bootAt:  time.Now(),
	}

	s.cursor = store.Int64(persistence.KeyPendingOffset, 0)
	size, err := queue.Size()
	if err != nil {
		return nil, err
	}
	if s.cursor < 0 || s.cursor > size {
		s.log.Log(log.Event{
			Timestamp: time.Now(),
			DeviceID:  cfg.DeviceID,
			Category:  log.CategoryStorage,
			Severity:  log.SeverityFailsafe,
			Storage:   &log.StorageEvent{Op: "recover", Bytes: size, Detail: "cursor beyond file size, reset to zero (data loss)"},
		})
		s.cursor = 0
		s.persistCursor()
	}
	s.met.SetPending(size, s.cursor)
	return s, nil
}

// Cursor returns the current delivered-prefix boundary.
func (s *Scheduler) Cursor() int64 {
	return s.cursor
}

// PendingStats returns the pending file size and cursor for the
// telemetry sys block.
func (s *Scheduler) PendingStats() (bytes, cursor int64) {
	size, err := s.queue.Size()
	if err != nil {
		return 0, s.cursor
	}
	return size, s.cursor
}

// HandleSample routes one fresh sample: direct delivery first, pending
// queue only as a fallback.
func (s *Scheduler) HandleSample(sample telemetry.Sample) {
	id := telemetry.ID(s.cfg.DeviceID, sample)

	if s.tr.IsConnected() {
		if err := s.publish(sample); err == nil {
			s.record(sample, StatusSent, id, false)
			return
		}
	}

	if !s.storageHealthy() {
		s.met.SampleDropped()
		s.logDelivery(id, StatusDrop, false)
		return
	}

	data, err := telemetry.EncodeSample(sample)
	if err == nil {
		err = s.queue.Append(data)
	}
	if err != nil {
		if errors.Is(err, pending.ErrQueueFull) || errors.Is(err, pending.ErrLineTooLong) {
			// Admission control: the new record is dropped.
			s.met.SampleDropped()
			s.record(sample, StatusDrop, id, false)
			return
		}
		s.storageFault("append", err)
		s.met.SampleDropped()
		s.logDelivery(id, StatusDrop, false)
		return
	}

	s.met.SampleQueued()
	s.record(sample, StatusPending, id, false)
}

// DrainOnce runs one bounded drain pass. Call it on the scheduler
// cadence while the transport reports connected.
func (s *Scheduler) DrainOnce() {
	if !s.tr.IsConnected() {
		return
	}

	size, err := s.queue.Size()
	if err != nil {
		s.storageFault("size", err)
		return
	}
	if s.cursor > size {
		// The file shrank underneath us (external truncation).
		s.log.Log(log.Event{
			Timestamp: time.Now(),
			DeviceID:  s.cfg.DeviceID,
			Category:  log.CategoryStorage,
			Severity:  log.SeverityFailsafe,
			Storage:   &log.StorageEvent{Op: "recover", Bytes: size, Detail: "cursor beyond file size, reset to zero (data loss)"},
		})
		s.cursor = 0
		s.persistCursor()
	}

	start := s.clock.NowMs()
	deadline := start + s.cfg.MaxBatchMs

	for n := 0; n < s.cfg.MaxBatchItems; n++ {
		if tick.Reached(s.clock.NowMs(), deadline) {
			break
		}

		line, next, err := s.queue.ReadAt(s.cursor)
		if errors.Is(err, pending.ErrNoData) {
			break
		}
		if errors.Is(err, pending.ErrLineTooLong) {
			// Unreadable record: skip it, don't stall the queue.
			s.logDelivery("", StatusDrop, true)
			s.met.SampleDropped()
			s.advance(next)
			continue
		}
		if err != nil {
			s.storageFault("read", err)
			break
		}

		sample, err := telemetry.DecodeSample(line)
		if err != nil {
			// Corrupt record: same policy as oversized.
			s.logDelivery("", StatusDrop, true)
			s.met.SampleDropped()
			s.advance(next)
			continue
		}

		if err := s.publish(sample); err != nil {
			// Stop, don't skip: retry from the same record next pass.
			break
		}
		s.record(sample, StatusSent, telemetry.ID(s.cfg.DeviceID, sample), true)
		s.advance(next)

		runtime.Gosched()
	}

	if s.cursorDirty > 0 {
		s.persistCursor()
	}
	s.maybeCompact()

	size, err = s.queue.Size()
	if err == nil {
		s.met.SetPending(size, s.cursor)
	}
}

// publish sends one sample's envelope.
func (s *Scheduler) publish(sample telemetry.Sample) error {
	bytes, cursor := s.PendingStats()
	sys := telemetry.SysInfo{
		FwVersion:     s.cfg.FwVersion,
		UptimeS:       uint32(time.Since(s.bootAt).Seconds()),
		PendingBytes:  bytes,
		PendingOffset: cursor,
	}
	if rssi, ok := s.tr.RSSI(); ok {
		sys.RSSI = &rssi
	}

	data, err := telemetry.EncodeEnvelope(telemetry.NewEnvelope(s.cfg.DeviceID, sample, sys))
	if err != nil {
		return err
	}
	if err := s.tr.Publish(s.cfg.TelemetryTopic, data); err != nil {
		return err
	}
	s.met.SamplePublished()
	return nil
}

// advance moves the cursor past a consumed record.
func (s *Scheduler) advance(next int64) {
	s.cursor = next
	s.cursorDirty++
	if s.cursorDirty >= s.cfg.CursorPersistEvery {
		s.persistCursor()
	}
}

func (s *Scheduler) persistCursor() {
	if err := s.store.SetInt64(persistence.KeyPendingOffset, s.cursor); err != nil {
		s.storageFault("persist-cursor", err)
		return
	}
	s.cursorDirty = 0
}

// maybeCompact discards the delivered prefix once it crosses the
// threshold, then resets and persists the cursor.
func (s *Scheduler) maybeCompact() {
	if s.cursor < s.cfg.CompactThreshold {
		return
	}
	if err := s.queue.Compact(s.cursor); err != nil {
		s.storageFault("compact", err)
		return
	}
	s.cursor = 0
	s.persistCursor()
}

// record writes the history row and the delivery event.
func (s *Scheduler) record(sample telemetry.Sample, status, id string, fromQueue bool) {
	if s.storageHealthy() {
		if err := s.history.Append(sample, status, id); err != nil {
			s.storageFault("history", err)
		}
	}
	s.logDelivery(id, status, fromQueue)
}

func (s *Scheduler) logDelivery(id, status string, fromQueue bool) {
	sev := log.SeverityInfo
	if status == StatusDrop {
		sev = log.SeverityWarning
	}
	bytes, cursor := s.PendingStats()
	s.log.Log(log.Event{
		Timestamp: time.Now(),
		DeviceID:  s.cfg.DeviceID,
		Category:  log.CategoryTelemetry,
		Severity:  sev,
		Delivery: &log.DeliveryEvent{
			TelemetryID:  id,
			Outcome:      status,
			FromQueue:    fromQueue,
			PendingBytes: bytes,
			Cursor:       cursor,
		},
	})
}

// StorageHealthy reports whether the storage subsystem is currently
// accepting writes.
func (s *Scheduler) StorageHealthy() bool {
	return s.storageHealthy()
}

// storageHealthy reports whether storage writes are currently allowed,
// re-enabling them when the cooldown has expired.
func (s *Scheduler) storageHealthy() bool {
	if !s.storageBad {
		return true
	}
	if tick.Reached(s.clock.NowMs(), s.storageRetryMs) {
		s.storageBad = false
		return true
	}
	return false
}

// storageFault marks storage unhealthy for the cooldown window.
func (s *Scheduler) storageFault(op string, err error) {
	s.storageBad = true
	s.storageRetryMs = s.clock.NowMs() + s.cfg.StorageCooldownMs
	s.log.Log(log.Event{
		Timestamp: time.Now(),
		DeviceID:  s.cfg.DeviceID,
		Category:  log.CategoryStorage,
		Severity:  log.SeverityWarning,
		Storage:   &log.StorageEvent{Op: op},
		Error:     &log.ErrorEventData{Message: err.Error(), Op: op},
	})
}
