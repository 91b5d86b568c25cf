package pending

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/agrosmart/edge-go/pkg/log"
)

// Default limits.
const (
	// DefaultMaxLineBytes bounds a single record.
	DefaultMaxLineBytes = 1024

	// DefaultMaxFileBytes is the admission-control ceiling: appends
	// are rejected once the file is at or above it. The ceiling drops
	// the new record, never the old ones.
	DefaultMaxFileBytes = 256 * 1024
)

// Queue errors.
var (
	// ErrNoData is returned by ReadAt when the offset is at or past
	// the end of the file.
	ErrNoData = errors.New("no pending data at offset")

	// ErrLineTooLong marks a record exceeding the maximum line size.
	// From ReadAt it is not fatal: the returned next offset skips the
	// oversized record.
	ErrLineTooLong = errors.New("record exceeds maximum line size")

	// ErrQueueFull is returned by Append when the file is at or above
	// the byte ceiling. The new record is dropped.
	ErrQueueFull = errors.New("pending queue at byte ceiling")
)

// Config bounds the queue file.
type Config struct {
	// MaxLineBytes bounds a single record. Zero means the default.
	MaxLineBytes int

	// MaxFileBytes is the admission ceiling. Zero means the default.
	MaxFileBytes int64
}

// Queue is the durable pending log.
type Queue struct {
	mu           sync.Mutex
	path         string
	maxLineBytes int
	maxFileBytes int64
	log          log.Logger
}

// Open creates a queue over the given file path and resolves any
// compaction interrupted by a crash. The file itself is created lazily
// on first append.
func Open(path string, cfg Config, logger log.Logger) (*Queue, error) {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	q := &Queue{
		path:         path,
		maxLineBytes: cfg.MaxLineBytes,
		maxFileBytes: cfg.MaxFileBytes,
		log:          logger,
	}
	if q.maxLineBytes <= 0 {
		q.maxLineBytes = DefaultMaxLineBytes
	}
	if q.maxFileBytes <= 0 {
		q.maxFileBytes = DefaultMaxFileBytes
	}

	if err := q.recover(); err != nil {
		return nil, fmt.Errorf("pending queue recovery: %w", err)
	}
	return q, nil
}

// Path returns the live file path.
func (q *Queue) Path() string {
	return q.path
}

// Size returns the current file size. A missing file is size zero.
func (q *Queue) Size() (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sizeLocked()
}

func (q *Queue) sizeLocked() (int64, error) {
	st, err := os.Stat(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// Append writes one record to the end of the log. A line terminator is
// ensured, and the write is flushed and the file handle closed before
// Append returns.
//
// Records above the maximum line size and appends past the byte
// ceiling are rejected; the caller drops the record and logs it.
func (q *Queue) Append(record []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	trimmed := bytes.TrimRight(record, "\r\n")
	if len(trimmed) > q.maxLineBytes {
		return fmt.Errorf("%w: %d bytes", ErrLineTooLong, len(trimmed))
	}

	size, err := q.sizeLocked()
	if err != nil {
		return err
	}
	if size >= q.maxFileBytes {
		q.log.Log(log.Event{
			Timestamp: time.Now(),
			Category:  log.CategoryStorage,
			Severity:  log.SeverityWarning,
			Storage:   &log.StorageEvent{Op: "drop", Bytes: size, Detail: "byte ceiling reached"},
		})
		return fmt.Errorf("%w: %d bytes", ErrQueueFull, size)
	}

	f, err := os.OpenFile(q.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	if _, err := f.Write(append(trimmed, '\n')); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadAt reads the record starting at offset. It returns the record
// with the terminator (and any trailing carriage return) trimmed, and
// the byte position immediately after the record.
//
// Returns ErrNoData when offset is at or past end of file. An
// oversized record returns ErrLineTooLong with a usable next offset so
// the caller can skip it.
func (q *Queue) ReadAt(offset int64) (line []byte, next int64, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	size, err := q.sizeLocked()
	if err != nil {
		return nil, 0, err
	}
	if offset < 0 || offset >= size {
		return nil, offset, ErrNoData
	}

	f, err := os.Open(q.path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, err
	}

	raw, err := bufio.NewReader(f).ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, 0, err
	}
	if len(raw) == 0 {
		return nil, offset, ErrNoData
	}

	next = offset + int64(len(raw))
	line = bytes.TrimRight(raw, "\r\n")
	if len(line) > q.maxLineBytes {
		return nil, next, fmt.Errorf("%w: %d bytes at offset %d", ErrLineTooLong, len(line), offset)
	}
	return line, next, nil
}

// Compact discards everything before keepFrom. The keep-range is
// streamed into a temporary file which then replaces the live file via
// two renames; see the package comment for the crash-safety argument.
func (q *Queue) Compact(keepFrom int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	size, err := q.sizeLocked()
	if err != nil {
		return err
	}
	if size == 0 {
		return nil
	}
	if keepFrom < 0 {
		keepFrom = 0
	}
	if keepFrom > size {
		keepFrom = size
	}

	tmp := q.path + ".tmp"
	bak := q.path + ".bak"

	// 1. Stream the keep-range into the temporary file.
	if err := q.writeTail(tmp, keepFrom); err != nil {
		os.Remove(tmp)
		return err
	}

	// 2. Swap: live -> backup, then temporary -> live.
	if err := os.Rename(q.path, bak); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, q.path); err != nil {
		// Promotion failed: restore the live file, leave the
		// temporary for startup cleanup.
		if rerr := os.Rename(bak, q.path); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}

	// 3. Both renames succeeded: the backup is garbage.
	if err := os.Remove(bak); err != nil {
		return err
	}

	q.log.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryStorage,
		Storage:   &log.StorageEvent{Op: "compact", Bytes: size - keepFrom, Detail: q.path},
	})
	return nil
}

// writeTail copies [keepFrom, EOF) of the live file into dst, synced
// and closed before returning.
func (q *Queue) writeTail(dst string, keepFrom int64) error {
	src, err := os.Open(q.path)
	if err != nil {
		return err
	}
	defer src.Close()

	if _, err := src.Seek(keepFrom, io.SeekStart); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// recover resolves compaction artifacts left by a crash:
//
//   - backup present, live missing: the crash hit between the two
//     renames; the backup is the authoritative file, restore it
//   - temporary present, live present: the crash hit before
//     promotion; the temporary is garbage, discard it
func (q *Queue) recover() error {
	tmp := q.path + ".tmp"
	bak := q.path + ".bak"

	liveExists := fileExists(q.path)
	bakExists := fileExists(bak)
	tmpExists := fileExists(tmp)

	if bakExists && !liveExists {
		if err := os.Rename(bak, q.path); err != nil {
			return err
		}
		liveExists = true
		q.log.Log(log.Event{
			Timestamp: time.Now(),
			Category:  log.CategoryStorage,
			Severity:  log.SeverityWarning,
			Storage:   &log.StorageEvent{Op: "recover", Detail: "restored live file from backup"},
		})
	} else if bakExists {
		// Live and backup both present: promotion completed but the
		// backup delete did not. The live file is the compacted one.
		if err := os.Remove(bak); err != nil {
			return err
		}
	}

	if tmpExists && liveExists {
		if err := os.Remove(tmp); err != nil {
			return err
		}
		q.log.Log(log.Event{
			Timestamp: time.Now(),
			Category:  log.CategoryStorage,
			Storage:   &log.StorageEvent{Op: "recover", Detail: "discarded stale temporary file"},
		})
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
