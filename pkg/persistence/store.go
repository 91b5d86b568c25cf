package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// StoreVersion is the current version of the store file format.
const StoreVersion = 1

// Well-known keys.
const (
	KeyTelemetryIntervalS = "telemetry_interval_s"
	KeyTelemetrySeq       = "telemetry_seq"
	KeyPendingOffset      = "pending_offset"
	KeySoilRawWet         = "soil_raw_wet"
	KeySoilRawDry         = "soil_raw_dry"
)

// storeFile is the on-disk shape.
type storeFile struct {
	// Version is the store file format version.
	Version int `json:"version"`

	// SavedAt is when the store was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Values holds the scalar entries.
	Values map[string]json.Number `json:"values,omitempty"`

	// Strings holds string entries.
	Strings map[string]string `json:"strings,omitempty"`
}

// Store manages persistence of scalar settings to a JSON file.
type Store struct {
	mu      sync.Mutex
	path    string
	values  map[string]json.Number
	strings map[string]string
}

// OpenStore loads the store at path. A missing file yields an empty
// store; the file is created on first write.
func OpenStore(path string) (*Store, error) {
	s := &Store{
		path:    path,
		values:  make(map[string]json.Number),
		strings: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.Values != nil {
		s.values = f.Values
	}
	if f.Strings != nil {
		s.strings = f.Strings
	}
	return s, nil
}

// Uint32 returns the value for key, or def when absent or unparsable.
func (s *Store) Uint32(key string, def uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.values[key]
	if !ok {
		return def
	}
	v, err := n.Int64()
	if err != nil || v < 0 || v > int64(^uint32(0)) {
		return def
	}
	return uint32(v)
}

// Int64 returns the value for key, or def when absent or unparsable.
func (s *Store) Int64(key string, def int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.values[key]
	if !ok {
		return def
	}
	v, err := n.Int64()
	if err != nil {
		return def
	}
	return v
}

// String returns the value for key, or def when absent.
func (s *Store) String(key, def string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.strings[key]; ok {
		return v
	}
	return def
}

// SetUint32 stores and persists a value.
func (s *Store) SetUint32(key string, v uint32) error {
	return s.SetInt64(key, int64(v))
}

// SetInt64 stores and persists a value.
func (s *Store) SetInt64(key string, v int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = json.Number(strconv.FormatInt(v, 10))
	return s.saveLocked()
}

// SetString stores and persists a value.
func (s *Store) SetString(key, v string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.strings[key] = v
	return s.saveLocked()
}

// saveLocked rewrites the store file through a temporary sibling.
func (s *Store) saveLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f := storeFile{
		Version: StoreVersion,
		SavedAt: time.Now(),
		Values:  s.values,
		Strings: s.strings,
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
