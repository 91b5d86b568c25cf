package persistence

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEmptyStoreDefaults(t *testing.T) {
	s, err := OpenStore(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}

	if got := s.Uint32(KeyTelemetryIntervalS, 600); got != 600 {
		t.Errorf("Uint32() = %d, want default 600", got)
	}
	if got := s.Int64(KeyPendingOffset, 0); got != 0 {
		t.Errorf("Int64() = %d, want default 0", got)
	}
	if got := s.String("fw_channel", "stable"); got != "stable" {
		t.Errorf("String() = %q, want default", got)
	}
}

func TestSetAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	s, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	if err := s.SetUint32(KeyTelemetrySeq, 42); err != nil {
		t.Fatalf("SetUint32() error = %v", err)
	}
	if err := s.SetInt64(KeyPendingOffset, 1024); err != nil {
		t.Fatalf("SetInt64() error = %v", err)
	}
	if err := s.SetString("fw_channel", "beta"); err != nil {
		t.Fatalf("SetString() error = %v", err)
	}

	// A fresh open sees the persisted values.
	s2, err := OpenStore(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	if got := s2.Uint32(KeyTelemetrySeq, 0); got != 42 {
		t.Errorf("Uint32() after reload = %d, want 42", got)
	}
	if got := s2.Int64(KeyPendingOffset, 0); got != 1024 {
		t.Errorf("Int64() after reload = %d, want 1024", got)
	}
	if got := s2.String("fw_channel", ""); got != "beta" {
		t.Errorf("String() after reload = %q, want beta", got)
	}
}

func TestOverwrite(t *testing.T) {
	s, err := OpenStore(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}

	if err := s.SetUint32(KeyTelemetrySeq, 1); err != nil {
		t.Fatalf("SetUint32() error = %v", err)
	}
	if err := s.SetUint32(KeyTelemetrySeq, 2); err != nil {
		t.Fatalf("SetUint32() error = %v", err)
	}
	if got := s.Uint32(KeyTelemetrySeq, 0); got != 2 {
		t.Errorf("Uint32() = %d, want 2", got)
	}
}

func TestNoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	s, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	if err := s.SetUint32(KeyTelemetrySeq, 7); err != nil {
		t.Fatalf("SetUint32() error = %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind after save")
	}
}

func TestCorruptFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := OpenStore(path); err == nil {
		t.Error("OpenStore() on corrupt file should fail")
	}
}
