package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestManagerStatus(t *testing.T) {
	path := writeConfigFile(t, minimalYAML)
	mgr, err := NewManager(path, testLogger())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	status := mgr.Status()
	if status.Path != path {
		t.Fatalf("Status().Path = %q, want %q", status.Path, path)
	}
	if len(status.Checksum) != 64 {
		t.Fatalf("Status().Checksum = %q, want a sha256 hex digest", status.Checksum)
	}
	if status.LoadedAt.IsZero() {
		t.Fatal("Status().LoadedAt is zero")
	}
	if status.ReloadCount != 1 {
		t.Fatalf("Status().ReloadCount = %d, want 1", status.ReloadCount)
	}
	if mgr.Get().Agent.Username != "murmur_bot" {
		t.Fatalf("Get().Agent.Username = %q", mgr.Get().Agent.Username)
	}
}

func TestManagerReloadNotifiesListeners(t *testing.T) {
	path := writeConfigFile(t, minimalYAML)
	mgr, err := NewManager(path, testLogger())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	before := mgr.Status()

	var seen []float64
	mgr.OnChange(func(cfg *Config) { seen = append(seen, cfg.Cycle.PostThreshold) })

	updated := minimalYAML + "cycle:\n  post_threshold: 0.75\n"
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := mgr.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	after := mgr.Status()
	if after.Checksum == before.Checksum {
		t.Fatal("expected checksum to change after reload")
	}
	if after.ReloadCount != before.ReloadCount+1 {
		t.Fatalf("reload count = %d, want %d", after.ReloadCount, before.ReloadCount+1)
	}
	if mgr.Get().Cycle.PostThreshold != 0.75 {
		t.Fatalf("post threshold = %v, want 0.75", mgr.Get().Cycle.PostThreshold)
	}
	if len(seen) != 1 || seen[0] != 0.75 {
		t.Fatalf("listeners saw %v, want [0.75]", seen)
	}
}

func TestManagerReloadKeepsCurrentOnInvalidFile(t *testing.T) {
	path := writeConfigFile(t, minimalYAML)
	mgr, err := NewManager(path, testLogger())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	before := mgr.Status()

	if err := os.WriteFile(path, []byte(minimalYAML+"memory:\n  store_threshold: 7\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	err = mgr.Reload()
	if err == nil || !strings.Contains(err.Error(), "store_threshold") {
		t.Fatalf("Reload() error = %v, want validation error", err)
	}
	if mgr.Get().Memory.StoreThreshold != 0.6 {
		t.Errorf("store threshold = %v, want previous 0.6", mgr.Get().Memory.StoreThreshold)
	}
	if mgr.Status() != before {
		t.Errorf("status changed after failed reload")
	}
}

func TestManagerWatch(t *testing.T) {
	path := writeConfigFile(t, minimalYAML)
	mgr, err := NewManager(path, testLogger())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	changed := make(chan *Config, 1)
	mgr.OnChange(func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Watch(ctx); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if err := os.WriteFile(path, []byte(minimalYAML+"cycle:\n  min_thought_length: 42\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	select {
	case cfg := <-changed:
		if cfg.Cycle.MinThoughtLength != 42 {
			t.Errorf("min thought length = %d, want 42", cfg.Cycle.MinThoughtLength)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watched reload")
	}
}

func TestNewManagerMissingFile(t *testing.T) {
	if _, err := NewManager(filepath.Join(t.TempDir(), "absent.yaml"), testLogger()); err == nil {
		t.Fatal("NewManager() should fail for a missing file")
	}
}
