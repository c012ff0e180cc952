package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/covalent-hq/conclave/internal/logging"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	applied := make(chan *Config, 1)
	w := NewWatcher(path, logging.NewNop().Logger, func(cfg *Config) {
		select {
		case applied <- cfg:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher a moment to arm before the write.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-applied:
		if cfg.Log.Level != "debug" {
			t.Errorf("level: %s", cfg.Log.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not pick up the change")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Error("watcher did not stop on cancel")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	applied := make(chan *Config, 1)
	w := NewWatcher(path, logging.NewNop().Logger, func(cfg *Config) {
		applied <- cfg
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-applied:
		t.Error("unrelated files must not trigger a reload")
	case <-time.After(300 * time.Millisecond):
	}
}
