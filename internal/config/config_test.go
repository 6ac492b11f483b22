package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.HTTPPort != "8080" {
		t.Errorf("HTTPPort = %q, want 8080", cfg.HTTPPort)
	}
	if cfg.PathCap != 500 {
		t.Errorf("PathCap = %d, want 500", cfg.PathCap)
	}
	if cfg.OfflineThreshold() != 2*time.Minute {
		t.Errorf("OfflineThreshold = %v, want 2m", cfg.OfflineThreshold())
	}
	if cfg.IdleThreshold() != 30*time.Second {
		t.Errorf("IdleThreshold = %v, want 30s", cfg.IdleThreshold())
	}
	if cfg.MoveThresholdM != 2.0 {
		t.Errorf("MoveThresholdM = %v, want 2.0", cfg.MoveThresholdM)
	}
	if cfg.IngestTopic != "fleet/gps" {
		t.Errorf("IngestTopic = %q, want fleet/gps", cfg.IngestTopic)
	}
	if cfg.ArchiveEnabled {
		t.Error("ArchiveEnabled should default to false")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PATH_CAP", "100")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("OFFLINE_THRESHOLD_MS", "60000")
	t.Setenv("MOVE_THRESHOLD_M", "5.5")
	t.Setenv("ARCHIVE_ENABLED", "true")

	cfg := Load()

	if cfg.PathCap != 100 {
		t.Errorf("PATH_CAP override ignored: %d", cfg.PathCap)
	}
	if cfg.StoreBackend != "memory" {
		t.Errorf("STORE_BACKEND override ignored: %q", cfg.StoreBackend)
	}
	if cfg.OfflineThreshold() != time.Minute {
		t.Errorf("OFFLINE_THRESHOLD_MS override ignored: %v", cfg.OfflineThreshold())
	}
	if cfg.MoveThresholdM != 5.5 {
		t.Errorf("MOVE_THRESHOLD_M override ignored: %v", cfg.MoveThresholdM)
	}
	if !cfg.ArchiveEnabled {
		t.Error("ARCHIVE_ENABLED override ignored")
	}
}

func TestLoadMalformedValuesFallBack(t *testing.T) {
	t.Setenv("PATH_CAP", "not-a-number")
	t.Setenv("MOVE_THRESHOLD_M", "wide")
	t.Setenv("ARCHIVE_ENABLED", "sometimes")

	cfg := Load()

	if cfg.PathCap != 500 {
		t.Errorf("PathCap = %d, want the default for a malformed value", cfg.PathCap)
	}
	if cfg.MoveThresholdM != 2.0 {
		t.Errorf("MoveThresholdM = %v, want the default", cfg.MoveThresholdM)
	}
	if cfg.ArchiveEnabled {
		t.Error("malformed bool should fall back to false")
	}
}
