package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Address != DefaultAddr {
		t.Fatalf("expected default addr %q, got %q", DefaultAddr, cfg.Address)
	}
	if cfg.Codec != DefaultCodec {
		t.Fatalf("expected default codec %q, got %q", DefaultCodec, cfg.Codec)
	}
	if cfg.Playback.TurnsPerSecond != DefaultTurnsPerSecond {
		t.Fatalf("expected default speed %v, got %v", DefaultTurnsPerSecond, cfg.Playback.TurnsPerSecond)
	}
	if cfg.Retention.Interval != DefaultRetentionInterval {
		t.Fatalf("expected default sweep interval %v, got %v", DefaultRetentionInterval, cfg.Retention.Interval)
	}
	if cfg.Logging.Path != "" {
		t.Fatalf("expected stdout logging by default, got %q", cfg.Logging.Path)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	//1.- Write a config file overriding a handful of settings.
	path := filepath.Join(t.TempDir(), "replayd.yaml")
	body := `
address: 127.0.0.1:9000
codec: snappy
playback:
  autoplay: true
  turns_per_second: 4
retention:
  max_age: 48h
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	//2.- The environment wins over the file.
	t.Setenv("REPLAYD_ADDR", "127.0.0.1:9100")
	t.Setenv("REPLAYD_LOG_FORMAT", "text")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Address != "127.0.0.1:9100" {
		t.Fatalf("unexpected address: %q", cfg.Address)
	}
	if cfg.Codec != "snappy" || !cfg.Playback.Autoplay || cfg.Playback.TurnsPerSecond != 4 {
		t.Fatalf("file overrides not applied: %+v", cfg)
	}
	if cfg.Playback.TickRate != DefaultTickRate {
		t.Fatalf("expected default tick rate to survive, got %v", cfg.Playback.TickRate)
	}
	if cfg.Retention.MaxAge != 48*time.Hour {
		t.Fatalf("expected max age 48h, got %v", cfg.Retention.MaxAge)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoadReturnsValidationErrors(t *testing.T) {
	t.Setenv("REPLAYD_CODEC", "lzma")
	t.Setenv("REPLAYD_PLAYBACK_TICK_RATE", "0")
	t.Setenv("REPLAYD_LOG_MAX_BACKUPS", "-1")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"codec", "playback.tick_rate", "logging.max_backups"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in error, got %v", want, err)
		}
	}
}

func TestLoadRejectsUnparsableEnv(t *testing.T) {
	t.Setenv("REPLAYD_RETENTION_INTERVAL", "soon")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "parse env") {
		t.Fatalf("expected parse env error, got %v", err)
	}
}

func TestLoadRejectsLiveAndFile(t *testing.T) {
	t.Setenv("REPLAYD_REPLAY_PATH", "game.bc24")
	t.Setenv("REPLAYD_LIVE_URL", "ws://localhost:6175")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Fatalf("expected exclusivity error, got %v", err)
	}
}

func TestLoadOpsSettings(t *testing.T) {
	t.Setenv("REPLAYD_OPS_ADMIN_TOKEN", "hunter2")
	t.Setenv("REPLAYD_OPS_ROLL_WINDOW", "30s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Ops.Address != DefaultOpsAddr || cfg.Ops.RollLimit != DefaultRollLimit {
		t.Fatalf("unexpected ops defaults: %+v", cfg.Ops)
	}
	if cfg.Ops.AdminToken != "hunter2" || cfg.Ops.RollWindow != 30*time.Second {
		t.Fatalf("env overrides not applied: %+v", cfg.Ops)
	}

	t.Setenv("REPLAYD_OPS_ADDR", DefaultAddr)
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "ops.address") {
		t.Fatalf("expected ops address clash, got %v", err)
	}
}
