package config

import (
	"log/slog"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.UTCOffsetMinutes != 180 {
		t.Errorf("UTCOffsetMinutes = %d, want 180", cfg.UTCOffsetMinutes)
	}
	if cfg.Search.MaxRounds != 3 {
		t.Errorf("MaxRounds = %d, want 3", cfg.Search.MaxRounds)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GORIDE_LISTEN_ADDR", ":9000")
	t.Setenv("GORIDE_UTC_OFFSET_MINUTES", "-300")
	t.Setenv("GORIDE_WALK_CEILING_METERS", "1000")
	t.Setenv("GORIDE_MAX_ROUNDS", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q, want :9000", cfg.ListenAddr)
	}
	if cfg.UTCOffsetMinutes != -300 {
		t.Errorf("UTCOffsetMinutes = %d, want -300", cfg.UTCOffsetMinutes)
	}
	if cfg.Search.WalkCeilingMeters != 1000 {
		t.Errorf("WalkCeilingMeters = %v, want 1000", cfg.Search.WalkCeilingMeters)
	}
	if cfg.Search.MaxRounds != 2 {
		t.Errorf("MaxRounds = %d, want 2", cfg.Search.MaxRounds)
	}
}

func TestLoadMalformedNumber(t *testing.T) {
	t.Setenv("GORIDE_UTC_OFFSET_MINUTES", "pony")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a malformed integer")
	}
}

func TestSlogLevel(t *testing.T) {
	cases := []struct {
		name string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"banana", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := (Config{LogLevel: tc.name}).SlogLevel(); got != tc.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
