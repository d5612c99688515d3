package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HTTPPort != 3000 {
		t.Errorf("HTTPPort = %d, want 3000", cfg.HTTPPort)
	}
	if cfg.TurnExpirySeconds != 500 {
		t.Errorf("TurnExpirySeconds = %d, want 500", cfg.TurnExpirySeconds)
	}
	if cfg.MatchSampleSize != 5 {
		t.Errorf("MatchSampleSize = %d, want 5", cfg.MatchSampleSize)
	}
	if cfg.SweepIntervalSeconds != 30 {
		t.Errorf("SweepIntervalSeconds = %d, want 30", cfg.SweepIntervalSeconds)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "8080")
	t.Setenv("TURN_EXPIRY_SECONDS", "50")
	t.Setenv("MATCH_SAMPLE_SIZE", "10")
	t.Setenv("AUTH_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HTTPPort != 8080 {
		t.Errorf("HTTPPort = %d, want 8080", cfg.HTTPPort)
	}
	if cfg.TurnExpirySeconds != 50 {
		t.Errorf("TurnExpirySeconds = %d, want 50", cfg.TurnExpirySeconds)
	}
	if cfg.MatchSampleSize != 10 {
		t.Errorf("MatchSampleSize = %d, want 10", cfg.MatchSampleSize)
	}
	if cfg.AuthSecret != "test-secret" {
		t.Errorf("AuthSecret = %q", cfg.AuthSecret)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("HTTP_PORT", "not-a-port")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric HTTP_PORT")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := &Config{TurnExpirySeconds: 500, SweepIntervalSeconds: 30}
	if cfg.TurnExpiry() != 500*time.Second {
		t.Errorf("TurnExpiry = %v", cfg.TurnExpiry())
	}
	if cfg.SweepInterval() != 30*time.Second {
		t.Errorf("SweepInterval = %v", cfg.SweepInterval())
	}
}
