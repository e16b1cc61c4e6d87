package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HTTP_PORT", "")
	t.Setenv("GRACE_WINDOW", "")
	t.Setenv("RATE_LIMIT_PER_MIN", "")
	t.Setenv("DB_MAX_OPEN_CONNS", "")
	t.Setenv("DB_MAX_IDLE_CONNS", "")

	cfg := Load()
	if cfg.HTTPPort != "8081" {
		t.Errorf("HTTPPort = %q", cfg.HTTPPort)
	}
	if cfg.GraceWindow != 10*time.Minute {
		t.Errorf("GraceWindow = %v, want 10m", cfg.GraceWindow)
	}
	if cfg.RateLimitPerMin != 120 {
		t.Errorf("RateLimitPerMin = %d", cfg.RateLimitPerMin)
	}
	if cfg.DBMaxOpenConns != 10 || cfg.DBMaxIdleConns != 5 {
		t.Errorf("db pool = %d/%d, want 10/5", cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GRACE_WINDOW", "15m")
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("RATE_LIMIT_PER_MIN", "7")
	t.Setenv("DB_MAX_OPEN_CONNS", "25")

	cfg := Load()
	if cfg.GraceWindow != 15*time.Minute {
		t.Errorf("GraceWindow = %v, want 15m", cfg.GraceWindow)
	}
	if cfg.HTTPPort != "9999" {
		t.Errorf("HTTPPort = %q", cfg.HTTPPort)
	}
	if cfg.RateLimitPerMin != 7 {
		t.Errorf("RateLimitPerMin = %d", cfg.RateLimitPerMin)
	}
	if cfg.DBMaxOpenConns != 25 {
		t.Errorf("DBMaxOpenConns = %d", cfg.DBMaxOpenConns)
	}
}

func TestInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("GRACE_WINDOW", "soonish")
	t.Setenv("RATE_LIMIT_PER_MIN", "lots")

	cfg := Load()
	if cfg.GraceWindow != 10*time.Minute {
		t.Errorf("GraceWindow = %v, want fallback 10m", cfg.GraceWindow)
	}
	if cfg.RateLimitPerMin != 120 {
		t.Errorf("RateLimitPerMin = %d, want fallback 120", cfg.RateLimitPerMin)
	}
}
