package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"LOG_LEVEL", "TEST_SEED", "SMPP_PORT", "SMPP_SYSTEM_ID", "SMPP_PASSWORD",
		"SMPP_MAX_SESSIONS", "SERVER_PORT", "LIFECYCLE_PERCENT_DELIVERED",
	}
	for _, key := range keys {
		prev, had := os.LookupEnv(key)
		_ = os.Unsetenv(key)
		t.Cleanup(func() {
			if had {
				_ = os.Setenv(key, prev)
			}
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.SMPP.Port != 2775 {
		t.Errorf("SMPP.Port = %d, want 2775", cfg.SMPP.Port)
	}
	if cfg.SMPP.SystemID != "smppsim" {
		t.Errorf("SMPP.SystemID = %q, want smppsim", cfg.SMPP.SystemID)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("HTTP.Port = %d, want 8080", cfg.HTTP.Port)
	}
	if cfg.Lifecycle.PercentDelivered != 90 {
		t.Errorf("Lifecycle.PercentDelivered = %d, want 90", cfg.Lifecycle.PercentDelivered)
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SMPP_PORT", "3000")
	t.Setenv("SMPP_SYSTEM_ID", "custom")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.SMPP.Port != 3000 {
		t.Errorf("SMPP.Port = %d, want 3000", cfg.SMPP.Port)
	}
	if cfg.SMPP.SystemID != "custom" {
		t.Errorf("SMPP.SystemID = %q, want custom", cfg.SMPP.SystemID)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}
