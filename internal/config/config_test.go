package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MASTER_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 3000 {
		t.Fatalf("default port: %d", cfg.Port)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("default gin mode: %s", cfg.GinMode)
	}
	if cfg.TokenExpiry != 7*24*time.Hour {
		t.Fatalf("default token expiry: %v", cfg.TokenExpiry)
	}
	if cfg.SyncSchedule != "@hourly" {
		t.Fatalf("default sync schedule: %s", cfg.SyncSchedule)
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("MASTER_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing MASTER_SECRET")
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("MASTER_SECRET", "secret")
	t.Setenv("PORT", "70000")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid PORT")
	}
}

func TestLoad_ProviderPairs(t *testing.T) {
	t.Setenv("MASTER_SECRET", "secret")
	t.Setenv("GOOGLE_CLIENT_ID", "gid")
	t.Setenv("GOOGLE_CLIENT_SECRET", "gsecret")
	t.Setenv("SLACK_CLIENT_ID", "sid")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	google, ok := cfg.ProviderClient("google")
	if !ok || !google.Configured() {
		t.Fatalf("google pair should be configured: %+v", google)
	}
	slack, ok := cfg.ProviderClient("slack")
	if !ok || slack.Configured() {
		t.Fatalf("slack pair missing secret should not be configured: %+v", slack)
	}
	if _, ok := cfg.ProviderClient("github"); ok {
		t.Fatal("unknown provider should not resolve")
	}
}
