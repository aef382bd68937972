package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadRequiresHost(t *testing.T) {
	t.Setenv("HOST_BASE_URL", "")
	t.Setenv("HOST_WS_URL", "ws://127.0.0.1:8765/events")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without HOST_BASE_URL")
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("HOST_BASE_URL", "http://127.0.0.1:8765")
	t.Setenv("HOST_WS_URL", "ws://127.0.0.1:8765/events")
	t.Setenv("DATA_DIR", "/tmp/wc")
	t.Setenv("POLL_INTERVAL", "1.5")
	t.Setenv("SETTLE_DELAY", "10s")
	t.Setenv("DELIVERY_RETRIES", "0")
	t.Setenv("API_URL", "https://example.test/")
	t.Setenv("API_ENABLED", "false")
	t.Setenv("HOST_EGRESS", "bogus")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollInterval != 1500*time.Millisecond {
		t.Fatalf("poll interval=%v", cfg.PollInterval)
	}
	if cfg.SettleDelay != 10*time.Second {
		t.Fatalf("settle delay=%v", cfg.SettleDelay)
	}
	if cfg.DeliveryRetries != 0 || cfg.DeliveryRetryDelay != 5*time.Second {
		t.Fatalf("delivery: retries=%d delay=%v", cfg.DeliveryRetries, cfg.DeliveryRetryDelay)
	}
	if cfg.APIURL != "https://example.test" || cfg.APIEnabled {
		t.Fatalf("api: url=%q enabled=%v", cfg.APIURL, cfg.APIEnabled)
	}
	if cfg.HostEgress != "auto" {
		t.Fatalf("unknown egress must fall back to auto, got %q", cfg.HostEgress)
	}
	if cfg.PendingFile() != filepath.Join("/tmp/wc", "pending_battles.json") {
		t.Fatalf("pending file=%q", cfg.PendingFile())
	}
	if cfg.ZoneHangar != 3 || cfg.ZoneBattle != 5 || cfg.PlayerRetryDelay != 5*time.Second {
		t.Fatalf("zone/retry defaults: %+v", cfg)
	}
}
