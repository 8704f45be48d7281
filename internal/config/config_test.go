package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDR", "EVENT_WINDOW", "POLL_INTERVAL", "CACHE_BACKEND", "EVENT_SOURCE", "LED_COUNT"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.HTTPAddr != defaultHTTPAddr {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.EventWindow != 200 {
		t.Fatalf("EventWindow = %d, want 200", cfg.EventWindow)
	}
	if cfg.PollInterval != time.Second {
		t.Fatalf("PollInterval = %v, want 1s", cfg.PollInterval)
	}
	if cfg.CacheBackend != CacheSQLite || cfg.EventSource != EventSourceHTTP {
		t.Fatalf("backends = %q/%q", cfg.CacheBackend, cfg.EventSource)
	}
	if cfg.LEDCount != 3 {
		t.Fatalf("LEDCount = %d, want 3", cfg.LEDCount)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", " :9000 ")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("API_TIMEOUT", "750ms")
	t.Setenv("EVENT_SOURCE", "Postgres")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("EVENT_WINDOW", "50")
	t.Setenv("LED_COUNT", "4")

	cfg := Load()
	if cfg.HTTPAddr != ":9000" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.APITimeout != 750*time.Millisecond {
		t.Fatalf("APITimeout = %v", cfg.APITimeout)
	}
	if cfg.EventSource != EventSourcePostgres || cfg.CacheBackend != CacheRedis {
		t.Fatalf("backends = %q/%q", cfg.EventSource, cfg.CacheBackend)
	}
	if cfg.EventWindow != 50 || cfg.LEDCount != 4 {
		t.Fatalf("EventWindow=%d LEDCount=%d", cfg.EventWindow, cfg.LEDCount)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "soon")
	t.Setenv("EVENT_WINDOW", "-3")
	t.Setenv("CACHE_BACKEND", "etcd")

	cfg := Load()
	if cfg.PollInterval != defaultPollInterval {
		t.Fatalf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.EventWindow != defaultEventWindow {
		t.Fatalf("EventWindow = %d", cfg.EventWindow)
	}
	if cfg.CacheBackend != CacheSQLite {
		t.Fatalf("CacheBackend = %q", cfg.CacheBackend)
	}
}
