package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validYAML = `
app:
  name: gwdiag
  version: "1.0"
gateway:
  host: 127.0.0.1
  port: 4002
  session_id: 17
  account: DU000000
timeouts:
  probe_ms: 500
  handshake_ms: 3000
  resolve_attempt_ms: 2000
  poll_interval_ms: 500
  snapshot_max_ms: 5000
  history_request_ms: 8000
  run_deadline_sec: 120
snapshot:
  enabled: true
history:
  enabled: true
  bar_size: 1d
  range_days: 90
  max_span_days: 30
storage:
  enabled: false
logging:
  level: info
instruments:
  - isin: FR0000120271
    currency: EUR
  - symbol: ASML
    currency: EUR
    preferred_exchange: AEB
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, validYAML))
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Gateway.SessionID != 17 {
			t.Errorf("expected session id 17, got %d", cfg.Gateway.SessionID)
		}
		if cfg.PollInterval() != 500*time.Millisecond {
			t.Errorf("expected 500ms poll interval, got %s", cfg.PollInterval())
		}
		if cfg.HistoryMaxSpan() != 30*24*time.Hour {
			t.Errorf("expected 30d max span, got %s", cfg.HistoryMaxSpan())
		}
		if len(cfg.Instruments) != 2 {
			t.Fatalf("expected 2 instruments, got %d", len(cfg.Instruments))
		}
	})

	t.Run("Missing File", func(t *testing.T) {
		if _, err := LoadConfig("does-not-exist.yaml"); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("Env Override", func(t *testing.T) {
		t.Setenv("GWDIAG_ACCOUNT", "DU999999")
		cfg, err := LoadConfig(writeConfig(t, validYAML))
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Gateway.Account != "DU999999" {
			t.Errorf("expected env override, got %s", cfg.Gateway.Account)
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	base := func(t *testing.T) *Config {
		cfg, err := LoadConfig(writeConfig(t, validYAML))
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		return cfg
	}

	t.Run("Zero Session ID", func(t *testing.T) {
		cfg := base(t)
		cfg.Gateway.SessionID = 0
		if err := cfg.Validate(); err == nil {
			t.Error("session id 0 should be rejected")
		}
	})

	t.Run("Empty Instrument List", func(t *testing.T) {
		cfg := base(t)
		cfg.Instruments = nil
		if err := cfg.Validate(); err == nil {
			t.Error("empty instrument list should be rejected")
		}
	})

	t.Run("Query Without ISIN Or Symbol", func(t *testing.T) {
		cfg := base(t)
		cfg.Instruments[0].ISIN = ""
		if err := cfg.Validate(); err == nil {
			t.Error("query with neither ISIN nor symbol+currency should be rejected")
		}
	})

	t.Run("Non Positive Timeout", func(t *testing.T) {
		cfg := base(t)
		cfg.Timeouts.PollIntervalMS = 0
		if err := cfg.Validate(); err == nil {
			t.Error("zero poll interval should be rejected")
		}
	})

	t.Run("Storage Enabled Without Path", func(t *testing.T) {
		cfg := base(t)
		cfg.Storage.Enabled = true
		cfg.Storage.Path = ""
		if err := cfg.Validate(); err == nil {
			t.Error("storage without path should be rejected")
		}
	})
}
