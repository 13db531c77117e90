package infra

import (
	"fmt"
	"os"
	"time"

	"gwdiag/internal/domain"

	"gopkg.in/yaml.v3"
)

// Config holds the immutable configuration snapshot for one diagnostic run.
// Loaded once at start-up; the account credential can be overridden through
// the environment after loading.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Gateway struct {
		Host      string `yaml:"host"`
		Port      int    `yaml:"port"`
		SessionID int    `yaml:"session_id"`
		Account   string `yaml:"account"`
	} `yaml:"gateway"`

	Timeouts struct {
		ProbeMS          int `yaml:"probe_ms"`
		HandshakeMS      int `yaml:"handshake_ms"`
		ResolveAttemptMS int `yaml:"resolve_attempt_ms"`
		PollIntervalMS   int `yaml:"poll_interval_ms"`
		SnapshotMaxMS    int `yaml:"snapshot_max_ms"`
		HistoryRequestMS int `yaml:"history_request_ms"`
		RunDeadlineSec   int `yaml:"run_deadline_sec"` // 0 disables the run deadline
	} `yaml:"timeouts"`

	Snapshot struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"snapshot"`

	History struct {
		Enabled     bool   `yaml:"enabled"`
		BarSize     string `yaml:"bar_size"`
		RangeDays   int    `yaml:"range_days"`
		MaxSpanDays int    `yaml:"max_span_days"`
	} `yaml:"history"`

	Storage struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Instruments []domain.InstrumentQuery `yaml:"instruments"`
}

// LoadConfig reads and parses the configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Gateway.Host == "" {
		return fmt.Errorf("gateway host is required")
	}
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
	}
	if c.Gateway.SessionID <= 0 {
		return fmt.Errorf("session id must be a positive integer, got %d", c.Gateway.SessionID)
	}

	if c.Timeouts.ProbeMS <= 0 || c.Timeouts.HandshakeMS <= 0 ||
		c.Timeouts.ResolveAttemptMS <= 0 || c.Timeouts.PollIntervalMS <= 0 ||
		c.Timeouts.SnapshotMaxMS <= 0 || c.Timeouts.HistoryRequestMS <= 0 {
		return fmt.Errorf("all timeouts must be positive")
	}
	if c.Timeouts.RunDeadlineSec < 0 {
		return fmt.Errorf("run deadline cannot be negative")
	}

	if c.History.Enabled {
		if c.History.RangeDays <= 0 {
			return fmt.Errorf("history range must be positive, got %d days", c.History.RangeDays)
		}
		if c.History.MaxSpanDays <= 0 {
			return fmt.Errorf("history max span must be positive, got %d days", c.History.MaxSpanDays)
		}
		if c.History.BarSize == "" {
			return fmt.Errorf("history bar size is required")
		}
	}

	if c.Storage.Enabled && c.Storage.Path == "" {
		return fmt.Errorf("storage path is required when storage is enabled")
	}

	if len(c.Instruments) == 0 {
		return fmt.Errorf("at least one instrument is required")
	}
	for i, q := range c.Instruments {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("instrument %d: %w", i, err)
		}
	}

	return nil
}

// Timeout accessors converting config integers into durations.

func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Timeouts.ProbeMS) * time.Millisecond
}

func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Timeouts.HandshakeMS) * time.Millisecond
}

func (c *Config) ResolveAttemptTimeout() time.Duration {
	return time.Duration(c.Timeouts.ResolveAttemptMS) * time.Millisecond
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Timeouts.PollIntervalMS) * time.Millisecond
}

func (c *Config) SnapshotMaxWait() time.Duration {
	return time.Duration(c.Timeouts.SnapshotMaxMS) * time.Millisecond
}

func (c *Config) HistoryRequestTimeout() time.Duration {
	return time.Duration(c.Timeouts.HistoryRequestMS) * time.Millisecond
}

func (c *Config) RunDeadline() time.Duration {
	return time.Duration(c.Timeouts.RunDeadlineSec) * time.Second
}

func (c *Config) HistoryMaxSpan() time.Duration {
	return time.Duration(c.History.MaxSpanDays) * 24 * time.Hour
}

// overrideWithEnv overrides sensitive values from the environment
func overrideWithEnv(cfg *Config) {
	if account := os.Getenv("GWDIAG_ACCOUNT"); account != "" {
		cfg.Gateway.Account = account
	}
}
