package main

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/greetline/autosubmit"
)

// fileConfig is the on-disk TOML shape. Durations are plain integers in
// the units operators already know from greeter configs.
type fileConfig struct {
	Greeter  greeterSection  `toml:"greeter"`
	Security securitySection `toml:"security"`
	Backend  backendSection  `toml:"backend"`
	Audit    auditSection    `toml:"audit"`
	Metrics  metricsSection  `toml:"metrics"`
}

type greeterSection struct {
	AutoSubmit        bool   `toml:"auto_submit"`
	ValidationDelayMs int    `toml:"validation_delay_ms"`
	MinPasswordLength int    `toml:"min_password_length"`
	DefaultUser       string `toml:"default_user"`
}

type securitySection struct {
	MaxAttempts int `toml:"max_attempts"`
	// LockoutTime is in seconds.
	LockoutTime int `toml:"lockout_time"`
}

type backendSection struct {
	// Kind selects the backend: "shadow", "su", or "demo".
	Kind string `toml:"kind"`
	// ShadowPath overrides /etc/shadow for the shadow backend.
	ShadowPath string `toml:"shadow_path"`
	// CallTimeoutMs bounds one validation round trip.
	CallTimeoutMs int `toml:"call_timeout_ms"`
}

type auditSection struct {
	Enabled bool `toml:"enabled"`
	// Path of the SQLite audit database.
	Path string `toml:"path"`
	// RetentionDays of audit history to keep.
	RetentionDays int `toml:"retention_days"`
}

type metricsSection struct {
	Enabled bool `toml:"enabled"`
	// ListenAddr serves /metrics when non-empty, e.g. "127.0.0.1:9310".
	ListenAddr string `toml:"listen_addr"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Greeter: greeterSection{
			AutoSubmit:        true,
			ValidationDelayMs: 300,
			MinPasswordLength: 4,
		},
		Security: securitySection{
			MaxAttempts: 5,
			LockoutTime: 60,
		},
		Backend: backendSection{
			Kind:          "shadow",
			ShadowPath:    "/etc/shadow",
			CallTimeoutMs: 6000,
		},
		Audit: auditSection{
			Enabled:       true,
			Path:          "/var/lib/greetline/audit.db",
			RetentionDays: 30,
		},
		Metrics: metricsSection{
			Enabled: true,
		},
	}
}

// loadConfig reads path when it exists and overlays it on the defaults.
// A missing file is not an error; a malformed one is.
func loadConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// engineConfig converts the file shape into the engine's Config.
func (c fileConfig) engineConfig() autosubmit.Config {
	cfg := autosubmit.Config{
		AutoSubmit:        c.Greeter.AutoSubmit,
		ValidationDelay:   time.Duration(c.Greeter.ValidationDelayMs) * time.Millisecond,
		MinPasswordLength: c.Greeter.MinPasswordLength,
		MaxAttempts:       c.Security.MaxAttempts,
		LockoutTime:       time.Duration(c.Security.LockoutTime) * time.Second,
	}
	cfg.AllowImmediateValidation = c.Greeter.ValidationDelayMs == 0
	cfg.Backend.CallTimeout = time.Duration(c.Backend.CallTimeoutMs) * time.Millisecond
	cfg.Audit.Enabled = c.Audit.Enabled
	cfg.Audit.BufferSize = 1024
	cfg.Audit.DropIfFull = true
	cfg.Metrics.Enabled = c.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = c.Metrics.Enabled
	return cfg
}
