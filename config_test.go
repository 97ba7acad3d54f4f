package autosubmit

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.ValidationDelay != 300*time.Millisecond {
		t.Fatalf("ValidationDelay = %v, want 300ms", cfg.ValidationDelay)
	}
	if cfg.MinPasswordLength != 4 {
		t.Fatalf("MinPasswordLength = %d, want 4", cfg.MinPasswordLength)
	}
	if cfg.MaxAttempts != 5 {
		t.Fatalf("MaxAttempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.LockoutTime != 60*time.Second {
		t.Fatalf("LockoutTime = %v, want 60s", cfg.LockoutTime)
	}
	if !cfg.AutoSubmit {
		t.Fatal("AutoSubmit defaults to false, want true")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "negative delay",
			mutate:  func(c *Config) { c.ValidationDelay = -time.Second },
			wantSub: "ValidationDelay",
		},
		{
			name: "zero delay without opt-in",
			mutate: func(c *Config) {
				c.ValidationDelay = 0
				c.AllowImmediateValidation = false
			},
			wantSub: "AllowImmediateValidation",
		},
		{
			name:    "zero min length",
			mutate:  func(c *Config) { c.MinPasswordLength = 0 },
			wantSub: "MinPasswordLength",
		},
		{
			name:    "zero max attempts",
			mutate:  func(c *Config) { c.MaxAttempts = 0 },
			wantSub: "MaxAttempts",
		},
		{
			name:    "negative lockout",
			mutate:  func(c *Config) { c.LockoutTime = -time.Minute },
			wantSub: "LockoutTime",
		},
		{
			name:    "negative backend timeout",
			mutate:  func(c *Config) { c.Backend.CallTimeout = -time.Second },
			wantSub: "CallTimeout",
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantSub: "BufferSize",
		},
		{
			name: "receipt enabled with short key",
			mutate: func(c *Config) {
				c.Receipt.Enabled = true
				c.Receipt.Key = []byte("short")
			},
			wantSub: "Key",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate accepted a bad config")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestZeroDelayAcceptedWithOptIn(t *testing.T) {
	cfg := defaultConfig()
	cfg.ValidationDelay = 0
	cfg.AllowImmediateValidation = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestCloneConfigCopiesReceiptKey(t *testing.T) {
	cfg := defaultConfig()
	cfg.Receipt.Key = []byte("0123456789abcdef0123456789abcdef")

	clone := cloneConfig(cfg)
	clone.Receipt.Key[0] = 'X'

	if cfg.Receipt.Key[0] == 'X' {
		t.Fatal("cloneConfig shares the receipt key backing array")
	}
}
