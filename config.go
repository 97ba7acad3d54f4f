package autosubmit

import (
	"errors"
	"time"
)

// Config controls the engine. Instances are configured before
// [Builder.Build] and treated as immutable afterwards.
type Config struct {
	// AutoSubmit enables debounce-driven validation. When false the
	// engine only validates on an explicit Submit call.
	AutoSubmit bool

	// ValidationDelay is the debounce window between the last edit and a
	// validation attempt. Zero means validate on every keystroke, which
	// is only accepted when AllowImmediateValidation is set.
	ValidationDelay time.Duration

	// AllowImmediateValidation is the explicit opt-in for
	// ValidationDelay == 0.
	AllowImmediateValidation bool

	// MinPasswordLength is the shortest buffer worth checking. Buffers
	// below it never produce a validation request.
	MinPasswordLength int

	// MaxAttempts is the number of consecutive rejections that engages
	// the lockout window.
	MaxAttempts int

	// LockoutTime is the length of the lockout window. Zero disables
	// lockout entirely (failures are still counted and audited).
	LockoutTime time.Duration

	Backend BackendConfig
	Audit   AuditConfig
	Metrics MetricsConfig
	Receipt ReceiptConfig
}

// BackendConfig bounds the backend conversation.
type BackendConfig struct {
	// CallTimeout caps one Begin+SubmitSecret round trip. Expiry is
	// surfaced as OutcomeBackendUnavailable. Zero means no cap.
	CallTimeout time.Duration
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit non-blocking: events beyond the buffer are
	// counted as dropped instead of applying backpressure.
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// ReceiptConfig controls signed admission receipts handed to the session
// layer on successful admission.
type ReceiptConfig struct {
	Enabled bool
	// Key is the HS256 signing key. Required when Enabled.
	Key    []byte
	TTL    time.Duration
	Issuer string
}

func defaultConfig() Config {
	return Config{
		AutoSubmit:        true,
		ValidationDelay:   300 * time.Millisecond,
		MinPasswordLength: 4,
		MaxAttempts:       5,
		LockoutTime:       60 * time.Second,
		Backend: BackendConfig{
			CallTimeout: 6 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Receipt: ReceiptConfig{
			Enabled: false,
			TTL:     5 * time.Minute,
			Issuer:  "autosubmit",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Receipt.Key = cloneBytes(cfg.Receipt.Key)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.ValidationDelay < 0 {
		return errors.New("ValidationDelay must be >= 0")
	}
	if c.ValidationDelay == 0 && c.AutoSubmit && !c.AllowImmediateValidation {
		return errors.New("ValidationDelay of 0 validates on every keystroke and requires AllowImmediateValidation")
	}
	if c.MinPasswordLength < 1 {
		return errors.New("MinPasswordLength must be >= 1")
	}
	if c.MaxAttempts < 1 {
		return errors.New("MaxAttempts must be >= 1")
	}
	if c.LockoutTime < 0 {
		return errors.New("LockoutTime must be >= 0")
	}
	if c.Backend.CallTimeout < 0 {
		return errors.New("Backend CallTimeout must be >= 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Receipt.Enabled {
		if len(c.Receipt.Key) < 32 {
			return errors.New("Receipt Key must be >= 32 bytes when receipts are enabled")
		}
		if c.Receipt.TTL <= 0 {
			return errors.New("Receipt TTL must be > 0 when receipts are enabled")
		}
		if c.Receipt.Issuer == "" {
			return errors.New("Receipt Issuer is required when receipts are enabled")
		}
	}

	return nil
}
