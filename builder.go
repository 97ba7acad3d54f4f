package autosubmit

import (
	"context"
	"errors"

	"github.com/greetline/autosubmit/backend"
)

// Builder assembles an Engine. A builder is single-use; Build returns an
// error on reuse.
type Builder struct {
	config   Config
	backend  backend.Backend
	notifier Notifier
	sink     AuditSink

	built bool
}

func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBackend sets the authentication backend. Required.
func (b *Builder) WithBackend(be backend.Backend) *Builder {
	b.backend = be
	return b
}

// WithNotifier sets the presentation callback surface. Defaults to
// NoOpNotifier.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets the audit destination and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the backend latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithReceiptKey enables signed admission receipts with the given HS256
// key.
func (b *Builder) WithReceiptKey(key []byte) *Builder {
	b.config.Receipt.Enabled = len(key) > 0
	b.config.Receipt.Key = cloneBytes(key)
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.backend == nil {
		return nil, errors.New("authentication backend required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	notifier := b.notifier
	if notifier == nil {
		notifier = NoOpNotifier{}
	}

	baseCtx, cancel := context.WithCancel(context.Background())

	engine := &Engine{
		config: cfg,
		gw: &gateway{
			backend: b.backend,
			timeout: cfg.Backend.CallTimeout,
		},
		policy:    newLockoutPolicy(cfg.MaxAttempts, cfg.LockoutTime),
		notifier:  notifier,
		audit:     newAuditDispatcher(cfg.Audit, b.sink),
		metrics:   NewMetrics(cfg.Metrics),
		receipts:  newReceiptIssuer(cfg.Receipt),
		baseCtx:   baseCtx,
		cancelAll: cancel,
		state:     StateIdle,
	}
	engine.sched = newDebounceScheduler(cfg.ValidationDelay, cfg.MinPasswordLength, engine.onFire)

	b.built = true

	return engine, nil
}
