package autosubmit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// AuditEvent is one security-relevant engine event. Events carry the
// username, attempt identifiers, and outcome classification only. They
// never carry credential content or credential length; sinks can rely on
// that and persist events verbatim.
type AuditEvent struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	EventType  string            `json:"event_type"`
	Username   string            `json:"username,omitempty"`
	AttemptID  string            `json:"attempt_id,omitempty"`
	Generation uint64            `json:"generation,omitempty"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Event types emitted by the engine.
const (
	AuditValidationAccepted = "validation_accepted"
	AuditValidationRejected = "validation_rejected"
	AuditBackendUnavailable = "backend_unavailable"
	AuditBackendError       = "backend_error"
	AuditLockoutEngaged     = "lockout_engaged"
	AuditLockoutRefused     = "lockout_refused"
	AuditSessionAdmitted    = "session_admitted"
	AuditAttemptCancelled   = "attempt_cancelled"
	AuditReceiptIssueFailed = "receipt_issue_failed"
)

// AuditSink receives engine events. Emit is called from the dispatcher
// goroutine, never from a keystroke path, so sinks may block briefly.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events onto a channel for in-process consumers.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line to an io.Writer.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// MultiSink fans one event out to several sinks in order.
type MultiSink struct {
	sinks []AuditSink
}

func NewMultiSink(sinks ...AuditSink) *MultiSink {
	out := make([]AuditSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &MultiSink{sinks: out}
}

func (s *MultiSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil {
		return
	}
	for _, sink := range s.sinks {
		sink.Emit(ctx, event)
	}
}
