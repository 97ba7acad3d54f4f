package autosubmit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/greetline/autosubmit/backend"
)

// Engine is the auto-submit controller. One engine owns one live login
// attempt: the credential buffer, the debounce scheduler, the lockout
// policy, and at most one in-flight backend validation.
//
// All exported methods are safe for concurrent use, but the intended
// shape is a single interaction thread calling HandleKey, Submit, and
// Cancel while the engine's own goroutines deliver backend outcomes.
// Notifier callbacks are invoked without the engine lock held, so a
// callback may call back into the engine.
type Engine struct {
	config   Config
	gw       *gateway
	policy   *lockoutPolicy
	sched    *debounceScheduler
	notifier Notifier
	audit    *auditDispatcher
	metrics  *Metrics
	receipts *receiptIssuer

	baseCtx   context.Context
	cancelAll context.CancelFunc

	mu       sync.Mutex
	username string
	acc      accumulator
	state    SessionState
	admitted bool
	closed   bool

	// inflight tracks the single outstanding validation request.
	inflight    bool
	inflightGen uint64

	// pending remembers a fire that arrived while a request was in
	// flight; it is re-examined when the in-flight outcome lands.
	pending    bool
	pendingGen uint64

	wg sync.WaitGroup
}

// SelectUser starts a fresh attempt for the given username. Any typed
// credential is wiped, any pending debounce is cancelled, and the
// consecutive-failure counter resets. An in-flight validation for the
// previous user keeps running but its outcome will be stale on arrival.
// An active lockout window is not cleared; switching usernames is not an
// escape hatch.
func (e *Engine) SelectUser(username string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	e.sched.Cancel()
	e.acc.clear()
	e.username = username
	e.admitted = false
	e.pending = false
	e.policy.ResetFailures()
	notify := e.transitionLocked(StateIdle)
	e.mu.Unlock()

	notify()
	return nil
}

// HandleKey records one password-field edit and re-arms the debounce
// window. It never blocks on backend I/O. Edits after admission are
// ignored; edits during lockout accumulate but do not validate until the
// window passes.
func (e *Engine) HandleKey(ev KeyEvent) (BufferSnapshot, error) {
	if e == nil {
		return BufferSnapshot{}, ErrEngineNotReady
	}

	e.mu.Lock()
	if e.closed {
		snap := e.acc.snapshot()
		e.mu.Unlock()
		return snap, ErrEngineClosed
	}
	if e.state == StateAdmitted {
		snap := e.acc.snapshot()
		e.mu.Unlock()
		return snap, nil
	}

	var snap BufferSnapshot
	if ev.Backspace {
		snap = e.acc.backspace()
	} else {
		snap = e.acc.append(ev.Rune)
	}

	notify := func() {}
	switch {
	case snap.Length == 0 && e.state == StateAwaitingDebounce:
		notify = e.transitionLocked(StateIdle)
	case snap.Length > 0 && e.state == StateIdle:
		notify = e.transitionLocked(StateAwaitingDebounce)
	}

	if e.config.AutoSubmit {
		e.sched.NoteEdit(snap.Length, snap.Generation)
	}
	e.mu.Unlock()

	notify()
	return snap, nil
}

// Submit requests validation of the current buffer immediately, without
// waiting for the debounce window and without the minimum-length gate.
// It is the path for an explicit Enter keystroke and the only validation
// path when AutoSubmit is off.
func (e *Engine) Submit() error {
	if e == nil {
		return ErrEngineNotReady
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	if e.state == StateAdmitted {
		e.mu.Unlock()
		return nil
	}
	if e.username == "" {
		e.mu.Unlock()
		return ErrNoUserSelected
	}
	if e.acc.length() == 0 {
		e.mu.Unlock()
		return ErrBufferEmpty
	}

	gen := e.acc.generation
	if e.inflight {
		if e.inflightGen == gen {
			e.mu.Unlock()
			return nil
		}
		e.pending = true
		e.pendingGen = gen
		e.metrics.Inc(MetricRequestSuperseded)
		e.mu.Unlock()
		return nil
	}

	if ok, remaining := e.policy.MayAttempt(); !ok {
		notify := e.refuseLockedLocked(remaining)
		e.mu.Unlock()
		notify()
		return ErrLockoutActive
	}

	e.sched.Cancel()
	notify := e.startValidationLocked(gen)
	e.mu.Unlock()
	notify()
	return nil
}

// Cancel abandons the live attempt: the buffer is wiped, any pending
// debounce stops, and a later outcome for the abandoned content is
// discarded as stale. The failure counter and any lockout window are
// untouched.
func (e *Engine) Cancel() error {
	if e == nil {
		return ErrEngineNotReady
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	e.sched.Cancel()
	hadContent := e.acc.length() > 0
	e.acc.clear()
	e.pending = false
	notify := func() {}
	if e.state != StateAdmitted && e.state != StateLockedOut {
		notify = e.transitionLocked(StateIdle)
	}
	username := e.username
	e.mu.Unlock()

	if hadContent {
		e.metrics.Inc(MetricAttemptCancelled)
		e.emitAudit(AuditEvent{
			EventType: AuditAttemptCancelled,
			Username:  username,
			Success:   true,
		})
	}
	notify()
	return nil
}

// State reports the controller state.
func (e *Engine) State() SessionState {
	if e == nil {
		return StateIdle
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Buffer reports length and generation, never content.
func (e *Engine) Buffer() BufferSnapshot {
	if e == nil {
		return BufferSnapshot{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acc.snapshot()
}

// Username reports the selected username.
func (e *Engine) Username() string {
	if e == nil {
		return ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.username
}

// Lockout reports the attempt policy's current snapshot.
func (e *Engine) Lockout() LockoutState {
	if e == nil {
		return LockoutState{}
	}
	return e.policy.Snapshot()
}

// Metrics exposes the engine's counters. Nil when metrics are disabled
// is not possible; a disabled Metrics records nothing.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// AuditDropped reports audit events discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Close wipes the buffer, stops the scheduler, cancels any in-flight
// validation, and drains the audit queue. The engine is unusable
// afterwards. Idempotent.
func (e *Engine) Close() error {
	if e == nil {
		return ErrEngineNotReady
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.sched.Close()
	e.acc.clear()
	e.pending = false
	e.mu.Unlock()

	e.cancelAll()
	e.wg.Wait()
	e.audit.Close()
	return nil
}

// onFire is the debounce callback. It runs on a timer goroutine, so it
// re-validates everything under the lock before dispatching.
func (e *Engine) onFire(generation uint64) {
	e.mu.Lock()
	if e.closed || e.state == StateAdmitted {
		e.mu.Unlock()
		return
	}
	e.metrics.Inc(MetricDebounceFired)

	if generation != e.acc.generation {
		e.metrics.Inc(MetricStaleFireDiscarded)
		e.mu.Unlock()
		return
	}
	if e.acc.length() < e.config.MinPasswordLength || e.username == "" {
		e.mu.Unlock()
		return
	}

	if e.inflight {
		if e.inflightGen != generation {
			e.pending = true
			e.pendingGen = generation
			e.metrics.Inc(MetricRequestSuperseded)
		}
		e.mu.Unlock()
		return
	}

	if ok, remaining := e.policy.MayAttempt(); !ok {
		notify := e.refuseLockedLocked(remaining)
		e.mu.Unlock()
		notify()
		return
	}

	notify := e.startValidationLocked(generation)
	e.mu.Unlock()
	notify()
}

// startValidationLocked dispatches one backend request for the current
// buffer content. Caller holds the lock and has cleared lockout.
func (e *Engine) startValidationLocked(generation uint64) func() {
	req := validationRequest{
		username:   e.username,
		secret:     e.acc.secret(),
		generation: generation,
		attemptID:  uuid.NewString(),
		issuedAt:   time.Now(),
	}
	e.inflight = true
	e.inflightGen = generation
	e.pending = false
	notify := e.transitionLocked(StateValidating)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		out := e.gw.validate(e.baseCtx, req)
		e.deliverOutcome(req.username, out)
	}()

	return notify
}

// deliverOutcome applies one backend outcome. Stale outcomes, ones whose
// generation no longer matches the buffer, are discarded with no effect
// on the lockout counter or the notifier beyond a possible state revert.
func (e *Engine) deliverOutcome(username string, out Outcome) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if e.inflightGen == out.Generation {
		e.inflight = false
	}

	e.metrics.Observe(MetricValidateLatency, out.Latency)

	if out.Generation != e.acc.generation {
		e.metrics.Inc(MetricStaleOutcomeDiscarded)
		notify := e.resumeAfterStaleLocked()
		e.mu.Unlock()
		notify()
		return
	}

	var notify func()
	switch out.Kind {
	case OutcomeAccepted:
		notify = e.admitLocked(username, out)
	case OutcomeRejected:
		notify = e.rejectLocked(username, out)
	default:
		notify = e.backendTroubleLocked(username, out)
	}
	e.mu.Unlock()
	notify()
}

// resumeAfterStaleLocked decides what happens after a stale outcome is
// dropped: dispatch the remembered pending fire if it still describes
// the buffer, otherwise settle back into an editing state.
func (e *Engine) resumeAfterStaleLocked() func() {
	if e.state != StateValidating {
		return func() {}
	}
	if e.pending && !e.inflight &&
		e.pendingGen == e.acc.generation &&
		e.acc.length() >= e.config.MinPasswordLength {
		if ok, remaining := e.policy.MayAttempt(); !ok {
			return e.refuseLockedLocked(remaining)
		}
		return e.startValidationLocked(e.pendingGen)
	}
	e.pending = false
	if e.inflight {
		return func() {}
	}
	if e.acc.length() == 0 {
		return e.transitionLocked(StateIdle)
	}
	return e.transitionLocked(StateAwaitingDebounce)
}

func (e *Engine) admitLocked(username string, out Outcome) func() {
	e.policy.RecordOutcome(OutcomeAccepted)
	e.sched.Cancel()
	e.acc.clear()
	e.pending = false
	e.admitted = true
	notifyState := e.transitionLocked(StateAdmitted)

	e.metrics.Inc(MetricValidationAccepted)
	e.metrics.Inc(MetricSessionAdmitted)
	e.emitAudit(AuditEvent{
		EventType:  AuditValidationAccepted,
		Username:   username,
		AttemptID:  out.AttemptID,
		Generation: out.Generation,
		Success:    true,
	})
	e.emitAudit(AuditEvent{
		EventType: AuditSessionAdmitted,
		Username:  username,
		AttemptID: out.AttemptID,
		Success:   true,
	})

	receipt, err := e.receipts.issue(username)
	if err != nil {
		e.emitAudit(AuditEvent{
			EventType: AuditReceiptIssueFailed,
			Username:  username,
			AttemptID: out.AttemptID,
			Error:     err.Error(),
		})
		receipt = ""
	} else if receipt != "" {
		e.metrics.Inc(MetricReceiptIssued)
	}

	n := e.notifier
	return func() {
		notifyState()
		n.OnAdmitted(username, receipt)
	}
}

func (e *Engine) rejectLocked(username string, out Outcome) func() {
	e.metrics.Inc(MetricValidationRejected)
	e.emitAudit(AuditEvent{
		EventType:  AuditValidationRejected,
		Username:   username,
		AttemptID:  out.AttemptID,
		Generation: out.Generation,
		Success:    false,
	})

	if lockedNow := e.policy.RecordOutcome(OutcomeRejected); lockedNow {
		// A known-wrong credential has no retry value across a lockout
		// window; this is the one rejection path that wipes.
		e.sched.Cancel()
		e.acc.clear()
		e.pending = false

		e.metrics.Inc(MetricLockoutEngaged)
		e.emitAudit(AuditEvent{
			EventType: AuditLockoutEngaged,
			Username:  username,
			Success:   false,
		})
		notifyState := e.transitionLocked(StateLockedOut)
		remaining := e.config.LockoutTime
		n := e.notifier
		return func() {
			notifyState()
			n.OnLockedOut(remaining)
		}
	}

	// The wrong guess stays in the buffer: the user keeps typing past it,
	// and the next edit re-arms the debounce clock.
	return e.transitionLocked(StateAwaitingDebounce)
}

func (e *Engine) backendTroubleLocked(username string, out Outcome) func() {
	switch out.Kind {
	case OutcomeBackendUnavailable:
		e.metrics.Inc(MetricBackendUnavailable)
		e.emitAudit(AuditEvent{
			EventType:  AuditBackendUnavailable,
			Username:   username,
			AttemptID:  out.AttemptID,
			Generation: out.Generation,
			Success:    false,
			Error:      out.Detail,
		})
	default:
		e.metrics.Inc(MetricBackendError)
		e.emitAudit(AuditEvent{
			EventType:  AuditBackendError,
			Username:   username,
			AttemptID:  out.AttemptID,
			Generation: out.Generation,
			Success:    false,
			Error:      out.Detail,
		})
	}

	// Not a verdict on the credential: the buffer survives so the user
	// can retry with Submit once the backend recovers.
	e.policy.RecordOutcome(out.Kind)
	var notifyState func()
	if e.acc.length() == 0 {
		notifyState = e.transitionLocked(StateIdle)
	} else {
		notifyState = e.transitionLocked(StateAwaitingDebounce)
	}

	n := e.notifier
	detail := out.Detail
	return func() {
		notifyState()
		n.OnBackendWarning(detail)
	}
}

// refuseLockedLocked handles a validation attempt during an active
// lockout window.
func (e *Engine) refuseLockedLocked(remaining time.Duration) func() {
	e.metrics.Inc(MetricLockoutRefused)
	e.emitAudit(AuditEvent{
		EventType: AuditLockoutRefused,
		Username:  e.username,
		Success:   false,
	})
	notifyState := e.transitionLocked(StateLockedOut)
	n := e.notifier
	return func() {
		notifyState()
		n.OnLockedOut(remaining)
	}
}

// transitionLocked updates the state and returns the deferred notifier
// call. The caller runs the returned func after releasing the lock; it
// is a no-op when the state did not change.
func (e *Engine) transitionLocked(next SessionState) func() {
	if e.state == next {
		return func() {}
	}
	e.state = next
	n := e.notifier
	return func() {
		n.OnStateChanged(next)
	}
}

func (e *Engine) emitAudit(ev AuditEvent) {
	if e.audit == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.Timestamp = time.Now().UTC()
	e.audit.Emit(ev)
}

// Backend returns the configured backend, mainly for introspection in
// composed setups.
func (e *Engine) Backend() backend.Backend {
	if e == nil {
		return nil
	}
	return e.gw.backend
}
