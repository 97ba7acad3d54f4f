package autosubmit

import "time"

// SessionState is the Auto-Submit Controller's state for the live login
// attempt. Exactly one attempt is live per engine at a time.
type SessionState uint8

const (
	// StateIdle means no credential has been typed yet.
	StateIdle SessionState = iota
	// StateAwaitingDebounce means edits are happening; the buffer is below
	// the minimum length or the debounce timer has not elapsed.
	StateAwaitingDebounce
	// StateValidating means one validation request is in flight.
	StateValidating
	// StateLockedOut means the attempt policy refuses validation until the
	// lockout window passes.
	StateLockedOut
	// StateAdmitted is the terminal success state.
	StateAdmitted
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingDebounce:
		return "awaiting_debounce"
	case StateValidating:
		return "validating"
	case StateLockedOut:
		return "locked_out"
	case StateAdmitted:
		return "admitted"
	default:
		return "unknown"
	}
}

// OutcomeKind classifies the result of one backend validation request.
type OutcomeKind uint8

const (
	// OutcomeAccepted means the backend proved the credential correct.
	OutcomeAccepted OutcomeKind = iota
	// OutcomeRejected means the backend proved the credential wrong.
	OutcomeRejected
	// OutcomeBackendUnavailable means the backend was unreachable or the
	// call timed out; not proof the credential was wrong.
	OutcomeBackendUnavailable
	// OutcomeBackendError means the backend hit an unexpected condition;
	// not proof the credential was wrong.
	OutcomeBackendError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeBackendUnavailable:
		return "backend_unavailable"
	case OutcomeBackendError:
		return "backend_error"
	default:
		return "unknown"
	}
}

// Outcome is the typed result of one validation request, tagged with the
// credential buffer generation it answers. An outcome whose generation no
// longer matches the buffer is stale and is discarded without side effects.
type Outcome struct {
	Kind       OutcomeKind
	Generation uint64
	AttemptID  string
	// Detail carries a redacted reason for OutcomeBackendError. It must
	// never contain credential material.
	Detail  string
	Latency time.Duration
}

// Err maps the outcome onto the package's sentinel errors. Accepted maps
// to nil.
func (o Outcome) Err() error {
	switch o.Kind {
	case OutcomeAccepted:
		return nil
	case OutcomeRejected:
		return ErrRejectedCredential
	case OutcomeBackendUnavailable:
		return ErrBackendUnavailable
	default:
		return ErrBackendError
	}
}

// BufferSnapshot is the externally visible view of the credential buffer:
// character count and generation, never content.
type BufferSnapshot struct {
	Length     int
	Generation uint64
}

// KeyEvent is a single password-field edit: one rune appended, or one
// rune removed when Backspace is set.
type KeyEvent struct {
	Rune      rune
	Backspace bool
}

// LockoutState is a read-only snapshot of the attempt policy.
type LockoutState struct {
	ConsecutiveFailures int
	// Until is the zero time when no lockout window is active.
	Until time.Time
}

// Notifier is the presentation/session layer contract. The engine calls
// these methods and never reads from or blocks on the presentation layer;
// implementations must return quickly (hand off to an event loop rather
// than doing work inline).
//
// OnAdmitted is invoked exactly once per admitted attempt. The receipt is
// a signed admission token when receipts are enabled, otherwise empty.
type Notifier interface {
	OnStateChanged(state SessionState)
	OnAdmitted(username, receipt string)
	OnLockedOut(remaining time.Duration)
	OnBackendWarning(message string)
}

// NoOpNotifier discards all engine notifications.
type NoOpNotifier struct{}

func (NoOpNotifier) OnStateChanged(SessionState) {}
func (NoOpNotifier) OnAdmitted(string, string)   {}
func (NoOpNotifier) OnLockedOut(time.Duration)   {}
func (NoOpNotifier) OnBackendWarning(string)     {}
