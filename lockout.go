package autosubmit

import (
	"sync"
	"time"
)

// lockoutPolicy counts consecutive credential rejections and refuses
// validation for a fixed window once the threshold is reached. Only
// definitive rejections count; backend unavailability and backend errors
// leave the counter alone. Expiry is evaluated lazily against the wall
// clock, so no timer goroutine is needed.
type lockoutPolicy struct {
	mu          sync.Mutex
	maxAttempts int
	lockoutTime time.Duration
	failures    int
	until       time.Time
	now         func() time.Time
}

func newLockoutPolicy(maxAttempts int, lockoutTime time.Duration) *lockoutPolicy {
	return &lockoutPolicy{
		maxAttempts: maxAttempts,
		lockoutTime: lockoutTime,
		now:         time.Now,
	}
}

// MayAttempt reports whether validation is currently permitted. When it
// is not, remaining is the time left in the lockout window. An expired
// window resets the failure counter on first observation.
func (p *lockoutPolicy) MayAttempt() (ok bool, remaining time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.until.IsZero() {
		return true, 0
	}
	now := p.now()
	if now.Before(p.until) {
		return false, p.until.Sub(now)
	}

	// Window passed; the user starts fresh.
	p.until = time.Time{}
	p.failures = 0
	return true, 0
}

// RecordOutcome updates the counter from one validation outcome and
// reports whether this outcome engaged the lockout window.
func (p *lockoutPolicy) RecordOutcome(kind OutcomeKind) (lockedNow bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch kind {
	case OutcomeAccepted:
		p.failures = 0
		p.until = time.Time{}
	case OutcomeRejected:
		p.failures++
		if p.failures >= p.maxAttempts && p.lockoutTime > 0 && p.until.IsZero() {
			p.until = p.now().Add(p.lockoutTime)
			return true
		}
	case OutcomeBackendUnavailable, OutcomeBackendError:
		// Infrastructure trouble is not evidence against the user.
	}
	return false
}

// ResetFailures clears the counter without touching an active window.
// Used when the attempt context changes, e.g. a different username.
func (p *lockoutPolicy) ResetFailures() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = 0
}

// Snapshot returns the current counter and window end for introspection.
func (p *lockoutPolicy) Snapshot() LockoutState {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := LockoutState{
		ConsecutiveFailures: p.failures,
		Until:               p.until,
	}
	if !s.Until.IsZero() && !p.now().Before(s.Until) {
		s = LockoutState{}
	}
	return s
}
