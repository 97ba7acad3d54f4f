package autosubmit

import (
	"sync"
	"time"
)

// fireFunc receives the buffer generation the timer was armed for. The
// controller re-checks the generation under its own lock, so a fire racing
// a keystroke is harmless.
type fireFunc func(generation uint64)

// debounceScheduler arms one timer per edit. Every edit cancels the
// previous timer, so the callback runs only after the configured quiet
// period with no typing. Buffers below the minimum length never arm.
type debounceScheduler struct {
	delay     time.Duration
	minLength int
	fire      fireFunc

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

func newDebounceScheduler(delay time.Duration, minLength int, fire fireFunc) *debounceScheduler {
	return &debounceScheduler{
		delay:     delay,
		minLength: minLength,
		fire:      fire,
	}
}

// NoteEdit restarts the quiet-period countdown for the given buffer state.
// An edit that leaves the buffer below the minimum length cancels any
// pending timer and arms nothing.
func (s *debounceScheduler) NoteEdit(length int, generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.stopLocked()

	if length < s.minLength {
		return
	}

	if s.delay == 0 {
		// Immediate mode still leaves the keystroke path before firing.
		go s.fire(generation)
		return
	}

	gen := generation
	s.timer = time.AfterFunc(s.delay, func() {
		s.fire(gen)
	})
}

// Cancel stops any pending timer without firing.
func (s *debounceScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Close cancels and prevents further arming.
func (s *debounceScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.closed = true
}

func (s *debounceScheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
