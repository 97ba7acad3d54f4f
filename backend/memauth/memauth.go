// Package memauth is a deterministic in-memory backend for tests and
// demos. It compares secrets in constant time, can simulate backend
// latency, and can be scripted to fail.
package memauth

import (
	"context"
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	"github.com/greetline/autosubmit/backend"
)

// Mem holds username to password mappings.
type Mem struct {
	mu      sync.Mutex
	users   map[string][]byte
	latency time.Duration
	// failNext scripts the next conversations: ErrUnavailable from Begin.
	failNext int
	begun    int
}

type Option func(*Mem)

// WithLatency makes every SubmitSecret sleep, honoring ctx cancellation.
func WithLatency(d time.Duration) Option {
	return func(m *Mem) { m.latency = d }
}

func New(users map[string]string, opts ...Option) *Mem {
	m := &Mem{users: make(map[string][]byte, len(users))}
	for u, p := range users {
		m.users[u] = []byte(p)
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// SetPassword adds or replaces a user.
func (m *Mem) SetPassword(username, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[username] = []byte(password)
}

// FailNext makes the next n Begin calls return ErrUnavailable.
func (m *Mem) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

// BegunConversations reports how many conversations were opened.
func (m *Mem) BegunConversations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.begun
}

func (m *Mem) Begin(ctx context.Context, username string) (backend.Handle, error) {
	if strings.TrimSpace(username) == "" {
		return nil, backend.ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNext > 0 {
		m.failNext--
		return nil, backend.ErrUnavailable
	}
	m.begun++

	var want []byte
	if p, ok := m.users[username]; ok {
		want = make([]byte, len(p))
		copy(want, p)
	}
	return &conversation{
		want:    want,
		known:   want != nil,
		latency: m.latency,
	}, nil
}

type conversation struct {
	want    []byte
	known   bool
	latency time.Duration
	done    bool
}

func (c *conversation) SubmitSecret(ctx context.Context, secret []byte) (backend.Decision, error) {
	if c.done {
		return backend.Decision{}, backend.ErrConversationClosed
	}

	if c.latency > 0 {
		select {
		case <-time.After(c.latency):
		case <-ctx.Done():
			return backend.Decision{}, ctx.Err()
		}
	}

	if !c.known {
		return backend.Decision{Result: backend.ResultRejected}, nil
	}
	if subtle.ConstantTimeCompare(secret, c.want) == 1 {
		return backend.Decision{Result: backend.ResultAccepted}, nil
	}
	return backend.Decision{Result: backend.ResultRejected}, nil
}

func (c *conversation) End() error {
	c.done = true
	for i := range c.want {
		c.want[i] = 0
	}
	c.want = nil
	return nil
}
