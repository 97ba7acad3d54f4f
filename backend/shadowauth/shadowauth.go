// Package shadowauth verifies credentials against the host shadow
// database using the crypt(3) hash formats the GehirnInc crypters
// implement. Hashes in formats it cannot verify locally, yescrypt above
// all, are delegated to a fallback backend when one is configured.
package shadowauth

import (
	"context"
	"errors"
	"strings"

	"github.com/GehirnInc/crypt"
	"github.com/GehirnInc/crypt/md5_crypt"
	"github.com/GehirnInc/crypt/sha256_crypt"
	"github.com/GehirnInc/crypt/sha512_crypt"
	"golang.org/x/crypto/bcrypt"

	"github.com/greetline/autosubmit/backend"
)

var errUnsupportedHash = errors.New("unsupported password hash")

// Shadow verifies against entries loaded from a shadow(5) file.
type Shadow struct {
	path string
	// fallback handles hash formats verifyCrypt cannot, typically a
	// suauth backend. Nil means such users get ResultError.
	fallback backend.Backend
	load     func(path string) (map[string]string, error)
}

// Option configures a Shadow backend.
type Option func(*Shadow)

// WithFallback delegates unsupported hash formats to another backend.
func WithFallback(b backend.Backend) Option {
	return func(s *Shadow) { s.fallback = b }
}

// withLoader replaces the shadow file loader, for tests.
func withLoader(load func(path string) (map[string]string, error)) Option {
	return func(s *Shadow) { s.load = load }
}

// New returns a backend reading the shadow file at path, normally
// /etc/shadow. The file is re-read per conversation so password changes
// take effect without a restart.
func New(path string, opts ...Option) *Shadow {
	s := &Shadow{
		path: path,
		load: loadShadow,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Begin loads the user's hash. Loading happens here rather than in
// SubmitSecret so an unreadable shadow file surfaces as ErrUnavailable
// before any secret is handled.
func (s *Shadow) Begin(ctx context.Context, username string) (backend.Handle, error) {
	if strings.TrimSpace(username) == "" {
		return nil, errors.New("empty username")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := s.load(s.path)
	if err != nil {
		return nil, backend.ErrUnavailable
	}

	hash, found := entries[username]
	return &conversation{
		parent:   s,
		ctx:      ctx,
		username: username,
		hash:     hash,
		found:    found,
	}, nil
}

type conversation struct {
	parent   *Shadow
	ctx      context.Context
	username string
	hash     string
	found    bool
	done     bool
}

func (c *conversation) SubmitSecret(ctx context.Context, secret []byte) (backend.Decision, error) {
	if c.done {
		return backend.Decision{}, backend.ErrConversationClosed
	}
	if err := ctx.Err(); err != nil {
		return backend.Decision{}, err
	}

	if !c.found {
		// Unknown user is a rejection, indistinguishable from a wrong
		// password to the caller.
		return backend.Decision{Result: backend.ResultRejected}, nil
	}
	if lockedHash(c.hash) {
		return backend.Decision{Result: backend.ResultRejected}, nil
	}

	ok, err := verifyCrypt(c.hash, secret)
	if err != nil {
		if errors.Is(err, errUnsupportedHash) && c.parent.fallback != nil {
			return c.delegate(ctx, secret)
		}
		return backend.Decision{
			Result: backend.ResultError,
			Detail: "unsupported password hash format",
		}, nil
	}
	if !ok {
		return backend.Decision{Result: backend.ResultRejected}, nil
	}
	return backend.Decision{Result: backend.ResultAccepted}, nil
}

func (c *conversation) delegate(ctx context.Context, secret []byte) (backend.Decision, error) {
	h, err := c.parent.fallback.Begin(ctx, c.username)
	if err != nil {
		return backend.Decision{}, err
	}
	defer func() { _ = h.End() }()
	return h.SubmitSecret(ctx, secret)
}

func (c *conversation) End() error {
	c.done = true
	c.hash = ""
	return nil
}

// lockedHash reports entries disabled with the usual ! or * markers.
func lockedHash(hash string) bool {
	return hash == "" || strings.HasPrefix(hash, "!") || strings.HasPrefix(hash, "*")
}

func verifyCrypt(hash string, secret []byte) (bool, error) {
	// $2* bcrypt is checked directly; some BSD-flavored hosts still use it.
	if strings.HasPrefix(hash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(hash), secret) == nil, nil
	}

	// $1$ md5-crypt, $5$ sha256-crypt, $6$ sha512-crypt. yescrypt ($y$)
	// and scrypt ($7$) need the fallback.
	crypters := []crypt.Crypter{
		sha512_crypt.New(),
		sha256_crypt.New(),
		md5_crypt.New(),
	}

	for _, c := range crypters {
		if err := c.Verify(hash, secret); err == nil {
			return true, nil
		}
	}

	if strings.HasPrefix(hash, "$y$") || strings.HasPrefix(hash, "$7$") {
		return false, errUnsupportedHash
	}
	return false, nil
}
