package backend

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable reports that the backend could not be reached or did
	// not answer in time. It is transport trouble, not a verdict on the
	// credential.
	ErrUnavailable = errors.New("authentication backend unavailable")
	// ErrConversationClosed reports use of a Handle after End.
	ErrConversationClosed = errors.New("authentication conversation closed")
)

// Result classifies one verification verdict.
type Result uint8

const (
	// ResultAccepted means the credential is correct.
	ResultAccepted Result = iota
	// ResultRejected means the credential is definitively wrong.
	ResultRejected
	// ResultError means the backend hit an unexpected condition and no
	// verdict exists.
	ResultError
)

func (r Result) String() string {
	switch r {
	case ResultAccepted:
		return "accepted"
	case ResultRejected:
		return "rejected"
	case ResultError:
		return "error"
	default:
		return "unknown"
	}
}

// Decision is the backend's answer for one submitted secret. Detail is a
// redacted reason for ResultError; it must never echo the secret.
type Decision struct {
	Result Result
	Detail string
}

// Handle is one open authentication conversation for one username.
// SubmitSecret may be called at most once per conversation; End releases
// backend resources and must always be called, on every path.
type Handle interface {
	SubmitSecret(ctx context.Context, secret []byte) (Decision, error)
	End() error
}

// Backend opens authentication conversations. Implementations must treat
// the secret slice as borrowed for the duration of the call and must not
// retain, log, or persist it.
type Backend interface {
	Begin(ctx context.Context, username string) (Handle, error)
}
