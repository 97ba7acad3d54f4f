package autosubmit

import (
	"context"
	"errors"
	"time"

	"github.com/greetline/autosubmit/backend"
	"github.com/greetline/autosubmit/internal/secbuf"
)

// validationRequest is one unit of work for the gateway: a username, an
// owned secret copy, and the buffer generation that produced it.
type validationRequest struct {
	username   string
	secret     []byte
	generation uint64
	attemptID  string
	issuedAt   time.Time
}

// gateway runs the backend conversation for one request and maps the
// result onto an Outcome. It owns nothing between calls; all state lives
// in the request and the backend handle.
type gateway struct {
	backend backend.Backend
	timeout time.Duration
}

// validate drives Begin, SubmitSecret, End for one request. The secret is
// wiped before validate returns, on every path. Errors never escape as
// errors; every failure mode becomes an Outcome so the controller has one
// delivery channel.
func (g *gateway) validate(ctx context.Context, req validationRequest) Outcome {
	defer secbuf.Wipe(req.secret)

	start := time.Now()
	out := Outcome{
		Generation: req.generation,
		AttemptID:  req.attemptID,
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	h, err := g.backend.Begin(ctx, req.username)
	if err != nil {
		out.Kind = classifyTransportError(err)
		out.Detail = detailFor(out.Kind)
		out.Latency = time.Since(start)
		return out
	}

	decision, err := h.SubmitSecret(ctx, req.secret)
	// A failed End after a clean verdict does not change the verdict.
	_ = h.End()
	out.Latency = time.Since(start)

	if err != nil {
		out.Kind = classifyTransportError(err)
		out.Detail = detailFor(out.Kind)
		return out
	}

	switch decision.Result {
	case backend.ResultAccepted:
		out.Kind = OutcomeAccepted
	case backend.ResultRejected:
		out.Kind = OutcomeRejected
	default:
		out.Kind = OutcomeBackendError
		out.Detail = decision.Detail
	}
	return out
}

func classifyTransportError(err error) OutcomeKind {
	switch {
	case errors.Is(err, backend.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return OutcomeBackendUnavailable
	default:
		return OutcomeBackendError
	}
}

// detailFor returns fixed strings so no backend error text, which could
// quote its input, reaches notifiers or audit sinks.
func detailFor(kind OutcomeKind) string {
	switch kind {
	case OutcomeBackendUnavailable:
		return "backend unreachable or timed out"
	case OutcomeBackendError:
		return "backend reported an internal error"
	default:
		return ""
	}
}
