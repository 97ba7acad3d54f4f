// Package suauth verifies credentials by driving su(1) behind a
// pseudo-terminal. It is the catch-all backend: whatever hash format the
// host uses, su can check it, at the cost of a process spawn per attempt.
package suauth

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/creack/pty"

	"github.com/greetline/autosubmit/backend"
)

// Su runs one su invocation per conversation.
type Su struct {
	// timeout bounds the whole su exchange. The zero value gets
	// DefaultTimeout in New.
	timeout time.Duration
}

// DefaultTimeout covers slow PAM stacks; su answering a wrong password
// often sleeps a couple of seconds before exiting.
const DefaultTimeout = 6 * time.Second

func New(timeout time.Duration) *Su {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Su{timeout: timeout}
}

func (s *Su) Begin(ctx context.Context, username string) (backend.Handle, error) {
	if strings.TrimSpace(username) == "" {
		return nil, errors.New("empty username")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &conversation{
		username: username,
		timeout:  s.timeout,
	}, nil
}

type conversation struct {
	username string
	timeout  time.Duration
	done     bool
}

func (c *conversation) SubmitSecret(ctx context.Context, secret []byte) (backend.Decision, error) {
	if c.done {
		return backend.Decision{}, backend.ErrConversationClosed
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// BusyBox and shadow-utils su both prompt on the controlling tty, so
	// the exchange has to happen behind a pty.
	cmd := exec.CommandContext(ctx, "su", "-s", "/bin/sh", "-c", "true", c.username)
	f, err := pty.Start(cmd)
	if err != nil {
		return backend.Decision{}, backend.ErrUnavailable
	}
	defer func() { _ = f.Close() }()

	prompted := false
	var out bytes.Buffer
	readerDone := make(chan struct{})

	go func() {
		defer close(readerDone)
		br := bufio.NewReader(f)
		buf := make([]byte, 4096)
		for {
			_ = f.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
			n, rerr := br.Read(buf)
			if n > 0 {
				out.Write(buf[:n])
				lower := strings.ToLower(out.String())
				if !prompted && strings.Contains(lower, "password") {
					prompted = true
					_, _ = f.Write(secret)
					_, _ = io.WriteString(f, "\n")
				}
			}
			if rerr != nil {
				return
			}
		}
	}()

	err = cmd.Wait()
	<-readerDone

	if err == nil {
		return backend.Decision{Result: backend.ResultAccepted}, nil
	}
	if ctx.Err() != nil {
		return backend.Decision{}, backend.ErrUnavailable
	}
	return backend.Decision{Result: backend.ResultRejected}, nil
}

func (c *conversation) End() error {
	c.done = true
	return nil
}
