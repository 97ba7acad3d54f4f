package autosubmit

import "github.com/greetline/autosubmit/internal/secbuf"

// accumulator is the credential buffer plus its generation counter. The
// generation increments on every content change, including backspaces and
// clears, and is the token that lets the controller tell a fresh backend
// outcome from a stale one. Callers hold the engine mutex.
type accumulator struct {
	buf        secbuf.Buffer
	generation uint64
}

// append records one typed rune and bumps the generation.
func (a *accumulator) append(r rune) BufferSnapshot {
	a.buf.AppendRune(r)
	a.generation++
	return a.snapshot()
}

// backspace removes the final rune. A backspace on an empty buffer is a
// no-op and does not bump the generation.
func (a *accumulator) backspace() BufferSnapshot {
	if a.buf.TrimLastRune() {
		a.generation++
	}
	return a.snapshot()
}

// secret copies the current content. The caller owns the copy and wipes
// it when the validation request finishes.
func (a *accumulator) secret() []byte {
	return a.buf.Bytes()
}

// clear wipes the buffer. Clearing counts as a content change so any
// in-flight outcome for the old content becomes stale.
func (a *accumulator) clear() {
	if a.buf.Len() > 0 {
		a.generation++
	}
	a.buf.Clear()
}

func (a *accumulator) length() int {
	return a.buf.Len()
}

func (a *accumulator) snapshot() BufferSnapshot {
	return BufferSnapshot{
		Length:     a.buf.Len(),
		Generation: a.generation,
	}
}
