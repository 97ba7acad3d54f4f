// Package secbuf holds in-progress credential material in buffers that can
// be overwritten on demand. It deliberately does not lock pages or defeat
// swap; the guarantee is that once Wipe or Clear returns, the bytes the
// process held are zero.
//
// # What this package must NOT do
//
//   - Expose credential bytes through String, Format, or error values.
//   - Be used for long-lived secrets such as signing keys.
package secbuf

import "unicode/utf8"

// Wipe overwrites b with zeros. Safe on nil and empty slices.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Buffer is an append-only rune buffer with destructive clearing. It is
// not safe for concurrent use; callers serialize access.
type Buffer struct {
	data  []byte
	runes int
}

// AppendRune appends one rune's UTF-8 encoding.
func (b *Buffer) AppendRune(r rune) {
	var enc [utf8.UTFMax]byte
	n := utf8.EncodeRune(enc[:], r)
	b.grow(n)
	b.data = append(b.data, enc[:n]...)
	Wipe(enc[:])
	b.runes++
}

// TrimLastRune removes the final rune. It reports whether anything was
// removed; the removed bytes are zeroed before the buffer shrinks.
func (b *Buffer) TrimLastRune() bool {
	if len(b.data) == 0 {
		return false
	}
	_, size := utf8.DecodeLastRune(b.data)
	cut := len(b.data) - size
	Wipe(b.data[cut:])
	b.data = b.data[:cut]
	b.runes--
	return true
}

// Len reports the rune count, not the byte count.
func (b *Buffer) Len() int {
	return b.runes
}

// Bytes copies the current content into a fresh slice the caller owns and
// must wipe.
func (b *Buffer) Bytes() []byte {
	if len(b.data) == 0 {
		return nil
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Clear wipes and empties the buffer. The backing array is zeroed in
// place so no copy of the content survives in freed memory.
func (b *Buffer) Clear() {
	Wipe(b.data)
	b.data = b.data[:0]
	b.runes = 0
}

// grow reallocates with wiping when append would otherwise let the runtime
// copy the old content into a new array and leave the original behind.
func (b *Buffer) grow(n int) {
	if cap(b.data)-len(b.data) >= n {
		return
	}
	newCap := cap(b.data)*2 + n
	if newCap < 64 {
		newCap = 64
	}
	next := make([]byte, len(b.data), newCap)
	copy(next, b.data)
	Wipe(b.data)
	b.data = next
}
