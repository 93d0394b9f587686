// Package cache provides the byte buffers channels use to accumulate inbound
// messages and to stage outbound ones.
package cache

import (
	"errors"
	"io"
)

// ErrBufferFull is returned when data does not fit in a Buffer's capacity.
var ErrBufferFull = errors.New("cache: buffer full")

// maxEmptyReads bounds how many (0, nil) reads ReadFrom tolerates in a row.
const maxEmptyReads = 100

// Buffer is a reusable byte buffer with a fixed capacity. It never grows.
type Buffer struct {
	buf []byte
	n   int
}

// NewBuffer allocates a Buffer holding at most capacity bytes.
func NewBuffer(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{buf: make([]byte, capacity)}
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int { return len(b.buf) }

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int { return b.n }

// Bytes returns the buffered bytes. The slice aliases the buffer and is
// only valid until the next Reset, Write or ReadFrom.
func (b *Buffer) Bytes() []byte { return b.buf[:b.n] }

// Reset empties the buffer, keeping its storage.
func (b *Buffer) Reset() { b.n = 0 }

// Write appends p. When p does not fit, the bytes that do fit are kept and
// ErrBufferFull is returned.
func (b *Buffer) Write(p []byte) (int, error) {
	n := copy(b.buf[b.n:], p)
	b.n += n
	if n < len(p) {
		return n, ErrBufferFull
	}
	return n, nil
}

// ReadFrom reads r until io.EOF. If r holds more bytes than the remaining
// capacity, ReadFrom stops and returns ErrBufferFull; the buffer then holds
// the first Cap bytes.
func (b *Buffer) ReadFrom(r io.Reader) (int64, error) {
	var total int64
	empty := 0
	for {
		if b.n == len(b.buf) {
			more, err := hasMore(r)
			if err != nil {
				return total, err
			}
			if more {
				return total, ErrBufferFull
			}
			return total, nil
		}

		n, err := r.Read(b.buf[b.n:])
		b.n += n
		total += int64(n)
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			empty++
			if empty >= maxEmptyReads {
				return total, io.ErrNoProgress
			}
			continue
		}
		empty = 0
	}
}

// hasMore reports whether r yields at least one more byte before io.EOF.
func hasMore(r io.Reader) (bool, error) {
	var probe [1]byte
	for i := 0; i < maxEmptyReads; i++ {
		n, err := r.Read(probe[:])
		if n > 0 {
			return true, nil
		}
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
	return false, io.ErrNoProgress
}
