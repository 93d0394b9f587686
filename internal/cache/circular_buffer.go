package cache

import "io"

// ChunkSize is the default chunk length of a CircularBuffer.
const ChunkSize = 8192

// CircularBuffer is an unbounded FIFO byte buffer built from fixed-size
// chunks. Chunks drained by Read are recycled for later writes, so a buffer
// that is filled and drained repeatedly stops allocating.
//
// It is not safe for concurrent use.
type CircularBuffer struct {
	chunkSize int
	chunks    [][]byte
	spare     [][]byte

	// first is the read offset in chunks[0]; last is the write offset in the
	// final chunk.
	first int
	last  int
}

// NewCircularBuffer returns an empty buffer using chunks of chunkSize bytes
// (ChunkSize when chunkSize <= 0).
func NewCircularBuffer(chunkSize int) *CircularBuffer {
	if chunkSize <= 0 {
		chunkSize = ChunkSize
	}
	return &CircularBuffer{chunkSize: chunkSize}
}

// Len returns the number of unread bytes.
func (c *CircularBuffer) Len() int {
	if len(c.chunks) == 0 {
		return 0
	}
	return (len(c.chunks)-1)*c.chunkSize - c.first + c.last
}

// Reset discards all unread bytes and recycles every chunk.
func (c *CircularBuffer) Reset() {
	c.spare = append(c.spare, c.chunks...)
	for i := range c.chunks {
		c.chunks[i] = nil
	}
	c.chunks = c.chunks[:0]
	c.first, c.last = 0, 0
}

// Write appends p. It always consumes all of p.
func (c *CircularBuffer) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		chunk := c.writeChunk()
		n := copy(chunk[c.last:], p)
		c.last += n
		p = p[n:]
	}
	return total, nil
}

// Read drains up to len(p) bytes in FIFO order. It returns io.EOF when the
// buffer is empty.
func (c *CircularBuffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if c.Len() == 0 {
		return 0, io.EOF
	}

	total := 0
	for len(p) > 0 && len(c.chunks) > 0 {
		end := c.chunkSize
		if len(c.chunks) == 1 {
			end = c.last
		}
		n := copy(p, c.chunks[0][c.first:end])
		c.first += n
		total += n
		p = p[n:]

		if c.first < end {
			break
		}
		c.recycleHead()
	}
	return total, nil
}

// ReadFrom appends everything r yields until io.EOF.
func (c *CircularBuffer) ReadFrom(r io.Reader) (int64, error) {
	var total int64
	empty := 0
	for {
		chunk := c.writeChunk()
		n, err := r.Read(chunk[c.last:])
		c.last += n
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

// writeChunk returns the chunk to write into, appending a fresh one when the
// current chunk is full.
func (c *CircularBuffer) writeChunk() []byte {
	if len(c.chunks) == 0 || c.last == c.chunkSize {
		c.chunks = append(c.chunks, c.newChunk())
		c.last = 0
	}
	return c.chunks[len(c.chunks)-1]
}

func (c *CircularBuffer) newChunk() []byte {
	if n := len(c.spare); n > 0 {
		chunk := c.spare[n-1]
		c.spare[n-1] = nil
		c.spare = c.spare[:n-1]
		return chunk
	}
	return make([]byte, c.chunkSize)
}

// recycleHead drops the fully read first chunk.
func (c *CircularBuffer) recycleHead() {
	c.spare = append(c.spare, c.chunks[0])
	c.chunks[0] = nil
	c.chunks = c.chunks[1:]
	c.first = 0
	if len(c.chunks) == 0 {
		c.last = 0
	}
}
