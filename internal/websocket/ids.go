package websocket

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/google/uuid"
)

// channelIDs hands out channel identifiers for every service in the process,
// so an identifier is never reused while the process lives.
var channelIDs = newIDGenerator()

type idGenerator struct {
	last atomic.Int64
}

// newIDGenerator seeds the counter from a random UUID. The seed keeps 40 bits
// so ids differ across restarts and the counter cannot reach the sign bit.
func newIDGenerator() *idGenerator {
	u := uuid.New()
	g := &idGenerator{}
	g.last.Store(int64(binary.BigEndian.Uint64(u[:8]) >> 24))
	return g
}

// Next returns a fresh positive identifier.
func (g *idGenerator) Next() int64 {
	return g.last.Add(1)
}
