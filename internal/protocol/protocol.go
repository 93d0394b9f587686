// Package protocol implements the relay envelope: an 8-byte big-endian target
// channel ID followed by the payload to forward. It rides inside a single
// websocket message, so the transport sees it as opaque bytes.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/luciancaetano/wsnet"
)

const (
	HeaderSize = 8
	// MaxPayloadSize keeps an encoded envelope within one inbound message.
	MaxPayloadSize = wsnet.MaxMessageSize - HeaderSize
)

var (
	ErrShortEnvelope   = errors.New("envelope too short")
	ErrPayloadTooLarge = errors.New("envelope payload too large")
	ErrInvalidTarget   = errors.New("invalid target channel")
)

// Encode prefixes payload with the target channel ID.
func Encode(target int64, payload []byte) ([]byte, error) {
	if target <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTarget, target)
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	out := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint64(out[:HeaderSize], uint64(target))
	copy(out[HeaderSize:], payload)
	return out, nil
}

// Decode splits an envelope into its target and payload.
// The payload slice references data - do not retain it past the read callback.
func Decode(data []byte) (int64, []byte, error) {
	if len(data) < HeaderSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrShortEnvelope, len(data))
	}

	target := int64(binary.BigEndian.Uint64(data[:HeaderSize]))
	if target <= 0 {
		return 0, nil, fmt.Errorf("%w: %d", ErrInvalidTarget, target)
	}
	return target, data[HeaderSize:], nil
}
