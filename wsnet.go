package wsnet

import (
	"context"
	"io"
	"net"
	"time"
)

// MaxMessageSize is the largest inbound message, in bytes, a channel accepts.
// Larger messages close the channel with ErrWebsocketMessageTooBig.
const MaxMessageSize = 65535

// DefaultPath is the HTTP path the service upgrades websocket requests on.
const DefaultPath = "/ws"

// Role tells how a channel's connection came to exist.
type Role int

const (
	// RoleAccept is a channel created for an inbound connection that is already established.
	RoleAccept Role = iota
	// RoleConnect is a channel that dials its remote address before it carries traffic.
	RoleConnect
)

func (r Role) String() string {
	switch r {
	case RoleAccept:
		return "accept"
	case RoleConnect:
		return "connect"
	default:
		return "unknown"
	}
}

// ReadFn is invoked on the service loop once per complete inbound message.
//
// The payload aliases the channel's receive buffer and is only valid until the
// function returns; copy it to keep it. Returning a non-nil error means the
// message could not be interpreted: the channel is closed and the error
// callback receives ErrPacketParserError.
type ReadFn = func(channelID int64, payload []byte) error

// ErrorFn is invoked on the service loop exactly once per failed channel,
// after the channel has been removed from the registry.
type ErrorFn = func(channelID int64, code ErrorCode)

// AcceptFn is invoked on the service loop for every inbound connection, after
// its channel has been registered.
type AcceptFn = func(channelID int64, remote net.Addr)

// Service owns a set of websocket channels keyed by channel ID.
//
// All registry mutation and every callback runs on one serial execution
// context (the service loop). Methods documented as loop-confined must only be
// called from a callback or from a function passed to Do or Post.
//
// Example usage:
//
//	svc := ws.New(ws.NewConfig([]string{":8080"}, onRead, onError, onAccept))
//	if err := svc.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Dispose()
type Service interface {
	// Start binds every configured listen address and begins accepting
	// connections in the background. Bind failures are returned. Cancelling
	// ctx disposes the service.
	//
	// A service without listen addresses (client role only) may skip Start.
	Start(ctx context.Context) error

	// Addrs returns the addresses the service is listening on.
	Addrs() []net.Addr

	// Create allocates a channel ID, registers a channel that connects to
	// remoteURL and returns the ID without waiting for the connection.
	//
	// Connection failure is reported through the error callback with
	// ErrWebsocketConnectError. Safe to call from any goroutine.
	Create(remoteURL string) int64

	// Send copies payload and queues it on the channel. Unknown channel IDs
	// are ignored. Safe to call from any goroutine; sends issued from one
	// goroutine reach the wire in call order.
	Send(channelID int64, payload []byte)

	// Get returns the registered channel. Loop-confined.
	Get(channelID int64) (Channel, bool)

	// Remove drops the channel from the registry without disposing it and
	// reports whether it was present. Loop-confined.
	Remove(channelID int64) bool

	// Len returns the number of registered channels. Loop-confined.
	Len() int

	// Post schedules fn on the service loop. It returns false once the
	// service has been disposed.
	Post(fn func()) bool

	// Do runs fn on the service loop and waits for it to finish.
	// It must not be called from the loop itself.
	Do(ctx context.Context, fn func()) error

	// Dispose stops the listeners, disposes every channel without invoking
	// the error callback and stops the loop. Idempotent and safe to call from
	// any goroutine, including callbacks.
	Dispose()

	// Done is closed once Dispose has finished tearing the service down.
	Done() <-chan struct{}
}

// Channel is one websocket connection with its send and receive pipelines.
//
// Every method is loop-confined.
type Channel interface {
	// ID returns the process-unique channel identifier.
	ID() int64

	// Role reports whether the channel was accepted or dialed.
	Role() Role

	// RemoteAddr returns the peer address (the dial URL for RoleConnect
	// channels until the connection is established).
	RemoteAddr() string

	// IsConnected reports whether the connection is established.
	IsConnected() bool

	// IsDisposed reports whether Dispose has run.
	IsDisposed() bool

	// LastRecvTime is the time the last complete message was received.
	LastRecvTime() time.Time

	// LastSendTime is the time the last message was written to the wire.
	LastSendTime() time.Time

	// Send copies buf into the outbound queue. It never blocks and never
	// performs I/O itself.
	Send(buf []byte)

	// SendFrom queues the remaining bytes of r as a single message.
	//
	// r is read to EOF on the service loop, so it must not block: pass an
	// in-memory reader (bytes.Reader, strings.Reader, a buffer), never a
	// socket or pipe. Read blocking sources elsewhere and use Send.
	SendFrom(r io.Reader) error

	// Dispose cancels pending I/O and closes the connection. It does not
	// invoke the error callback. A second call is a no-op.
	Dispose()
}
