// Package wsnet provides a WebSocket transport for servers that exchange
// opaque binary messages with many peers.
//
// A Service owns a registry of channels keyed by a process-unique int64 ID.
// Each channel wraps one websocket connection, either accepted from a listen
// address or dialed with Create, and runs an ordered send pipeline and a
// receive pipeline that delivers one complete message at a time.
//
// # Architecture
//
// Every registry mutation, channel state change and user callback runs on a
// single serial execution context, the service loop. Blocking I/O (dialing,
// reading, writing) runs on helper goroutines that post their outcome back to
// the loop, so callbacks never run concurrently with each other and never need
// locking.
//
// # Quick Start
//
//	import (
//	    "github.com/luciancaetano/wsnet"
//	    "github.com/luciancaetano/wsnet/ws"
//	)
//
//	var svc wsnet.Service
//	svc = ws.New(ws.NewConfig([]string{":8080"},
//	    func(id int64, payload []byte) error {
//	        // Echo the message back. payload is only valid during the call.
//	        svc.Send(id, payload)
//	        return nil
//	    },
//	    func(id int64, code wsnet.ErrorCode) {
//	        log.Printf("channel %d closed: %v", id, code)
//	    },
//	    func(id int64, remote net.Addr) {
//	        log.Printf("channel %d accepted from %s", id, remote)
//	    },
//	))
//
//	if err := svc.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Dispose()
//
//	// Outbound channels are created the same way from any goroutine.
//	id := svc.Create("ws://peer.example:8080/ws")
//	svc.Send(id, []byte("hello"))
//
// # Framing
//
// Every Send becomes exactly one binary websocket message. Inbound messages
// are reassembled from fragments before delivery. The transport never splits
// or merges messages and never inspects their content.
//
// # Errors
//
// A channel fails at most once. The failure is reported through the error
// callback with an ErrorCode, after which the channel has already been removed
// from the registry and is disposed:
//
//	ErrWebsocketConnectError   dial or handshake failed
//	ErrWebsocketPeerReset      peer sent a close frame
//	ErrWebsocketRecvError      read failed or the stream ended abruptly
//	ErrWebsocketSendError      write failed
//	ErrWebsocketMessageTooBig  inbound message exceeded MaxMessageSize
//	ErrWebsocketSendQueueFull  outbound queue exceeded its configured limit
//	ErrPacketParserError       the read callback returned an error
//
// Explicit Dispose calls, on a channel or on the whole service, never invoke
// the error callback.
//
// # Important
//
//   - DO NOT retain the payload passed to the read callback (it references the receive buffer)
//   - Get, Remove, Len and every Channel method must run on the service loop
//   - Configure CheckOrigin in production (never use ws.AllOrigins() in production)
package wsnet
