package wsnet

import (
	"errors"
	"strconv"
)

// ErrorCode is a channel-fatal error reported through the error callback.
//
// The values are stable and may be passed verbatim to upper layers.
type ErrorCode int32

// Channel error codes.
const (
	// ErrPacketParserError means the read callback failed to interpret a message.
	ErrPacketParserError ErrorCode = 100209

	ErrWebsocketPeerReset     ErrorCode = 100212
	ErrWebsocketMessageTooBig ErrorCode = 100213
	ErrWebsocketConnectError  ErrorCode = 100215
	ErrWebsocketSendError     ErrorCode = 100216
	ErrWebsocketRecvError     ErrorCode = 100217
	ErrWebsocketSendQueueFull ErrorCode = 100218
)

var errorCodeNames = map[ErrorCode]string{
	ErrPacketParserError:      "packet parser error",
	ErrWebsocketPeerReset:     "websocket peer reset",
	ErrWebsocketMessageTooBig: "websocket message too big",
	ErrWebsocketConnectError:  "websocket connect error",
	ErrWebsocketSendError:     "websocket send error",
	ErrWebsocketRecvError:     "websocket recv error",
	ErrWebsocketSendQueueFull: "websocket send queue full",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return "error " + strconv.Itoa(int(c))
}

func (c ErrorCode) Error() string {
	return c.String() + " (" + strconv.Itoa(int(c)) + ")"
}

// Service-level errors.
var (
	ErrServiceDisposed = errors.New("service disposed")
	ErrAlreadyStarted  = errors.New("service already started")
)
