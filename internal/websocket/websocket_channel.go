package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/eapache/queue"
	"github.com/gorilla/websocket"
	"github.com/jpillora/sizestr"
	"go.uber.org/zap"

	"github.com/luciancaetano/wsnet"
	"github.com/luciancaetano/wsnet/internal/cache"
)

// closeWriteTimeout bounds how long writing a close frame may take.
const closeWriteTimeout = time.Second

// ErrChannelDisposed is returned by SendFrom on a disposed channel.
var ErrChannelDisposed = errors.New("channel disposed")

var _ wsnet.Channel = (*Channel)(nil)

// Channel implements wsnet.Channel over a gorilla websocket connection.
//
// Channel state is owned by the service loop. Blocking I/O runs on helper
// goroutines that post their result back to the loop, so the fields below are
// never touched concurrently.
type Channel struct {
	id         int64
	role       wsnet.Role
	service    *Service
	logger     *zap.Logger
	remoteAddr string
	conn       *websocket.Conn

	// ctx is cancelled by Dispose and stops every helper goroutine.
	ctx    context.Context
	cancel context.CancelFunc

	queue      *queue.Queue // of []byte, FIFO
	queueLimit int
	recvBuf    *cache.Buffer
	staging    *cache.CircularBuffer

	connected bool
	sending   bool
	disposed  bool
	failed    bool

	lastRecv time.Time
	lastSend time.Time
}

func newChannel(s *Service, id int64, role wsnet.Role, remoteAddr string) *Channel {
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		id:         id,
		role:       role,
		service:    s,
		logger:     s.logger.With(zap.Int64("channel_id", id), zap.Stringer("role", role)),
		remoteAddr: remoteAddr,
		ctx:        ctx,
		cancel:     cancel,
		queue:      queue.New(),
		queueLimit: s.cfg.SendQueueLimit,
		recvBuf:    cache.NewBuffer(s.cfg.MaxMessageSize),
		staging:    cache.NewCircularBuffer(0),
	}
}

// newAcceptChannel wraps an established inbound connection. Its pipelines
// start on the next loop turn.
func newAcceptChannel(s *Service, id int64, conn *websocket.Conn) *Channel {
	c := newChannel(s, id, wsnet.RoleAccept, conn.RemoteAddr().String())
	c.conn = conn
	c.connected = true
	s.loop.Post(c.start)
	return c
}

// newConnectChannel dials remoteURL on the next loop turn.
func newConnectChannel(s *Service, id int64, remoteURL string) *Channel {
	c := newChannel(s, id, wsnet.RoleConnect, remoteURL)
	s.loop.Post(c.connect)
	return c
}

// ID returns the channel identifier.
func (c *Channel) ID() int64 { return c.id }

// Role reports how the channel was created.
func (c *Channel) Role() wsnet.Role { return c.role }

// RemoteAddr returns the peer address.
func (c *Channel) RemoteAddr() string { return c.remoteAddr }

// IsConnected reports whether the connection is established.
func (c *Channel) IsConnected() bool { return c.connected }

// IsDisposed reports whether Dispose has run.
func (c *Channel) IsDisposed() bool { return c.disposed }

// LastRecvTime is the time the last complete message was delivered.
func (c *Channel) LastRecvTime() time.Time { return c.lastRecv }

// LastSendTime is the time the last message was written.
func (c *Channel) LastSendTime() time.Time { return c.lastSend }

// Send copies buf onto the outbound queue.
func (c *Channel) Send(buf []byte) {
	if c.disposed {
		return
	}
	c.enqueue(append([]byte(nil), buf...))
}

// SendFrom copies everything remaining in r into one outbound message. It
// reads on the loop; r must be an in-memory reader.
func (c *Channel) SendFrom(r io.Reader) error {
	if c.disposed {
		return ErrChannelDisposed
	}

	c.staging.Reset()
	if _, err := c.staging.ReadFrom(r); err != nil {
		c.staging.Reset()
		return fmt.Errorf("stage outbound message: %w", err)
	}
	msg := make([]byte, c.staging.Len())
	if _, err := io.ReadFull(c.staging, msg); err != nil {
		return fmt.Errorf("stage outbound message: %w", err)
	}
	c.enqueue(msg)
	return nil
}

// Dispose halts both pipelines and closes the connection. It is idempotent
// and never reports through the error callback.
func (c *Channel) Dispose() {
	if c.disposed {
		return
	}
	c.disposed = true

	c.cancel()
	c.cancel = nil

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("close connection", zap.Error(err))
		}
	}

	for c.queue.Length() > 0 {
		c.queue.Remove()
	}
	c.sending = false
	c.logger.Debug("channel disposed")
}

// enqueue takes ownership of msg.
func (c *Channel) enqueue(msg []byte) {
	if c.queueLimit > 0 && c.queue.Length() >= c.queueLimit {
		c.logger.Warn("outbound queue full", zap.Int("limit", c.queueLimit))
		c.raise(wsnet.ErrWebsocketSendQueueFull)
		return
	}

	c.queue.Add(msg)
	if c.connected {
		c.startSend()
	}
}

func (c *Channel) start() {
	if c.disposed {
		return
	}
	go c.recvLoop(c.conn)
	c.startSend()
}

func (c *Channel) connect() {
	if c.disposed {
		return
	}

	ctx, url, dialer := c.ctx, c.remoteAddr, c.service.dialer
	go func() {
		conn, _, err := dialer.DialContext(ctx, url, nil)
		if !c.service.loop.Post(func() { c.onConnect(conn, err) }) && conn != nil {
			conn.Close()
		}
	}()
}

func (c *Channel) onConnect(conn *websocket.Conn, err error) {
	if c.disposed {
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.logger.Warn("connect failed", zap.String("url", c.remoteAddr), zap.Error(err))
		c.raise(wsnet.ErrWebsocketConnectError)
		return
	}

	c.conn = conn
	c.connected = true
	c.logger.Debug("connected", zap.String("url", c.remoteAddr))
	c.start()
}

// startSend begins draining the queue unless a drain is already running.
func (c *Channel) startSend() {
	if c.disposed || c.sending || !c.connected {
		return
	}
	c.sending = true
	c.sendNext()
}

// sendNext writes the queue head on a helper goroutine; onSent resumes the
// drain on the loop. At most one write is in flight per channel.
func (c *Channel) sendNext() {
	if c.queue.Length() == 0 {
		c.sending = false
		return
	}

	msg := c.queue.Remove().([]byte)
	conn := c.conn
	go func() {
		err := conn.WriteMessage(websocket.BinaryMessage, msg)
		c.service.loop.Post(func() { c.onSent(err) })
	}()
}

func (c *Channel) onSent(err error) {
	if c.disposed {
		return
	}
	if err != nil {
		c.sending = false
		for c.queue.Length() > 0 {
			c.queue.Remove()
		}
		c.logger.Warn("send failed", zap.Error(err))
		c.raise(wsnet.ErrWebsocketSendError)
		return
	}

	c.lastSend = time.Now()
	c.sendNext()
}

// recvLoop reads one message at a time and waits for the loop to consume it
// before reusing the receive buffer.
func (c *Channel) recvLoop(conn *websocket.Conn) {
	consumed := make(chan bool, 1)
	for {
		err := c.readMessage(conn)
		if errors.Is(err, cache.ErrBufferFull) {
			c.closeTooBig(conn)
		}

		if !c.service.loop.Post(func() { consumed <- c.onRecv(err) }) {
			return
		}

		select {
		case more := <-consumed:
			if !more {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Channel) readMessage(conn *websocket.Conn) error {
	_, r, err := conn.NextReader()
	if err != nil {
		return err
	}
	c.recvBuf.Reset()
	_, err = c.recvBuf.ReadFrom(r)
	return err
}

func (c *Channel) closeTooBig(conn *websocket.Conn) {
	if c.ctx.Err() != nil {
		return
	}
	reason := "message too big: > " + sizestr.ToString(int64(c.recvBuf.Cap()))
	msg := websocket.FormatCloseMessage(websocket.CloseMessageTooBig, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout)); err != nil {
		c.logger.Debug("write close frame", zap.Error(err))
	}
}

// onRecv runs on the loop with the outcome of one read. It reports whether
// the receive loop should keep reading.
func (c *Channel) onRecv(err error) bool {
	if c.disposed {
		return false
	}
	if err != nil {
		code := recvErrorCode(err)
		if code == wsnet.ErrWebsocketPeerReset {
			c.logger.Debug("peer closed connection", zap.Error(err))
		} else {
			c.logger.Warn("receive failed", zap.Stringer("code", code), zap.Error(err))
		}
		c.raise(code)
		return false
	}

	c.lastRecv = time.Now()
	payload := c.recvBuf.Bytes()
	if err := c.service.onRead(c.id, payload); err != nil {
		// Anything the upper layer cannot interpret is treated as forged input.
		c.logger.Warn("read handler rejected message",
			zap.String("remote", c.remoteAddr),
			zap.String("size", sizestr.ToString(int64(len(payload)))),
			zap.Error(err))
		c.raise(wsnet.ErrPacketParserError)
		return false
	}
	return !c.disposed
}

// raise reports a fatal error once, then disposes the failed channel.
func (c *Channel) raise(code wsnet.ErrorCode) {
	if c.disposed || c.failed {
		return
	}
	c.failed = true
	c.logger.Debug("channel error", zap.Int32("code", int32(code)), zap.String("remote", c.remoteAddr))

	c.service.onError(c.id, code)
	c.Dispose()
}

func recvErrorCode(err error) wsnet.ErrorCode {
	if errors.Is(err, cache.ErrBufferFull) {
		return wsnet.ErrWebsocketMessageTooBig
	}
	// gorilla reports a bare EOF as CloseAbnormalClosure; only a real close
	// frame from the peer is a reset.
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure {
		return wsnet.ErrWebsocketPeerReset
	}
	return wsnet.ErrWebsocketRecvError
}
