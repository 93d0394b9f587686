package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/requestlog"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/wsnet"
	"github.com/luciancaetano/wsnet/internal/loop"
)

// DefaultHandshakeTimeout bounds the websocket opening handshake.
const DefaultHandshakeTimeout = 10 * time.Second

// CheckOriginFn is a function that validates the origin of a WebSocket connection request.
// It receives the HTTP request and returns true if the origin is allowed, false otherwise.
// A nil CheckOriginFn rejects cross-origin browser requests.
type CheckOriginFn = func(r *http.Request) bool

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// Listen holds the bind addresses accepted connections arrive on. Leave
	// it empty for a service that only creates outbound channels.
	Listen []string
	// Path is the HTTP path upgraded to websocket (wsnet.DefaultPath if empty).
	Path string
	// MaxMessageSize caps inbound messages; zero or anything above
	// wsnet.MaxMessageSize means wsnet.MaxMessageSize.
	MaxMessageSize int
	// SendQueueLimit bounds each channel's outbound queue; zero is unbounded.
	SendQueueLimit int
	// HandshakeTimeout bounds opening handshakes in both directions.
	HandshakeTimeout time.Duration
	// CheckOrigin validates inbound upgrade requests.
	CheckOrigin CheckOriginFn
	// AcceptRateLimit throttles inbound connection admission. Nil disables it.
	AcceptRateLimit *RateLimitConfig
	// RequestLog prints one line per inbound HTTP request to stdout.
	RequestLog bool

	OnRead   wsnet.ReadFn
	OnError  wsnet.ErrorFn
	OnAccept wsnet.AcceptFn

	// Logger receives the service's logs. Nil discards them.
	Logger *zap.Logger
}

// RateLimitConfig defines admission limits for inbound connections
type RateLimitConfig struct {
	// ConnectionsPerSecond is the sustained rate of accepted upgrades
	ConnectionsPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// DefaultRateLimitConfig allows 100 new connections per second with a burst of 200
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		ConnectionsPerSecond: 100,
		Burst:                200,
		Enabled:              true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

func (c *RateLimitConfig) limiter() *rate.Limiter {
	if c == nil || !c.Enabled {
		return nil
	}
	return rate.NewLimiter(c.ConnectionsPerSecond, c.Burst)
}

var _ wsnet.Service = (*Service)(nil)

// Service implements wsnet.Service.
type Service struct {
	cfg    ServiceConfig
	logger *zap.Logger
	loop   *loop.Loop

	upgrader      websocket.Upgrader
	dialer        *websocket.Dialer
	acceptLimiter *rate.Limiter

	// Loop-confined.
	channels map[int64]*Channel
	servers  []*http.Server

	addrs     atomic.Pointer[[]net.Addr]
	started   atomic.Bool
	disposed  atomic.Bool
	disposing chan struct{}
	serving   sync.WaitGroup
	done      chan struct{}
}

// NewService creates a service and starts its loop. Call Start to begin
// accepting connections.
func NewService(cfg *ServiceConfig) *Service {
	c := *cfg
	if c.Path == "" {
		c.Path = wsnet.DefaultPath
	}
	if c.MaxMessageSize <= 0 || c.MaxMessageSize > wsnet.MaxMessageSize {
		c.MaxMessageSize = wsnet.MaxMessageSize
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	logger := c.Logger.Named("wsnet")

	return &Service{
		cfg:    c,
		logger: logger,
		loop:   loop.New(logger),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: c.HandshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			CheckOrigin:      c.CheckOrigin,
		},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: c.HandshakeTimeout,
		},
		acceptLimiter: c.AcceptRateLimit.limiter(),
		channels:      make(map[int64]*Channel),
		disposing:     make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start binds every listen address and serves upgrades in the background.
func (s *Service) Start(ctx context.Context) error {
	if s.disposed.Load() {
		return wsnet.ErrServiceDisposed
	}
	if !s.started.CompareAndSwap(false, true) {
		return wsnet.ErrAlreadyStarted
	}

	listeners := make([]net.Listener, 0, len(s.cfg.Listen))
	closeAll := func() {
		for _, l := range listeners {
			l.Close()
		}
	}
	for _, addr := range s.cfg.Listen {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			closeAll()
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		listeners = append(listeners, l)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleWebSocket)
	handler := http.Handler(mux)
	if s.cfg.RequestLog {
		handler = requestlog.Wrap(handler)
	}

	g, gctx := errgroup.WithContext(ctx)
	err := s.loop.Do(context.Background(), func() {
		for _, l := range listeners {
			srv := &http.Server{
				Handler:           handler,
				ReadHeaderTimeout: s.cfg.HandshakeTimeout,
				ErrorLog:          zap.NewStdLog(s.logger),
			}
			s.servers = append(s.servers, srv)
			g.Go(func() error {
				if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serve %s: %w", l.Addr(), err)
				}
				return nil
			})
		}
		// A failed listener or a cancelled ctx takes the whole service down.
		g.Go(func() error {
			select {
			case <-gctx.Done():
				s.Dispose()
			case <-s.disposing:
			}
			return nil
		})

		s.serving.Add(1)
		go func() {
			defer s.serving.Done()
			if err := g.Wait(); err != nil {
				s.logger.Error("listener stopped", zap.Error(err))
			}
		}()
	})
	if err != nil {
		closeAll()
		return wsnet.ErrServiceDisposed
	}

	addrs := make([]net.Addr, 0, len(listeners))
	for _, l := range listeners {
		addrs = append(addrs, l.Addr())
		s.logger.Info("listening", zap.Stringer("addr", l.Addr()), zap.String("path", s.cfg.Path))
	}
	s.addrs.Store(&addrs)
	return nil
}

// Addrs returns the bound listen addresses.
func (s *Service) Addrs() []net.Addr {
	if p := s.addrs.Load(); p != nil {
		return append([]net.Addr(nil), (*p)...)
	}
	return nil
}

// handleWebSocket upgrades an inbound request and hands the connection to
// the loop.
func (s *Service) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.disposed.Load() {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	if s.acceptLimiter != nil && !s.acceptLimiter.Allow() {
		s.logger.Warn("connection rate limit exceeded", zap.String("remote", r.RemoteAddr))
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		s.logger.Debug("upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	id := channelIDs.Next()
	if !s.loop.Post(func() { s.accept(id, conn) }) {
		conn.Close()
	}
}

// accept registers an inbound connection. Loop-confined.
func (s *Service) accept(id int64, conn *websocket.Conn) {
	if s.disposed.Load() {
		conn.Close()
		return
	}

	ch := newAcceptChannel(s, id, conn)
	s.channels[id] = ch
	ch.logger.Debug("accepted", zap.Stringer("remote", conn.RemoteAddr()))

	if s.cfg.OnAccept != nil {
		s.cfg.OnAccept(id, conn.RemoteAddr())
	}
}

// Create registers a channel that connects to remoteURL.
func (s *Service) Create(remoteURL string) int64 {
	id := channelIDs.Next()
	s.loop.Post(func() {
		if s.disposed.Load() {
			return
		}
		s.channels[id] = newConnectChannel(s, id, remoteURL)
	})
	return id
}

// Send copies payload and queues it on the channel.
func (s *Service) Send(channelID int64, payload []byte) {
	msg := append([]byte(nil), payload...)
	s.loop.Post(func() {
		ch, ok := s.channels[channelID]
		if !ok {
			s.logger.Debug("send to unknown channel", zap.Int64("channel_id", channelID))
			return
		}
		if ch.disposed {
			return
		}
		ch.enqueue(msg)
	})
}

// Get returns a registered channel. Loop-confined.
func (s *Service) Get(channelID int64) (wsnet.Channel, bool) {
	ch, ok := s.channels[channelID]
	if !ok {
		return nil, false
	}
	return ch, true
}

// Remove unregisters a channel without disposing it. Loop-confined.
func (s *Service) Remove(channelID int64) bool {
	if _, ok := s.channels[channelID]; !ok {
		return false
	}
	delete(s.channels, channelID)
	return true
}

// Len returns the number of registered channels. Loop-confined.
func (s *Service) Len() int {
	return len(s.channels)
}

// Post schedules fn on the service loop.
func (s *Service) Post(fn func()) bool {
	return s.loop.Post(fn)
}

// Do runs fn on the service loop and waits for it.
func (s *Service) Do(ctx context.Context, fn func()) error {
	if err := s.loop.Do(ctx, fn); err != nil {
		if errors.Is(err, loop.ErrStopped) {
			return wsnet.ErrServiceDisposed
		}
		return err
	}
	return nil
}

// Dispose tears the service down.
func (s *Service) Dispose() {
	if !s.disposed.CompareAndSwap(false, true) {
		return
	}
	close(s.disposing)

	s.loop.Post(s.teardown)
	go func() {
		<-s.loop.Done()
		s.serving.Wait()
		close(s.done)
	}()
}

// Done is closed when teardown has completed.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) teardown() {
	for _, srv := range s.servers {
		if err := srv.Close(); err != nil {
			s.logger.Debug("close listener", zap.Error(err))
		}
	}
	s.servers = nil

	for id, ch := range s.channels {
		ch.Dispose()
		delete(s.channels, id)
	}
	s.logger.Debug("service disposed", zap.Int("pending", s.loop.Pending()))
	s.loop.Stop()
}

// onRead forwards a message unless its channel is no longer registered.
func (s *Service) onRead(channelID int64, payload []byte) error {
	if _, ok := s.channels[channelID]; !ok {
		return nil
	}
	if s.cfg.OnRead == nil {
		return nil
	}
	return s.cfg.OnRead(channelID, payload)
}

// onError unregisters the channel, then notifies the owner.
func (s *Service) onError(channelID int64, code wsnet.ErrorCode) {
	s.Remove(channelID)
	if s.cfg.OnError != nil {
		s.cfg.OnError(channelID, code)
	}
}
