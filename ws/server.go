package ws

import (
	"net/http"

	"github.com/luciancaetano/wsnet"
	"github.com/luciancaetano/wsnet/internal/websocket"
)

type RateLimitConfig = websocket.RateLimitConfig
type CheckOriginFn = websocket.CheckOriginFn
type ServiceConfig = websocket.ServiceConfig

// New creates a websocket service. Its loop runs immediately; call Start to
// bind the listen addresses.
//
// Example:
//
//	svc := ws.New(ws.NewConfig([]string{":8080"}, onRead, onError, onAccept))
//	if err := svc.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
func New(cfg *ServiceConfig) wsnet.Service {
	return websocket.NewService(cfg)
}

// NewConfig returns a configuration with the given listen addresses and
// callbacks and defaults for everything else.
//
// Parameters:
//   - listen: bind addresses (e.g. ":8080"). Nil for a service that only dials out
//   - onRead: called once per complete inbound message. Can be nil
//   - onError: called once per failed channel, after it left the registry. Can be nil
//   - onAccept: called for every inbound connection after it is registered. Can be nil
func NewConfig(listen []string, onRead wsnet.ReadFn, onError wsnet.ErrorFn, onAccept wsnet.AcceptFn) *ServiceConfig {
	cfg := DefaultConfig()
	cfg.Listen = listen
	cfg.OnRead = onRead
	cfg.OnError = onError
	cfg.OnAccept = onAccept
	return cfg
}

// DefaultConfig returns a configuration without listen addresses or callbacks
func DefaultConfig() *ServiceConfig {
	return &ServiceConfig{
		Path:             wsnet.DefaultPath,
		MaxMessageSize:   wsnet.MaxMessageSize,
		HandshakeTimeout: websocket.DefaultHandshakeTimeout,
		AcceptRateLimit:  DefaultRateLimitConfig(),
	}
}

// AllOrigins returns the default checkOrigin function that allows all origins
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return websocket.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return websocket.NoRateLimit()
}
