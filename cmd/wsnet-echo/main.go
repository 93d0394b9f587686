// Command wsnet-echo runs a websocket echo server, or sends one message to
// such a server and prints the reply.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpillora/sizestr"
	"go.uber.org/zap"

	"github.com/luciancaetano/wsnet"
	"github.com/luciancaetano/wsnet/internal/config"
	"github.com/luciancaetano/wsnet/internal/logging"
	"github.com/luciancaetano/wsnet/ws"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	mode := flag.String("mode", "", "server or client (overrides the config)")
	connect := flag.String("connect", "", "URL to dial in client mode (overrides the config)")
	message := flag.String("message", "hello", "message sent in client mode")
	timeout := flag.Duration("timeout", 10*time.Second, "how long client mode waits for the echo")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *connect != "" {
		cfg.Connect = *connect
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.Mode {
	case config.ModeServer:
		err = runServer(ctx, cfg, logger)
	case config.ModeClient:
		err = runClient(ctx, cfg, logger, []byte(*message), *timeout)
	}
	if err != nil {
		logger.Error("wsnet-echo failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func runServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	var svc wsnet.Service

	sc := cfg.Service.ToServiceConfig(logger)
	sc.OnAccept = func(id int64, remote net.Addr) {
		logger.Info("client connected", zap.Int64("channel_id", id), zap.Stringer("remote", remote))
	}
	sc.OnRead = func(id int64, payload []byte) error {
		logger.Debug("echo", zap.Int64("channel_id", id), zap.String("size", sizestr.ToString(int64(len(payload)))))
		svc.Send(id, payload)
		return nil
	}
	sc.OnError = func(id int64, code wsnet.ErrorCode) {
		logger.Info("client disconnected", zap.Int64("channel_id", id), zap.Stringer("code", code))
	}

	svc = ws.New(sc)
	if err := svc.Start(ctx); err != nil {
		svc.Dispose()
		return err
	}

	<-svc.Done()
	logger.Info("server stopped")
	return nil
}

func runClient(ctx context.Context, cfg *config.Config, logger *zap.Logger, message []byte, timeout time.Duration) error {
	type result struct {
		reply []byte
		code  wsnet.ErrorCode
		ok    bool
	}
	results := make(chan result, 1)

	sc := cfg.Service.ToServiceConfig(logger)
	sc.Listen = nil
	sc.OnRead = func(_ int64, payload []byte) error {
		select {
		case results <- result{reply: append([]byte(nil), payload...), ok: true}:
		default:
		}
		return nil
	}
	sc.OnError = func(_ int64, code wsnet.ErrorCode) {
		select {
		case results <- result{code: code}:
		default:
		}
	}

	svc := ws.New(sc)
	defer func() {
		svc.Dispose()
		<-svc.Done()
	}()

	id := svc.Create(cfg.Connect)
	svc.Send(id, message)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case r := <-results:
		if !r.ok {
			return fmt.Errorf("channel %d: %w", id, r.code)
		}
		fmt.Println(string(r.reply))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for echo: %w", ctx.Err())
	}
}
