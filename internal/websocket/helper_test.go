package websocket

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/luciancaetano/wsnet"
)

const waitTimeout = 5 * time.Second

type readEvent struct {
	id      int64
	payload []byte
}

type errorEvent struct {
	id         int64
	code       wsnet.ErrorCode
	registered bool
}

// recorder captures service callbacks. Callbacks run on the service loop,
// so the channels are buffered generously to never stall it.
type recorder struct {
	svc     *Service
	reads   chan readEvent
	errors  chan errorEvent
	accepts chan int64

	// onRead, when set, runs after the message is recorded and its result is
	// returned to the channel.
	onRead func(id int64, payload []byte) error
}

func newRecorder() *recorder {
	return &recorder{
		reads:   make(chan readEvent, 1024),
		errors:  make(chan errorEvent, 64),
		accepts: make(chan int64, 64),
	}
}

// newService builds a service wired to rec. Pass listen addresses for a
// server-role service.
func newService(t *testing.T, rec *recorder, mutate func(*ServiceConfig), listen ...string) *Service {
	t.Helper()

	cfg := &ServiceConfig{
		Listen: listen,
		Logger: zaptest.NewLogger(t),
		OnRead: func(id int64, payload []byte) error {
			rec.reads <- readEvent{id: id, payload: append([]byte(nil), payload...)}
			if rec.onRead != nil {
				return rec.onRead(id, payload)
			}
			return nil
		},
		OnError: func(id int64, code wsnet.ErrorCode) {
			_, registered := rec.svc.Get(id)
			rec.errors <- errorEvent{id: id, code: code, registered: registered}
		},
		OnAccept: func(id int64, _ net.Addr) {
			rec.accepts <- id
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	svc := NewService(cfg)
	rec.svc = svc
	t.Cleanup(func() {
		svc.Dispose()
		select {
		case <-svc.Done():
		case <-time.After(waitTimeout):
			t.Error("service did not finish teardown")
		}
	})

	if len(listen) > 0 {
		if err := svc.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	}
	return svc
}

// startServer returns a listening service on a random loopback port.
func startServer(t *testing.T, rec *recorder, mutate func(*ServiceConfig)) *Service {
	t.Helper()
	return newService(t, rec, mutate, "127.0.0.1:0")
}

func serviceURL(t *testing.T, svc *Service) string {
	t.Helper()
	addrs := svc.Addrs()
	if len(addrs) == 0 {
		t.Fatal("service has no listen address")
	}
	return "ws://" + addrs[0].String() + wsnet.DefaultPath
}

// dialRaw connects a plain gorilla client, standing in for a remote peer.
func dialRaw(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	dialer := &websocket.Dialer{HandshakeTimeout: waitTimeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// startPeer runs a plain gorilla server and hands over every accepted connection.
func startPeer(t *testing.T) (string, <-chan *websocket.Conn) {
	t.Helper()

	conns := make(chan *websocket.Conn, 16)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http") + wsnet.DefaultPath, conns
}

func waitConn(t *testing.T, conns <-chan *websocket.Conn) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(waitTimeout):
		t.Fatal("peer did not receive a connection")
		return nil
	}
}

func waitAccept(t *testing.T, rec *recorder) int64 {
	t.Helper()
	select {
	case id := <-rec.accepts:
		return id
	case <-time.After(waitTimeout):
		t.Fatal("accept callback did not fire")
		return 0
	}
}

func waitRead(t *testing.T, rec *recorder) readEvent {
	t.Helper()
	select {
	case ev := <-rec.reads:
		return ev
	case <-time.After(waitTimeout):
		t.Fatal("read callback did not fire")
		return readEvent{}
	}
}

func waitError(t *testing.T, rec *recorder) errorEvent {
	t.Helper()
	select {
	case ev := <-rec.errors:
		return ev
	case <-time.After(waitTimeout):
		t.Fatal("error callback did not fire")
		return errorEvent{}
	}
}

// expectQuiet fails if any read or error callback fires within d.
func expectQuiet(t *testing.T, rec *recorder, d time.Duration) {
	t.Helper()
	select {
	case ev := <-rec.reads:
		t.Errorf("unexpected read on channel %d: %d bytes", ev.id, len(ev.payload))
	case ev := <-rec.errors:
		t.Errorf("unexpected error on channel %d: %v", ev.id, ev.code)
	case <-time.After(d):
	}
}

// onLoop runs fn on the service loop and waits for it.
func onLoop(t *testing.T, svc *Service, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := svc.Do(ctx, fn); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
}
