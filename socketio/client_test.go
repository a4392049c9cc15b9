package socketio

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitalvas/apiconsole/sockets"
	"golang.org/x/net/websocket"
)

const (
	testTimeout = 5 * time.Second
	openFrame   = `0{"sid":"abc","upgrades":[],"pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`
)

type eventCall struct {
	name string
	args []any
}

type recorder struct {
	connects    chan struct{}
	disconnects chan string
	errs        chan error
	events      chan eventCall
}

func newRecorder() *recorder {
	return &recorder{
		connects:    make(chan struct{}, 8),
		disconnects: make(chan string, 8),
		errs:        make(chan error, 8),
		events:      make(chan eventCall, 8),
	}
}

func (r *recorder) handlers() sockets.Handlers {
	return sockets.Handlers{
		OnConnect:    func() { r.connects <- struct{}{} },
		OnDisconnect: func(reason string) { r.disconnects <- reason },
		OnError:      func(err error) { r.errs <- err },
		OnEvent:      func(name string, args []any) { r.events <- eventCall{name: name, args: args} },
	}
}

func (r *recorder) quiet(t *testing.T) {
	t.Helper()

	select {
	case <-r.connects:
		t.Fatal("unexpected connect")
	case reason := <-r.disconnects:
		t.Fatalf("unexpected disconnect: %s", reason)
	case err := <-r.errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(testTimeout):
		t.Fatal("timed out")
	}

	var zero T
	return zero
}

func peerSend(t *testing.T, ws *websocket.Conn, frame string) {
	t.Helper()
	assert.NoError(t, websocket.Message.Send(ws, frame))
}

func peerRecv(ws *websocket.Conn) (string, error) {
	if err := ws.SetReadDeadline(time.Now().Add(testTimeout)); err != nil {
		return "", err
	}

	var frame string
	err := websocket.Message.Receive(ws, &frame)
	return frame, err
}

// newPeer starts a scripted Socket.IO server. done is closed when the
// script returns.
func newPeer(t *testing.T, script func(ws *websocket.Conn)) (*httptest.Server, <-chan struct{}) {
	t.Helper()

	done := make(chan struct{})
	server := httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
		defer close(done)
		script(ws)
	}))
	t.Cleanup(server.Close)

	return server, done
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()

	c, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

// accept performs the open and namespace handshake on the peer side.
func accept(t *testing.T, ws *websocket.Conn, namespace string) {
	t.Helper()

	peerSend(t, ws, openFrame)
	frame, err := peerRecv(ws)
	if assert.NoError(t, err) {
		assert.True(t, strings.HasPrefix(frame, "40"+namespace+","), frame)
	}
	peerSend(t, ws, "40"+namespace+`,{"sid":"s1"}`)
}

func TestClientSession(t *testing.T) {
	server, done := newPeer(t, func(ws *websocket.Conn) {
		req := ws.Request()
		assert.Equal(t, "/socket.io/", req.URL.Path)
		assert.Equal(t, "4", req.URL.Query().Get("EIO"))
		assert.Equal(t, "websocket", req.URL.Query().Get("transport"))
		assert.Equal(t, "yes", req.Header.Get("X-Test"))

		peerSend(t, ws, openFrame)

		frame, err := peerRecv(ws)
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, `40/chat,{"token":"t"}`, frame)

		peerSend(t, ws, `40/chat,{"sid":"s1"}`)
		peerSend(t, ws, `42/other,["message",1]`)
		peerSend(t, ws, `42/chat,["message",{"text":"hi"}]`)

		frame, err = peerRecv(ws)
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, `42/chat,["reply",1]`, frame)

		peerSend(t, ws, `41/chat,`)

		_, err = peerRecv(ws)
		assert.Error(t, err)
	})

	c := newTestClient(t, Config{
		URL:       server.URL,
		Namespace: "/chat",
		Auth:      map[string]any{"token": "t"},
		Header:    http.Header{"X-Test": {"yes"}},
	})

	assert.ErrorIs(t, c.Emit("early"), ErrNotConnected)

	rec := newRecorder()
	c.Connect(rec.handlers())

	waitFor(t, rec.connects)
	assert.True(t, c.Connected())

	ev := waitFor(t, rec.events)
	assert.Equal(t, "message", ev.name)
	assert.Equal(t, []any{map[string]any{"text": "hi"}}, ev.args)

	require.NoError(t, c.Emit("reply", 1))

	assert.Equal(t, ReasonServerDisconnect, waitFor(t, rec.disconnects))
	assert.False(t, c.Connected())
	assert.ErrorIs(t, c.Emit("late"), ErrNotConnected)

	waitFor(t, done)
}

func TestClientDefaultNamespace(t *testing.T) {
	server, _ := newPeer(t, func(ws *websocket.Conn) {
		peerSend(t, ws, openFrame)

		frame, err := peerRecv(ws)
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, "40", frame)

		peerSend(t, ws, `40{"sid":"s1"}`)
		peerSend(t, ws, `42["hello","world"]`)

		_, _ = peerRecv(ws)
	})

	c := newTestClient(t, Config{URL: server.URL})
	rec := newRecorder()
	c.Connect(rec.handlers())

	waitFor(t, rec.connects)
	ev := waitFor(t, rec.events)
	assert.Equal(t, eventCall{name: "hello", args: []any{"world"}}, ev)
}

func TestClientConnectError(t *testing.T) {
	server, _ := newPeer(t, func(ws *websocket.Conn) {
		peerSend(t, ws, openFrame)
		_, err := peerRecv(ws)
		if !assert.NoError(t, err) {
			return
		}
		peerSend(t, ws, `44/chat,{"message":"not authorized"}`)
		_, _ = peerRecv(ws)
	})

	c := newTestClient(t, Config{URL: server.URL, Namespace: "/chat"})
	rec := newRecorder()
	c.Connect(rec.handlers())

	err := waitFor(t, rec.errs)
	var cerr *ConnectError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "not authorized", cerr.Message)
	assert.False(t, c.Connected())
}

func TestClientDialFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := newTestClient(t, Config{URL: url, HandshakeTimeout: time.Second})
	rec := newRecorder()
	c.Connect(rec.handlers())

	assert.Error(t, waitFor(t, rec.errs))
}

func TestClientUnexpectedHandshake(t *testing.T) {
	server, _ := newPeer(t, func(ws *websocket.Conn) {
		peerSend(t, ws, "40")
		_, _ = peerRecv(ws)
	})

	c := newTestClient(t, Config{URL: server.URL})
	rec := newRecorder()
	c.Connect(rec.handlers())

	assert.ErrorIs(t, waitFor(t, rec.errs), ErrHandshake)
}

func TestClientPing(t *testing.T) {
	server, done := newPeer(t, func(ws *websocket.Conn) {
		accept(t, ws, "/chat")
		peerSend(t, ws, "2")

		frame, err := peerRecv(ws)
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, "3", frame)
	})

	c := newTestClient(t, Config{URL: server.URL, Namespace: "/chat"})
	rec := newRecorder()
	c.Connect(rec.handlers())

	waitFor(t, rec.connects)
	waitFor(t, done)
}

func TestClientHeartbeatLoss(t *testing.T) {
	server, _ := newPeer(t, func(ws *websocket.Conn) {
		peerSend(t, ws, `0{"sid":"abc","upgrades":[],"pingInterval":50,"pingTimeout":50,"maxPayload":1000000}`)
		_, err := peerRecv(ws)
		if !assert.NoError(t, err) {
			return
		}
		peerSend(t, ws, `40/chat,{"sid":"s1"}`)

		_, _ = peerRecv(ws)
	})

	c := newTestClient(t, Config{URL: server.URL, Namespace: "/chat"})
	rec := newRecorder()
	c.Connect(rec.handlers())

	waitFor(t, rec.connects)
	assert.Equal(t, ReasonPingTimeout, waitFor(t, rec.disconnects))
}

func TestClientEngineClose(t *testing.T) {
	server, _ := newPeer(t, func(ws *websocket.Conn) {
		accept(t, ws, "/chat")
		peerSend(t, ws, "1")
		_, _ = peerRecv(ws)
	})

	c := newTestClient(t, Config{URL: server.URL, Namespace: "/chat"})
	rec := newRecorder()
	c.Connect(rec.handlers())

	waitFor(t, rec.connects)
	assert.Equal(t, ReasonTransportClose, waitFor(t, rec.disconnects))
}

func TestClientClose(t *testing.T) {
	received := make(chan string, 1)
	server, done := newPeer(t, func(ws *websocket.Conn) {
		accept(t, ws, "/chat")

		frame, err := peerRecv(ws)
		if !assert.NoError(t, err) {
			return
		}
		received <- frame

		_, err = peerRecv(ws)
		assert.Error(t, err)
	})

	c := newTestClient(t, Config{URL: server.URL, Namespace: "/chat"})
	rec := newRecorder()
	c.Connect(rec.handlers())

	waitFor(t, rec.connects)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.Equal(t, "41/chat,", waitFor(t, received))
	waitFor(t, done)
	rec.quiet(t)

	assert.ErrorIs(t, c.Emit("x"), ErrNotConnected)
}

func TestClientWithRegistry(t *testing.T) {
	server, _ := newPeer(t, func(ws *websocket.Conn) {
		accept(t, ws, "/chat")
		peerSend(t, ws, `42/chat,["message","hi"]`)
		_, _ = peerRecv(ws)
	})

	c := newTestClient(t, Config{URL: server.URL, Namespace: "/chat"})

	events := make(chan []any, 1)
	reg := sockets.NewRegistry()
	reg.AddEventListener("/chat", "message", func(args []any) { events <- args })
	require.NoError(t, reg.AddSocket("/chat", c))

	assert.Equal(t, []any{"hi"}, waitFor(t, events))
	assert.True(t, reg.Connected("/chat"))

	reg.RemoveSocket("/chat")
	assert.Equal(t, sockets.StateAbsent, reg.State("/chat"))
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{URL: "http://localhost:3000", Namespace: "/chat"}, false},
		{"missing url", Config{}, true},
		{"bad url", Config{URL: "localhost"}, true},
		{"bad namespace", Config{URL: "http://localhost", Namespace: "chat"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestClientEndpoint(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"http", Config{URL: "http://localhost:3000"}, "ws://localhost:3000/socket.io/?EIO=4&transport=websocket"},
		{"https with path", Config{URL: "https://api.example.com/app"}, "wss://api.example.com/socket.io/?EIO=4&transport=websocket"},
		{"custom path", Config{URL: "ws://h", Path: "/rt/"}, "ws://h/rt/?EIO=4&transport=websocket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.cfg)
			require.NoError(t, err)

			got, err := c.Endpoint()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
