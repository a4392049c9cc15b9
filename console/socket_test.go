package console

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitalvas/apiconsole/sockets"
)

func TestNamespaces(t *testing.T) {
	api, async := loadDocuments(t)
	h := newTestConsole(t, DefaultConfig(), WithAsyncAPI(async)).Handler()

	w := do(t, h, http.MethodGet, "/api/namespaces", nil)
	require.Equal(t, http.StatusOK, w.Code)

	out := decode[map[string]any](t, w)
	assert.Equal(t, []any{map[string]any{"url": "http://events.local:3000"}}, out["servers"])

	namespaces := out["namespaces"].([]any)
	require.Len(t, namespaces, 2)

	chat := namespaces[0].(map[string]any)
	assert.Equal(t, "/chat", chat["path"])
	assert.Equal(t, "absent", chat["state"])

	events := chat["events"].([]any)
	require.Len(t, events, 3)

	message := events[0].(map[string]any)
	assert.Equal(t, "message", message["name"])
	assert.Equal(t, true, message["canEmit"])
	assert.Equal(t, true, message["canListen"])
	assert.Equal(t, map[string]any{"text": "string"}, message["payload"])

	join := events[1].(map[string]any)
	assert.Equal(t, map[string]any{"room": "lobby"}, join["payload"])
	assert.Equal(t, false, join["canListen"])

	typing := events[2].(map[string]any)
	assert.Equal(t, false, typing["canEmit"])
	assert.NotContains(t, typing, "payload")

	t.Run("without document", func(t *testing.T) {
		h := newTestConsole(t, DefaultConfig(), WithOpenAPI(api)).Handler()

		assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/namespaces", nil).Code)
		assert.Equal(t, http.StatusNotFound,
			do(t, h, http.MethodPost, "/api/sockets/connect", map[string]string{"namespace": "/chat"}).Code)
	})
}

func TestSocketSession(t *testing.T) {
	_, async := loadDocuments(t)
	d := &dialer{}

	cfg := DefaultConfig()
	cfg.Token = "tok"
	c := newTestConsole(t, cfg, WithAsyncAPI(async), WithTransportFactory(d.dial))
	h := c.Handler()

	w := do(t, h, http.MethodPost, "/api/sockets/connect", map[string]string{"namespace": "/chat"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.JSONEq(t, `{"namespace":"/chat","state":"connecting"}`, w.Body.String())

	ft := d.last(t)
	assert.Equal(t, "http://events.local:3000", ft.cfg.URL)
	assert.Equal(t, "/chat", ft.cfg.Namespace)
	assert.Equal(t, map[string]any{"token": "tok", "authorization": "Bearer tok"}, ft.cfg.Auth)
	assert.Equal(t, cfg.HandshakeTimeout, ft.cfg.HandshakeTimeout)

	t.Run("emit before connect", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/sockets/emit", map[string]any{"namespace": "/chat", "event": "join"})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	})

	ft.h().OnConnect()
	assert.Equal(t, sockets.StateConnected, c.Sockets().State("/chat"))

	t.Run("emit with default payload", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/sockets/emit", map[string]any{"namespace": "/chat", "event": "join"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		messages := decode[map[string][]map[string]any](t, w)["messages"]
		require.Len(t, messages, 2)
		assert.Equal(t, "info", messages[0]["type"])
		assert.Equal(t, "sent", messages[1]["type"])
		assert.Equal(t, "join", messages[1]["event"])
		assert.Equal(t, []any{map[string]any{"room": "lobby"}}, messages[1]["data"])
	})

	t.Run("emit with args", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/sockets/emit", map[string]any{
			"namespace": "/chat",
			"event":     "custom",
			"args":      []any{"a", 1},
		})
		require.Equal(t, http.StatusOK, w.Code)

		messages := decode[map[string][]map[string]any](t, w)["messages"]
		assert.Equal(t, []any{"a", float64(1)}, messages[len(messages)-1]["data"])
	})

	t.Run("emit rejected", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/sockets/emit", map[string]any{"namespace": "/chat", "event": "typing"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "server-to-client")

		w = do(t, h, http.MethodPost, "/api/sockets/emit", map[string]any{"namespace": "/chat", "event": ""})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	ft.mu.Lock()
	assert.Equal(t, []string{"join", "custom"}, ft.emits)
	ft.mu.Unlock()

	ft.h().OnEvent("typing", []any{"bob"})
	ft.h().OnError(errors.New("boom"))

	w = do(t, h, http.MethodGet, "/api/sockets", nil)
	require.Equal(t, http.StatusOK, w.Code)

	snap := decode[map[string]map[string]any](t, w)
	assert.Empty(t, snap["connections"])
	assert.Len(t, snap["history"]["/chat"], 5)

	w = do(t, h, http.MethodGet, "/api/sockets/history?namespace=/chat", nil)
	messages := decode[map[string][]map[string]any](t, w)["messages"]
	require.Len(t, messages, 5)
	assert.Equal(t, "received", messages[3]["type"])
	assert.Equal(t, []any{"bob"}, messages[3]["data"])
	assert.Equal(t, "error", messages[4]["type"])
	assert.Equal(t, []any{map[string]any{"message": "boom"}}, messages[4]["data"])

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/api/sockets/history?namespace=/chat", nil).Code)
	w = do(t, h, http.MethodGet, "/api/sockets/history?namespace=/chat", nil)
	assert.JSONEq(t, `{"messages":[]}`, w.Body.String())
}

func TestSocketReconnect(t *testing.T) {
	_, async := loadDocuments(t)
	d := &dialer{}

	cfg := DefaultConfig()
	cfg.SocketServer = "http://override.local"
	c := newTestConsole(t, cfg, WithAsyncAPI(async), WithTransportFactory(d.dial))
	h := c.Handler()

	do(t, h, http.MethodPost, "/api/sockets/connect", map[string]string{"namespace": "/public"})
	first := d.last(t)
	assert.Equal(t, "http://override.local", first.cfg.URL)
	assert.Nil(t, first.cfg.Auth)

	w := do(t, h, http.MethodPost, "/api/sockets/connect", map[string]any{
		"namespace": "/public",
		"url":       "http://other.local",
		"token":     "ignored",
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	second := d.last(t)
	assert.NotSame(t, first, second)
	assert.Equal(t, "http://other.local", second.cfg.URL)
	assert.Nil(t, second.cfg.Auth, "namespace declares no auth")

	first.mu.Lock()
	assert.True(t, first.closed)
	first.mu.Unlock()
	assert.Equal(t, 1, c.Sockets().Len())

	second.h().OnConnect()
	first.h().OnDisconnect("transport close")
	assert.True(t, c.Sockets().Connected("/public"), "stale handlers are ignored")

	w = do(t, h, http.MethodPost, "/api/sockets/disconnect", map[string]string{"namespace": "/public"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, sockets.StateAbsent, c.Sockets().State("/public"))

	second.mu.Lock()
	assert.True(t, second.closed)
	second.mu.Unlock()

	w = do(t, h, http.MethodGet, "/api/sockets/history?namespace=/public", nil)
	assert.Len(t, decode[map[string][]map[string]any](t, w)["messages"], 1, "history survives disconnect")

	t.Run("unknown namespace", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/sockets/connect", map[string]string{"namespace": "/nope"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bad url", func(t *testing.T) {
		c := newTestConsole(t, DefaultConfig(), WithAsyncAPI(async))
		w := do(t, c.Handler(), http.MethodPost, "/api/sockets/connect", map[string]string{
			"namespace": "/public",
			"url":       "not a url",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, 0, c.Sockets().Len())
	})
}
