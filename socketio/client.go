package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vitalvas/apiconsole/sockets"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"
)

const (
	defaultPath             = "/socket.io/"
	defaultHandshakeTimeout = 20 * time.Second

	// Used until the open packet announces the server's values.
	defaultPingInterval = 25 * time.Second
	defaultPingTimeout  = 20 * time.Second
)

// Disconnect reasons reported through Handlers.OnDisconnect.
const (
	ReasonServerDisconnect = "io server disconnect"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
	ReasonPingTimeout      = "ping timeout"
)

var (
	// ErrNotConnected is returned by Emit before the namespace handshake
	// completed or after the connection ended.
	ErrNotConnected = errors.New("socketio: not connected")

	// ErrHandshake is reported when the server does not answer with an
	// Engine.IO open packet.
	ErrHandshake = errors.New("socketio: handshake failed")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config describes one namespace connection.
type Config struct {
	// URL is the server address, http(s) or ws(s).
	URL string `validate:"required,url"`

	// Namespace defaults to "/".
	Namespace string `validate:"omitempty,startswith=/"`

	// Path is the Engine.IO endpoint path. Defaults to "/socket.io/".
	Path string

	// Auth is sent with the namespace CONNECT packet.
	Auth any

	// Header is added to the WebSocket upgrade request.
	Header http.Header

	// Origin defaults to the http(s) form of URL.
	Origin string

	// HandshakeTimeout bounds dialing and waiting for the open packet.
	HandshakeTimeout time.Duration
}

type openPayload struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

// Client is a Socket.IO v5 client for a single namespace over the
// Engine.IO v4 WebSocket transport. It implements sockets.Transport.
type Client struct {
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	started   bool
	connected bool
	closed    bool
}

var _ sockets.Transport = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient validates cfg and returns an unconnected client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("socketio: invalid config: %w", err)
	}

	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.Path == "" {
		cfg.Path = defaultPath
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}

	c := &Client{
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Endpoint returns the WebSocket URL the client dials.
func (c *Client) Endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("socketio: unsupported scheme %q", u.Scheme)
	}

	u.Path = c.cfg.Path
	u.RawQuery = url.Values{"EIO": {"4"}, "transport": {"websocket"}}.Encode()
	u.Fragment = ""

	return u.String(), nil
}

func (c *Client) origin() string {
	if c.cfg.Origin != "" {
		return c.cfg.Origin
	}

	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "http://localhost"
	}

	scheme := "http"
	if u.Scheme == "https" || u.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}

// Connect dials the server in the background. Only the first call has an
// effect.
func (c *Client) Connect(h sockets.Handlers) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.run(h)
}

// Connected reports whether the namespace handshake has completed.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connected
}

// Emit sends an EVENT packet.
func (c *Client) Emit(event string, args ...any) error {
	c.mu.Lock()
	conn := c.conn
	ok := c.connected && !c.closed
	c.mu.Unlock()

	if !ok || conn == nil {
		return ErrNotConnected
	}

	p, err := NewEvent(c.cfg.Namespace, event, args...)
	if err != nil {
		return err
	}

	return send(conn, EncodePacket(p))
}

// Close leaves the namespace and closes the socket. No handler is called
// afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	if wasConnected {
		_ = send(conn, EncodePacket(Packet{Type: PacketDisconnect, Namespace: c.cfg.Namespace}))
	}

	return conn.Close()
}

func (c *Client) run(h sockets.Handlers) {
	log := c.logger.With(zap.String("namespace", c.cfg.Namespace))

	conn, open, err := c.handshake()
	if err != nil {
		log.Warn("socket.io handshake failed", zap.Error(err))
		c.fire(func() { call(h.OnError, err) })
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	log.Debug("engine.io open", zap.String("sid", open.SID))

	if err := c.sendConnect(conn); err != nil {
		c.fail(conn, h, err)
		return
	}

	heartbeat := time.Duration(open.PingInterval+open.PingTimeout) * time.Millisecond
	if heartbeat <= 0 {
		heartbeat = defaultPingInterval + defaultPingTimeout
	}

	for {
		if err := conn.SetReadDeadline(time.Now().Add(heartbeat)); err != nil {
			c.fail(conn, h, err)
			return
		}

		var frame string
		if err := websocket.Message.Receive(conn, &frame); err != nil {
			if c.isClosed() {
				return
			}
			c.fail(conn, h, err)
			return
		}

		if !c.dispatch(conn, h, frame, log) {
			return
		}
	}
}

// handshake dials the Engine.IO endpoint and reads the open packet.
func (c *Client) handshake() (*websocket.Conn, openPayload, error) {
	endpoint, err := c.Endpoint()
	if err != nil {
		return nil, openPayload{}, err
	}

	wsCfg, err := websocket.NewConfig(endpoint, c.origin())
	if err != nil {
		return nil, openPayload{}, err
	}
	if c.cfg.Header != nil {
		wsCfg.Header = c.cfg.Header.Clone()
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
	defer cancel()

	conn, err := wsCfg.DialContext(ctx)
	if err != nil {
		return nil, openPayload{}, err
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout)); err != nil {
		conn.Close()
		return nil, openPayload{}, err
	}

	var frame string
	if err := websocket.Message.Receive(conn, &frame); err != nil {
		conn.Close()
		return nil, openPayload{}, fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	if frame == "" || frame[0] != EngineOpen {
		conn.Close()
		return nil, openPayload{}, fmt.Errorf("%w: unexpected packet %q", ErrHandshake, frame)
	}

	var open openPayload
	if err := json.Unmarshal([]byte(frame[1:]), &open); err != nil {
		conn.Close()
		return nil, openPayload{}, fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	return conn, open, nil
}

func (c *Client) sendConnect(conn *websocket.Conn) error {
	p := Packet{Type: PacketConnect, Namespace: c.cfg.Namespace}
	if c.cfg.Auth != nil {
		data, err := json.Marshal(c.cfg.Auth)
		if err != nil {
			return fmt.Errorf("socketio: encode auth: %w", err)
		}
		p.Data = data
	}

	return send(conn, EncodePacket(p))
}

// dispatch handles one Engine.IO frame. It returns false once the
// connection is finished.
func (c *Client) dispatch(conn *websocket.Conn, h sockets.Handlers, frame string, log *zap.Logger) bool {
	if frame == "" {
		return true
	}

	switch frame[0] {
	case EnginePing:
		if err := websocket.Message.Send(conn, string(EnginePong)); err != nil {
			c.fail(conn, h, err)
			return false
		}
		return true

	case EngineClose:
		c.finish(conn)
		c.fire(func() { call(h.OnDisconnect, ReasonTransportClose) })
		return false

	case EngineMessage:
		// handled below

	default:
		return true
	}

	p, err := DecodePacket(frame[1:])
	if err != nil {
		log.Debug("dropping malformed packet", zap.Error(err))
		return true
	}

	if p.Namespace != c.cfg.Namespace {
		return true
	}

	switch p.Type {
	case PacketConnect:
		c.mu.Lock()
		c.connected = !c.closed
		c.mu.Unlock()
		c.fire(func() { callVoid(h.OnConnect) })

	case PacketConnectError:
		c.finish(conn)
		cerr := connectError(p.Data)
		c.fire(func() { call(h.OnError, error(cerr)) })
		return false

	case PacketDisconnect:
		c.finish(conn)
		c.fire(func() { call(h.OnDisconnect, ReasonServerDisconnect) })
		return false

	case PacketEvent:
		event, args, err := p.Event()
		if err != nil {
			log.Debug("dropping malformed event", zap.Error(err))
			return true
		}
		c.fire(func() { callEvent(h.OnEvent, event, args) })

	default:
		log.Debug("ignoring packet", zap.Stringer("type", p.Type))
	}

	return true
}

// fail ends the connection after a transport failure. Failures before the
// namespace handshake are reported as errors, later ones as disconnects.
func (c *Client) fail(conn *websocket.Conn, h sockets.Handlers, err error) {
	c.mu.Lock()
	wasConnected := c.connected
	c.mu.Unlock()

	c.finish(conn)

	if !wasConnected {
		c.fire(func() { call(h.OnError, err) })
		return
	}

	reason := ReasonTransportError
	if isTimeout(err) {
		reason = ReasonPingTimeout
	}
	c.fire(func() { call(h.OnDisconnect, reason) })
}

func (c *Client) finish(conn *websocket.Conn) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	conn.Close()
}

// fire runs fn unless the client was closed by the caller.
func (c *Client) fire(fn func()) {
	if c.isClosed() {
		return
	}
	fn()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

func send(conn *websocket.Conn, packet string) error {
	return websocket.Message.Send(conn, string(EngineMessage)+packet)
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "i/o timeout")
}

func call[T any](fn func(T), v T) {
	if fn != nil {
		fn(v)
	}
}

func callVoid(fn func()) {
	if fn != nil {
		fn()
	}
}

func callEvent(fn func(string, []any), event string, args []any) {
	if fn != nil {
		fn(event, args)
	}
}
