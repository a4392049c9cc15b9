package sockets

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNotConnected is returned when emitting on a namespace that is not
	// connected.
	ErrNotConnected = errors.New("sockets: not connected")

	// ErrAlreadyRegistered is returned by AddSocket when the namespace
	// already has a connection. Remove it first.
	ErrAlreadyRegistered = errors.New("sockets: namespace already registered")

	// ErrEmptyEvent is returned when emitting without an event name.
	ErrEmptyEvent = errors.New("sockets: empty event name")
)

// ValidationError reports an operation invoked in a state that forbids it.
type ValidationError struct {
	Op        string
	Namespace string
	Err       error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sockets: %s %q: %v", e.Op, e.Namespace, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// State is the connection state of a namespace.
type State string

const (
	StateAbsent     State = "absent"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
)

// Listener receives the arguments of one inbound event.
type Listener func(args []any)

// Snapshot is a consistent read-only view of the registry.
type Snapshot struct {
	Connections map[string]State     `json:"connections"`
	History     map[string][]Message `json:"history"`
}

// record is one connection. It is replaced, never modified; id survives the
// replacements and identifies the connection for its handlers.
type record struct {
	id        uint64
	transport Transport
	connected bool
}

type state struct {
	records   map[string]*record
	history   map[string][]Message
	listeners map[string]map[string]Listener
}

// Registry owns the namespace connections and their histories. It is safe
// for concurrent use.
type Registry struct {
	mu     sync.Mutex
	state  atomic.Pointer[state]
	nextID atomic.Uint64

	logger *zap.Logger
	now    func() time.Time
	newID  func() string
	hook   func(namespace string, m Message)
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// WithMessageIDs replaces the random UUID message ids.
func WithMessageIDs(fn func() string) RegistryOption {
	return func(r *Registry) {
		r.newID = fn
	}
}

// WithMessageHook registers fn to be called after every history append,
// outside of the registry lock.
func WithMessageHook(fn func(namespace string, m Message)) RegistryOption {
	return func(r *Registry) {
		r.hook = fn
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.state.Store(&state{
		records:   map[string]*record{},
		history:   map[string][]Message{},
		listeners: map[string]map[string]Listener{},
	})

	return r
}

// AddSocket registers t for namespace, starts with an empty history and
// starts the transport handshake. It fails with ErrAlreadyRegistered when
// the namespace already has a connection.
func (r *Registry) AddSocket(namespace string, t Transport) error {
	r.mu.Lock()

	cur := r.state.Load()
	if _, ok := cur.records[namespace]; ok {
		r.mu.Unlock()
		return &ValidationError{Op: "add", Namespace: namespace, Err: ErrAlreadyRegistered}
	}

	rec := &record{id: r.nextID.Add(1), transport: t}

	next := cur.clone()
	next.records[namespace] = rec
	next.history[namespace] = nil
	r.state.Store(next)

	r.mu.Unlock()

	r.logger.Debug("socket added", zap.String("namespace", namespace))

	t.Connect(r.handlers(namespace, rec.id))

	return nil
}

// RemoveSocket closes and forgets the connection of namespace. History is
// kept. Removing an absent namespace is a no-op.
func (r *Registry) RemoveSocket(namespace string) {
	if rec := r.remove(namespace, 0); rec != nil {
		r.close(namespace, rec)
	}
}

// Emit sends event with args on namespace. The sent message is appended
// before the transport is called; a transport failure is appended as an
// error message rather than returned. Emitting on a namespace that is not
// connected returns a *ValidationError wrapping ErrNotConnected.
func (r *Registry) Emit(namespace, event string, args ...any) error {
	if event == "" {
		return &ValidationError{Op: "emit", Namespace: namespace, Err: ErrEmptyEvent}
	}

	rec, ok := r.state.Load().records[namespace]
	if !ok || !rec.connected {
		return &ValidationError{Op: "emit", Namespace: namespace, Err: ErrNotConnected}
	}

	if args == nil {
		args = []any{}
	}

	if !r.appendIf(namespace, rec.id, MessageSent, event, slices.Clone(args)) {
		return &ValidationError{Op: "emit", Namespace: namespace, Err: ErrNotConnected}
	}

	if err := rec.transport.Emit(event, args...); err != nil {
		r.logger.Warn("socket emit failed",
			zap.String("namespace", namespace),
			zap.String("event", event),
			zap.Error(err),
		)
		r.appendIf(namespace, rec.id, MessageError, err.Error(), []any{err})
	}

	return nil
}

// AddEventListener sets fn as the listener for event on namespace,
// replacing any previous one. Listeners run in addition to the history
// capture of every inbound event.
func (r *Registry) AddEventListener(namespace, event string, fn Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.state.Load().clone()

	events := maps.Clone(next.listeners[namespace])
	if events == nil {
		events = map[string]Listener{}
	}
	events[event] = fn
	next.listeners[namespace] = events

	r.state.Store(next)
}

// RemoveEventListener removes the listener for event on namespace.
func (r *Registry) RemoveEventListener(namespace, event string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.state.Load()
	if _, ok := cur.listeners[namespace][event]; !ok {
		return
	}

	next := cur.clone()
	events := maps.Clone(next.listeners[namespace])
	delete(events, event)
	if len(events) == 0 {
		delete(next.listeners, namespace)
	} else {
		next.listeners[namespace] = events
	}

	r.state.Store(next)
}

// ClearHistory drops every message of namespace.
func (r *Registry) ClearHistory(namespace string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.state.Load()
	if _, ok := cur.history[namespace]; !ok {
		return
	}

	next := cur.clone()
	delete(next.history, namespace)
	r.state.Store(next)
}

// State returns the connection state of namespace.
func (r *Registry) State(namespace string) State {
	rec, ok := r.state.Load().records[namespace]
	switch {
	case !ok:
		return StateAbsent
	case rec.connected:
		return StateConnected
	default:
		return StateConnecting
	}
}

// Connected reports whether namespace is connected.
func (r *Registry) Connected(namespace string) bool {
	return r.State(namespace) == StateConnected
}

// History returns the messages of namespace in append order. The slice is
// shared and must not be modified.
func (r *Registry) History(namespace string) []Message {
	return r.state.Load().history[namespace]
}

// Namespaces returns the registered namespaces in sorted order.
func (r *Registry) Namespaces() []string {
	return slices.Sorted(maps.Keys(r.state.Load().records))
}

// Len returns the number of registered namespaces.
func (r *Registry) Len() int {
	return len(r.state.Load().records)
}

// Snapshot returns the states of all registered namespaces and every
// history, taken at the same instant.
func (r *Registry) Snapshot() Snapshot {
	cur := r.state.Load()

	snap := Snapshot{
		Connections: make(map[string]State, len(cur.records)),
		History:     maps.Clone(cur.history),
	}
	for ns, rec := range cur.records {
		if rec.connected {
			snap.Connections[ns] = StateConnected
		} else {
			snap.Connections[ns] = StateConnecting
		}
	}

	return snap
}

// Close removes every namespace.
func (r *Registry) Close() {
	for _, ns := range r.Namespaces() {
		r.RemoveSocket(ns)
	}
}

func (r *Registry) handlers(namespace string, id uint64) Handlers {
	return Handlers{
		OnConnect: func() {
			r.mu.Lock()
			cur := r.state.Load()
			rec, ok := cur.records[namespace]
			if !ok || rec.id != id {
				r.mu.Unlock()
				return
			}

			next := cur.clone()
			next.records[namespace] = &record{id: rec.id, transport: rec.transport, connected: true}
			msg := r.appendLocked(next, namespace, MessageInfo, EventConnect, []any{})
			r.state.Store(next)
			r.mu.Unlock()

			r.logger.Info("socket connected", zap.String("namespace", namespace))
			r.notify(namespace, msg)
		},

		OnDisconnect: func(reason string) {
			data := []any{}
			if reason != "" {
				data = []any{reason}
			}
			if !r.appendIf(namespace, id, MessageInfo, EventDisconnect, data) {
				return
			}

			r.logger.Info("socket disconnected",
				zap.String("namespace", namespace),
				zap.String("reason", reason),
			)

			if rec := r.remove(namespace, id); rec != nil {
				r.close(namespace, rec)
			}
		},

		OnError: func(err error) {
			if err == nil {
				err = errors.New("unknown transport error")
			}
			if !r.appendIf(namespace, id, MessageError, err.Error(), []any{err}) {
				return
			}

			r.logger.Warn("socket error",
				zap.String("namespace", namespace),
				zap.Error(err),
			)

			if rec := r.remove(namespace, id); rec != nil {
				r.close(namespace, rec)
			}
		},

		OnEvent: func(event string, args []any) {
			if args == nil {
				args = []any{}
			}
			if !r.appendIf(namespace, id, MessageReceived, event, slices.Clone(args)) {
				return
			}

			r.logger.Debug("socket event received",
				zap.String("namespace", namespace),
				zap.String("event", event),
			)

			if fn := r.state.Load().listeners[namespace][event]; fn != nil {
				fn(args)
			}
		},
	}
}

// appendIf appends a message to the history of namespace while the record
// identified by id is still registered there. It reports whether the
// message was appended.
func (r *Registry) appendIf(namespace string, id uint64, typ MessageType, event string, data []any) bool {
	r.mu.Lock()

	cur := r.state.Load()
	if rec, ok := cur.records[namespace]; !ok || rec.id != id {
		r.mu.Unlock()
		return false
	}

	next := cur.clone()
	msg := r.appendLocked(next, namespace, typ, event, data)
	r.state.Store(next)

	r.mu.Unlock()

	r.notify(namespace, msg)

	return true
}

// appendLocked adds a message to the history of namespace in next, which
// must be a private copy.
func (r *Registry) appendLocked(next *state, namespace string, typ MessageType, event string, data []any) Message {
	msg := Message{
		ID:        r.newID(),
		Type:      typ,
		Event:     event,
		Data:      data,
		Timestamp: r.now(),
	}

	prev := next.history[namespace]
	history := make([]Message, len(prev), len(prev)+1)
	copy(history, prev)
	next.history[namespace] = append(history, msg)

	return msg
}

// remove deletes the record of namespace. A non-zero id only removes the
// record it identifies. It returns the removed record, or nil.
func (r *Registry) remove(namespace string, id uint64) *record {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.state.Load()
	rec, ok := cur.records[namespace]
	if !ok || (id != 0 && rec.id != id) {
		return nil
	}

	next := cur.clone()
	delete(next.records, namespace)
	r.state.Store(next)

	return rec
}

func (r *Registry) close(namespace string, rec *record) {
	if err := rec.transport.Close(); err != nil {
		r.logger.Debug("socket close failed",
			zap.String("namespace", namespace),
			zap.Error(err),
		)
	}
}

func (r *Registry) notify(namespace string, m Message) {
	if r.hook != nil {
		r.hook(namespace, m)
	}
}

// clone returns a shallow copy of s with fresh top-level maps. Histories
// and listener maps are shared until replaced.
func (s *state) clone() *state {
	return &state{
		records:   maps.Clone(s.records),
		history:   maps.Clone(s.history),
		listeners: maps.Clone(s.listeners),
	}
}
