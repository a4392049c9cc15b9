package sockets

// Handlers receives the lifecycle and inbound events of a transport. Any
// handler may be nil.
type Handlers struct {
	// OnConnect is called once the namespace handshake has completed.
	OnConnect func()

	// OnDisconnect is called when the peer or the network ends the
	// connection.
	OnDisconnect func(reason string)

	// OnError is called when the connection cannot be established or
	// fails at the transport level.
	OnError func(err error)

	// OnEvent is called for every inbound event with its arguments.
	OnEvent func(event string, args []any)
}

// Transport is a single namespace connection. Connect starts the handshake
// and returns without waiting for it; outcomes are reported through the
// handlers. Close tears the connection down without calling any handler.
type Transport interface {
	Connect(h Handlers)
	Emit(event string, args ...any) error
	Close() error
}
