package socketio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Engine.IO v4 packet types. Each text frame starts with one of them.
//
// See: https://github.com/socketio/engine.io-protocol#packet
const (
	EngineOpen    byte = '0'
	EngineClose   byte = '1'
	EnginePing    byte = '2'
	EnginePong    byte = '3'
	EngineMessage byte = '4'
	EngineUpgrade byte = '5'
	EngineNoop    byte = '6'
)

// PacketType is a Socket.IO v5 packet type.
//
// See: https://github.com/socketio/socket.io-protocol#packet-types
type PacketType byte

const (
	PacketConnect PacketType = iota
	PacketDisconnect
	PacketEvent
	PacketAck
	PacketConnectError
	PacketBinaryEvent
	PacketBinaryAck
)

func (t PacketType) String() string {
	switch t {
	case PacketConnect:
		return "CONNECT"
	case PacketDisconnect:
		return "DISCONNECT"
	case PacketEvent:
		return "EVENT"
	case PacketAck:
		return "ACK"
	case PacketConnectError:
		return "CONNECT_ERROR"
	case PacketBinaryEvent:
		return "BINARY_EVENT"
	case PacketBinaryAck:
		return "BINARY_ACK"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(t)) + ")"
	}
}

// ErrMalformedPacket is returned by DecodePacket for input that is not a
// Socket.IO packet.
var ErrMalformedPacket = errors.New("socketio: malformed packet")

// DefaultNamespace is the main namespace. It is never written on the wire.
const DefaultNamespace = "/"

// Packet is a decoded Socket.IO packet. AckID is nil when the packet does
// not request an acknowledgement.
type Packet struct {
	Type        PacketType
	Namespace   string
	AckID       *int
	Attachments int
	Data        json.RawMessage
}

// EncodePacket renders p in the Socket.IO text encoding, without the
// Engine.IO message prefix:
//
//	<type>[<attachments>-][<namespace>,][<ack id>][<JSON data>]
func EncodePacket(p Packet) string {
	var b strings.Builder

	b.WriteByte('0' + byte(p.Type))

	if p.Type == PacketBinaryEvent || p.Type == PacketBinaryAck {
		b.WriteString(strconv.Itoa(p.Attachments))
		b.WriteByte('-')
	}

	if p.Namespace != "" && p.Namespace != DefaultNamespace {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}

	if p.AckID != nil {
		b.WriteString(strconv.Itoa(*p.AckID))
	}

	b.Write(p.Data)

	return b.String()
}

// DecodePacket parses a Socket.IO packet without the Engine.IO message
// prefix. A missing namespace decodes as DefaultNamespace.
func DecodePacket(s string) (Packet, error) {
	if s == "" {
		return Packet{}, fmt.Errorf("%w: empty", ErrMalformedPacket)
	}

	if s[0] < '0' || s[0] > '0'+byte(PacketBinaryAck) {
		return Packet{}, fmt.Errorf("%w: unknown type %q", ErrMalformedPacket, s[0])
	}

	p := Packet{Type: PacketType(s[0] - '0'), Namespace: DefaultNamespace}
	rest := s[1:]

	if p.Type == PacketBinaryEvent || p.Type == PacketBinaryAck {
		count, tail, ok := strings.Cut(rest, "-")
		if !ok {
			return Packet{}, fmt.Errorf("%w: missing attachment count", ErrMalformedPacket)
		}
		n, err := strconv.Atoi(count)
		if err != nil || n < 0 {
			return Packet{}, fmt.Errorf("%w: bad attachment count %q", ErrMalformedPacket, count)
		}
		p.Attachments = n
		rest = tail
	}

	if strings.HasPrefix(rest, "/") {
		end := strings.IndexByte(rest, ',')
		if end < 0 {
			p.Namespace = rest
			rest = ""
		} else {
			p.Namespace = rest[:end]
			rest = rest[end+1:]
		}
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(rest[:digits])
		if err != nil {
			return Packet{}, fmt.Errorf("%w: bad ack id: %w", ErrMalformedPacket, err)
		}
		p.AckID = &id
		rest = rest[digits:]
	}

	if rest != "" {
		if !json.Valid([]byte(rest)) {
			return Packet{}, fmt.Errorf("%w: invalid payload", ErrMalformedPacket)
		}
		p.Data = json.RawMessage(rest)
	}

	return p, nil
}

// NewEvent returns an EVENT packet carrying event and args.
func NewEvent(namespace, event string, args ...any) (Packet, error) {
	data, err := json.Marshal(append([]any{event}, args...))
	if err != nil {
		return Packet{}, fmt.Errorf("socketio: encode event %q: %w", event, err)
	}

	return Packet{Type: PacketEvent, Namespace: namespace, Data: data}, nil
}

// Event returns the name and arguments of an EVENT packet. Arguments are
// decoded as generic JSON values.
func (p Packet) Event() (string, []any, error) {
	var items []any
	if err := json.Unmarshal(p.Data, &items); err != nil {
		return "", nil, fmt.Errorf("%w: event payload: %w", ErrMalformedPacket, err)
	}
	if len(items) == 0 {
		return "", nil, fmt.Errorf("%w: event without name", ErrMalformedPacket)
	}

	name, ok := items[0].(string)
	if !ok {
		return "", nil, fmt.Errorf("%w: event name must be a string", ErrMalformedPacket)
	}

	return name, items[1:], nil
}

// ConnectError is the reason a server refused a namespace connection.
type ConnectError struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *ConnectError) Error() string {
	return e.Message
}

// connectError decodes a CONNECT_ERROR payload, which is an object with a
// message in v5 and a bare string in older servers.
func connectError(data json.RawMessage) *ConnectError {
	var ce ConnectError
	if err := json.Unmarshal(data, &ce); err == nil && ce.Message != "" {
		return &ce
	}

	var msg string
	if err := json.Unmarshal(data, &msg); err == nil && msg != "" {
		return &ConnectError{Message: msg}
	}

	return &ConnectError{Message: "connect_error"}
}
