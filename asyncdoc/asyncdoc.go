package asyncdoc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vitalvas/apiconsole/internal/yamlnode"
	"github.com/vitalvas/apiconsole/schema"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDocument is returned when the input is not a socket document.
var ErrInvalidDocument = errors.New("asyncdoc: invalid document")

// Direction tells which side of a connection emits an event.
type Direction string

const (
	ClientToServer   Direction = "client-to-server"
	ServerToClient   Direction = "server-to-client"
	Bidirectional    Direction = "bidirectional"
	ServerEmitOnly   Direction = "server-emit-only"
	ClientListenOnly Direction = "client-listen-only"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	switch d {
	case ClientToServer, ServerToClient, Bidirectional, ServerEmitOnly, ClientListenOnly:
		return true
	}
	return false
}

// CanEmit reports whether a client may emit events of this direction.
func (d Direction) CanEmit() bool {
	return d == ClientToServer || d == Bidirectional
}

// CanListen reports whether a client receives events of this direction.
func (d Direction) CanListen() bool {
	switch d {
	case ServerToClient, Bidirectional, ServerEmitOnly, ClientListenOnly:
		return true
	}
	return false
}

type Server struct {
	URL         string `yaml:"url" json:"url"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// SecurityScheme describes how a namespace handshake authenticates.
// Only "http" with scheme "bearer" and "apiKey" affect the handshake.
type SecurityScheme struct {
	Type        string `yaml:"type" json:"type"`
	Scheme      string `yaml:"scheme,omitempty" json:"scheme,omitempty"`
	Name        string `yaml:"name,omitempty" json:"name,omitempty"`
	In          string `yaml:"in,omitempty" json:"in,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

func (s SecurityScheme) IsBearer() bool {
	return s.Type == "http" && strings.EqualFold(s.Scheme, "bearer")
}

func (s SecurityScheme) IsAPIKey() bool {
	return s.Type == "apiKey"
}

// Event is one documented Socket.IO event of a namespace.
type Event struct {
	Name           string       `json:"name"`
	Direction      Direction    `json:"direction"`
	Description    string       `json:"description,omitempty"`
	Deprecated     bool         `json:"deprecated,omitempty"`
	RequestSchema  *schema.Node `json:"-"`
	ResponseSchema *schema.Node `json:"-"`
	Example        any          `json:"example,omitempty"`
	HasExample     bool         `json:"-"`

	// Acknowledgment is set when the server acknowledges the event.
	// AckSchema describes the acknowledgment payload when documented.
	Acknowledgment bool         `json:"acknowledgment,omitempty"`
	AckSchema      *schema.Node `json:"-"`
}

func (e *Event) CanEmit() bool {
	return e.Direction.CanEmit()
}

func (e *Event) CanListen() bool {
	return e.Direction.CanListen()
}

// Namespace is a documented Socket.IO namespace.
type Namespace struct {
	Path        string           `json:"path"`
	Description string           `json:"description,omitempty"`
	Auth        []SecurityScheme `json:"auth,omitempty"`
	Events      []*Event         `json:"events"`
}

// Event looks up an event by name.
func (n *Namespace) Event(name string) (*Event, bool) {
	for _, ev := range n.Events {
		if ev.Name == name {
			return ev, true
		}
	}
	return nil, false
}

// HandshakeAuth returns the auth payload sent with the namespace CONNECT
// packet. Bearer schemes contribute "token" and "authorization", API key
// schemes contribute "apiKey". It returns nil when token is empty or the
// namespace declares no scheme that uses it.
func (n *Namespace) HandshakeAuth(token string) map[string]any {
	if token == "" {
		return nil
	}

	var auth map[string]any
	for _, scheme := range n.Auth {
		switch {
		case scheme.IsBearer():
			if auth == nil {
				auth = map[string]any{}
			}
			auth["token"] = token
			auth["authorization"] = "Bearer " + token
		case scheme.IsAPIKey():
			if auth == nil {
				auth = map[string]any{}
			}
			auth["apiKey"] = token
		}
	}

	return auth
}

// Document is a loaded socket document. It is read-only after Load.
type Document struct {
	Servers    []Server     `json:"servers,omitempty"`
	Namespaces []*Namespace `json:"namespaces"`

	root *yaml.Node
}

// Load parses a socket document from JSON or YAML. Namespaces and events
// keep their document order.
func Load(data []byte) (*Document, error) {
	var raw yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	top := yamlnode.Unwrap(&raw)
	if top == nil || top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: document root must be an object", ErrInvalidDocument)
	}

	doc := &Document{root: &raw}

	if servers := yamlnode.Field(top, "servers"); servers != nil {
		if err := servers.Decode(&doc.Servers); err != nil {
			return nil, fmt.Errorf("%w: servers: %w", ErrInvalidDocument, err)
		}
	}

	var err error
	yamlnode.Pairs(yamlnode.Field(top, "namespaces"), func(path string, value *yaml.Node) {
		if err != nil {
			return
		}

		ns, nerr := doc.namespace(path, value)
		if nerr != nil {
			err = fmt.Errorf("asyncdoc: namespace %q: %w", path, nerr)
			return
		}
		doc.Namespaces = append(doc.Namespaces, ns)
	})
	if err != nil {
		return nil, err
	}

	return doc, nil
}

func (d *Document) namespace(path string, raw *yaml.Node) (*Namespace, error) {
	ns := &Namespace{
		Path:        path,
		Description: yamlnode.Scalar(yamlnode.Field(raw, "description")),
		Events:      []*Event{},
	}

	if auth := yamlnode.Field(raw, "auth"); auth != nil && auth.Kind == yaml.SequenceNode {
		for _, item := range auth.Content {
			resolved, err := d.deref(item)
			if err != nil {
				return nil, fmt.Errorf("auth: %w", err)
			}

			var scheme SecurityScheme
			if err := resolved.Decode(&scheme); err != nil {
				return nil, fmt.Errorf("%w: auth: %w", ErrInvalidDocument, err)
			}
			ns.Auth = append(ns.Auth, scheme)
		}
	}

	var err error
	yamlnode.Pairs(yamlnode.Field(raw, "events"), func(name string, value *yaml.Node) {
		if err != nil {
			return
		}

		direction := Direction(yamlnode.Scalar(yamlnode.Field(value, "direction")))
		if direction == "" {
			direction = Bidirectional
		}
		if !direction.Valid() {
			err = fmt.Errorf("%w: event %q: unknown direction %q", ErrInvalidDocument, name, direction)
			return
		}

		ev := &Event{
			Name:           name,
			Direction:      direction,
			Description:    yamlnode.Scalar(yamlnode.Field(value, "description")),
			Deprecated:     yamlnode.Scalar(yamlnode.Field(value, "deprecated")) == "true",
			RequestSchema:  schema.Parse(yamlnode.Field(value, "requestSchema")),
			ResponseSchema: schema.Parse(yamlnode.Field(value, "responseSchema")),
		}

		if ex := yamlnode.Field(value, "example"); ex != nil {
			ev.Example = schema.Literal(ex)
			ev.HasExample = true
		}

		if ack := yamlnode.Field(value, "acknowledgment"); ack != nil {
			switch ack.Kind {
			case yaml.MappingNode:
				ev.Acknowledgment = true
				ev.AckSchema = schema.Parse(ack)
			case yaml.ScalarNode:
				ev.Acknowledgment = ack.Value == "true"
			}
		}

		ns.Events = append(ns.Events, ev)
	})
	if err != nil {
		return nil, err
	}

	return ns, nil
}

func (d *Document) deref(raw *yaml.Node) (*yaml.Node, error) {
	raw = yamlnode.Unwrap(raw)
	if ref := yamlnode.Scalar(yamlnode.Field(raw, "$ref")); ref != "" {
		return schema.Lookup(ref, d.root)
	}
	return raw, nil
}

// Root returns the raw document tree that schema references resolve against.
func (d *Document) Root() *yaml.Node {
	return d.root
}

// Namespace looks up a namespace by path.
func (d *Document) Namespace(path string) (*Namespace, bool) {
	for _, ns := range d.Namespaces {
		if ns.Path == path {
			return ns, true
		}
	}
	return nil, false
}

// BaseURL returns the URL of the first declared server, or "".
func (d *Document) BaseURL() string {
	if len(d.Servers) == 0 {
		return ""
	}
	return d.Servers[0].URL
}

// Generator returns an example generator bound to this document.
func (d *Document) Generator(opts ...schema.GeneratorOption) *schema.Generator {
	return schema.NewGenerator(d.root, opts...)
}

// PayloadExample returns the default payload for emitting ev: its literal
// example when documented, otherwise one generated from its request
// schema. Events without either yield nil.
func (d *Document) PayloadExample(ev *Event, opts ...schema.GeneratorOption) any {
	if ev == nil {
		return nil
	}
	if ev.HasExample {
		return ev.Example
	}
	return d.Generator(opts...).GeneratePayload(ev.RequestSchema)
}
