package schema

import (
	"strings"

	"github.com/vitalvas/apiconsole/internal/yamlnode"
	"gopkg.in/yaml.v3"
)

// Kind is the closed set of value kinds a schema node can describe.
//
// See: https://json-schema.org/draft/2020-12/json-schema-validation#section-6.1.1
type Kind int

const (
	KindUnknown Kind = iota
	KindObject
	KindArray
	KindString
	KindNumber
	KindInteger
	KindBoolean
)

// String returns the JSON Schema type name of the kind.
func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindInteger:
		return "integer"
	case KindBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// CompositionKind tags the composition keyword a node was built from.
//
// See: https://json-schema.org/draft/2020-12/json-schema-core#section-10.2.1
type CompositionKind int

const (
	OneOf CompositionKind = iota + 1
	AnyOf
	AllOf
)

// String returns the JSON Schema keyword of the composition.
func (c CompositionKind) String() string {
	switch c {
	case OneOf:
		return "oneOf"
	case AnyOf:
		return "anyOf"
	case AllOf:
		return "allOf"
	default:
		return ""
	}
}

// Composition is a oneOf/anyOf/allOf list of alternative schemas.
type Composition struct {
	Kind         CompositionKind
	Alternatives []*Node
}

// Property is a single named entry of an object schema. Properties keep
// the order in which they appear in the source document.
type Property struct {
	Name   string
	Schema *Node
}

// Node is one unit of type description in normalized form. Nodes are
// produced by Parse and never modified afterwards; callers that need a
// different tree build a new one (see Inline).
//
// When Ref is set the node is a reference and its inline fields are not
// consulted until the reference has been resolved.
type Node struct {
	Kind        Kind
	Properties  []Property
	Items       *Node
	Required    []string
	Enum        []any
	Composition *Composition
	Ref         string
	Format      string
	Description string
	Deprecated  bool

	Example    any
	HasExample bool
	Default    any
	HasDefault bool
}

// IsRef reports whether the node is a reference.
func (n *Node) IsRef() bool {
	return n != nil && n.Ref != ""
}

// Property returns the schema of the named property, or nil.
func (n *Node) Property(name string) *Node {
	if n == nil {
		return nil
	}
	for _, p := range n.Properties {
		if p.Name == name {
			return p.Schema
		}
	}
	return nil
}

// IsRequired reports whether name is listed in the node's required set.
func (n *Node) IsRequired(name string) bool {
	if n == nil {
		return false
	}
	for _, r := range n.Required {
		if r == name {
			return true
		}
	}
	return false
}

// Parse converts a raw YAML/JSON schema node into its normalized form.
// Parse is total: anything it does not recognize becomes KindUnknown and
// a nil input yields nil.
func Parse(raw *yaml.Node) *Node {
	raw = yamlnode.Unwrap(raw)
	if raw == nil || raw.Kind != yaml.MappingNode {
		return nil
	}

	n := &Node{}
	var hasProperties, hasItems bool
	var types []string

	yamlnode.Pairs(raw, func(key string, value *yaml.Node) {
		switch key {
		case "$ref":
			n.Ref = yamlnode.Scalar(value)
		case "type":
			types = typeNames(value)
		case "format":
			n.Format = yamlnode.Scalar(value)
		case "description":
			n.Description = yamlnode.Scalar(value)
		case "deprecated":
			n.Deprecated = yamlnode.Scalar(value) == "true"
		case "properties":
			hasProperties = true
			n.Properties = parseProperties(value)
		case "items":
			hasItems = true
			n.Items = Parse(value)
		case "required":
			n.Required = stringList(value)
		case "enum":
			if value.Kind == yaml.SequenceNode {
				for _, item := range value.Content {
					n.Enum = append(n.Enum, Literal(item))
				}
			}
		case "example":
			n.Example = Literal(value)
			n.HasExample = true
		case "examples":
			// A JSON Schema examples array; the first entry acts as the example.
			if value.Kind == yaml.SequenceNode && len(value.Content) > 0 && !n.HasExample {
				n.Example = Literal(value.Content[0])
				n.HasExample = true
			}
		case "default":
			n.Default = Literal(value)
			n.HasDefault = true
		case "oneOf":
			n.Composition = parseComposition(OneOf, value)
		case "anyOf":
			n.Composition = parseComposition(AnyOf, value)
		case "allOf":
			n.Composition = parseComposition(AllOf, value)
		}
	})

	n.Kind = kindOf(types, hasProperties, hasItems)
	if n.Kind == KindObject && n.Properties == nil {
		n.Properties = []Property{}
	}

	return n
}

func parseProperties(raw *yaml.Node) []Property {
	props := []Property{}
	yamlnode.Pairs(yamlnode.Unwrap(raw), func(key string, value *yaml.Node) {
		props = append(props, Property{Name: key, Schema: Parse(value)})
	})
	return props
}

func parseComposition(kind CompositionKind, raw *yaml.Node) *Composition {
	raw = yamlnode.Unwrap(raw)
	if raw == nil || raw.Kind != yaml.SequenceNode {
		return nil
	}
	c := &Composition{Kind: kind}
	for _, item := range raw.Content {
		if alt := Parse(item); alt != nil {
			c.Alternatives = append(c.Alternatives, alt)
		}
	}
	return c
}

// kindOf picks the node kind from the declared type names. A "null" entry
// of a nullable type list is skipped; with no declared type the kind is
// inferred from the presence of properties or items.
func kindOf(types []string, hasProperties, hasItems bool) Kind {
	for _, t := range types {
		switch strings.ToLower(t) {
		case "object":
			return KindObject
		case "array":
			return KindArray
		case "string":
			return KindString
		case "number":
			return KindNumber
		case "integer":
			return KindInteger
		case "boolean":
			return KindBoolean
		case "null":
			continue
		default:
			return KindUnknown
		}
	}

	if len(types) == 0 {
		switch {
		case hasProperties:
			return KindObject
		case hasItems:
			return KindArray
		}
	}

	return KindUnknown
}

func typeNames(raw *yaml.Node) []string {
	raw = yamlnode.Unwrap(raw)
	if raw == nil {
		return nil
	}
	if raw.Kind == yaml.ScalarNode {
		return []string{raw.Value}
	}
	return stringList(raw)
}

func stringList(raw *yaml.Node) []string {
	raw = yamlnode.Unwrap(raw)
	if raw == nil || raw.Kind != yaml.SequenceNode {
		return nil
	}
	out := make([]string, 0, len(raw.Content))
	for _, item := range raw.Content {
		out = append(out, yamlnode.Scalar(item))
	}
	return out
}
