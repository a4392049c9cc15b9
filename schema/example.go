package schema

import (
	"gopkg.in/yaml.v3"
)

// Placeholder values produced for schemas that carry no example.
const (
	PlaceholderString   = "string"
	PlaceholderEmail    = "user@example.com"
	PlaceholderDate     = "2023-01-01"
	PlaceholderDateTime = "2023-01-01T00:00:00Z"
	PlaceholderUUID     = "123e4567-e89b-12d3-a456-426614174000"
	PlaceholderURI      = "https://example.com"
	PlaceholderNumber   = 123
	PlaceholderBoolean  = true
)

// Generator synthesizes representative example values from schema nodes.
// References are resolved against the document root given to
// NewGenerator. Generation is deterministic and has no side effects, so a
// Generator may be shared between goroutines.
type Generator struct {
	root     *yaml.Node
	maxDepth int
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithMaxDepth bounds the nesting depth of generated values. Schemas nested
// deeper than n produce nil. Zero or a negative n disables the bound.
func WithMaxDepth(n int) GeneratorOption {
	return func(g *Generator) {
		g.maxDepth = n
	}
}

// NewGenerator returns a Generator resolving references against root.
func NewGenerator(root *yaml.Node, opts ...GeneratorOption) *Generator {
	g := &Generator{root: root}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns an example for n using the request-body convention:
// a nil schema yields an empty object.
func (g *Generator) Generate(n *Node) any {
	if n == nil {
		return Object{}
	}
	return g.generate(n, map[string]bool{}, 0)
}

// GeneratePayload returns an example for n using the event-payload
// convention: a nil schema yields nil.
func (g *Generator) GeneratePayload(n *Node) any {
	if n == nil {
		return nil
	}
	return g.generate(n, map[string]bool{}, 0)
}

// GenerateRef resolves pointer and generates an example for its target.
// An unresolvable pointer yields the reference marker.
func (g *Generator) GenerateRef(pointer string) any {
	return g.Generate(&Node{Ref: pointer})
}

// generate walks n. expanding holds the references on the current path;
// meeting one of them again means the document is cyclic and the marker
// is returned instead of recursing.
func (g *Generator) generate(n *Node, expanding map[string]bool, depth int) any {
	if n == nil {
		return nil
	}
	if g.maxDepth > 0 && depth > g.maxDepth {
		return nil
	}

	if n.IsRef() {
		if expanding[n.Ref] {
			return RefMarker(n.Ref)
		}
		target, err := Resolve(n.Ref, g.root)
		if err != nil {
			return RefMarker(n.Ref)
		}
		expanding[n.Ref] = true
		defer delete(expanding, n.Ref)
		return g.generate(target, expanding, depth)
	}

	if n.HasExample {
		return n.Example
	}

	if len(n.Enum) > 0 {
		return n.Enum[0]
	}

	if n.HasDefault {
		return n.Default
	}

	if n.Composition != nil && len(n.Composition.Alternatives) > 0 {
		composed := g.compose(n.Composition, expanding, depth)
		if n.Kind != KindObject || len(n.Properties) == 0 {
			return composed
		}

		// Own properties come first and keep their values; the composition
		// only adds the fields they do not declare.
		own := g.object(n, expanding, depth)
		if extra, ok := exampleObject(composed); ok {
			for _, f := range extra {
				if _, exists := own.Get(f.Name); !exists {
					own = append(own, f)
				}
			}
		}
		return own
	}

	switch n.Kind {
	case KindObject:
		return g.object(n, expanding, depth)
	case KindArray:
		if n.Items == nil {
			return []any{}
		}
		return []any{g.generate(n.Items, expanding, depth+1)}
	case KindString:
		return stringPlaceholder(n.Format)
	case KindNumber, KindInteger:
		return PlaceholderNumber
	case KindBoolean:
		return PlaceholderBoolean
	default:
		return nil
	}
}

func (g *Generator) object(n *Node, expanding map[string]bool, depth int) Object {
	obj := make(Object, 0, len(n.Properties))
	for _, p := range n.Properties {
		obj = append(obj, Field{Name: p.Name, Value: g.generate(p.Schema, expanding, depth+1)})
	}
	return obj
}

// compose generates an example for a composition. oneOf and anyOf use the
// first alternative. allOf merges the alternatives when every one of them
// produces an object and otherwise falls back to the first alternative.
// Unexpanded references take no part in the merge.
func (g *Generator) compose(c *Composition, expanding map[string]bool, depth int) any {
	first := g.generate(c.Alternatives[0], expanding, depth)
	if c.Kind != AllOf {
		return first
	}

	var (
		merged Object
		found  bool
	)
	for i, alt := range c.Alternatives {
		value := first
		if i > 0 {
			value = g.generate(alt, expanding, depth)
		}
		if _, marker := IsRefMarker(value); marker {
			continue
		}

		obj, ok := value.(Object)
		if !ok {
			return first
		}
		for _, f := range obj {
			merged = merged.with(f.Name, f.Value)
		}
		found = true
	}

	if !found {
		return first
	}
	return merged
}

// exampleObject returns v as an Object unless it is not one or is a
// reference marker.
func exampleObject(v any) (Object, bool) {
	if _, marker := IsRefMarker(v); marker {
		return nil, false
	}
	obj, ok := v.(Object)
	return obj, ok
}

func stringPlaceholder(format string) string {
	switch format {
	case "email":
		return PlaceholderEmail
	case "date":
		return PlaceholderDate
	case "date-time":
		return PlaceholderDateTime
	case "uuid":
		return PlaceholderUUID
	case "uri", "url":
		return PlaceholderURI
	default:
		return PlaceholderString
	}
}
