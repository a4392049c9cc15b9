package schema

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/vitalvas/apiconsole/internal/yamlnode"
	"gopkg.in/yaml.v3"
)

// rootMarker prefixes every pointer into the same document.
const rootMarker = "#/"

// ErrUnresolvedRef is returned when a reference pointer cannot be resolved.
var ErrUnresolvedRef = errors.New("schema: unresolved reference")

// ReferenceError describes a pointer that does not resolve against a
// document. A missing schema is an authoring error in the document and is
// reported rather than replaced by an empty schema.
type ReferenceError struct {
	// Ref is the full pointer, e.g. "#/components/schemas/User".
	Ref string

	// Segment is the first segment that failed to resolve. Empty when the
	// pointer is malformed.
	Segment string
}

func (e *ReferenceError) Error() string {
	if e.Segment == "" {
		return fmt.Sprintf("schema: invalid reference %q", e.Ref)
	}
	return fmt.Sprintf("schema: reference %q: segment %q not found", e.Ref, e.Segment)
}

// Unwrap allows errors.Is(err, ErrUnresolvedRef).
func (e *ReferenceError) Unwrap() error {
	return ErrUnresolvedRef
}

// Lookup walks pointer through root and returns the raw node it addresses.
// The pointer must start with "#/"; each following segment is unescaped
// per RFC 6901 and percent-decoded, then looked up as a mapping key (or a
// sequence index).
//
// See: https://www.rfc-editor.org/rfc/rfc6901
func Lookup(pointer string, root *yaml.Node) (*yaml.Node, error) {
	if !strings.HasPrefix(pointer, rootMarker) {
		return nil, &ReferenceError{Ref: pointer}
	}

	cur := yamlnode.Unwrap(root)
	if cur == nil {
		return nil, &ReferenceError{Ref: pointer, Segment: "#"}
	}

	for _, segment := range strings.Split(pointer[len(rootMarker):], "/") {
		key := unescapeSegment(segment)

		next := child(cur, key)
		if next == nil {
			return nil, &ReferenceError{Ref: pointer, Segment: key}
		}
		cur = next
	}

	return cur, nil
}

// Resolve returns the schema node addressed by pointer.
func Resolve(pointer string, root *yaml.Node) (*Node, error) {
	raw, err := Lookup(pointer, root)
	if err != nil {
		return nil, err
	}

	n := Parse(raw)
	if n == nil {
		return nil, &ReferenceError{Ref: pointer, Segment: pointer[strings.LastIndex(pointer, "/")+1:]}
	}
	return n, nil
}

// Inline returns a copy of n with every reference replaced by the schema it
// points to. A reference that is already being expanded higher up in the
// tree is left in place, which stops cyclic documents from expanding
// forever. Unresolvable references are reported as errors.
func Inline(n *Node, root *yaml.Node) (*Node, error) {
	return inline(n, root, map[string]bool{})
}

func inline(n *Node, root *yaml.Node, expanding map[string]bool) (*Node, error) {
	if n == nil {
		return nil, nil
	}

	if n.IsRef() {
		if expanding[n.Ref] {
			return n, nil
		}
		target, err := Resolve(n.Ref, root)
		if err != nil {
			return nil, err
		}
		expanding[n.Ref] = true
		defer delete(expanding, n.Ref)
		return inline(target, root, expanding)
	}

	out := *n

	if n.Properties != nil {
		out.Properties = make([]Property, 0, len(n.Properties))
		for _, p := range n.Properties {
			s, err := inline(p.Schema, root, expanding)
			if err != nil {
				return nil, err
			}
			out.Properties = append(out.Properties, Property{Name: p.Name, Schema: s})
		}
	}

	if n.Items != nil {
		items, err := inline(n.Items, root, expanding)
		if err != nil {
			return nil, err
		}
		out.Items = items
	}

	if n.Composition != nil {
		c := &Composition{Kind: n.Composition.Kind}
		for _, alt := range n.Composition.Alternatives {
			s, err := inline(alt, root, expanding)
			if err != nil {
				return nil, err
			}
			c.Alternatives = append(c.Alternatives, s)
		}
		out.Composition = c
	}

	return &out, nil
}

func child(cur *yaml.Node, key string) *yaml.Node {
	switch cur.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(cur.Content); i += 2 {
			if cur.Content[i].Value == key {
				return yamlnode.Unwrap(cur.Content[i+1])
			}
		}
	case yaml.SequenceNode:
		idx, err := strconv.Atoi(key)
		if err == nil && idx >= 0 && idx < len(cur.Content) {
			return yamlnode.Unwrap(cur.Content[idx])
		}
	}
	return nil
}

func unescapeSegment(segment string) string {
	if decoded, err := url.PathUnescape(segment); err == nil {
		segment = decoded
	}
	segment = strings.ReplaceAll(segment, "~1", "/")
	return strings.ReplaceAll(segment, "~0", "~")
}
