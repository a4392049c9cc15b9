// Package yamlnode has small accessors over yaml.v3 node trees. Documents
// are kept as *yaml.Node so that mapping order survives for both JSON and
// YAML input.
package yamlnode

import "gopkg.in/yaml.v3"

// Unwrap strips document and alias wrappers from a node.
func Unwrap(n *yaml.Node) *yaml.Node {
	for n != nil {
		switch n.Kind {
		case yaml.DocumentNode:
			if len(n.Content) == 0 {
				return nil
			}
			n = n.Content[0]
		case yaml.AliasNode:
			n = n.Alias
		default:
			return n
		}
	}
	return nil
}

// IsMapping reports whether n is (or wraps) a mapping node.
func IsMapping(n *yaml.Node) bool {
	n = Unwrap(n)
	return n != nil && n.Kind == yaml.MappingNode
}

// Field returns the unwrapped value stored under key, or nil when n is not
// a mapping or has no such key.
func Field(n *yaml.Node, key string) *yaml.Node {
	n = Unwrap(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return Unwrap(n.Content[i+1])
		}
	}
	return nil
}

// Pairs calls fn for each key/value pair of a mapping in document order.
// Non-mappings are ignored.
func Pairs(n *yaml.Node, fn func(key string, value *yaml.Node)) {
	n = Unwrap(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		fn(n.Content[i].Value, n.Content[i+1])
	}
}

// Scalar returns the value of a scalar node, or "" for anything else.
func Scalar(n *yaml.Node) string {
	n = Unwrap(n)
	if n == nil || n.Kind != yaml.ScalarNode {
		return ""
	}
	return n.Value
}

// Items returns the entries of a sequence node, or nil.
func Items(n *yaml.Node) []*yaml.Node {
	n = Unwrap(n)
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil
	}
	return n.Content
}
