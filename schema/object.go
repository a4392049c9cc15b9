package schema

import (
	"bytes"
	"encoding/json"

	"github.com/vitalvas/apiconsole/internal/yamlnode"
	"gopkg.in/yaml.v3"
)

// Field is a single entry of an Object.
type Field struct {
	Name  string
	Value any
}

// Object is an example object that keeps its fields in insertion order,
// so that repeated renders of the same schema serialize byte-identically.
type Object []Field

// Get returns the value of the named field.
func (o Object) Get(name string) (any, bool) {
	for _, f := range o {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Keys returns the field names in order.
func (o Object) Keys() []string {
	keys := make([]string, 0, len(o))
	for _, f := range o {
		keys = append(keys, f.Name)
	}
	return keys
}

// Map returns the fields as an unordered map.
func (o Object) Map() map[string]any {
	m := make(map[string]any, len(o))
	for _, f := range o {
		m[f.Name] = f.Value
	}
	return m
}

// with returns a copy of o where name is set to value. An existing field
// keeps its position.
func (o Object) with(name string, value any) Object {
	out := make(Object, len(o), len(o)+1)
	copy(out, o)
	for i := range out {
		if out[i].Name == name {
			out[i].Value = value
			return out
		}
	}
	return append(out, Field{Name: name, Value: value})
}

// MarshalJSON encodes the object with its fields in order.
func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// RefMarker returns the placeholder value used for a reference that could
// not be expanded: an object holding the pointer under "$ref".
func RefMarker(pointer string) Object {
	return Object{{Name: "$ref", Value: pointer}}
}

// IsRefMarker reports whether v is a reference placeholder and returns
// its pointer.
func IsRefMarker(v any) (string, bool) {
	o, ok := v.(Object)
	if !ok || len(o) != 1 || o[0].Name != "$ref" {
		return "", false
	}
	ptr, ok := o[0].Value.(string)
	return ptr, ok
}

// Literal converts a raw YAML/JSON value into a plain value. Mappings
// become Object (order preserved), sequences become []any and scalars
// their natural Go type.
func Literal(raw *yaml.Node) any {
	raw = yamlnode.Unwrap(raw)
	if raw == nil {
		return nil
	}

	switch raw.Kind {
	case yaml.MappingNode:
		obj := Object{}
		yamlnode.Pairs(raw, func(key string, value *yaml.Node) {
			obj = append(obj, Field{Name: key, Value: Literal(value)})
		})
		return obj
	case yaml.SequenceNode:
		list := make([]any, 0, len(raw.Content))
		for _, item := range raw.Content {
			list = append(list, Literal(item))
		}
		return list
	default:
		var v any
		if err := raw.Decode(&v); err != nil {
			return raw.Value
		}
		return v
	}
}
