package openapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/vitalvas/apiconsole/internal/yamlnode"
	"github.com/vitalvas/apiconsole/schema"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidDocument is returned when the input is not an OpenAPI document.
	ErrInvalidDocument = errors.New("openapi: invalid document")

	// ErrValidation is returned by Validate for documents that parse but
	// violate the OpenAPI specification.
	ErrValidation = errors.New("openapi: validation failed")
)

// maxRefHops bounds how many $ref indirections are followed for a single
// parameter, request body or response before giving up.
const maxRefHops = 16

// methodOrder maps path item keys to HTTP methods.
//
// See: https://spec.openapis.org/oas/v3.1.0#path-item-object
var methodOrder = map[string]string{
	"get":     http.MethodGet,
	"put":     http.MethodPut,
	"post":    http.MethodPost,
	"delete":  http.MethodDelete,
	"options": http.MethodOptions,
	"head":    http.MethodHead,
	"patch":   http.MethodPatch,
	"trace":   http.MethodTrace,
}

// LoadOption configures Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	location *url.URL
}

// WithLocation records where the document was fetched from. Relative
// server URLs are resolved against it when it is an absolute http(s) URL;
// any other location is ignored.
func WithLocation(location string) LoadOption {
	return func(o *loadOptions) {
		u, err := url.Parse(location)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return
		}
		o.location = u
	}
}

// Load parses an OpenAPI document from JSON or YAML. Paths, methods,
// parameters, media types and responses keep the order in which they
// appear in data. Parameter, request body and response references are
// resolved while loading; an unresolvable one fails the load.
func Load(data []byte, opts ...LoadOption) (*Document, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	var raw yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	top := yamlnode.Unwrap(&raw)
	if top == nil || top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: document root must be an object", ErrInvalidDocument)
	}

	doc := &Document{root: &raw}
	if err := top.Decode(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if doc.OpenAPI == "" {
		return nil, fmt.Errorf("%w: missing openapi version", ErrInvalidDocument)
	}

	if o.location != nil {
		doc.resolveServers(o.location)
	}

	if err := doc.loadComponents(yamlnode.Field(top, "components")); err != nil {
		return nil, err
	}

	if err := doc.loadPaths(yamlnode.Field(top, "paths")); err != nil {
		return nil, err
	}

	return doc, nil
}

// Validate checks data against the OpenAPI specification using
// kin-openapi. Load accepts documents that Validate rejects; Validate is
// the strict lint.
func Validate(ctx context.Context, data []byte) error {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	spec, err := loader.LoadFromData(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if err := spec.Validate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	return nil
}

// resolveServers makes relative server URLs absolute against base.
// Absolute and unparsable URLs, such as templated hosts, stay as written.
func (d *Document) resolveServers(base *url.URL) {
	for i := range d.Servers {
		raw := d.Servers[i].URL
		if strings.Contains(raw, "://") {
			continue
		}
		ref, err := url.Parse(raw)
		if err != nil {
			continue
		}
		d.Servers[i].URL = base.ResolveReference(ref).String()
	}
}

func (d *Document) loadComponents(components *yaml.Node) error {
	yamlnode.Pairs(yamlnode.Field(components, "schemas"), func(name string, _ *yaml.Node) {
		d.schemaNames = append(d.schemaNames, name)
	})

	d.securitySchemes = map[string]*SecurityScheme{}

	var err error
	yamlnode.Pairs(yamlnode.Field(components, "securitySchemes"), func(name string, value *yaml.Node) {
		if err != nil {
			return
		}

		resolved, rerr := d.deref(value)
		if rerr != nil {
			err = fmt.Errorf("openapi: security scheme %q: %w", name, rerr)
			return
		}

		scheme := &SecurityScheme{}
		if derr := resolved.Decode(scheme); derr != nil {
			err = fmt.Errorf("%w: security scheme %q: %w", ErrInvalidDocument, name, derr)
			return
		}
		d.securitySchemes[name] = scheme
	})

	return err
}

func (d *Document) loadPaths(paths *yaml.Node) error {
	var err error

	yamlnode.Pairs(paths, func(path string, value *yaml.Node) {
		if err != nil {
			return
		}

		item, rerr := d.deref(value)
		if rerr != nil {
			err = fmt.Errorf("openapi: path %q: %w", path, rerr)
			return
		}

		shared, perr := d.parameters(yamlnode.Field(item, "parameters"))
		if perr != nil {
			err = fmt.Errorf("openapi: path %q: %w", path, perr)
			return
		}

		yamlnode.Pairs(item, func(key string, op *yaml.Node) {
			if err != nil {
				return
			}

			method, ok := methodOrder[key]
			if !ok {
				return
			}

			ep, oerr := d.endpoint(method, path, shared, yamlnode.Unwrap(op))
			if oerr != nil {
				err = fmt.Errorf("openapi: %s %s: %w", method, path, oerr)
				return
			}
			d.endpoints = append(d.endpoints, ep)
		})
	})

	return err
}

func (d *Document) endpoint(method, path string, shared []Parameter, op *yaml.Node) (*Endpoint, error) {
	var meta struct {
		Summary     string                `yaml:"summary"`
		Description string                `yaml:"description"`
		OperationID string                `yaml:"operationId"`
		Tags        []string              `yaml:"tags"`
		Deprecated  bool                  `yaml:"deprecated"`
		Security    []SecurityRequirement `yaml:"security"`
	}
	if err := op.Decode(&meta); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	ep := &Endpoint{
		Method:      method,
		Path:        path,
		Summary:     meta.Summary,
		Description: meta.Description,
		OperationID: meta.OperationID,
		Tags:        meta.Tags,
		Deprecated:  meta.Deprecated,
	}

	if yamlnode.Field(op, "security") != nil {
		ep.Security = meta.Security
		ep.HasSecurity = true
	}

	own, err := d.parameters(yamlnode.Field(op, "parameters"))
	if err != nil {
		return nil, err
	}
	ep.Parameters = mergeParameters(shared, own)

	if raw := yamlnode.Field(op, "requestBody"); raw != nil {
		body, err := d.requestBody(raw)
		if err != nil {
			return nil, fmt.Errorf("request body: %w", err)
		}
		ep.RequestBody = body
	}

	var rerr error
	yamlnode.Pairs(yamlnode.Field(op, "responses"), func(code string, value *yaml.Node) {
		if rerr != nil {
			return
		}
		resp, err := d.response(code, value)
		if err != nil {
			rerr = fmt.Errorf("response %s: %w", code, err)
			return
		}
		ep.Responses = append(ep.Responses, resp)
	})
	if rerr != nil {
		return nil, rerr
	}

	return ep, nil
}

func (d *Document) parameters(list *yaml.Node) ([]Parameter, error) {
	if list == nil || list.Kind != yaml.SequenceNode {
		return nil, nil
	}

	out := make([]Parameter, 0, len(list.Content))
	for _, item := range list.Content {
		raw, err := d.deref(item)
		if err != nil {
			return nil, fmt.Errorf("parameter: %w", err)
		}

		var p Parameter
		if err := raw.Decode(&p); err != nil {
			return nil, fmt.Errorf("%w: parameter: %w", ErrInvalidDocument, err)
		}
		p.Schema = schema.Parse(yamlnode.Field(raw, "schema"))
		if ex := yamlnode.Field(raw, "example"); ex != nil {
			p.Example = schema.Literal(ex)
		}
		out = append(out, p)
	}

	return out, nil
}

// mergeParameters combines path-level and operation-level parameters. An
// operation parameter with the same name and location replaces the
// path-level one in place.
//
// See: https://spec.openapis.org/oas/v3.1.0#fixed-fields-7
func mergeParameters(shared, own []Parameter) []Parameter {
	out := make([]Parameter, 0, len(shared)+len(own))
	out = append(out, shared...)

	for _, p := range own {
		replaced := false
		for i := range out {
			if out[i].Name == p.Name && out[i].In == p.In {
				out[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, p)
		}
	}

	return out
}

func (d *Document) requestBody(value *yaml.Node) (*RequestBody, error) {
	raw, err := d.deref(value)
	if err != nil {
		return nil, err
	}

	body := &RequestBody{
		Description: yamlnode.Scalar(yamlnode.Field(raw, "description")),
		Required:    yamlnode.Scalar(yamlnode.Field(raw, "required")) == "true",
		Content:     d.content(yamlnode.Field(raw, "content")),
	}

	return body, nil
}

func (d *Document) response(code string, value *yaml.Node) (Response, error) {
	raw, err := d.deref(value)
	if err != nil {
		return Response{}, err
	}

	return Response{
		Code:        code,
		Description: yamlnode.Scalar(yamlnode.Field(raw, "description")),
		Content:     d.content(yamlnode.Field(raw, "content")),
	}, nil
}

func (d *Document) content(raw *yaml.Node) []MediaType {
	var out []MediaType

	yamlnode.Pairs(raw, func(contentType string, value *yaml.Node) {
		value = yamlnode.Unwrap(value)
		mt := MediaType{
			ContentType: contentType,
			Schema:      schema.Parse(yamlnode.Field(value, "schema")),
		}
		if ex := yamlnode.Field(value, "example"); ex != nil {
			mt.Example = schema.Literal(ex)
			mt.HasExample = true
		}
		out = append(out, mt)
	})

	return out
}

// deref follows $ref indirections of a parameter, request body, response
// or path item until it reaches an inline definition.
func (d *Document) deref(raw *yaml.Node) (*yaml.Node, error) {
	raw = yamlnode.Unwrap(raw)

	for range maxRefHops {
		ref := yamlnode.Scalar(yamlnode.Field(raw, "$ref"))
		if ref == "" {
			return raw, nil
		}

		next, err := schema.Lookup(ref, d.root)
		if err != nil {
			return nil, err
		}
		raw = next
	}

	return nil, fmt.Errorf("%w: too many reference hops", ErrInvalidDocument)
}

// SchemaPointer returns the reference pointer of a named component schema.
func SchemaPointer(name string) string {
	name = strings.ReplaceAll(name, "~", "~0")
	name = strings.ReplaceAll(name, "/", "~1")
	return "#/components/schemas/" + name
}
