package openapi

import (
	"maps"
	"slices"
	"strings"

	"github.com/vitalvas/apiconsole/schema"
	"gopkg.in/yaml.v3"
)

const jsonContentType = "application/json"

// Endpoint is one HTTP operation of a document: a method on a path
// template. Parameters hold the path-level parameters merged with the
// operation's own.
//
// See: https://spec.openapis.org/oas/v3.1.0#operation-object
type Endpoint struct {
	Method      string       `json:"method"`
	Path        string       `json:"path"`
	Summary     string       `json:"summary,omitempty"`
	Description string       `json:"description,omitempty"`
	OperationID string       `json:"operationId,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Deprecated  bool         `json:"deprecated,omitempty"`
	Parameters  []Parameter  `json:"parameters,omitempty"`
	RequestBody *RequestBody `json:"requestBody,omitempty"`
	Responses   []Response   `json:"responses,omitempty"`

	// Security overrides the document-level requirements when HasSecurity
	// is set. An empty list with HasSecurity removes authentication.
	Security    []SecurityRequirement `json:"security,omitempty"`
	HasSecurity bool                  `json:"-"`
}

// Key returns "METHOD path", the identity of the endpoint within a document.
func (e *Endpoint) Key() string {
	return e.Method + " " + e.Path
}

// ParametersIn returns the parameters declared in the given location.
func (e *Endpoint) ParametersIn(location string) []Parameter {
	var out []Parameter
	for _, p := range e.Parameters {
		if p.In == location {
			out = append(out, p)
		}
	}
	return out
}

// ContentTypes returns the request body media types in document order.
func (e *Endpoint) ContentTypes() []string {
	if e.RequestBody == nil {
		return nil
	}
	out := make([]string, 0, len(e.RequestBody.Content))
	for _, mt := range e.RequestBody.Content {
		out = append(out, mt.ContentType)
	}
	return out
}

// RequestBodySchema returns the application/json request body schema, or
// nil when the endpoint accepts no JSON body.
func (e *Endpoint) RequestBodySchema() *schema.Node {
	return e.RequestBodyMedia(jsonContentType).SchemaNode()
}

// RequestBodyMedia returns the request body media type for contentType.
func (e *Endpoint) RequestBodyMedia(contentType string) *MediaType {
	if e.RequestBody == nil {
		return nil
	}
	return mediaTypeFor(e.RequestBody.Content, contentType)
}

// Response returns the response declared for code. When code is not
// declared the "default" response is returned if present.
func (e *Endpoint) Response(code string) (*Response, bool) {
	var fallback *Response
	for i := range e.Responses {
		switch e.Responses[i].Code {
		case code:
			return &e.Responses[i], true
		case "default":
			fallback = &e.Responses[i]
		}
	}
	return fallback, fallback != nil
}

// ResponseSchema returns the application/json schema of the response
// declared for code, or nil.
func (e *Endpoint) ResponseSchema(code string) *schema.Node {
	resp, ok := e.Response(code)
	if !ok {
		return nil
	}
	return mediaTypeFor(resp.Content, jsonContentType).SchemaNode()
}

// SchemaNode returns the media type schema. It is nil-safe.
func (m *MediaType) SchemaNode() *schema.Node {
	if m == nil {
		return nil
	}
	return m.Schema
}

// Root returns the raw document tree that schema references resolve against.
func (d *Document) Root() *yaml.Node {
	return d.root
}

// Endpoints returns every endpoint in document order.
func (d *Document) Endpoints() []*Endpoint {
	return slices.Clone(d.endpoints)
}

// Endpoint looks up an endpoint by method and path template. The method is
// matched case-insensitively.
func (d *Document) Endpoint(method, path string) (*Endpoint, bool) {
	method = strings.ToUpper(method)
	for _, ep := range d.endpoints {
		if ep.Method == method && ep.Path == path {
			return ep, true
		}
	}
	return nil, false
}

// SchemaNames returns the names of the component schemas in document order.
func (d *Document) SchemaNames() []string {
	return slices.Clone(d.schemaNames)
}

// Schema resolves a component schema by name.
func (d *Document) Schema(name string) (*schema.Node, error) {
	return schema.Resolve(SchemaPointer(name), d.root)
}

// SecuritySchemes returns the component security schemes by name.
//
// See: https://spec.openapis.org/oas/v3.1.0#components-object
func (d *Document) SecuritySchemes() map[string]*SecurityScheme {
	return maps.Clone(d.securitySchemes)
}

// EffectiveSecurity returns the security requirements that apply to ep:
// the endpoint's own when declared, otherwise the document's.
func (d *Document) EffectiveSecurity(ep *Endpoint) []SecurityRequirement {
	if ep != nil && ep.HasSecurity {
		return ep.Security
	}
	return d.Security
}

// RequiresAuth reports whether ep declares at least one security scheme.
// An empty requirement ({}) marks authentication as optional and does not
// count.
func (d *Document) RequiresAuth(ep *Endpoint) bool {
	for _, req := range d.EffectiveSecurity(ep) {
		if len(req) > 0 {
			return true
		}
	}
	return false
}

// EndpointSchemes returns the security schemes referenced by the
// requirements of ep, in requirement order and without duplicates.
// Unknown scheme names are skipped.
func (d *Document) EndpointSchemes(ep *Endpoint) []*SecurityScheme {
	var (
		out  []*SecurityScheme
		seen = map[string]bool{}
	)

	for _, req := range d.EffectiveSecurity(ep) {
		names := slices.Sorted(maps.Keys(req))
		for _, name := range names {
			scheme, ok := d.securitySchemes[name]
			if !ok || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, scheme)
		}
	}

	return out
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
