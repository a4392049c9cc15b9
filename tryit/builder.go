package tryit

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vitalvas/apiconsole/schema"
)

// Content types understood by Build.
const (
	ContentTypeJSON      = "application/json"
	ContentTypeForm      = "application/x-www-form-urlencoded"
	ContentTypeMultipart = "multipart/form-data"
)

// ErrInvalidInput is returned by Build for inputs that cannot produce a
// request. It wraps validator.ValidationErrors when field validation fails.
var ErrInvalidInput = errors.New("tryit: invalid input")

var (
	validate   = newValidator()
	pathTokens = regexp.MustCompile(`\{([^{}/]+)\}`)
)

// newValidator adds the "baseurl" tag: an absolute URL or a path-only
// reference such as "/api/v1", as servers may be declared relative to the
// document.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("baseurl", func(fl validator.FieldLevel) bool {
		_, err := url.Parse(fl.Field().String())
		return err == nil
	})
	return v
}

// Input describes a request to build. Maps are read, never modified.
type Input struct {
	Method       string            `json:"method" validate:"required,oneof=GET PUT POST DELETE OPTIONS HEAD PATCH TRACE"`
	PathTemplate string            `json:"path" validate:"required,startswith=/"`
	BaseURL      string            `json:"baseUrl" validate:"omitempty,baseurl"`
	PathParams   map[string]string `json:"pathParams,omitempty"`
	QueryParams  map[string]string `json:"queryParams,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	ContentType  string            `json:"contentType,omitempty"`
	Body         any               `json:"body,omitempty"`

	// Auth attaches credentials to the built request. Nil sends none.
	Auth Authenticator `json:"-" validate:"-"`
}

// FormField is a single multipart form field. A field with Filename set is
// sent as a file part carrying Content.
type FormField struct {
	Name     string `json:"name"`
	Value    string `json:"value,omitempty"`
	Filename string `json:"filename,omitempty"`
	Content  []byte `json:"-"`
}

// IsFile reports whether the field is sent as a file part.
func (f FormField) IsFile() bool {
	return f.Filename != ""
}

// Request is a fully built request ready for an Executor. Body holds the
// encoded JSON or form body; Form holds multipart fields, whose
// Content-Type header (with its boundary) is written by the Executor.
type Request struct {
	Method  string      `json:"method"`
	Path    string      `json:"path"`
	URL     string      `json:"url"`
	Headers http.Header `json:"headers"`
	Body    []byte      `json:"-"`
	Form    []FormField `json:"form,omitempty"`

	// Payload is the body value the request was built from, kept for
	// the response log.
	Payload any `json:"body,omitempty"`
}

// HasBody reports whether the request carries a body.
func (r *Request) HasBody() bool {
	return r.Body != nil || r.Form != nil
}

// Build assembles a request from in. The base URL loses one trailing slash,
// {name} tokens of the path template are replaced by escaped path
// parameters (unknown tokens stay as written), and non-empty query
// parameters are appended with sorted keys. A body is only built for
// POST, PUT and PATCH.
func Build(in Input) (*Request, error) {
	in.Method = strings.ToUpper(in.Method)

	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	req := &Request{
		Method:  in.Method,
		Path:    in.PathTemplate,
		URL:     BuildURL(in.BaseURL, in.PathTemplate, in.PathParams, in.QueryParams),
		Headers: http.Header{},
	}

	for name, value := range in.Headers {
		req.Headers.Set(name, value)
	}

	if hasBody(in.Method) && in.Body != nil {
		if err := encodeBody(req, in.ContentType, in.Body); err != nil {
			return nil, err
		}
		req.Payload = in.Body
	}

	if in.Auth != nil {
		if err := in.Auth.Apply(req); err != nil {
			return nil, err
		}
	}

	return req, nil
}

// BuildURL joins baseURL and pathTemplate, substitutes path parameters and
// appends the query string.
func BuildURL(baseURL, pathTemplate string, pathParams, queryParams map[string]string) string {
	path := pathTokens.ReplaceAllStringFunc(pathTemplate, func(token string) string {
		value, ok := pathParams[token[1:len(token)-1]]
		if !ok {
			return token
		}
		return url.PathEscape(value)
	})

	out := strings.TrimSuffix(baseURL, "/") + path

	if query := encodeQuery(queryParams); query != "" {
		out += "?" + query
	}

	return out
}

// encodeQuery percent-encodes params, skipping empty values. Spaces are
// encoded as %20.
func encodeQuery(params map[string]string) string {
	var parts []string
	for _, key := range slices.Sorted(maps.Keys(params)) {
		value := params[key]
		if value == "" {
			continue
		}
		parts = append(parts, escapeComponent(key)+"="+escapeComponent(value))
	}
	return strings.Join(parts, "&")
}

func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func encodeBody(req *Request, contentType string, body any) error {
	switch mediaType(contentType) {
	case ContentTypeForm:
		fields, err := flatten(body)
		if err != nil {
			return err
		}
		values := url.Values{}
		for _, f := range fields {
			values.Add(f.Name, f.Value)
		}
		req.Body = []byte(values.Encode())
		req.Headers.Set("Content-Type", ContentTypeForm)

	case ContentTypeMultipart:
		fields, ok := body.([]FormField)
		if !ok {
			var err error
			if fields, err = flatten(body); err != nil {
				return err
			}
		}
		req.Form = slices.Clone(fields)
		if req.Form == nil {
			req.Form = []FormField{}
		}
		req.Headers.Del("Content-Type")

	default:
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: body: %w", ErrInvalidInput, err)
		}
		req.Body = data

		// JSON-based media types such as application/merge-patch+json are
		// sent as declared.
		if strings.HasSuffix(mediaType(contentType), "+json") {
			req.Headers.Set("Content-Type", strings.TrimSpace(contentType))
		} else {
			req.Headers.Set("Content-Type", ContentTypeJSON)
		}
	}

	return nil
}

func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// flatten turns a flat mapping into form fields. Byte slices become file
// fields named after their key; nested values are rejected.
func flatten(body any) ([]FormField, error) {
	var fields []FormField

	add := func(name string, value any) error {
		switch v := value.(type) {
		case nil:
			fields = append(fields, FormField{Name: name})
		case string:
			fields = append(fields, FormField{Name: name, Value: v})
		case []byte:
			fields = append(fields, FormField{Name: name, Filename: name, Content: v})
		case bool, int, int32, int64, float32, float64, json.Number:
			fields = append(fields, FormField{Name: name, Value: fmt.Sprint(v)})
		default:
			return fmt.Errorf("%w: form field %q must be a scalar", ErrInvalidInput, name)
		}
		return nil
	}

	switch b := body.(type) {
	case schema.Object:
		for _, f := range b {
			if err := add(f.Name, f.Value); err != nil {
				return nil, err
			}
		}
	case map[string]string:
		for _, key := range slices.Sorted(maps.Keys(b)) {
			fields = append(fields, FormField{Name: key, Value: b[key]})
		}
	case map[string]any:
		for _, key := range slices.Sorted(maps.Keys(b)) {
			if err := add(key, b[key]); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%w: form body must be a flat mapping, got %T", ErrInvalidInput, body)
	}

	return fields, nil
}
