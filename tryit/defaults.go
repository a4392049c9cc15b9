package tryit

import (
	"fmt"

	"github.com/vitalvas/apiconsole/openapi"
	"github.com/vitalvas/apiconsole/schema"
)

// DefaultInput returns the prefilled input for trying ep: the first server
// as base URL, the first declared content type, parameter examples and a
// body generated from the request schema. Form content types start with an
// empty form instead of a generated body. opts configure the example
// generator.
func DefaultInput(doc *openapi.Document, ep *openapi.Endpoint, opts ...schema.GeneratorOption) Input {
	in := Input{
		Method:       ep.Method,
		PathTemplate: ep.Path,
		BaseURL:      doc.BaseURL(),
		PathParams:   map[string]string{},
		QueryParams:  map[string]string{},
		Headers:      map[string]string{},
	}

	for _, p := range ep.Parameters {
		value := ""
		if p.Example != nil {
			value = scalarString(p.Example)
		}

		switch p.In {
		case openapi.InPath:
			in.PathParams[p.Name] = value
		case openapi.InQuery:
			in.QueryParams[p.Name] = value
		case openapi.InHeader:
			if value != "" {
				in.Headers[p.Name] = value
			}
		}
	}

	types := ep.ContentTypes()
	if len(types) == 0 {
		return in
	}
	in.ContentType = types[0]

	switch mediaType(in.ContentType) {
	case ContentTypeForm, ContentTypeMultipart:
		in.Body = schema.Object{}
	default:
		media := ep.RequestBodyMedia(in.ContentType)
		if media != nil && media.HasExample {
			in.Body = media.Example
		} else {
			in.Body = doc.Generator(opts...).Generate(media.SchemaNode())
		}
	}

	return in
}

func scalarString(v any) string {
	switch v.(type) {
	case string, bool, int, int64, float64:
		return fmt.Sprint(v)
	}
	return ""
}
