package console

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/vitalvas/apiconsole/muxhandlers"
	"github.com/vitalvas/apiconsole/openapi"
	"github.com/vitalvas/apiconsole/schema"
	"github.com/vitalvas/apiconsole/tryit"
)

type endpointSummary struct {
	Method       string   `json:"method"`
	Path         string   `json:"path"`
	Summary      string   `json:"summary,omitempty"`
	OperationID  string   `json:"operationId,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Deprecated   bool     `json:"deprecated,omitempty"`
	RequiresAuth bool     `json:"requiresAuth"`
}

type endpointList struct {
	Title     string            `json:"title"`
	Version   string            `json:"version"`
	BaseURL   string            `json:"baseUrl"`
	Endpoints []endpointSummary `json:"endpoints"`
}

type endpointDetail struct {
	*openapi.Endpoint

	RequiresAuth     bool                      `json:"requiresAuth"`
	Schemes          []*openapi.SecurityScheme `json:"schemes,omitempty"`
	Defaults         tryit.Input               `json:"defaults"`
	ResponseExamples schema.Object             `json:"responseExamples"`
	Curl             string                    `json:"curl,omitempty"`
}

// restDocument answers 404 when no OpenAPI document is loaded.
func (c *Console) restDocument(w http.ResponseWriter, r *http.Request) (*openapi.Document, bool) {
	if c.api == nil {
		notFound(w, r, "no OpenAPI document loaded")
		return nil, false
	}
	return c.api, true
}

// lookupEndpoint resolves the endpoint named by the method and path query
// parameters.
func (c *Console) lookupEndpoint(w http.ResponseWriter, r *http.Request) (*openapi.Endpoint, bool) {
	doc, ok := c.restDocument(w, r)
	if !ok {
		return nil, false
	}

	method := r.URL.Query().Get("method")
	path := r.URL.Query().Get("path")

	ep, ok := doc.Endpoint(method, path)
	if !ok {
		notFound(w, r, fmt.Sprintf("no endpoint %s %s", strings.ToUpper(method), path))
		return nil, false
	}
	return ep, true
}

func (c *Console) handleEndpoints(w http.ResponseWriter, r *http.Request) {
	doc, ok := c.restDocument(w, r)
	if !ok {
		return
	}

	out := endpointList{
		Title:     doc.Info.Title,
		Version:   doc.Info.Version,
		BaseURL:   doc.BaseURL(),
		Endpoints: []endpointSummary{},
	}

	for _, ep := range doc.Endpoints() {
		out.Endpoints = append(out.Endpoints, endpointSummary{
			Method:       ep.Method,
			Path:         ep.Path,
			Summary:      ep.Summary,
			OperationID:  ep.OperationID,
			Tags:         ep.Tags,
			Deprecated:   ep.Deprecated,
			RequiresAuth: doc.RequiresAuth(ep),
		})
	}

	responseJSON(w, r, http.StatusOK, out)
}

// handleEndpoint describes one endpoint together with the prefilled try-it
// input, generated response examples and the matching curl command.
func (c *Console) handleEndpoint(w http.ResponseWriter, r *http.Request) {
	ep, ok := c.lookupEndpoint(w, r)
	if !ok {
		return
	}

	doc := c.api
	gen := doc.Generator(c.generatorOptions()...)

	out := endpointDetail{
		Endpoint:         ep,
		RequiresAuth:     doc.RequiresAuth(ep),
		Schemes:          doc.EndpointSchemes(ep),
		Defaults:         tryit.DefaultInput(doc, ep, c.generatorOptions()...),
		ResponseExamples: schema.Object{},
	}

	for _, resp := range ep.Responses {
		if example, ok := responseExample(gen, resp); ok {
			out.ResponseExamples = append(out.ResponseExamples, schema.Field{Name: resp.Code, Value: example})
		}
	}

	in := out.Defaults
	in.Auth = tryit.ForEndpoint(doc, ep, c.currentToken())
	if req, err := tryit.Build(in); err == nil {
		out.Curl = tryit.Curl(req)
	}

	responseJSON(w, r, http.StatusOK, out)
}

// responseExample picks the JSON content of resp, falling back to its first
// media type, and returns its literal or generated example.
func responseExample(gen *schema.Generator, resp openapi.Response) (any, bool) {
	if len(resp.Content) == 0 {
		return nil, false
	}

	media := resp.Content[0]
	for _, mt := range resp.Content {
		if mt.ContentType == tryit.ContentTypeJSON {
			media = mt
			break
		}
	}

	if media.HasExample {
		return media.Example, true
	}
	if media.Schema == nil {
		return nil, false
	}
	return gen.Generate(media.Schema), true
}

type schemaList struct {
	Schemas []string `json:"schemas"`
}

func (c *Console) handleSchemas(w http.ResponseWriter, r *http.Request) {
	doc, ok := c.restDocument(w, r)
	if !ok {
		return
	}

	names := doc.SchemaNames()
	if names == nil {
		names = []string{}
	}

	responseJSON(w, r, http.StatusOK, schemaList{Schemas: names})
}

// handleSchema returns a component schema exactly as written in the
// document.
func (c *Console) handleSchema(w http.ResponseWriter, r *http.Request) {
	doc, ok := c.restDocument(w, r)
	if !ok {
		return
	}

	raw, err := schema.Lookup(openapi.SchemaPointer(mux.Vars(r)["name"]), doc.Root())
	if err != nil {
		notFound(w, r, err.Error())
		return
	}

	responseJSON(w, r, http.StatusOK, schema.Literal(raw))
}

func (c *Console) handleSchemaExample(w http.ResponseWriter, r *http.Request) {
	doc, ok := c.restDocument(w, r)
	if !ok {
		return
	}

	pointer := openapi.SchemaPointer(mux.Vars(r)["name"])
	if _, err := schema.Lookup(pointer, doc.Root()); err != nil {
		notFound(w, r, err.Error())
		return
	}

	responseJSON(w, r, http.StatusOK, doc.Generator(c.generatorOptions()...).GenerateRef(pointer))
}

// tryItRequest is the try-it form as submitted by the console UI. The
// endpoint's first server and first content type are used when BaseURL or
// ContentType are empty. Token, when set, overrides the console token for
// this request only.
type tryItRequest struct {
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	BaseURL     string            `json:"baseUrl"`
	PathParams  map[string]string `json:"pathParams"`
	QueryParams map[string]string `json:"queryParams"`
	Headers     map[string]string `json:"headers"`
	ContentType string            `json:"contentType"`
	Body        json.RawMessage   `json:"body"`

	// Files are sent as file parts of a multipart body, keyed by field
	// name. Values are base64 in JSON.
	Files map[string][]byte `json:"files"`

	Token *string `json:"token"`
}

// handleTryIt builds the submitted request, executes it against the
// target API and returns the logged record. Target failures are records
// with status 0, not console errors.
func (c *Console) handleTryIt(w http.ResponseWriter, r *http.Request) {
	doc, ok := c.restDocument(w, r)
	if !ok {
		return
	}

	var req tryItRequest
	if err := bindJSON(r, &req); err != nil {
		badRequest(w, r, err)
		return
	}

	ep, ok := doc.Endpoint(req.Method, req.Path)
	if !ok {
		notFound(w, r, fmt.Sprintf("no endpoint %s %s", strings.ToUpper(req.Method), req.Path))
		return
	}

	in := tryit.Input{
		Method:       ep.Method,
		PathTemplate: ep.Path,
		BaseURL:      req.BaseURL,
		PathParams:   req.PathParams,
		QueryParams:  req.QueryParams,
		Headers:      req.Headers,
		ContentType:  req.ContentType,
	}
	if in.BaseURL == "" {
		in.BaseURL = doc.BaseURL()
	}
	if in.ContentType == "" {
		if types := ep.ContentTypes(); len(types) > 0 {
			in.ContentType = types[0]
		}
	}

	body, err := decodeTryItBody(in.ContentType, req.Body, req.Files)
	if err != nil {
		badRequest(w, r, err)
		return
	}
	in.Body = body

	token := c.currentToken()
	if req.Token != nil {
		token = *req.Token
	}
	in.Auth = tryit.ForEndpoint(doc, ep, token)

	built, err := tryit.Build(in)
	if err != nil {
		if errors.Is(err, tryit.ErrInvalidInput) {
			muxhandlers.WriteProblem(w, r, http.StatusBadRequest, muxhandlers.ProblemValidation, err.Error())
			return
		}
		muxhandlers.WriteProblem(w, r, http.StatusInternalServerError, muxhandlers.ProblemInternal, err.Error())
		return
	}

	rec := c.executor.Execute(r.Context(), built, c.logs.For(ep.Key()))
	c.metrics.observeTryIt(rec.Method, rec.Status)

	responseJSON(w, r, http.StatusOK, rec)
}

// decodeTryItBody keeps JSON bodies as submitted. Form bodies are decoded
// into a flat mapping, with files merged in for multipart.
func decodeTryItBody(contentType string, raw json.RawMessage, files map[string][]byte) (any, error) {
	form := isForm(contentType)

	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		if form && len(files) > 0 {
			return mergeFiles(map[string]any{}, files), nil
		}
		return nil, nil
	}

	if !form {
		return raw, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("form body must be a JSON object: %w", err)
	}

	return mergeFiles(fields, files), nil
}

func isForm(contentType string) bool {
	mt, _, _ := strings.Cut(contentType, ";")
	switch strings.ToLower(strings.TrimSpace(mt)) {
	case tryit.ContentTypeForm, tryit.ContentTypeMultipart:
		return true
	}
	return false
}

func mergeFiles(fields map[string]any, files map[string][]byte) map[string]any {
	if fields == nil {
		fields = map[string]any{}
	}
	out := maps.Clone(fields)
	for name, content := range files {
		out[name] = content
	}
	return out
}

type historyResponse struct {
	Records []tryit.Record `json:"records"`
}

func (c *Console) handleTryItHistory(w http.ResponseWriter, r *http.Request) {
	ep, ok := c.lookupEndpoint(w, r)
	if !ok {
		return
	}

	records := c.logs.For(ep.Key()).Records()
	if records == nil {
		records = []tryit.Record{}
	}

	responseJSON(w, r, http.StatusOK, historyResponse{Records: records})
}

func (c *Console) handleTryItClear(w http.ResponseWriter, r *http.Request) {
	ep, ok := c.lookupEndpoint(w, r)
	if !ok {
		return
	}

	c.logs.Clear(ep.Key())
	w.WriteHeader(http.StatusNoContent)
}
