package console

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitalvas/apiconsole/tryit"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestEndpoints(t *testing.T) {
	api, async := loadDocuments(t)
	h := newTestConsole(t, DefaultConfig(), WithOpenAPI(api)).Handler()

	w := do(t, h, http.MethodGet, "/api/endpoints", nil)
	require.Equal(t, http.StatusOK, w.Code)

	list := decode[endpointList](t, w)
	assert.Equal(t, "Pets", list.Title)
	assert.Equal(t, "2.1", list.Version)
	assert.Equal(t, "http://pets.local/v1", list.BaseURL)

	require.Len(t, list.Endpoints, 3)
	assert.Equal(t, endpointSummary{
		Method:  "GET",
		Path:    "/pets",
		Summary: "List pets",
		Tags:    []string{"pets"},
	}, list.Endpoints[0])
	assert.Equal(t, "createPet", list.Endpoints[1].OperationID)
	assert.True(t, list.Endpoints[1].RequiresAuth)
	assert.True(t, list.Endpoints[2].RequiresAuth)

	t.Run("without document", func(t *testing.T) {
		h := newTestConsole(t, DefaultConfig(), WithAsyncAPI(async)).Handler()

		for _, target := range []string{"/api/endpoints", "/api/schemas", "/api/endpoint?" + endpointQuery("GET", "/pets")} {
			assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, target, nil).Code, target)
		}
	})
}

func TestEndpointDetail(t *testing.T) {
	api, _ := loadDocuments(t)

	cfg := DefaultConfig()
	cfg.Token = "secret"
	h := newTestConsole(t, cfg, WithOpenAPI(api)).Handler()

	t.Run("path parameters", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/api/endpoint?"+endpointQuery("get", "/pets/{id}"), nil)
		require.Equal(t, http.StatusOK, w.Code)

		out := decode[map[string]any](t, w)
		assert.Equal(t, "GET", out["method"])
		assert.Equal(t, true, out["requiresAuth"])

		defaults := out["defaults"].(map[string]any)
		assert.Equal(t, "http://pets.local/v1", defaults["baseUrl"])
		assert.Equal(t, map[string]any{"id": "42"}, defaults["pathParams"])

		examples := out["responseExamples"].(map[string]any)
		assert.Contains(t, examples, "200")
		assert.Contains(t, examples["200"], "name")

		assert.Contains(t, out["curl"], "http://pets.local/v1/pets/42")
		assert.Contains(t, out["curl"], "Authorization: Bearer secret")
	})

	t.Run("literal response example", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/api/endpoint?"+endpointQuery("POST", "/pets"), nil)
		require.Equal(t, http.StatusOK, w.Code)

		out := decode[map[string]any](t, w)
		examples := out["responseExamples"].(map[string]any)
		assert.Equal(t, map[string]any{"id": float64(7), "name": "rex"}, examples["201"])
		assert.NotContains(t, examples, "default")

		defaults := out["defaults"].(map[string]any)
		assert.Equal(t, "application/json", defaults["contentType"])
		assert.Contains(t, defaults["body"], "id")
	})

	t.Run("unknown endpoint", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/api/endpoint?"+endpointQuery("DELETE", "/pets"), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "no endpoint DELETE /pets")
	})
}

func TestSchemas(t *testing.T) {
	api, _ := loadDocuments(t)
	h := newTestConsole(t, DefaultConfig(), WithOpenAPI(api)).Handler()

	w := do(t, h, http.MethodGet, "/api/schemas", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"schemas":["Pet","Owner"]}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/schemas/Pet", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"type":"object","properties":{"id":{"type":"integer"},"name":{"type":"string"}}}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/schemas/Owner/example", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode[map[string]any](t, w)
	require.Contains(t, out, "pets")
	assert.Len(t, out["pets"], 1)

	for _, target := range []string{"/api/schemas/Cat", "/api/schemas/Cat/example"} {
		w = do(t, h, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, target)
	}
}

type echo struct {
	Method        string `json:"method"`
	URI           string `json:"uri"`
	Authorization string `json:"authorization"`
	ContentType   string `json:"contentType"`
	Body          string `json:"body"`
}

func newTarget(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(echo{
			Method:        r.Method,
			URI:           r.RequestURI,
			Authorization: r.Header.Get("Authorization"),
			ContentType:   r.Header.Get("Content-Type"),
			Body:          string(body),
		})
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestTryIt(t *testing.T) {
	api, _ := loadDocuments(t)
	target := newTarget(t)

	c := newTestConsole(t, DefaultConfig(), WithOpenAPI(api))
	h := c.Handler()

	responseOf := func(t *testing.T, rec tryit.Record) echo {
		t.Helper()

		data, err := json.Marshal(rec.ResponseBody)
		require.NoError(t, err)

		var out echo
		require.NoError(t, json.Unmarshal(data, &out))
		return out
	}

	t.Run("json body with token", func(t *testing.T) {
		w := do(t, h, http.MethodPut, "/api/auth", map[string]string{"token": "abc"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"authenticated":true}`, w.Body.String())

		w = do(t, h, http.MethodPost, "/api/tryit", map[string]any{
			"method":      "post",
			"path":        "/pets",
			"baseUrl":     target.URL,
			"queryParams": map[string]string{"dry": "1"},
			"body":        map[string]any{"name": "rex"},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		rec := decode[tryit.Record](t, w)
		assert.Equal(t, http.StatusCreated, rec.Status)
		assert.Equal(t, "POST", rec.Method)

		got := responseOf(t, rec)
		assert.Equal(t, "/pets?dry=1", got.URI)
		assert.Equal(t, "Bearer abc", got.Authorization)
		assert.Equal(t, "application/json", got.ContentType)
		assert.JSONEq(t, `{"name":"rex"}`, got.Body)
	})

	t.Run("token override", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/tryit", map[string]any{
			"method":  "GET",
			"path":    "/pets/{id}",
			"baseUrl": target.URL,
			"pathParams": map[string]string{
				"id": "a b",
			},
			"token": "",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		got := responseOf(t, decode[tryit.Record](t, w))
		assert.Equal(t, "/pets/a%20b", got.URI)
		assert.Empty(t, got.Authorization)
	})

	t.Run("form body", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/tryit", map[string]any{
			"method":      "POST",
			"path":        "/pets",
			"baseUrl":     target.URL,
			"contentType": "application/x-www-form-urlencoded",
			"body":        map[string]any{"name": "rex", "age": 3},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		got := responseOf(t, decode[tryit.Record](t, w))
		assert.Equal(t, "age=3&name=rex", got.Body)
		assert.Equal(t, "application/x-www-form-urlencoded", got.ContentType)
	})

	t.Run("history", func(t *testing.T) {
		query := "/api/tryit/history?" + endpointQuery("POST", "/pets")

		w := do(t, h, http.MethodGet, query, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[historyResponse](t, w).Records, 2)

		assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, query, nil).Code)

		w = do(t, h, http.MethodGet, query, nil)
		assert.JSONEq(t, `{"records":[]}`, w.Body.String())

		w = do(t, h, http.MethodGet, "/api/tryit/history?"+endpointQuery("GET", "/pets/{id}"), nil)
		assert.Len(t, decode[historyResponse](t, w).Records, 1)
	})

	t.Run("network error", func(t *testing.T) {
		closed := httptest.NewServer(http.NotFoundHandler())
		closed.Close()

		w := do(t, h, http.MethodPost, "/api/tryit", map[string]any{
			"method":  "GET",
			"path":    "/pets",
			"baseUrl": closed.URL,
		})
		require.Equal(t, http.StatusOK, w.Code)

		rec := decode[tryit.Record](t, w)
		assert.Equal(t, 0, rec.Status)
		assert.Equal(t, tryit.StatusNetworkError, rec.StatusText)
	})

	t.Run("relative base url", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/tryit", map[string]any{
			"method":  "GET",
			"path":    "/pets",
			"baseUrl": "/v1/",
		})
		require.Equal(t, http.StatusOK, w.Code)

		rec := decode[tryit.Record](t, w)
		assert.Equal(t, "/v1/pets", rec.URL)
		assert.Equal(t, tryit.StatusNetworkError, rec.StatusText)
	})

	t.Run("invalid requests", func(t *testing.T) {
		tests := []struct {
			name string
			body any
			code int
		}{
			{"unknown endpoint", map[string]any{"method": "PUT", "path": "/pets"}, http.StatusNotFound},
			{"unknown field", map[string]any{"method": "GET", "path": "/pets", "extra": 1}, http.StatusBadRequest},
			{"malformed json", `{"method":`, http.StatusBadRequest},
			{"bad base url", map[string]any{"method": "GET", "path": "/pets", "baseUrl": "::"}, http.StatusBadRequest},
			{"form body not an object", map[string]any{
				"method":      "POST",
				"path":        "/pets",
				"contentType": "application/x-www-form-urlencoded",
				"body":        []int{1},
			}, http.StatusBadRequest},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w := do(t, h, http.MethodPost, "/api/tryit", tt.body)
				assert.Equal(t, tt.code, w.Code, w.Body.String())
				assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
			})
		}
	})

	t.Run("sign out", func(t *testing.T) {
		w := do(t, h, http.MethodPut, "/api/auth", map[string]string{"token": ""})
		assert.JSONEq(t, `{"authenticated":false}`, w.Body.String())
		assert.Equal(t, "", c.currentToken())
	})
}

func TestTryItTracing(t *testing.T) {
	api, _ := loadDocuments(t)
	target := newTarget(t)

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	h := newTestConsole(t, DefaultConfig(), WithOpenAPI(api), WithTracerProvider(tp)).Handler()

	w := do(t, h, http.MethodPost, "/api/tryit", map[string]any{
		"method":  "GET",
		"path":    "/pets",
		"baseUrl": target.URL,
	})
	require.Equal(t, http.StatusOK, w.Code)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "tryit GET", spans[0].Name())
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind())
	assert.Equal(t, ServiceName, spans[0].InstrumentationScope().Name)
}

func TestDecodeTryItBody(t *testing.T) {
	body, err := decodeTryItBody("application/json", json.RawMessage(`{"a":1}`), nil)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`{"a":1}`), body)

	body, err = decodeTryItBody("application/json", json.RawMessage(`null`), nil)
	require.NoError(t, err)
	assert.Nil(t, body)

	body, err = decodeTryItBody("multipart/form-data; boundary=x", nil, map[string][]byte{"file": []byte("data")})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"file": []byte("data")}, body)

	body, err = decodeTryItBody("multipart/form-data", json.RawMessage(`{"name":"rex"}`), map[string][]byte{"photo": []byte("png")})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "rex", "photo": []byte("png")}, body)
}
