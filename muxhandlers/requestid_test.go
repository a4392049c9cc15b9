package muxhandlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		cfg        RequestIDConfig
		incoming   string
		wantHeader string
		wantID     func(t *testing.T, id string)
	}{
		{
			name:       "generates UUIDv7 by default",
			wantHeader: DefaultRequestIDHeader,
			wantID: func(t *testing.T, id string) {
				parsed, err := uuid.Parse(id)
				require.NoError(t, err)
				assert.Equal(t, uuid.Version(7), parsed.Version())
			},
		},
		{
			name:       "ignores incoming by default",
			incoming:   "client-id",
			wantHeader: DefaultRequestIDHeader,
			wantID: func(t *testing.T, id string) {
				assert.NotEqual(t, "client-id", id)
			},
		},
		{
			name:       "trusts incoming",
			cfg:        RequestIDConfig{TrustIncoming: true},
			incoming:   "client-id",
			wantHeader: DefaultRequestIDHeader,
			wantID: func(t *testing.T, id string) {
				assert.Equal(t, "client-id", id)
			},
		},
		{
			name:       "replaces oversized incoming",
			cfg:        RequestIDConfig{TrustIncoming: true, MaxLength: 8, Generate: func() string { return "fresh" }},
			incoming:   strings.Repeat("a", 9),
			wantHeader: DefaultRequestIDHeader,
			wantID: func(t *testing.T, id string) {
				assert.Equal(t, "fresh", id)
			},
		},
		{
			name:       "replaces unprintable incoming",
			cfg:        RequestIDConfig{TrustIncoming: true, Generate: func() string { return "fresh" }},
			incoming:   "a b",
			wantHeader: DefaultRequestIDHeader,
			wantID: func(t *testing.T, id string) {
				assert.Equal(t, "fresh", id)
			},
		},
		{
			name:       "custom header and generator",
			cfg:        RequestIDConfig{HeaderName: "X-Trace-ID", Generate: GenerateUUIDv4},
			wantHeader: "X-Trace-ID",
			wantID: func(t *testing.T, id string) {
				parsed, err := uuid.Parse(id)
				require.NoError(t, err)
				assert.Equal(t, uuid.Version(4), parsed.Version())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fromContext string

			r := mux.NewRouter()
			r.Use(RequestIDMiddleware(tt.cfg))
			r.HandleFunc("/", func(_ http.ResponseWriter, req *http.Request) {
				fromContext = RequestIDFromContext(req.Context())
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(tt.wantHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			id := w.Header().Get(tt.wantHeader)
			require.NotEmpty(t, id)
			assert.Equal(t, id, fromContext)
			tt.wantID(t, id)
		})
	}
}

func TestRequestIDFromContextEmpty(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}
