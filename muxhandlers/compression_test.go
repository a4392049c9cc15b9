package muxhandlers

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressionMiddleware(t *testing.T) {
	t.Run("invalid level", func(t *testing.T) {
		_, err := CompressionMiddleware(CompressionConfig{Level: 42})
		assert.ErrorIs(t, err, ErrInvalidCompressionLevel)
	})

	body := strings.Repeat(`{"name":"rex"}`, 20)

	newRouter := func(t *testing.T, cfg CompressionConfig) *mux.Router {
		t.Helper()

		mw, err := CompressionMiddleware(cfg)
		require.NoError(t, err)

		r := mux.NewRouter()
		r.HandleFunc("/json", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, body)
		})
		r.HandleFunc("/png", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			_, _ = io.WriteString(w, body)
		})
		r.HandleFunc("/encoded", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.Header().Set("Content-Encoding", "br")
			_, _ = io.WriteString(w, body)
		})
		r.HandleFunc("/empty", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		r.Use(mw)
		return r
	}

	get := func(h http.Handler, path, acceptEncoding string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if acceptEncoding != "" {
			req.Header.Set("Accept-Encoding", acceptEncoding)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	t.Run("gzips json", func(t *testing.T) {
		w := get(newRouter(t, CompressionConfig{}), "/json", "br;q=1, gzip;q=0.5")

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
		assert.Equal(t, "Accept-Encoding", w.Header().Get("Vary"))

		zr, err := gzip.NewReader(w.Body)
		require.NoError(t, err)
		plain, err := io.ReadAll(zr)
		require.NoError(t, err)
		assert.Equal(t, body, string(plain))
	})

	t.Run("plain", func(t *testing.T) {
		tests := []struct {
			name           string
			path           string
			acceptEncoding string
			cfg            CompressionConfig
		}{
			{"no accept-encoding", "/json", "", CompressionConfig{}},
			{"gzip refused", "/json", "gzip;q=0", CompressionConfig{}},
			{"only other encodings", "/json", "br, deflate", CompressionConfig{}},
			{"incompressible type", "/png", "gzip", CompressionConfig{}},
			{"already encoded", "/encoded", "gzip", CompressionConfig{}},
			{"below min length", "/json", "gzip", CompressionConfig{MinLength: 1 << 10}},
			{"type not listed", "/json", "gzip", CompressionConfig{Types: []string{"text/"}}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w := get(newRouter(t, tt.cfg), tt.path, tt.acceptEncoding)

				assert.NotEqual(t, "gzip", w.Header().Get("Content-Encoding"))
				assert.Equal(t, body, w.Body.String())
			})
		}
	})

	t.Run("wildcard", func(t *testing.T) {
		w := get(newRouter(t, CompressionConfig{}), "/json", "*")
		assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	})

	t.Run("no body", func(t *testing.T) {
		w := get(newRouter(t, CompressionConfig{}), "/empty", "gzip")

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Header().Get("Content-Encoding"))
		assert.Zero(t, w.Body.Len())
	})
}
