package muxhandlers

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestSizeLimitMiddleware(t *testing.T) {
	t.Run("invalid size", func(t *testing.T) {
		for _, size := range []int64{0, -1} {
			_, err := RequestSizeLimitMiddleware(RequestSizeLimitConfig{MaxBytes: size})
			assert.ErrorIs(t, err, ErrInvalidMaxSize)
		}
	})

	mw, err := RequestSizeLimitMiddleware(RequestSizeLimitConfig{MaxBytes: 10})
	require.NoError(t, err)

	newRouter := func(readErr *error) *mux.Router {
		r := mux.NewRouter()
		r.Use(mw)
		r.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
			_, *readErr = io.ReadAll(req.Body)
			w.WriteHeader(http.StatusOK)
		}).Methods(http.MethodPost)
		return r
	}

	t.Run("within limit", func(t *testing.T) {
		var readErr error
		w := httptest.NewRecorder()
		newRouter(&readErr).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small")))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, readErr)
	})

	t.Run("declared length over limit", func(t *testing.T) {
		var readErr error
		w := httptest.NewRecorder()
		newRouter(&readErr).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("this body is too long")))

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), ProblemTooLarge)
	})

	t.Run("streamed body over limit", func(t *testing.T) {
		var readErr error
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("this body is too long"))
		req.ContentLength = -1

		w := httptest.NewRecorder()
		newRouter(&readErr).ServeHTTP(w, req)

		var maxErr *http.MaxBytesError
		assert.True(t, errors.As(readErr, &maxErr))
	})
}
