package muxhandlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecoveryMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		wantCode  int
		wantLogs  int
		wantPanic string
	}{
		{
			name: "no panic passes through",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusAccepted)
			},
			wantCode: http.StatusAccepted,
		},
		{
			name: "panic returns 500",
			handler: func(_ http.ResponseWriter, _ *http.Request) {
				panic("something went wrong")
			},
			wantCode:  http.StatusInternalServerError,
			wantLogs:  1,
			wantPanic: "something went wrong",
		},
		{
			name: "panic with integer value",
			handler: func(_ http.ResponseWriter, _ *http.Request) {
				panic(42)
			},
			wantCode:  http.StatusInternalServerError,
			wantLogs:  1,
			wantPanic: "42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)

			r := mux.NewRouter()
			r.Use(RecoveryMiddleware(RecoveryConfig{Logger: zap.New(core)}))
			r.Handle("/test", tt.handler)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

			assert.Equal(t, tt.wantCode, w.Code)
			require.Equal(t, tt.wantLogs, logs.Len())

			if tt.wantLogs > 0 {
				entry := logs.All()[0]
				assert.Equal(t, zapcore.ErrorLevel, entry.Level)
				assert.Equal(t, tt.wantPanic, entry.ContextMap()["panic"])
				assert.Equal(t, "/test", entry.ContextMap()["path"])

				assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

				var body map[string]any
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, float64(http.StatusInternalServerError), body["status"])
				assert.Equal(t, ProblemInternal, body["type"])
				assert.Equal(t, "/test", body["instance"])
			}
		})
	}
}

func TestRecoveryMiddlewareAbortHandler(t *testing.T) {
	handler := RecoveryMiddleware(RecoveryConfig{})(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
