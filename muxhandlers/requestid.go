package muxhandlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// DefaultRequestIDHeader carries the request ID unless configured otherwise.
const DefaultRequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestIDFromContext returns the request ID stored by
// RequestIDMiddleware, or an empty string.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestIDConfig configures the Request ID middleware behaviour.
type RequestIDConfig struct {
	// HeaderName defaults to DefaultRequestIDHeader.
	HeaderName string

	// Generate returns a new ID. Defaults to GenerateUUIDv7, so IDs sort
	// by arrival.
	Generate func() string

	// TrustIncoming reuses a well-formed ID sent by the client.
	TrustIncoming bool

	// MaxLength bounds trusted incoming IDs. Longer ones are replaced.
	// Defaults to 128.
	MaxLength int
}

// RequestIDMiddleware returns a middleware that assigns every request an
// ID, stores it in the request context and echoes it in the response.
func RequestIDMiddleware(cfg RequestIDConfig) mux.MiddlewareFunc {
	header := cfg.HeaderName
	if header == "" {
		header = DefaultRequestIDHeader
	}

	generate := cfg.Generate
	if generate == nil {
		generate = GenerateUUIDv7
	}

	maxLength := cfg.MaxLength
	if maxLength <= 0 {
		maxLength = 128
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if cfg.TrustIncoming {
				if in := r.Header.Get(header); in != "" && len(in) <= maxLength && printable(in) {
					id = in
				}
			}
			if id == "" {
				id = generate()
			}

			w.Header().Set(header, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

// GenerateUUIDv4 returns a random UUID.
//
// Spec reference: https://www.rfc-editor.org/rfc/rfc9562#section-5.4
func GenerateUUIDv4() string {
	return uuid.NewString()
}

// GenerateUUIDv7 returns a time-ordered UUID.
//
// Spec reference: https://www.rfc-editor.org/rfc/rfc9562#section-5.7
func GenerateUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}

func printable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
