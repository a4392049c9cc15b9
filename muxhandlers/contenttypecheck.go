package muxhandlers

import (
	"errors"
	"mime"
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/mux"
)

// ErrNoAllowedTypes is returned when ContentTypeCheckConfig.AllowedTypes is
// empty.
var ErrNoAllowedTypes = errors.New("content type check: at least one allowed content type is required")

// ContentTypeCheckConfig configures the Content-Type Check middleware behaviour.
type ContentTypeCheckConfig struct {
	// AllowedTypes are the accepted media types, compared without
	// parameters and case-insensitively.
	AllowedTypes []string

	// Methods are checked. Defaults to POST, PUT and PATCH.
	Methods []string
}

// ContentTypeCheckMiddleware returns a middleware that answers requests
// carrying a body of an unlisted media type with a 415 problem. Requests
// without a body pass unchecked.
func ContentTypeCheckMiddleware(cfg ContentTypeCheckConfig) (mux.MiddlewareFunc, error) {
	if len(cfg.AllowedTypes) == 0 {
		return nil, ErrNoAllowedTypes
	}

	methods := cfg.Methods
	if methods == nil {
		methods = []string{http.MethodPost, http.MethodPut, http.MethodPatch}
	}

	allowed := make([]string, 0, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowed = append(allowed, strings.ToLower(strings.TrimSpace(t)))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength == 0 || !slices.Contains(methods, r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			ct := r.Header.Get("Content-Type")
			mediaType, _, err := mime.ParseMediaType(ct)
			if err != nil || !slices.Contains(allowed, mediaType) {
				WriteProblem(w, r, http.StatusUnsupportedMediaType, ProblemUnsupportedMedia,
					"unsupported content type "+quoteContentType(ct))
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

func quoteContentType(s string) string {
	if s == "" {
		return "(none)"
	}
	return `"` + s + `"`
}
