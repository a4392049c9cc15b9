package muxhandlers

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
)

// ErrWildcardCredentials is returned when AllowedOrigins contains "*" and
// AllowCredentials is true.
var ErrWildcardCredentials = errors.New("cors: wildcard origin cannot be used with credentials")

// ErrInvalidOriginPattern is returned for origin patterns with more than one
// wildcard.
var ErrInvalidOriginPattern = errors.New("cors: origin pattern contains multiple wildcards")

// CORSConfig configures the CORS middleware, which lets a console UI
// served from another origin call the API.
//
// Spec references:
//   - CORS protocol: https://fetch.spec.whatwg.org/#http-cors-protocol
//   - Web Origin:    https://www.rfc-editor.org/rfc/rfc6454
type CORSConfig struct {
	// AllowedOrigins holds exact origins, "*", or subdomain patterns such
	// as "https://*.example.com".
	AllowedOrigins []string

	// AllowedHeaders is sent on preflight responses. When empty the
	// requested headers are reflected.
	AllowedHeaders []string

	// ExposeHeaders lists response headers readable by the browser.
	ExposeHeaders []string

	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds. Zero omits it.
	MaxAge int
}

type originPattern struct {
	prefix string
	suffix string
}

type originMatcher struct {
	any      bool
	exact    []string
	patterns []originPattern
}

func newOriginMatcher(origins []string) (*originMatcher, error) {
	m := &originMatcher{}

	for _, o := range origins {
		if o == "*" {
			m.any = true
			continue
		}

		lower := strings.ToLower(o)
		prefix, suffix, ok := strings.Cut(lower, "*")
		if !ok {
			m.exact = append(m.exact, lower)
			continue
		}
		if strings.Contains(suffix, "*") {
			return nil, ErrInvalidOriginPattern
		}
		m.patterns = append(m.patterns, originPattern{prefix: prefix, suffix: suffix})
	}

	return m, nil
}

func (m *originMatcher) match(origin string) bool {
	if m.any {
		return true
	}

	origin = strings.ToLower(origin)
	if slices.Contains(m.exact, origin) {
		return true
	}

	for _, p := range m.patterns {
		if len(origin) >= len(p.prefix)+len(p.suffix) &&
			strings.HasPrefix(origin, p.prefix) &&
			strings.HasSuffix(origin, p.suffix) {
			return true
		}
	}

	return false
}

// CORSMiddleware returns a middleware that answers preflight requests and
// sets the CORS headers for allowed origins. Allowed methods are discovered
// from the routes of r matching the request path.
//
// Router middleware only runs for matched routes, so r's
// MethodNotAllowedHandler is wrapped to answer preflights for routes that
// do not register OPTIONS. Set any custom MethodNotAllowedHandler before
// calling this.
func CORSMiddleware(r *mux.Router, cfg CORSConfig) (mux.MiddlewareFunc, error) {
	matcher, err := newOriginMatcher(cfg.AllowedOrigins)
	if err != nil {
		return nil, err
	}
	if matcher.any && cfg.AllowCredentials {
		return nil, ErrWildcardCredentials
	}

	setOrigin := func(w http.ResponseWriter, origin string) {
		h := w.Header()
		if matcher.any {
			h.Set("Access-Control-Allow-Origin", "*")
		} else {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		}
		if cfg.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
	}

	preflight := func(w http.ResponseWriter, req *http.Request) {
		h := w.Header()

		if methods := routeMethods(r, req); len(methods) > 0 {
			h.Set("Access-Control-Allow-Methods", strings.Join(methods, ","))
		}

		if len(cfg.AllowedHeaders) > 0 {
			h.Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowedHeaders, ","))
		} else if requested := req.Header.Get("Access-Control-Request-Headers"); requested != "" {
			h.Set("Access-Control-Allow-Headers", requested)
		}

		if cfg.MaxAge > 0 {
			h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
		}

		h.Add("Vary", "Access-Control-Request-Method")
		h.Add("Vary", "Access-Control-Request-Headers")
		w.WriteHeader(http.StatusNoContent)
	}

	isPreflight := func(req *http.Request) bool {
		return req.Method == http.MethodOptions && req.Header.Get("Access-Control-Request-Method") != ""
	}

	prev := r.MethodNotAllowedHandler
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if origin := req.Header.Get("Origin"); origin != "" && matcher.match(origin) && isPreflight(req) {
			setOrigin(w, origin)
			preflight(w, req)
			return
		}

		if prev != nil {
			prev.ServeHTTP(w, req)
			return
		}
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			origin := req.Header.Get("Origin")
			if origin == "" {
				if !matcher.any {
					w.Header().Add("Vary", "Origin")
				}
				next.ServeHTTP(w, req)
				return
			}

			if !matcher.match(origin) {
				next.ServeHTTP(w, req)
				return
			}

			setOrigin(w, origin)

			if isPreflight(req) {
				preflight(w, req)
				return
			}

			if len(cfg.ExposeHeaders) > 0 {
				w.Header().Set("Access-Control-Expose-Headers", strings.Join(cfg.ExposeHeaders, ","))
			}

			next.ServeHTTP(w, req)
		})
	}, nil
}

// routeMethods returns the methods of every route of router that matches
// the request path.
func routeMethods(router *mux.Router, req *http.Request) []string {
	var methods []string

	_ = router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		routeMethods, err := route.GetMethods()
		if err != nil {
			return nil
		}

		for _, method := range routeMethods {
			candidate := req.Clone(req.Context())
			candidate.Method = method
			if route.Match(candidate, &mux.RouteMatch{}) && !slices.Contains(methods, method) {
				methods = append(methods, method)
			}
		}

		return nil
	})

	return methods
}
