package muxhandlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// ErrNoCacheControlRules is returned when CacheControlConfig has neither
// rules nor a default value.
var ErrNoCacheControlRules = errors.New("cache control: at least one rule or a default value is required")

// CacheControlRule sets Value on responses whose Content-Type starts with
// ContentType.
type CacheControlRule struct {
	ContentType string
	Value       string
}

// CacheControlConfig configures the CacheControl middleware behaviour.
type CacheControlConfig struct {
	// Rules are evaluated in order and the first match wins.
	Rules []CacheControlRule

	// DefaultValue applies when no rule matches. Empty leaves such
	// responses alone.
	DefaultValue string
}

// CacheControlMiddleware returns a middleware that sets Cache-Control from
// the response Content-Type when the handler did not set one itself.
func CacheControlMiddleware(cfg CacheControlConfig) (mux.MiddlewareFunc, error) {
	if len(cfg.Rules) == 0 && cfg.DefaultValue == "" {
		return nil, ErrNoCacheControlRules
	}

	rules := make([]CacheControlRule, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		rules[i] = CacheControlRule{ContentType: strings.ToLower(rule.ContentType), Value: rule.Value}
	}

	choose := func(contentType string) string {
		contentType = strings.ToLower(contentType)
		for _, rule := range rules {
			if strings.HasPrefix(contentType, rule.ContentType) {
				return rule.Value
			}
		}
		return cfg.DefaultValue
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(&cacheControlWriter{ResponseWriter: w, choose: choose}, r)
		})
	}, nil
}

type cacheControlWriter struct {
	http.ResponseWriter
	choose      func(contentType string) string
	wroteHeader bool
}

func (c *cacheControlWriter) WriteHeader(status int) {
	if !c.wroteHeader {
		c.wroteHeader = true

		h := c.Header()
		if h.Get("Cache-Control") == "" {
			if value := c.choose(h.Get("Content-Type")); value != "" {
				h.Set("Cache-Control", value)
			}
		}
	}
	c.ResponseWriter.WriteHeader(status)
}

func (c *cacheControlWriter) Write(b []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	return c.ResponseWriter.Write(b)
}

func (c *cacheControlWriter) Flush() {
	if f, ok := c.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (c *cacheControlWriter) Unwrap() http.ResponseWriter {
	return c.ResponseWriter
}
