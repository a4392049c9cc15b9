package muxhandlers

import (
	"compress/gzip"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"
)

// ErrInvalidCompressionLevel is returned when CompressionConfig.Level is
// not a gzip level.
var ErrInvalidCompressionLevel = errors.New("compression: invalid compression level")

// DefaultCompressibleTypes are compressed when CompressionConfig.Types is
// nil.
var DefaultCompressibleTypes = []string{
	"application/json",
	"application/problem+json",
	"application/yaml",
	"application/javascript",
	"text/",
}

// CompressionConfig configures the Compression middleware behaviour.
type CompressionConfig struct {
	// Level is the gzip level. Zero selects gzip.DefaultCompression.
	Level int

	// MinLength is the smallest body, in bytes, worth compressing.
	MinLength int

	// Types lists compressible media types. An entry ending in "/" matches
	// every subtype.
	Types []string
}

// CompressionMiddleware returns a middleware that gzips responses of
// compressible types for clients accepting gzip. Bodies shorter than
// MinLength and responses that already carry a Content-Encoding are sent
// as is.
func CompressionMiddleware(cfg CompressionConfig) (mux.MiddlewareFunc, error) {
	level := cfg.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		return nil, ErrInvalidCompressionLevel
	}

	types := cfg.Types
	if types == nil {
		types = DefaultCompressibleTypes
	}

	pool := &sync.Pool{
		New: func() any {
			w, _ := gzip.NewWriterLevel(io.Discard, level)
			return w
		},
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Accept-Encoding")

			if !acceptsGzip(r.Header.Get("Accept-Encoding")) || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			gw := &gzipResponseWriter{
				ResponseWriter: w,
				pool:           pool,
				minLength:      cfg.MinLength,
				types:          types,
				status:         http.StatusOK,
			}
			defer gw.close()

			next.ServeHTTP(gw, r)
		})
	}, nil
}

// acceptsGzip reports whether an Accept-Encoding header allows gzip,
// either by name or through "*", with a non-zero quality.
func acceptsGzip(header string) bool {
	wildcard := false
	for part := range strings.SplitSeq(header, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.ToLower(strings.TrimSpace(name))

		q := 1.0
		if key, value, ok := strings.Cut(strings.TrimSpace(params), "="); ok && strings.TrimSpace(key) == "q" {
			parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil {
				parsed = 0
			}
			q = parsed
		}

		switch name {
		case "gzip", "x-gzip":
			return q > 0
		case "*":
			wildcard = q > 0
		}
	}
	return wildcard
}

func compressible(contentType string, types []string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	for _, t := range types {
		if mediaType == t || (strings.HasSuffix(t, "/") && strings.HasPrefix(mediaType, t)) {
			return true
		}
	}
	return false
}

// gzipResponseWriter holds the body back until MinLength bytes arrive or
// the handler returns, then commits to gzip or plain output.
type gzipResponseWriter struct {
	http.ResponseWriter
	pool      *sync.Pool
	minLength int
	types     []string

	status      int
	wroteHeader bool
	committed   bool
	buf         []byte
	gz          *gzip.Writer
}

func (g *gzipResponseWriter) WriteHeader(status int) {
	if g.wroteHeader {
		return
	}
	g.wroteHeader = true
	g.status = status
}

func (g *gzipResponseWriter) Write(b []byte) (int, error) {
	g.WriteHeader(http.StatusOK)

	if g.committed {
		if g.gz != nil {
			return g.gz.Write(b)
		}
		return g.ResponseWriter.Write(b)
	}

	g.buf = append(g.buf, b...)
	if len(g.buf) >= g.minLength && len(g.buf) > 0 {
		if err := g.commit(true); err != nil {
			return 0, err
		}
	}
	return len(b), nil
}

// commit sends the header and the buffered body. full is set when the
// buffer reached MinLength.
func (g *gzipResponseWriter) commit(full bool) error {
	g.committed = true

	h := g.Header()
	if full && h.Get("Content-Encoding") == "" && compressible(h.Get("Content-Type"), g.types) {
		h.Set("Content-Encoding", "gzip")
		h.Del("Content-Length")

		g.gz = g.pool.Get().(*gzip.Writer)
		g.gz.Reset(g.ResponseWriter)
	}

	g.ResponseWriter.WriteHeader(g.status)

	buf := g.buf
	g.buf = nil
	if len(buf) == 0 {
		return nil
	}
	if g.gz != nil {
		_, err := g.gz.Write(buf)
		return err
	}
	_, err := g.ResponseWriter.Write(buf)
	return err
}

func (g *gzipResponseWriter) close() {
	if !g.committed {
		_ = g.commit(false)
	}

	if g.gz != nil {
		_ = g.gz.Close()
		g.pool.Put(g.gz)
		g.gz = nil
	}
}

// Flush commits the response and flushes the gzip stream.
func (g *gzipResponseWriter) Flush() {
	if !g.committed {
		_ = g.commit(len(g.buf) > 0)
	}
	if g.gz != nil {
		_ = g.gz.Flush()
	}
	if f, ok := g.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (g *gzipResponseWriter) Unwrap() http.ResponseWriter {
	return g.ResponseWriter
}
