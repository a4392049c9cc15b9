// Package muxhandlers provides the HTTP middleware used by the console
// router. Every constructor returns a gorilla/mux MiddlewareFunc.
//
// # Recovery
//
// RecoveryMiddleware turns panics into a 500 problem document and logs
// them with their stack:
//
//	r.Use(muxhandlers.RecoveryMiddleware(muxhandlers.RecoveryConfig{
//	    Logger: logger,
//	}))
//
// # Request ID
//
// RequestIDMiddleware stores a per-request ID in the context (see
// RequestIDFromContext) and echoes it in the X-Request-ID response header.
//
// # Access log
//
// AccessLogMiddleware writes one structured entry per request and can feed
// the same observation to metrics through AccessLogConfig.Observe.
//
// # Headers
//
// SecurityHeadersMiddleware sets the usual hardening headers and
// CacheControlMiddleware picks a Cache-Control value by response type.
// CORSMiddleware needs the router itself, so preflight requests can be
// answered with the methods registered for the path:
//
//	cors, err := muxhandlers.CORSMiddleware(r, muxhandlers.CORSConfig{
//	    AllowedOrigins: []string{"https://*.example.com"},
//	})
//
// # Bodies
//
// RequestSizeLimitMiddleware caps request bodies, ContentTypeCheckMiddleware
// rejects unexpected media types and CompressionMiddleware gzips textual
// responses. TimeoutMiddleware bounds the request context:
//
//	limit, err := muxhandlers.RequestSizeLimitMiddleware(muxhandlers.RequestSizeLimitConfig{
//	    MaxBytes: 1 << 20,
//	})
//	if err != nil {
//	    return err
//	}
//	r.Use(limit)
//
// Errors are written as RFC 7807 problem documents by WriteProblem.
package muxhandlers
