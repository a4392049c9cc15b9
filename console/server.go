package console

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/vitalvas/apiconsole/asyncdoc"
	"github.com/vitalvas/apiconsole/muxhandlers"
	"github.com/vitalvas/apiconsole/openapi"
	"github.com/vitalvas/apiconsole/schema"
	"github.com/vitalvas/apiconsole/socketio"
	"github.com/vitalvas/apiconsole/sockets"
	"github.com/vitalvas/apiconsole/tryit"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// ErrNoDocument is returned by New when neither an OpenAPI nor a socket
// document was given.
var ErrNoDocument = errors.New("console: no document loaded")

// TransportFactory opens the transport of one namespace connection.
type TransportFactory func(cfg socketio.Config) (sockets.Transport, error)

// Console serves the interactive API console: endpoint browsing with
// try-it execution for the OpenAPI document and live namespace
// connections for the socket document.
type Console struct {
	cfg    Config
	logger *zap.Logger

	api   *openapi.Document
	async *asyncdoc.Document

	client   *http.Client
	tracer   trace.Tracer
	dial     TransportFactory
	executor *tryit.Executor
	logs     tryit.Logs
	sockets  *sockets.Registry
	metrics  *metrics

	token   atomic.Pointer[string]
	handler http.Handler
}

// Option configures a Console.
type Option func(*Console)

func WithLogger(l *zap.Logger) Option {
	return func(c *Console) {
		c.logger = l
	}
}

// WithOpenAPI sets the REST document.
func WithOpenAPI(doc *openapi.Document) Option {
	return func(c *Console) {
		c.api = doc
	}
}

// WithAsyncAPI sets the socket document.
func WithAsyncAPI(doc *asyncdoc.Document) Option {
	return func(c *Console) {
		c.async = doc
	}
}

// WithHTTPClient sets the client used for try-it requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Console) {
		c.client = client
	}
}

// WithTracerProvider traces try-it requests with tp instead of the global
// provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Console) {
		c.tracer = tp.Tracer(ServiceName)
	}
}

// WithTransportFactory replaces the Socket.IO client used for namespace
// connections.
func WithTransportFactory(fn TransportFactory) Option {
	return func(c *Console) {
		c.dial = fn
	}
}

// New returns a console for the configured documents.
func New(cfg Config, opts ...Option) (*Console, error) {
	c := &Console{
		cfg:    cfg,
		logger: zap.NewNop(),
		client: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.api == nil && c.async == nil {
		return nil, ErrNoDocument
	}

	if c.dial == nil {
		c.dial = c.dialSocketIO
	}

	c.metrics = newMetrics(func() int { return c.sockets.Len() })
	c.sockets = sockets.NewRegistry(
		sockets.WithLogger(c.logger.Named("sockets")),
		sockets.WithMessageHook(c.metrics.observeMessage),
	)
	execOpts := []tryit.Option{
		tryit.WithClient(c.client),
		tryit.WithTimeout(cfg.RequestTimeout),
		tryit.WithLogger(c.logger.Named("tryit")),
	}
	if c.tracer != nil {
		execOpts = append(execOpts, tryit.WithTracer(c.tracer))
	}
	c.executor = tryit.NewExecutor(execOpts...)

	token := cfg.Token
	c.token.Store(&token)

	handler, err := c.routes()
	if err != nil {
		return nil, err
	}
	c.handler = handler

	return c, nil
}

// Handler returns the console HTTP handler.
func (c *Console) Handler() http.Handler {
	return c.handler
}

// Sockets returns the namespace connection registry.
func (c *Console) Sockets() *sockets.Registry {
	return c.sockets
}

// Run serves the console on cfg.Listen until ctx is done, then shuts the
// server down and closes every namespace connection.
func (c *Console) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", c.cfg.Listen)
	if err != nil {
		return fmt.Errorf("console: listen: %w", err)
	}

	return c.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (c *Console) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           c.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(c.logger.Named("http")),
	}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("console listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	defer c.sockets.Close()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("console: serve: %w", err)

	case <-ctx.Done():
		c.logger.Info("console shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("console: shutdown: %w", err)
		}
		return nil
	}
}

func (c *Console) currentToken() string {
	return *c.token.Load()
}

func (c *Console) generatorOptions() []schema.GeneratorOption {
	return []schema.GeneratorOption{schema.WithMaxDepth(c.cfg.ExampleDepth)}
}

func (c *Console) dialSocketIO(cfg socketio.Config) (sockets.Transport, error) {
	client, err := socketio.NewClient(cfg, socketio.WithLogger(c.logger.Named("socketio")))
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Console) routes() (http.Handler, error) {
	r := mux.NewRouter()

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		notFound(w, req, "no such route")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		muxhandlers.WriteProblem(w, req, http.StatusMethodNotAllowed, muxhandlers.ProblemMethodNotAllowed, "")
	})

	sizeLimit, err := muxhandlers.RequestSizeLimitMiddleware(muxhandlers.RequestSizeLimitConfig{
		MaxBytes: c.cfg.MaxBodyBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("console: %w", err)
	}

	securityHeaders, err := muxhandlers.SecurityHeadersMiddleware(muxhandlers.SecurityHeadersConfig{})
	if err != nil {
		return nil, fmt.Errorf("console: %w", err)
	}

	r.Use(
		muxhandlers.RecoveryMiddleware(muxhandlers.RecoveryConfig{Logger: c.logger}),
		muxhandlers.RequestIDMiddleware(muxhandlers.RequestIDConfig{}),
		securityHeaders,
	)

	if len(c.cfg.CORSOrigins) > 0 {
		cors, err := muxhandlers.CORSMiddleware(r, muxhandlers.CORSConfig{
			AllowedOrigins: c.cfg.CORSOrigins,
			ExposeHeaders:  []string{muxhandlers.DefaultRequestIDHeader},
		})
		if err != nil {
			return nil, fmt.Errorf("console: %w", err)
		}
		r.Use(cors)
	}

	cacheControl, err := muxhandlers.CacheControlMiddleware(muxhandlers.CacheControlConfig{
		Rules: []muxhandlers.CacheControlRule{
			{ContentType: "text/html", Value: "no-cache"},
			{ContentType: "application/yaml", Value: "no-cache"},
		},
		DefaultValue: "no-store",
	})
	if err != nil {
		return nil, fmt.Errorf("console: %w", err)
	}

	compression, err := muxhandlers.CompressionMiddleware(muxhandlers.CompressionConfig{MinLength: 1 << 10})
	if err != nil {
		return nil, fmt.Errorf("console: %w", err)
	}

	r.Use(
		muxhandlers.AccessLogMiddleware(muxhandlers.AccessLogConfig{
			Logger:  c.logger.Named("access"),
			Observe: c.metrics.observeHTTP,
		}),
		cacheControl,
		compression,
		sizeLimit,
	)

	if c.api != nil {
		openapi.Handle(r, "/docs", c.api, &openapi.HandleConfig{
			UI:           docsUI(c.cfg.DocsUI),
			JSONFilename: "/openapi.json",
			YAMLFilename: "/openapi.yaml",
			DisableDocs:  c.cfg.DocsUI == "none",
		})
	}

	r.Handle("/metrics", c.metrics.handler()).Methods(http.MethodGet)

	jsonOnly, err := muxhandlers.ContentTypeCheckMiddleware(muxhandlers.ContentTypeCheckConfig{
		AllowedTypes: []string{"application/json"},
	})
	if err != nil {
		return nil, fmt.Errorf("console: %w", err)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(jsonOnly)
	if c.cfg.RequestTimeout > 0 {
		timeout, err := muxhandlers.TimeoutMiddleware(muxhandlers.TimeoutConfig{Duration: c.cfg.RequestTimeout})
		if err != nil {
			return nil, fmt.Errorf("console: %w", err)
		}
		api.Use(timeout)
	}

	api.HandleFunc("/auth", c.handleAuth).Methods(http.MethodPut)

	api.HandleFunc("/endpoints", c.handleEndpoints).Methods(http.MethodGet)
	api.HandleFunc("/endpoint", c.handleEndpoint).Methods(http.MethodGet)
	api.HandleFunc("/schemas", c.handleSchemas).Methods(http.MethodGet)
	api.HandleFunc("/schemas/{name}", c.handleSchema).Methods(http.MethodGet)
	api.HandleFunc("/schemas/{name}/example", c.handleSchemaExample).Methods(http.MethodGet)
	api.HandleFunc("/tryit", c.handleTryIt).Methods(http.MethodPost)
	api.HandleFunc("/tryit/history", c.handleTryItHistory).Methods(http.MethodGet)
	api.HandleFunc("/tryit/history", c.handleTryItClear).Methods(http.MethodDelete)

	api.HandleFunc("/namespaces", c.handleNamespaces).Methods(http.MethodGet)
	api.HandleFunc("/sockets", c.handleSockets).Methods(http.MethodGet)
	api.HandleFunc("/sockets/connect", c.handleConnect).Methods(http.MethodPost)
	api.HandleFunc("/sockets/disconnect", c.handleDisconnect).Methods(http.MethodPost)
	api.HandleFunc("/sockets/emit", c.handleEmit).Methods(http.MethodPost)
	api.HandleFunc("/sockets/history", c.handleSocketHistory).Methods(http.MethodGet)
	api.HandleFunc("/sockets/history", c.handleSocketClear).Methods(http.MethodDelete)

	return r, nil
}

func docsUI(name string) openapi.DocsUI {
	switch name {
	case "rapidoc":
		return openapi.DocsRapiDoc
	case "redoc":
		return openapi.DocsRedoc
	default:
		return openapi.DocsSwaggerUI
	}
}

type authRequest struct {
	Token string `json:"token"`
}

type authResponse struct {
	Authenticated bool `json:"authenticated"`
}

// handleAuth replaces the token used for try-it requests and new
// namespace connections. An empty token signs out.
func (c *Console) handleAuth(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := bindJSON(r, &req); err != nil {
		badRequest(w, r, err)
		return
	}

	c.token.Store(&req.Token)

	responseJSON(w, r, http.StatusOK, authResponse{Authenticated: req.Token != ""})
}
