package tryit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/vitalvas/apiconsole/tryit"

// Executor sends built requests and records the outcome. Transport
// failures never surface as errors: they are recorded with status 0.
type Executor struct {
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithClient sets the HTTP client. Defaults to http.DefaultClient.
func WithClient(c *http.Client) Option {
	return func(e *Executor) {
		e.client = c
	}
}

// WithTimeout bounds each request. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.timeout = d
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithTracer sets the tracer used for request spans. Defaults to the
// global tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = t
	}
}

// WithClock replaces time.Now for record timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// NewExecutor returns an Executor configured by opts.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		client: http.DefaultClient,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	return e
}

// Execute sends req, appends exactly one record to log and returns it.
// Response bodies that are valid JSON are decoded; anything else is kept
// as text.
func (e *Executor) Execute(ctx context.Context, req *Request, log *Log) Record {
	ctx, span := e.tracer.Start(ctx, "tryit "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL),
			attribute.String("url.template", req.Path),
		),
	)
	defer span.End()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := e.now()
	rec := Record{
		ID:             uuid.NewString(),
		Method:         req.Method,
		Path:           req.Path,
		URL:            req.URL,
		RequestBody:    req.Payload,
		RequestHeaders: req.Headers.Clone(),
		Timestamp:      start,
	}

	status, headers, body, err := e.do(ctx, req)
	rec.Duration = e.now().Sub(start)

	if err != nil {
		rec.Status = 0
		rec.StatusText = StatusNetworkError
		rec.ResponseHeaders = http.Header{}
		rec.ResponseBody = map[string]any{"error": err.Error()}

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL),
			zap.Error(err),
		)
	} else {
		rec.Status = status.code
		rec.StatusText = status.text
		rec.ResponseHeaders = headers
		rec.ResponseBody = decodeBody(body)

		span.SetAttributes(attribute.Int("http.response.status_code", status.code))
		if status.code >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, status.text)
		}
		e.logger.Debug("request executed",
			zap.String("method", req.Method),
			zap.String("url", req.URL),
			zap.Int("status", status.code),
			zap.Duration("duration", rec.Duration),
		)
	}

	if log != nil {
		log.Append(rec)
	}

	return rec
}

type responseStatus struct {
	code int
	text string
}

func (e *Executor) do(ctx context.Context, req *Request) (responseStatus, http.Header, []byte, error) {
	httpReq, err := newHTTPRequest(ctx, req)
	if err != nil {
		return responseStatus{}, nil, nil, err
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return responseStatus{}, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return responseStatus{}, nil, nil, fmt.Errorf("read response: %w", err)
	}

	status := responseStatus{
		code: resp.StatusCode,
		text: strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))),
	}
	if status.text == "" {
		status.text = http.StatusText(resp.StatusCode)
	}

	return status, resp.Header, body, nil
}

func newHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	var (
		body        io.Reader
		contentType string
	)

	switch {
	case req.Form != nil:
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		if err := writeForm(w, req.Form); err != nil {
			return nil, err
		}
		body = &buf
		contentType = w.FormDataContentType()
	case req.Body != nil:
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}

	httpReq.Header = req.Headers.Clone()
	if httpReq.Header == nil {
		httpReq.Header = http.Header{}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	return httpReq, nil
}

func writeForm(w *multipart.Writer, fields []FormField) error {
	for _, f := range fields {
		if !f.IsFile() {
			if err := w.WriteField(f.Name, f.Value); err != nil {
				return err
			}
			continue
		}

		part, err := w.CreateFormFile(f.Name, f.Filename)
		if err != nil {
			return err
		}
		if _, err := part.Write(f.Content); err != nil {
			return err
		}
	}
	return w.Close()
}

func decodeBody(body []byte) any {
	if json.Valid(body) {
		var v any
		if err := json.Unmarshal(body, &v); err == nil {
			return v
		}
	}
	return string(body)
}
