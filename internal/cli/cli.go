// Package cli provides the apiconsole command-line interface.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vitalvas/apiconsole/asyncdoc"
	"github.com/vitalvas/apiconsole/console"
	"github.com/vitalvas/apiconsole/internal/source"
	"github.com/vitalvas/apiconsole/openapi"
	"github.com/vitalvas/apiconsole/schema"
	"github.com/vitalvas/apiconsole/tryit"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// CLI holds the command tree and the options of its commands.
type CLI struct {
	log     *zap.Logger
	rootCmd *cobra.Command
	source  source.Reader

	configFile string

	spec    string
	ref     string
	depth   int
	async   bool
	method  string
	path    string
	baseURL string
	params  map[string]string
	query   map[string]string
	headers map[string]string
	body    string
	ctype   string
	token   string
	timeout time.Duration
	curl    bool
}

// New creates the CLI. log receives diagnostics; command output goes to
// the command's output writer.
func New(log *zap.Logger) *CLI {
	c := &CLI{log: log}

	c.rootCmd = &cobra.Command{
		Use:           "apiconsole",
		Short:         "Interactive console for OpenAPI and Socket.IO APIs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	c.rootCmd.AddCommand(
		c.serveCmd(),
		c.exampleCmd(),
		c.callCmd(),
		c.validateCmd(),
	)

	return c
}

// Execute runs the CLI with the process arguments and stops serving on
// SIGINT or SIGTERM.
func (c *CLI) Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return c.rootCmd.ExecuteContext(ctx)
}

// Run executes args with output written to out.
func (c *CLI) Run(ctx context.Context, out io.Writer, args ...string) error {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetArgs(args)
	return c.rootCmd.ExecuteContext(ctx)
}

func (c *CLI) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the console",
		Args:  cobra.NoArgs,
		RunE:  c.serve,
	}

	cmd.Flags().StringVarP(&c.configFile, "config", "c", "", "path to a YAML config file")
	console.RegisterFlags(cmd.Flags())

	return cmd
}

func (c *CLI) serve(cmd *cobra.Command, _ []string) error {
	cfg, err := console.LoadConfig(c.configFile, cmd.Flags())
	if err != nil {
		return err
	}

	log, err := console.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	opts := []console.Option{console.WithLogger(log)}

	if cfg.Tracing {
		tp, err := console.NewTracerProvider(cmd.Context(), cfg.TracingEndpoint)
		if err != nil {
			return err
		}
		defer func() { _ = tp.Shutdown(context.Background()) }()
		opts = append(opts, console.WithTracerProvider(tp))
	}

	if cfg.OpenAPI != "" {
		doc, err := c.loadOpenAPI(cmd.Context(), cfg.OpenAPI)
		if err != nil {
			return err
		}
		log.Info("loaded OpenAPI document",
			zap.String("title", doc.Info.Title),
			zap.Int("endpoints", len(doc.Endpoints())),
		)
		opts = append(opts, console.WithOpenAPI(doc))
	}

	if cfg.AsyncAPI != "" {
		doc, err := c.loadAsyncAPI(cmd.Context(), cfg.AsyncAPI)
		if err != nil {
			return err
		}
		log.Info("loaded socket document", zap.Int("namespaces", len(doc.Namespaces)))
		opts = append(opts, console.WithAsyncAPI(doc))
	}

	srv, err := console.New(cfg, opts...)
	if err != nil {
		return err
	}

	return srv.Run(cmd.Context())
}

func (c *CLI) exampleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "example",
		Short: "Print an example generated from a schema",
		Long: "Print an example generated from a schema of a document. The reference is a JSON\n" +
			"pointer such as #/components/schemas/Pet, or just a component schema name.",
		Args: cobra.NoArgs,
		RunE: c.example,
	}

	cmd.Flags().StringVar(&c.spec, "spec", "", "document path or URL")
	cmd.Flags().StringVar(&c.ref, "ref", "", "schema reference or component name")
	cmd.Flags().IntVar(&c.depth, "depth", 32, "maximum nesting, 0 disables")
	_ = cmd.MarkFlagRequired("spec")
	_ = cmd.MarkFlagRequired("ref")

	return cmd
}

func (c *CLI) example(cmd *cobra.Command, _ []string) error {
	data, err := c.source.Read(cmd.Context(), c.spec)
	if err != nil {
		return err
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("parse %s: %w", c.spec, err)
	}

	pointer := c.ref
	if !strings.HasPrefix(pointer, "#/") {
		pointer = openapi.SchemaPointer(pointer)
	}

	if _, err := schema.Lookup(pointer, &root); err != nil {
		return err
	}

	example := schema.NewGenerator(&root, schema.WithMaxDepth(c.depth)).GenerateRef(pointer)

	return writeJSON(cmd.OutOrStdout(), example)
}

func (c *CLI) callCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Send a request to an endpoint of an OpenAPI document",
		Long: "Send a request to an endpoint of an OpenAPI document. Unset parameters and the\n" +
			"body are prefilled from the document examples, as in the console.",
		Args: cobra.NoArgs,
		RunE: c.call,
	}

	flags := cmd.Flags()
	flags.StringVar(&c.spec, "spec", "", "OpenAPI document path or URL")
	flags.StringVarP(&c.method, "method", "X", "GET", "HTTP method")
	flags.StringVar(&c.path, "path", "", "path template, e.g. /pets/{id}")
	flags.StringVar(&c.baseURL, "base", "", "base URL, defaults to the first server")
	flags.StringToStringVar(&c.params, "param", nil, "path parameter name=value")
	flags.StringToStringVar(&c.query, "query", nil, "query parameter name=value")
	flags.StringToStringVarP(&c.headers, "header", "H", nil, "header name=value")
	flags.StringVarP(&c.body, "data", "d", "", "JSON request body")
	flags.StringVar(&c.ctype, "content-type", "", "request content type")
	flags.StringVar(&c.token, "token", os.Getenv(console.EnvPrefix+"TOKEN"), "bearer token or API key")
	flags.DurationVar(&c.timeout, "timeout", 30*time.Second, "request timeout")
	flags.BoolVar(&c.curl, "curl", false, "print the curl command instead of sending")
	_ = cmd.MarkFlagRequired("spec")
	_ = cmd.MarkFlagRequired("path")

	return cmd
}

func (c *CLI) call(cmd *cobra.Command, _ []string) error {
	doc, err := c.loadOpenAPI(cmd.Context(), c.spec)
	if err != nil {
		return err
	}

	ep, ok := doc.Endpoint(c.method, c.path)
	if !ok {
		return fmt.Errorf("no endpoint %s %s", strings.ToUpper(c.method), c.path)
	}

	in := tryit.DefaultInput(doc, ep)
	if c.baseURL != "" {
		in.BaseURL = c.baseURL
	}
	for name, value := range c.params {
		in.PathParams[name] = value
	}
	for name, value := range c.query {
		in.QueryParams[name] = value
	}
	for name, value := range c.headers {
		in.Headers[name] = value
	}
	if c.ctype != "" {
		in.ContentType = c.ctype
	}
	if c.body != "" {
		if !json.Valid([]byte(c.body)) {
			return fmt.Errorf("request body is not valid JSON")
		}
		in.Body = json.RawMessage(c.body)
	}
	in.Auth = tryit.ForEndpoint(doc, ep, c.token)

	req, err := tryit.Build(in)
	if err != nil {
		return err
	}

	if c.curl {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), tryit.Curl(req))
		return err
	}

	executor := tryit.NewExecutor(tryit.WithTimeout(c.timeout), tryit.WithLogger(c.log))
	rec := executor.Execute(cmd.Context(), req, nil)

	if err := writeJSON(cmd.OutOrStdout(), rec); err != nil {
		return err
	}
	if rec.NetworkError() {
		return fmt.Errorf("%s %s: %s", rec.Method, rec.URL, tryit.StatusNetworkError)
	}
	return nil
}

func (c *CLI) validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that a document loads",
		Long: "Check that a document loads. OpenAPI documents are also validated against the\n" +
			"OpenAPI specification.",
		Args: cobra.NoArgs,
		RunE: c.validate,
	}

	cmd.Flags().StringVar(&c.spec, "spec", "", "document path or URL")
	cmd.Flags().BoolVar(&c.async, "socket", false, "the document is a socket document")
	_ = cmd.MarkFlagRequired("spec")

	return cmd
}

func (c *CLI) validate(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	if c.async {
		doc, err := c.loadAsyncAPI(cmd.Context(), c.spec)
		if err != nil {
			return err
		}

		events := 0
		for _, ns := range doc.Namespaces {
			events += len(ns.Events)
		}
		_, err = fmt.Fprintf(out, "ok: %d namespaces, %d events\n", len(doc.Namespaces), events)
		return err
	}

	data, err := c.source.Read(cmd.Context(), c.spec)
	if err != nil {
		return err
	}

	if err := openapi.Validate(cmd.Context(), data); err != nil {
		return err
	}

	doc, err := openapi.Load(data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, "ok: %s %s, %d endpoints, %d schemas\n",
		doc.Info.Title, doc.Info.Version, len(doc.Endpoints()), len(doc.SchemaNames()))
	return err
}

func (c *CLI) loadOpenAPI(ctx context.Context, location string) (*openapi.Document, error) {
	data, err := c.source.Read(ctx, location)
	if err != nil {
		return nil, err
	}

	doc, err := openapi.Load(data, openapi.WithLocation(location))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", location, err)
	}
	return doc, nil
}

func (c *CLI) loadAsyncAPI(ctx context.Context, location string) (*asyncdoc.Document, error) {
	data, err := c.source.Read(ctx, location)
	if err != nil {
		return nil, err
	}

	doc, err := asyncdoc.Load(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", location, err)
	}
	return doc, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
