package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// EnvPrefix prefixes every environment variable read by LoadConfig, e.g.
// APICONSOLE_SOCKET_SERVER for socketServer.
const EnvPrefix = "APICONSOLE_"

// Config is the console configuration.
type Config struct {
	Listen string `koanf:"listen" validate:"required,hostname_port"`

	// OpenAPI and AsyncAPI are file paths or http(s) URLs of the REST and
	// socket documents. At least one is required.
	OpenAPI  string `koanf:"openapi" validate:"required_without=AsyncAPI"`
	AsyncAPI string `koanf:"asyncapi" validate:"required_without=OpenAPI"`

	// SocketServer overrides the first server of the socket document.
	SocketServer string `koanf:"socketServer" validate:"omitempty,url"`

	// Token is the initial bearer token or API key. It can be replaced at
	// runtime through PUT /api/auth.
	Token string `koanf:"token"`

	LogLevel string `koanf:"logLevel" validate:"oneof=debug info warn error"`

	// DocsUI selects the HTML docs served under /docs.
	DocsUI string `koanf:"docsUI" validate:"oneof=swagger rapidoc redoc none"`

	RequestTimeout   time.Duration `koanf:"requestTimeout" validate:"gte=0"`
	HandshakeTimeout time.Duration `koanf:"handshakeTimeout" validate:"gte=0"`
	MaxBodyBytes     int64         `koanf:"maxBodyBytes" validate:"gt=0"`

	// CORSOrigins lists the browser origins allowed to call the console
	// API. Empty disables CORS.
	CORSOrigins []string `koanf:"corsOrigins"`

	// ExampleDepth bounds generated examples. Zero means unbounded.
	ExampleDepth int `koanf:"exampleDepth" validate:"gte=0"`

	// Tracing exports a client span per try-it request over OTLP/HTTP to
	// TracingEndpoint, or to the collector named by the standard
	// OTEL_EXPORTER_OTLP_* variables when it is empty.
	Tracing         bool   `koanf:"tracing"`
	TracingEndpoint string `koanf:"tracingEndpoint" validate:"omitempty,url"`
}

// DefaultConfig returns the configuration used for unset values.
func DefaultConfig() Config {
	return Config{
		Listen:           "127.0.0.1:8080",
		LogLevel:         "info",
		DocsUI:           "swagger",
		RequestTimeout:   30 * time.Second,
		HandshakeTimeout: 20 * time.Second,
		MaxBodyBytes:     1 << 20,
		CORSOrigins:      []string{},
		ExampleDepth:     32,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("console: invalid config: %w", err)
	}
	return nil
}

// RegisterFlags adds one flag per configuration key to fs. Flag names are
// the kebab-case form of the keys.
func RegisterFlags(fs *pflag.FlagSet) {
	def := DefaultConfig()

	fs.String("listen", def.Listen, "address to listen on")
	fs.String("openapi", "", "OpenAPI document path or URL")
	fs.String("asyncapi", "", "socket document path or URL")
	fs.String("socket-server", "", "Socket.IO server URL, overrides the document")
	fs.String("token", "", "bearer token or API key sent with requests")
	fs.String("log-level", def.LogLevel, "log level: debug, info, warn, error")
	fs.String("docs-ui", def.DocsUI, "HTML docs: swagger, rapidoc, redoc, none")
	fs.Duration("request-timeout", def.RequestTimeout, "try-it request timeout, 0 disables")
	fs.Duration("handshake-timeout", def.HandshakeTimeout, "Socket.IO handshake timeout")
	fs.Int64("max-body-bytes", def.MaxBodyBytes, "maximum API request body size")
	fs.StringSlice("cors-origins", nil, "browser origins allowed to call the API")
	fs.Int("example-depth", def.ExampleDepth, "maximum nesting of generated examples, 0 disables")
	fs.Bool("tracing", def.Tracing, "export try-it spans over OTLP/HTTP")
	fs.String("tracing-endpoint", "", "OTLP/HTTP traces URL, defaults to OTEL_EXPORTER_OTLP_* settings")
}

// LoadConfig merges, from lowest to highest priority, DefaultConfig, the
// YAML file at path (skipped when empty), APICONSOLE_* environment
// variables and the flags of fs that were set (fs may be nil). The result
// is validated.
func LoadConfig(path string, fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("console: load defaults: %w", err)
	}

	// Environment variables and flags use flattened names; map them back to
	// the camelCase keys.
	keys := map[string]string{}
	for _, key := range k.Keys() {
		keys[flatKey(key)] = key
	}

	if path != "" {
		if err := k.Load(file.Provider(path), kyaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("console: load %s: %w", path, err)
		}
	}

	err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(name, value string) (string, any) {
		key := keys[flatKey(strings.TrimPrefix(name, EnvPrefix))]
		if key == "corsOrigins" {
			return key, splitList(value)
		}
		return key, value
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("console: load environment: %w", err)
	}

	if fs != nil {
		err := k.Load(posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			return keys[flatKey(f.Name)], posflag.FlagVal(fs, f)
		}), nil)
		if err != nil {
			return Config{}, fmt.Errorf("console: load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("console: decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// flatKey lowercases s and drops separators, so that "socketServer",
// "SOCKET_SERVER" and "socket-server" compare equal.
func flatKey(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "")
	return strings.ReplaceAll(s, "-", "")
}

// splitList parses a comma separated environment value.
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// NewLogger builds the production JSON logger at the configured level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("console: log level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.DisableStacktrace = lvl.Level() > zap.DebugLevel

	return cfg.Build()
}
