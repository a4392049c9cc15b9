// Package console serves the interactive API console over HTTP.
//
// The console loads an OpenAPI document, a socket document or both, and
// exposes them to a browser UI as a JSON API:
//
//	GET    /api/endpoints             endpoint list
//	GET    /api/endpoint              one endpoint with try-it defaults
//	GET    /api/schemas[/{name}]      component schemas
//	GET    /api/schemas/{name}/example
//	POST   /api/tryit                 execute a request against the API
//	GET    /api/tryit/history         per-endpoint response log
//	PUT    /api/auth                  set the token
//	GET    /api/namespaces            socket namespaces and events
//	GET    /api/sockets               connection states and histories
//	POST   /api/sockets/connect|disconnect|emit
//	GET    /api/sockets/history       per-namespace message history
//
// The loaded OpenAPI document is also served at /openapi.json and
// /openapi.yaml with an HTML docs UI under /docs, and Prometheus metrics
// at /metrics. Bodies sent to /api must be JSON, and errors are RFC 7807
// problem documents.
//
// Configuration is layered with koanf: defaults, an optional YAML file,
// APICONSOLE_* environment variables, then command line flags.
package console
