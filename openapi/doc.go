// Package openapi loads OpenAPI v3 documents into a read-only model used
// by the console: ordered endpoints with merged parameters, request bodies
// keyed by media type, responses, servers and security schemes.
//
// Schemas are not decoded into Go structs. They stay in the raw document
// tree (see Document.Root) and are normalized on access by the schema
// package, so that property order and $ref pointers survive exactly as
// written:
//
//	doc, err := openapi.Load(data)
//	if err != nil {
//	    return err
//	}
//
//	ep, _ := doc.Endpoint(http.MethodPost, "/users")
//	example := doc.Generator().Generate(ep.RequestBodySchema())
//
// Load is lenient and only fails on documents it cannot walk. Validate runs
// the strict kin-openapi validator and is meant for linting.
//
// Handle serves the loaded document as JSON and YAML next to an optional
// third-party HTML docs UI.
//
// See: https://spec.openapis.org/oas/v3.1.0
package openapi
