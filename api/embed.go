// Package api embeds the OpenAPI specification of the AMS API that the
// console's client SDK is written against.
package api

import _ "embed"

// OpenAPISpec contains the raw OpenAPI 3.0 YAML specification.
//
//go:embed ams-openapi.yaml
var OpenAPISpec []byte
