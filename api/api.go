// Package api встраивает документ OpenAPI, который отдаётся по /swagger.
package api

import _ "embed"

//go:embed openapi.json
var OpenAPISpec []byte
