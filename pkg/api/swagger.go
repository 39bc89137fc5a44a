package api

import (
	_ "embed"
	"encoding/json"
	"net/http"

	"gopkg.in/yaml.v3"
)

//go:embed swagger.yaml
var swaggerYAML []byte

// GetSwaggerSpec returns the embedded OpenAPI specification as bytes.
func GetSwaggerSpec() []byte {
	return swaggerYAML
}

// GetSwaggerSpecAsJSON returns the OpenAPI specification converted to JSON.
func GetSwaggerSpecAsJSON() ([]byte, error) {
	var spec interface{}
	if err := yaml.Unmarshal(swaggerYAML, &spec); err != nil {
		return nil, err
	}
	return json.Marshal(spec)
}

// SwaggerHandler serves the OpenAPI specification, as YAML by default
// or as JSON when the client asks for it.
func SwaggerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") == "application/json" {
			jsonSpec, err := GetSwaggerSpecAsJSON()
			if err != nil {
				http.Error(w, "Failed to convert OpenAPI spec to JSON", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write(jsonSpec)
			return
		}

		w.Header().Set("Content-Type", "application/yaml")
		w.Write(swaggerYAML)
	}
}

// SwaggerUIHandler serves a minimal Swagger UI page pointed at the
// embedded specification.
func SwaggerUIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Arbiter Audit Engine API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui-bundle.js"></script>
    <script src="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui-standalone-preset.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({
                url: "/api/docs",
                dom_id: '#swagger-ui',
                deepLinking: true,
                presets: [
                    SwaggerUIBundle.presets.apis,
                    SwaggerUIStandalonePreset
                ],
                plugins: [
                    SwaggerUIBundle.plugins.DownloadUrl
                ],
                layout: "StandaloneLayout"
            });
        };
    </script>
</body>
</html>`
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(html))
	}
}
