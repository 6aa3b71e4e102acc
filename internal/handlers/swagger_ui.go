package handlers

import (
	"bytes"
	"html/template"
	"net/http"
	"strings"
)

// DocsPage configures the Swagger UI page served at /api/docs
type DocsPage struct {
	Title string
	// SpecURL is where the browser fetches the OpenAPI document; set it when
	// the API sits behind a path-rewriting proxy.
	SpecURL string
	// AssetsURL is the base URL of the swagger-ui-dist bundle.
	AssetsURL string
}

// DefaultDocsPage points the page at the bundled document and the public CDN
var DefaultDocsPage = DocsPage{
	Title:     "CropCast API Documentation",
	SpecURL:   "/api/docs/openapi.json",
	AssetsURL: "https://unpkg.com/swagger-ui-dist@5.10.0",
}

var swaggerTemplate = template.Must(template.New("swagger").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <link rel="stylesheet" type="text/css" href="{{.AssetsURL}}/swagger-ui.css">
    <style>
        html { box-sizing: border-box; overflow-y: scroll; }
        *, *:before, *:after { box-sizing: inherit; }
        body { margin:0; padding:0; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="{{.AssetsURL}}/swagger-ui-bundle.js"></script>
    <script src="{{.AssetsURL}}/swagger-ui-standalone-preset.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({
                url: {{.SpecURL}},
                dom_id: '#swagger-ui',
                deepLinking: true,
                presets: [SwaggerUIBundle.presets.apis, SwaggerUIStandalonePreset],
                plugins: [SwaggerUIBundle.plugins.DownloadUrl],
                layout: "StandaloneLayout"
            });
        };
    </script>
</body>
</html>`))

// withDefaults fills unset fields from DefaultDocsPage
func (p DocsPage) withDefaults() DocsPage {
	if p.Title == "" {
		p.Title = DefaultDocsPage.Title
	}
	if p.SpecURL == "" {
		p.SpecURL = DefaultDocsPage.SpecURL
	}
	if p.AssetsURL == "" {
		p.AssetsURL = DefaultDocsPage.AssetsURL
	}
	p.AssetsURL = strings.TrimRight(p.AssetsURL, "/")
	return p
}

// SwaggerUI returns a handler rendering the Swagger UI page for page
func SwaggerUI(page DocsPage) http.HandlerFunc {
	page = page.withDefaults()
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := swaggerTemplate.Execute(&buf, page); err != nil {
			http.Error(w, "failed to render documentation", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	}
}
