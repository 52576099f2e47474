// Package swagger serves the API reference.
package swagger

import (
	"bytes"
	"context"
	"html/template"
	"net/http"

	"gopkg.in/yaml.v3"
)

const redocBundle = "https://cdn.redoc.ly/redoc/v2.1.5/bundles/redoc.standalone.js"

var pageTmpl = template.Must(template.New("api-docs").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>{{.Title}} {{.Version}}</title>
    <style>body{margin:0;padding:0}</style>
  </head>
  <body>
    <redoc id="redoc-container"></redoc>
    <script src="{{.Bundle}}"></script>
    <script>Redoc.init('/openapi.yaml', { suppressWarnings: true }, document.getElementById('redoc-container'));</script>
  </body>
</html>`))

type docInfo struct {
	Title   string `yaml:"title"`
	Version string `yaml:"version"`
}

// renderPage builds the reference page from the embedded document's info block.
func renderPage(doc []byte) ([]byte, error) {
	var head struct {
		Info docInfo `yaml:"info"`
	}
	if err := yaml.Unmarshal(doc, &head); err != nil {
		return nil, err
	}
	if head.Info.Title == "" {
		head.Info.Title = "API reference"
	}
	var buf bytes.Buffer
	err := pageTmpl.Execute(&buf, struct {
		Title, Version string
		Bundle         string
	}{head.Info.Title, head.Info.Version, redocBundle})
	return buf.Bytes(), err
}

// Register attaches the API reference routes to mux.
// Routes:
//
//	GET /api-docs      -> ReDoc page
//	GET /openapi.yaml  -> embedded OpenAPI document
//
// It panics when the embedded document does not parse.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	page, err := renderPage(OpenAPI)
	if err != nil {
		panic("swagger: embedded openapi.yaml: " + err.Error())
	}

	mux.HandleFunc("GET /api-docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	})
	mux.HandleFunc("GET /openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		_, _ = w.Write(OpenAPI)
	})
}
