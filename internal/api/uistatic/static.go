// Package uistatic serves the landing page that documents the table routes.
package uistatic

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
)

//go:embed index.html.tmpl
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "index.html.tmpl"))

type Page struct {
	Service  string
	Table    string
	IDColumn string
}

// Handler renders the page once and serves the cached bytes.
func Handler(page Page) http.Handler {
	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, page); err != nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "index page unavailable", http.StatusInternalServerError)
		})
	}
	body := buf.Bytes()

	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(body)
	})
}
