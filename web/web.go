// Package web embeds the site's templates, static assets and page copy.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"time"
)

//go:embed templates/*.html static content/*.md
var files embed.FS

// Templates parses every page template. Pages are addressed by file name,
// e.g. "landing.html".
func Templates() (*template.Template, error) {
	t, err := template.New("").Funcs(template.FuncMap{
		"year": func() int { return time.Now().Year() },
	}).ParseFS(files, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return t, nil
}

// Static is the tree served under /static.
func Static() fs.FS {
	sub, err := fs.Sub(files, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Content returns the Markdown copy for a page, e.g. "landing".
func Content(name string) (string, error) {
	b, err := files.ReadFile("content/" + name + ".md")
	if err != nil {
		return "", fmt.Errorf("page content %q: %w", name, err)
	}
	return string(b), nil
}
