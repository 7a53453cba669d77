// Package uistatic serves the embedded askdb console.
package uistatic

import (
	"embed"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed all:app
var appFS embed.FS

const (
	indexFile = "index.html"

	// The console fetches /v1 from the same origin and loads no inline code.
	contentSecurityPolicy = "default-src 'self'; img-src 'self' data:; frame-ancestors 'none'"

	assetCacheControl = "public, max-age=300"
	indexCacheControl = "no-cache"
)

// Handler serves the console. Paths without an extension are client-side
// routes and get index.html; missing assets and anything under /v1/ get a 404
// so API typos never come back as HTML.
func Handler() http.Handler {
	site, err := fs.Sub(appFS, "app")
	if err != nil {
		return http.NotFoundHandler()
	}
	files := http.FileServer(http.FS(site))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
		if name == "v1" || strings.HasPrefix(name, "v1/") {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Content-Security-Policy", contentSecurityPolicy)

		if name == "." || name == indexFile {
			serveIndex(w, r, site)
			return
		}
		if _, err := fs.Stat(site, name); err == nil {
			w.Header().Set("Cache-Control", assetCacheControl)
			files.ServeHTTP(w, r)
			return
		}
		if path.Ext(name) != "" {
			http.NotFound(w, r)
			return
		}
		serveIndex(w, r, site)
	})
}

func serveIndex(w http.ResponseWriter, r *http.Request, site fs.FS) {
	index, err := site.Open(indexFile)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer func() { _ = index.Close() }()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", indexCacheControl)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.Copy(w, index)
}
