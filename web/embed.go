// Package web embeds the built chat frontend (dist/) and serves it as a
// single-page application.
//
// During development dist/ holds only a placeholder page; run the frontend
// dev server and point it at the API instead.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// SPAHandler serves the embedded frontend. Paths that match an embedded file
// are served directly; everything else falls back to index.html so client-side
// routing works on hard reloads.
func SPAHandler() http.Handler {
	dist, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: dist not embedded: " + err.Error())
	}

	fileServer := http.FileServer(http.FS(dist))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
		if name == "." {
			name = "index.html"
		}

		if _, err := fs.Stat(dist, name); err != nil {
			// Unknown path, let the SPA router handle it.
			r.URL.Path = "/"
		}
		fileServer.ServeHTTP(w, r)
	})
}
