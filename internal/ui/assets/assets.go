// Package assets serves the embedded creator page and its script and
// stylesheet. Everything is minified once at startup.
package assets

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
)

var log = logging.Logger("avp/ui")

//go:embed index.html app.css app.js
var rawFS embed.FS

var mediaTypes = map[string]string{
	".html": "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
}

var minified map[string][]byte

func init() {
	m := minify.New()
	m.AddFunc("text/html", html.Minify)
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("application/javascript", js.Minify)

	minified = make(map[string][]byte)

	_ = fs.WalkDir(rawFS, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		mt, ok := mediaTypes[strings.ToLower(path.Ext(p))]
		if !ok {
			return nil
		}
		raw, err := rawFS.ReadFile(p)
		if err != nil {
			return nil
		}
		out, err := m.Bytes(mt, raw)
		if err != nil {
			log.Warnf("minify %s: %v (using original)", p, err)
			minified[p] = raw
			return nil
		}
		minified[p] = out
		return nil
	})
}

func serve(w http.ResponseWriter, r *http.Request, name string) {
	data, ok := minified[name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", mediaTypes[path.Ext(name)]+"; charset=utf-8")
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(data)
}

// Page serves index.html.
func Page() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serve(w, r, "index.html")
	})
}

// Handler serves app.css and app.js. Mount it at /assets/ with a StripPrefix.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		if name == "index.html" {
			http.NotFound(w, r)
			return
		}
		serve(w, r, name)
	})
}
