// internal/viewer/routes/register.go
package routes

import (
	"net/http"

	logging "github.com/ipfs/go-log/v2"

	"github.com/petervdpas/avp/internal/config"
	"github.com/petervdpas/avp/internal/content"
	"github.com/petervdpas/avp/internal/player"
	"github.com/petervdpas/avp/internal/source"
	"github.com/petervdpas/avp/internal/storage"
	"github.com/petervdpas/avp/internal/tts"
)

var log = logging.Logger("avp/http")

type Logs interface {
	ServeLogsJSON(w http.ResponseWriter, r *http.Request)
	ServeLogsSSE(w http.ResponseWriter, r *http.Request)
}

type Deps struct {
	Cfg     *config.Config
	Version string
	Logs    Logs

	Library *content.Store
	Index   *content.Index // optional; Library is scanned when nil
	Player  *player.Controller
	Fetcher *source.Fetcher
	TTS     tts.Provider // nil answers 503
	Speech  *storage.DB  // optional, for cache stats

	Page   http.Handler // GET /
	Assets http.Handler // /assets/
}

func Register(mux *http.ServeMux, d Deps) {
	registerHealthRoutes(mux, d)
	registerAPILogRoutes(mux, d)
	registerTTSRoutes(mux, d)
	if d.Library != nil {
		registerPackageRoutes(mux, d)
	}
	if d.Player != nil {
		registerPlayerRoutes(mux, d)
	}
	if d.Assets != nil {
		mux.Handle("/assets/", http.StripPrefix("/assets", d.Assets))
	}

	// Everything unmatched lands here: the page at "/" and JSON 404s.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && d.Page != nil && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
			d.Page.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusNotFound, "Not Found")
	})
}
