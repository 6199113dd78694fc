package viewer

import (
	"net/http"
	"time"

	"github.com/petervdpas/avp/internal/config"
	"github.com/petervdpas/avp/internal/content"
	"github.com/petervdpas/avp/internal/player"
	"github.com/petervdpas/avp/internal/source"
	"github.com/petervdpas/avp/internal/storage"
	"github.com/petervdpas/avp/internal/tts"
	viewerassets "github.com/petervdpas/avp/internal/ui/assets"
	"github.com/petervdpas/avp/internal/viewer/routes"
)

type Viewer struct {
	CfgPath string
	Cfg     *config.Config
	Version string
	Logs    *LogBuffer

	Library *content.Store
	Index   *content.Index
	Player  *player.Controller
	Fetcher *source.Fetcher
	TTS     tts.Provider
	Speech  *storage.DB
}

// Handler builds the full creator mux.
func Handler(v Viewer) http.Handler {
	mux := http.NewServeMux()

	deps := routes.Deps{
		Cfg:     v.Cfg,
		Version: v.Version,
		Library: v.Library,
		Index:   v.Index,
		Player:  v.Player,
		Fetcher: v.Fetcher,
		TTS:     v.TTS,
		Speech:  v.Speech,
		Page:    noCache(viewerassets.Page()),
		Assets:  noCache(viewerassets.Handler()),
	}
	// A nil *LogBuffer in the interface would not compare equal to nil.
	if v.Logs != nil {
		deps.Logs = v.Logs
	}
	routes.Register(mux, deps)

	return mux
}

// NewServer returns an unstarted server for addr. Write timeouts are left
// open because the event streams are long-lived.
func NewServer(addr string, v Viewer) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           Handler(v),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}

func Start(addr string, v Viewer) error {
	return NewServer(addr, v).ListenAndServe()
}
