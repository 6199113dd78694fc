package routes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/petervdpas/avp/internal/avp"
	"github.com/petervdpas/avp/internal/player"
	"github.com/petervdpas/avp/internal/sample"
)

const loadTimeout = 2 * time.Minute

var errUnknownAction = errors.New("unknown action")

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The socket accepts controls, so other sites must not open it.
	CheckOrigin: allowedOrigin,
}

var transcriptMD = goldmark.New(
	goldmark.WithExtensions(
		extension.Table,
		extension.Linkify,
		highlighting.NewHighlighting(highlighting.WithStyle("github")),
	),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

type loadRequest struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Sample bool   `json:"sample"`
}

type controlRequest struct {
	Action string  `json:"action"`
	Time   float64 `json:"time"`
}

// playerView is the state document served to the page.
type playerView struct {
	player.State
	CurrentTimeText string         `json:"currentTimeText"`
	DurationText    string         `json:"durationText"`
	Active          []avp.Keyframe `json:"active"`
	Warnings        []avp.Warning  `json:"warnings,omitempty"`
	HasPoster       bool           `json:"hasPoster"`
	HasTranscript   bool           `json:"hasTranscript"`
}

func viewOf(c *player.Controller) playerView {
	st := c.State()
	v := playerView{
		State:           st,
		CurrentTimeText: player.FormatTime(st.CurrentTime),
		DurationText:    player.FormatTime(st.Duration),
		Active:          c.ActiveKeyframes(),
		Warnings:        c.Warnings(),
	}
	if v.Active == nil {
		v.Active = []avp.Keyframe{}
	}
	_, _, v.HasPoster = c.Poster()
	_, v.HasTranscript = c.Transcript()
	return v
}

func playerStatus(err error) int {
	var te *player.TransportError
	switch {
	case errors.Is(err, errUnknownAction):
		return http.StatusBadRequest
	case errors.Is(err, player.ErrNotReady), errors.Is(err, player.ErrClosed):
		return http.StatusConflict
	case errors.As(err, &te):
		return http.StatusUnprocessableEntity
	}
	return statusFor(err)
}

func control(c *player.Controller, req controlRequest) error {
	switch req.Action {
	case "play":
		return c.Play()
	case "pause":
		return c.Pause()
	case "seek":
		return c.Seek(req.Time)
	}
	return fmt.Errorf("%w: %q", errUnknownAction, req.Action)
}

func registerPlayerRoutes(mux *http.ServeMux, d Deps) {
	pc := d.Player

	// POST /api/player/load - {name} from the library, {url} from a source, or {sample:true}
	mux.HandleFunc("/api/player/load", func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		var req loadRequest
		if decodeJSON(w, r, &req) != nil {
			return
		}

		var fetch func(ctx context.Context) ([]byte, error)
		switch {
		case req.Sample:
			fetch = func(context.Context) ([]byte, error) { return sample.Generate(sample.Options{}) }
		case req.Name != "" && d.Library != nil:
			fetch = func(ctx context.Context) ([]byte, error) {
				b, _, err := d.Library.Read(ctx, req.Name)
				return b, err
			}
		case req.URL != "" && d.Fetcher != nil:
			fetch = func(ctx context.Context) ([]byte, error) { return d.Fetcher.Fetch(ctx, req.URL) }
		default:
			writeError(w, http.StatusBadRequest, "name, url or sample is required")
			return
		}

		opts := d.extractOptions()
		src := func(ctx context.Context) (*avp.PackageContent, error) {
			data, err := fetch(ctx)
			if err != nil {
				return nil, err
			}
			return avp.Extract(ctx, data, opts...)
		}

		// A client that disconnects mid-load should not fail the load.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), loadTimeout)
		defer cancel()

		res := <-pc.Load(ctx, src)
		switch {
		case res.Superseded:
			writeJSONStatus(w, http.StatusConflict, map[string]any{
				"error":      "superseded by a newer load",
				"generation": res.Generation,
			})
		case res.Err != nil:
			log.Warnw("load failed", "load", res.LoadID, "err", res.Err)
			writeError(w, playerStatus(res.Err), res.Err.Error())
		default:
			writeJSON(w, viewOf(pc))
		}
	})

	// POST /api/player/control - {action: play|pause|seek, time}
	mux.HandleFunc("/api/player/control", func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		var req controlRequest
		if decodeJSON(w, r, &req) != nil {
			return
		}
		if err := control(pc, req); err != nil {
			writeError(w, playerStatus(err), err.Error())
			return
		}
		writeJSON(w, viewOf(pc))
	})

	// GET /api/player/state
	mux.HandleFunc("/api/player/state", func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, viewOf(pc))
	})

	// GET /api/player/manifest
	mux.HandleFunc("/api/player/manifest", func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		m, ok := pc.Manifest()
		if !ok {
			writeError(w, http.StatusConflict, player.ErrNotReady.Error())
			return
		}
		writeJSON(w, m)
	})

	// GET /api/player/audio - range-capable
	mux.HandleFunc("/api/player/audio", func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet, http.MethodHead) {
			return
		}
		data, path, ok := pc.Audio()
		if !ok {
			writeError(w, http.StatusNotFound, "no audio loaded")
			return
		}
		serveBlob(w, r, path, data)
	})

	// GET /api/player/poster
	mux.HandleFunc("/api/player/poster", func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet, http.MethodHead) {
			return
		}
		data, path, ok := pc.Poster()
		if !ok {
			writeError(w, http.StatusNotFound, "no poster")
			return
		}
		serveBlob(w, r, path, data)
	})

	// GET /api/player/image?src=images/a.png
	mux.HandleFunc("/api/player/image", func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet, http.MethodHead) {
			return
		}
		src := r.URL.Query().Get("src")
		data, ok := pc.Image(src)
		if !ok {
			writeError(w, http.StatusNotFound, "image not found: "+src)
			return
		}
		serveBlob(w, r, src, data)
	})

	// GET /api/player/transcript[?format=html]
	mux.HandleFunc("/api/player/transcript", func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		text, ok := pc.Transcript()
		if !ok {
			writeError(w, http.StatusNotFound, "no transcript")
			return
		}
		if r.URL.Query().Get("format") != "html" {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte(text))
			return
		}
		var buf bytes.Buffer
		if err := transcriptMD.Convert([]byte(text), &buf); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	})

	// GET /api/player/events - websocket: server pushes events, client may send controls
	mux.HandleFunc("/api/player/events", func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debugf("player events: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		evtCh, cancel := pc.Subscribe()
		defer cancel()

		var writeMu sync.Mutex
		send := func(v any) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			return conn.WriteJSON(v)
		}

		if err := send(map[string]any{"type": "state", "state": viewOf(pc)}); err != nil {
			return
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				var req controlRequest
				if err := conn.ReadJSON(&req); err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
						log.Debugf("player events: read: %v", err)
					}
					return
				}
				if err := control(pc, req); err != nil {
					_ = send(map[string]any{"type": "error", "error": err.Error(), "action": req.Action})
				}
			}
		}()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-done:
				return
			case ev, ok := <-evtCh:
				if !ok {
					return
				}
				if err := send(ev); err != nil {
					return
				}
			}
		}
	})

	// GET /api/player/stream - the same events over SSE
	mux.HandleFunc("/api/player/stream", func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}
		sseHeaders(w)

		evtCh, cancel := pc.Subscribe()
		defer cancel()

		writeSSE(w, "state", viewOf(pc))
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case ev, ok := <-evtCh:
				if !ok {
					return
				}
				writeSSE(w, string(ev.Type), ev)
				flusher.Flush()
			}
		}
	})
}
