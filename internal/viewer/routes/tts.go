package routes

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/petervdpas/avp/internal/tts"
)

func registerTTSRoutes(mux *http.ServeMux, d Deps) {
	defaults := tts.Options{}
	timeout := 30 * time.Second
	if d.Cfg != nil {
		defaults.Language = d.Cfg.TTS.DefaultLanguage
		defaults.Voice = d.Cfg.TTS.DefaultVoice
		if d.Cfg.TTS.TimeoutSeconds > 0 {
			timeout = time.Duration(d.Cfg.TTS.TimeoutSeconds) * time.Second
		}
	}

	// POST /api/tts - synthesize narration
	mux.HandleFunc("/api/tts", func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		if d.TTS == nil {
			writeError(w, http.StatusServiceUnavailable, tts.ErrNotConfigured.Error())
			return
		}

		var req tts.Request
		if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&req); err != nil {
			var te *json.UnmarshalTypeError
			if errors.As(err, &te) && te.Field == "text" {
				writeError(w, http.StatusBadRequest, "text is required and must be a string")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		text, opts, err := req.Validate(defaults)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		reqID := uuid.NewString()[:8]
		start := time.Now()
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		audio, err := d.TTS.Synthesize(ctx, text, opts)
		if err != nil {
			log.Errorw("tts failed", "req", reqID, "provider", d.TTS.Name(), "err", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		log.Infow("tts", "req", reqID, "provider", d.TTS.Name(), "chars", len(text),
			"bytes", len(audio.Data), "took", time.Since(start).Round(time.Millisecond))

		writeJSON(w, map[string]any{
			"success":  true,
			"audio":    base64.StdEncoding.EncodeToString(audio.Data),
			"mimeType": audio.MimeType,
		})
	})
}
