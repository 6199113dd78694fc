package routes

import (
	"net/http"
	"time"
)

func registerHealthRoutes(mux *http.ServeMux, d Deps) {
	// GET /health
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet, http.MethodHead) {
			return
		}
		writeJSON(w, map[string]string{
			"status":    "OK",
			"timestamp": time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	})

	// GET /api/config - non-sensitive configuration only
	mux.HandleFunc("/api/config", func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		out := map[string]any{
			"version": d.Version,
		}
		if c := d.Cfg; c != nil {
			out["port"] = c.Port()
			out["hasGoogleCloud"] = c.TTS.HasGoogle()
			out["hasGemini"] = c.TTS.HasGemini()
			out["hasOpenAI"] = c.TTS.OpenAIAPIKey != ""
			out["hasElevenLabs"] = c.TTS.ElevenLabsAPIKey != ""
			out["limits"] = map[string]int{
				"maxFileSizeMB":            c.Limits.MaxFileSizeMB,
				"warnFileSizeMB":           c.Limits.WarnFileSizeMB,
				"maxLessonDurationMinutes": c.Limits.MaxLessonDurationMinutes,
				"maxKeyframes":             c.Limits.MaxKeyframes,
			}
		}
		if d.TTS != nil {
			out["ttsProvider"] = d.TTS.Name()
		}
		if d.Speech != nil {
			if st, err := d.Speech.SpeechStats(); err == nil {
				out["speechCache"] = st
			}
		}
		writeJSON(w, out)
	})
}

func registerAPILogRoutes(mux *http.ServeMux, d Deps) {
	if d.Logs == nil {
		return
	}
	mux.HandleFunc("/api/logs", d.Logs.ServeLogsJSON)
	mux.HandleFunc("/api/logs/stream", d.Logs.ServeLogsSSE)
}
