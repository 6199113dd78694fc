package routes

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/petervdpas/avp/internal/avp"
	"github.com/petervdpas/avp/internal/content"
	"github.com/petervdpas/avp/internal/sample"
	"github.com/petervdpas/avp/internal/source"
	"github.com/petervdpas/avp/internal/util"
)

// packageSummary is what inspect reports about an archive.
type packageSummary struct {
	Name       string         `json:"name,omitempty"`
	Size       int64          `json:"size"`
	Manifest   avp.Manifest   `json:"manifest"`
	AudioBytes int            `json:"audioBytes"`
	HasPoster  bool           `json:"hasPoster"`
	Images     map[string]int `json:"images"`
	Transcript bool           `json:"hasTranscript"`
	Targets    []string       `json:"targets"`
	Warnings   []avp.Warning  `json:"warnings"`
	Problems   []string       `json:"problems,omitempty"`
}

func (d Deps) extractOptions() []avp.Option {
	opts := []avp.Option{}
	if d.Cfg != nil {
		opts = append(opts,
			avp.WithStrictAssets(d.Cfg.Player.StrictAssets),
			avp.WithMaxSize(d.Cfg.Limits.MaxFileSize()),
		)
	}
	return opts
}

func (d Deps) limits() avp.Limits {
	if d.Cfg == nil {
		return avp.DefaultLimits()
	}
	return avp.Limits{
		MaxKeyframes:       d.Cfg.Limits.MaxKeyframes,
		MaxDurationSeconds: float64(d.Cfg.Limits.MaxLessonDurationMinutes * 60),
	}
}

func summarize(name string, size int64, pc *avp.PackageContent, lim avp.Limits) packageSummary {
	s := packageSummary{
		Name:       name,
		Size:       size,
		Manifest:   pc.Manifest,
		AudioBytes: len(pc.Audio),
		HasPoster:  pc.HasPoster(),
		Images:     make(map[string]int, len(pc.Images)),
		Transcript: pc.Transcript != nil,
		Targets:    avp.Targets(pc.Manifest.Keyframes),
		Warnings:   pc.Warnings,
	}
	for src, b := range pc.Images {
		s.Images[src] = len(b)
	}
	if s.Warnings == nil {
		s.Warnings = []avp.Warning{}
	}
	var ve *avp.ValidationError
	if err := avp.Validate(pc.Manifest, lim); errors.As(err, &ve) {
		s.Problems = ve.Problems
	}
	return s
}

// statusFor maps library and package errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, content.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, content.ErrBadName), errors.Is(err, content.ErrOutsideRoot),
		errors.Is(err, source.ErrUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, content.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, content.ErrTooLarge), errors.Is(err, source.ErrTooLarge), errors.Is(err, avp.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, content.ErrNotPackage), avp.IsFormatError(err):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func registerPackageRoutes(mux *http.ServeMux, d Deps) {
	lib := d.Library

	// GET /api/packages - list the library
	// DELETE /api/packages?name= - remove one package
	mux.HandleFunc("/api/packages", func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet, http.MethodDelete) {
			return
		}
		if r.Method == http.MethodDelete {
			if !requireLocal(w, r) {
				return
			}
			name := r.URL.Query().Get("name")
			if err := lib.Delete(r.Context(), name); err != nil {
				writeError(w, statusFor(err), err.Error())
				return
			}
			if d.Index != nil {
				d.Index.Remove(name)
			}
			log.Infof("deleted %s", name)
			writeJSON(w, map[string]string{"status": "deleted", "name": name})
			return
		}

		var pkgs []content.PackageInfo
		if d.Index != nil {
			pkgs = d.Index.Snapshot()
		} else {
			var err error
			if pkgs, err = lib.List(r.Context()); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		if pkgs == nil {
			pkgs = []content.PackageInfo{}
		}
		writeJSON(w, map[string]any{"packages": pkgs})
	})

	// GET /api/packages/download?name= - raw archive bytes
	mux.HandleFunc("/api/packages/download", func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		name := r.URL.Query().Get("name")
		data, etag, err := lib.Read(r.Context(), name)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		w.Header().Set("ETag", `"`+etag+`"`)
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		_, _ = w.Write(data)
	})

	// POST /api/packages/upload - multipart "file", optional "name"
	mux.HandleFunc("/api/packages/upload", func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		if limit := lib.MaxSize(); limit > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20) // room for multipart framing
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				writeError(w, http.StatusRequestEntityTooLarge, content.ErrTooLarge.Error())
				return
			}
			writeError(w, http.StatusBadRequest, "expected multipart form with a file field")
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing file field")
			return
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		name := strings.TrimSpace(r.FormValue("name"))
		if name == "" {
			name = hdr.Filename
		}
		if err := content.ValidName(name); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		pc, err := avp.Extract(r.Context(), data, d.extractOptions()...)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		summary := summarize(name, int64(len(data)), pc, d.limits())
		pc.Release()

		etag, err := lib.Write(r.Context(), name, data, r.Header.Get("If-Match"))
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		if d.Cfg != nil && d.Cfg.Limits.WarnFileSize() > 0 && int64(len(data)) > d.Cfg.Limits.WarnFileSize() {
			log.Warnf("uploaded %s is large: %s", name, util.HumanBytes(int64(len(data))))
		} else {
			log.Infof("uploaded %s (%s)", name, util.HumanBytes(int64(len(data))))
		}
		if d.Index != nil {
			if info, err := lib.Stat(r.Context(), name); err == nil {
				d.Index.Put(info)
			}
		}
		writeJSONStatus(w, http.StatusCreated, map[string]any{"etag": etag, "package": summary})
	})

	// GET /api/packages/inspect?name= | ?url= - decode without loading
	mux.HandleFunc("/api/packages/inspect", func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		q := r.URL.Query()
		var (
			data []byte
			err  error
			name = q.Get("name")
		)
		switch {
		case name != "":
			data, _, err = lib.Read(r.Context(), name)
		case q.Get("url") != "" && d.Fetcher != nil:
			name = q.Get("url")
			data, err = d.Fetcher.Fetch(r.Context(), name)
		default:
			writeError(w, http.StatusBadRequest, "name or url is required")
			return
		}
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}

		pc, err := avp.Extract(r.Context(), data, d.extractOptions()...)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		defer pc.Release()
		writeJSON(w, summarize(name, int64(len(data)), pc, d.limits()))
	})

	// GET /api/packages/sample - download a generated test lesson
	// POST /api/packages/sample - save it into the library
	mux.HandleFunc("/api/packages/sample", func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet, http.MethodPost) {
			return
		}
		data, err := sample.Generate(sample.Options{Title: r.URL.Query().Get("title")})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/zip")
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sample.FileName))
			_, _ = w.Write(data)
			return
		}

		etag, err := lib.Write(r.Context(), sample.FileName, data, "")
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		if d.Index != nil {
			if info, err := lib.Stat(r.Context(), sample.FileName); err == nil {
				d.Index.Put(info)
			}
		}
		writeJSONStatus(w, http.StatusCreated, map[string]string{"name": sample.FileName, "etag": etag})
	})
}
