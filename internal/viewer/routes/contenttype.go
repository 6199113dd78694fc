package routes

import (
	"bytes"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"
)

// contentTypeForPath returns the Content-Type for a package entry. Audio
// and image types are fixed so browsers do not refuse to play or render
// them on a sniffing mismatch.
func contentTypeForPath(rel string, data []byte) string {
	ext := strings.ToLower(path.Ext(rel))

	switch ext {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	case ".svg":
		return "image/svg+xml"
	case ".txt", ".md":
		return "text/plain; charset=utf-8"
	}

	if ext != "" {
		if mt := mime.TypeByExtension(ext); mt != "" {
			return mt
		}
	}

	return http.DetectContentType(data)
}

// serveBlob serves package bytes with Range support.
func serveBlob(w http.ResponseWriter, r *http.Request, name string, data []byte) {
	w.Header().Set("Content-Type", contentTypeForPath(name, data))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, path.Base(name), time.Time{}, bytes.NewReader(data))
}
