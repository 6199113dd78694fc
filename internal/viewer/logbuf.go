// internal/viewer/logbuf.go
package viewer

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/petervdpas/avp/internal/util"
)

type LogEntry struct {
	TS        time.Time `json:"ts"`
	Level     string    `json:"level,omitempty"`
	Subsystem string    `json:"subsystem,omitempty"`
	Msg       string    `json:"msg"`
}

type LogBuffer struct {
	mu      sync.Mutex
	entries *util.Ring[LogEntry]

	subs map[chan LogEntry]struct{}

	partial bytes.Buffer
}

func NewLogBuffer(max int) *LogBuffer {
	if max <= 0 {
		max = 500
	}
	return &LogBuffer{
		entries: util.NewRing[LogEntry](max),
		subs:    make(map[chan LogEntry]struct{}),
	}
}

// Write implements io.Writer; it is fed the logging pipe.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.partial.Write(p)

	for {
		data := b.partial.Bytes()
		i := bytes.IndexByte(data, '\n')
		if i == -1 {
			break
		}

		line := string(data[:i])
		b.partial.Next(i + 1)

		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		e := parseLogLine(line)
		b.entries.Add(e)
		b.broadcastLocked(e)
	}

	return len(p), nil
}

var logLevels = map[string]bool{
	"DEBUG": true, "INFO": true, "WARN": true, "ERROR": true,
	"DPANIC": true, "PANIC": true, "FATAL": true,
}

// parseLogLine understands the plaintext ("ts\tLEVEL\tsubsystem\tcaller\tmsg")
// and json forms written by the logging package. Anything else is kept
// verbatim.
func parseLogLine(line string) LogEntry {
	e := LogEntry{TS: time.Now(), Msg: line}

	if strings.HasPrefix(line, "{") {
		var j struct {
			Level  string `json:"level"`
			TS     string `json:"ts"`
			Logger string `json:"logger"`
			Msg    string `json:"msg"`
		}
		if json.Unmarshal([]byte(line), &j) == nil && j.Msg != "" {
			e.Level = strings.ToLower(j.Level)
			e.Subsystem = j.Logger
			e.Msg = j.Msg
			if t, err := time.Parse(time.RFC3339Nano, j.TS); err == nil {
				e.TS = t
			}
		}
		return e
	}

	parts := strings.SplitN(line, "\t", 5)
	if len(parts) == 5 && logLevels[stripANSI(parts[1])] {
		if t, err := time.Parse(time.RFC3339Nano, parts[0]); err == nil {
			e.TS = t
		}
		e.Level = strings.ToLower(stripANSI(parts[1]))
		e.Subsystem = parts[2]
		e.Msg = parts[4]
	}
	return e
}

// stripANSI drops color escape sequences the color log format adds.
func stripANSI(s string) string {
	if !strings.Contains(s, "\x1b[") {
		return s
	}
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == 0x1b && i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && s[j] != 'm' {
				j++
			}
			i = j
			continue
		}
		out.WriteByte(s[i])
	}
	return out.String()
}

func (b *LogBuffer) broadcastLocked(e LogEntry) {
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// drop on slow subscriber
		}
	}
}

func (b *LogBuffer) Snapshot() []LogEntry {
	return b.entries.Last(-1)
}

func (b *LogBuffer) Subscribe() (ch chan LogEntry, cancel func()) {
	ch = make(chan LogEntry, 64)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel = func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// GET /api/logs[?level=warn&limit=100]
func (b *LogBuffer) ServeLogsJSON(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entries := b.Snapshot()

	if lvl := strings.ToLower(r.URL.Query().Get("level")); lvl != "" {
		min := levelRank(lvl)
		kept := entries[:0]
		for _, e := range entries {
			if e.Level == "" || levelRank(e.Level) >= min {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n >= 0 && n < len(entries) {
		entries = entries[len(entries)-n:]
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(entries)
}

func levelRank(l string) int {
	switch l {
	case "debug":
		return 0
	case "info":
		return 1
	case "warn":
		return 2
	default:
		return 3
	}
}

// GET /api/logs/stream  (Server-Sent Events) - tail only (no snapshot)
func (b *LogBuffer) ServeLogsSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := b.Subscribe()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			data, _ := json.Marshal(e)
			_, _ = w.Write([]byte("event: message\ndata: " + string(data) + "\n\n"))
			flusher.Flush()
		}
	}
}
