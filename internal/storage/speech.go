package storage

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// SpeechEntry is a cached synthesis result.
type SpeechEntry struct {
	Key       string
	Provider  string
	MimeType  string
	Audio     []byte
	TextChars int
	Hits      int
	CreatedAt time.Time
	LastUsed  time.Time
}

// SpeechKey derives the cache key for one synthesis request.
func SpeechKey(provider, text, language, voice string, speed float64) string {
	h := sha256.New()
	for _, part := range []string{provider, language, voice, strconv.FormatFloat(speed, 'f', 3, 64), text} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// GetSpeech returns a cached entry and bumps its usage counters.
func (d *DB) GetSpeech(key string) (*SpeechEntry, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var (
		e                 SpeechEntry
		created, lastUsed int64
	)
	err := d.db.QueryRow(`
		SELECT key, provider, mime_type, audio, text_chars, hits, created_at, last_used
		FROM speech_cache WHERE key = ?`, key).
		Scan(&e.Key, &e.Provider, &e.MimeType, &e.Audio, &e.TextChars, &e.Hits, &created, &lastUsed)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get speech: %w", err)
	}

	now := time.Now()
	if _, err := d.db.Exec(`UPDATE speech_cache SET hits = hits + 1, last_used = ? WHERE key = ?`, now.UnixMilli(), key); err != nil {
		return nil, false, fmt.Errorf("touch speech: %w", err)
	}
	e.Hits++
	e.CreatedAt = time.UnixMilli(created)
	e.LastUsed = now
	return &e, true, nil
}

// PutSpeech stores or replaces a cache entry.
func (d *DB) PutSpeech(e SpeechEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now().UnixMilli()
	_, err := d.db.Exec(`
		INSERT OR REPLACE INTO speech_cache (key, provider, mime_type, audio, text_chars, hits, created_at, last_used)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		e.Key, e.Provider, e.MimeType, e.Audio, e.TextChars, now, now)
	if err != nil {
		return fmt.Errorf("put speech: %w", err)
	}
	return nil
}

// PruneSpeech deletes the least recently used entries beyond max and
// returns how many were removed.
func (d *DB) PruneSpeech(max int) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.db.Exec(`
		DELETE FROM speech_cache WHERE key IN (
			SELECT key FROM speech_cache ORDER BY last_used DESC, created_at DESC LIMIT -1 OFFSET ?
		)`, max)
	if err != nil {
		return 0, fmt.Errorf("prune speech: %w", err)
	}
	return res.RowsAffected()
}

// SpeechStats summarizes the cache.
type SpeechStats struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
	Hits    int64 `json:"hits"`
}

func (d *DB) SpeechStats() (SpeechStats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var s SpeechStats
	err := d.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(LENGTH(audio)), 0), COALESCE(SUM(hits), 0) FROM speech_cache`).
		Scan(&s.Entries, &s.Bytes, &s.Hits)
	if err != nil {
		return s, fmt.Errorf("speech stats: %w", err)
	}
	return s, nil
}
