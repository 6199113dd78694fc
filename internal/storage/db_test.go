package storage

import (
	"bytes"
	"os"
	"testing"
	"time"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesFile(t *testing.T) {
	db := openTest(t)
	if _, err := os.Stat(db.Path()); err != nil {
		t.Fatalf("database file missing: %v", err)
	}
	v, ok, err := db.Meta("schema_version")
	if err != nil || !ok || v != schemaVersion {
		t.Fatalf("schema_version = %q ok=%v err=%v", v, ok, err)
	}
	if _, ok, _ := db.Meta("nope"); ok {
		t.Fatal("unexpected meta key")
	}
}

func TestSpeechKeyDistinguishesFields(t *testing.T) {
	base := SpeechKey("google", "hello", "en-US", "v1", 1.0)
	if base != SpeechKey("google", "hello", "en-US", "v1", 1.0) {
		t.Fatal("key not stable")
	}
	others := []string{
		SpeechKey("gemini", "hello", "en-US", "v1", 1.0),
		SpeechKey("google", "hello!", "en-US", "v1", 1.0),
		SpeechKey("google", "hello", "nl-NL", "v1", 1.0),
		SpeechKey("google", "hello", "en-US", "v2", 1.0),
		SpeechKey("google", "hello", "en-US", "v1", 1.25),
		SpeechKey("google", "hello", "en-USv1", "", 1.0),
	}
	for i, k := range others {
		if k == base {
			t.Fatalf("variant %d collides with base key", i)
		}
	}
}

func TestSpeechRoundTrip(t *testing.T) {
	db := openTest(t)
	key := SpeechKey("google", "hi", "en-US", "v", 1)

	if _, ok, err := db.GetSpeech(key); err != nil || ok {
		t.Fatalf("empty cache hit: ok=%v err=%v", ok, err)
	}

	audio := []byte{0xFF, 0xFB, 0x90, 0x00}
	if err := db.PutSpeech(SpeechEntry{Key: key, Provider: "google", MimeType: "audio/mpeg", Audio: audio, TextChars: 2}); err != nil {
		t.Fatal(err)
	}

	e, ok, err := db.GetSpeech(key)
	if err != nil || !ok {
		t.Fatalf("miss after put: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(e.Audio, audio) || e.MimeType != "audio/mpeg" || e.Provider != "google" || e.TextChars != 2 {
		t.Fatalf("entry = %+v", e)
	}
	if e.Hits != 1 {
		t.Fatalf("hits = %d", e.Hits)
	}

	e, _, _ = db.GetSpeech(key)
	if e.Hits != 2 {
		t.Fatalf("hits after second get = %d", e.Hits)
	}

	stats, err := db.SpeechStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 1 || stats.Bytes != int64(len(audio)) || stats.Hits != 2 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestPruneSpeechKeepsRecent(t *testing.T) {
	db := openTest(t)
	keys := []string{"a", "b", "c", "d"}
	for _, k := range keys {
		if err := db.PutSpeech(SpeechEntry{Key: k, Provider: "p", MimeType: "audio/mpeg", Audio: []byte(k)}); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	// touching "a" makes it the most recently used
	if _, ok, _ := db.GetSpeech("a"); !ok {
		t.Fatal("a missing")
	}

	n, err := db.PruneSpeech(2)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("pruned %d", n)
	}
	for k, want := range map[string]bool{"a": true, "d": true, "b": false, "c": false} {
		if _, ok, _ := db.GetSpeech(k); ok != want {
			t.Fatalf("%s present=%v, want %v", k, ok, want)
		}
	}
}
