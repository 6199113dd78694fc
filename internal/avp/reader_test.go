package avp

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func zipOf(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range entries {
		fw, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

const fullManifest = `{
  "version": "1.0",
  "title": "Photosynthesis",
  "duration": 42.5,
  "audio": "audio/narration.mp3",
  "poster": "poster.jpg",
  "transcript": "transcript.txt",
  "keyframes": [
    {"time": 2, "type": "show", "target": "diagram", "content": {"src": "images/leaf.png", "alt": "A leaf"}},
    {"time": 8, "type": "hide", "target": "diagram", "content": {"src": "images/hidden.png"}},
    {"time": 9, "type": "show", "target": "caption", "content": "Light in, sugar out"},
    {"time": 12, "type": "show", "target": "diagram", "content": {"src": "images/leaf.png", "alt": "Again"}}
  ]
}`

func TestExtractFullPackage(t *testing.T) {
	data := zipOf(t, map[string]string{
		"manifest.json":       fullManifest,
		"audio/narration.mp3": "MP3DATA",
		"poster.jpg":          "JPEG",
		"transcript.txt":      "Plants make sugar.",
		"images/leaf.png":     "PNG",
		"images/hidden.png":   "HIDDEN",
	})

	pc, err := Extract(context.Background(), data)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if pc.Manifest.Title != "Photosynthesis" {
		t.Fatalf("title = %q", pc.Manifest.Title)
	}
	if pc.Manifest.Duration == nil || *pc.Manifest.Duration != 42.5 {
		t.Fatalf("duration = %v", pc.Manifest.Duration)
	}
	if string(pc.Audio) != "MP3DATA" {
		t.Fatalf("audio = %q", pc.Audio)
	}
	if string(pc.Poster) != "JPEG" {
		t.Fatalf("poster = %q", pc.Poster)
	}
	if pc.Transcript == nil || *pc.Transcript != "Plants make sugar." {
		t.Fatalf("transcript = %v", pc.Transcript)
	}
	if len(pc.Images) != 1 {
		t.Fatalf("expected 1 image (hide keyframes and duplicates skipped), got %d", len(pc.Images))
	}
	if b, ok := pc.Image("images/leaf.png"); !ok || string(b) != "PNG" {
		t.Fatalf("leaf image = %q %v", b, ok)
	}
	if len(pc.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", pc.Warnings)
	}
}

func TestExtractFormatErrors(t *testing.T) {
	cases := []struct {
		name   string
		data   []byte
		reason error
		want   string
	}{
		{
			name:   "not a zip",
			data:   []byte("definitely not an archive"),
			reason: ErrCorruptArchive,
			want:   "corrupt archive",
		},
		{
			name:   "empty input",
			data:   nil,
			reason: ErrCorruptArchive,
			want:   "corrupt archive",
		},
		{
			name:   "no manifest",
			data:   zipOf(t, map[string]string{"audio.mp3": "x"}),
			reason: ErrMissingManifest,
			want:   "missing manifest",
		},
		{
			name:   "manifest not json",
			data:   zipOf(t, map[string]string{"manifest.json": "{nope", "audio.mp3": "x"}),
			reason: ErrMalformedManifest,
			want:   "malformed manifest",
		},
		{
			name:   "audio absent",
			data:   zipOf(t, map[string]string{"manifest.json": `{"version":"1.0","title":"T","audio":"narration.mp3"}`}),
			reason: ErrMissingAudio,
			want:   "missing audio entry: narration.mp3",
		},
		{
			name:   "audio field empty",
			data:   zipOf(t, map[string]string{"manifest.json": `{"version":"1.0","title":"T"}`}),
			reason: ErrMissingAudio,
			want:   "missing audio entry: ",
		},
		{
			name:   "audio escapes",
			data:   zipOf(t, map[string]string{"manifest.json": `{"title":"T","audio":"../secret.mp3"}`}),
			reason: ErrUnsafePath,
			want:   "unsafe entry path: ../secret.mp3",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pc, err := Extract(context.Background(), tc.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if pc != nil {
				t.Fatal("expected no partial content on error")
			}
			if !errors.Is(err, tc.reason) {
				t.Fatalf("errors.Is(%v, %v) = false", err, tc.reason)
			}
			if !IsFormatError(err) {
				t.Fatalf("expected FormatError, got %T", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("message %q does not contain %q", err.Error(), tc.want)
			}
		})
	}
}

func TestExtractSoftMisses(t *testing.T) {
	data := zipOf(t, map[string]string{
		"manifest.json": `{
			"title": "Sparse",
			"audio": "a.mp3",
			"poster": "missing.jpg",
			"transcript": "missing.txt",
			"keyframes": [
				{"time": 1, "type": "show", "target": "x", "content": {"src": "images/gone.png"}},
				{"time": 2, "type": "show", "target": "y", "content": {"src": "../../etc/passwd"}}
			]
		}`,
		"a.mp3": "audio",
	})

	pc, err := Extract(context.Background(), data)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if pc.Poster != nil {
		t.Fatal("poster should be unset")
	}
	if pc.Transcript != nil {
		t.Fatal("transcript should be unset")
	}
	if len(pc.Images) != 0 {
		t.Fatalf("images = %v", pc.Images)
	}
	if len(pc.Warnings) != 4 {
		t.Fatalf("expected 4 warnings, got %v", pc.Warnings)
	}
	fields := map[string]bool{}
	for _, w := range pc.Warnings {
		fields[w.Field] = true
	}
	for _, f := range []string{"poster", "transcript", "image"} {
		if !fields[f] {
			t.Fatalf("no warning for %s", f)
		}
	}
}

func TestExtractStrictAssets(t *testing.T) {
	data := zipOf(t, map[string]string{
		"manifest.json": `{"title":"T","audio":"a.mp3","poster":"p.jpg"}`,
		"a.mp3":         "audio",
	})

	_, err := Extract(context.Background(), data, WithStrictAssets(true))
	if !errors.Is(err, ErrMissingAsset) {
		t.Fatalf("expected ErrMissingAsset, got %v", err)
	}
	if !strings.Contains(err.Error(), "p.jpg") {
		t.Fatalf("message should name the path: %v", err)
	}

	if _, err := Extract(context.Background(), data); err != nil {
		t.Fatalf("lenient extract should succeed: %v", err)
	}
}

func TestExtractSizeLimits(t *testing.T) {
	data := zipOf(t, map[string]string{
		"manifest.json": `{"title":"T","audio":"a.mp3"}`,
		"a.mp3":         strings.Repeat("x", 4096),
	})

	if _, err := Extract(context.Background(), data, WithMaxSize(16)); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge for archive, got %v", err)
	}
	if _, err := Extract(context.Background(), data, WithMaxEntrySize(1024)); !errors.Is(err, ErrCorruptArchive) {
		t.Fatalf("expected oversized audio entry to fail, got %v", err)
	}
}

func TestExtractCanceled(t *testing.T) {
	data := zipOf(t, map[string]string{
		"manifest.json": `{"title":"T","audio":"a.mp3"}`,
		"a.mp3":         "audio",
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Extract(ctx, data); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type countingArchive struct {
	Archive
	reads map[string]int
}

func (c *countingArchive) ReadEntry(name string) ([]byte, error) {
	c.reads[name]++
	return c.Archive.ReadEntry(name)
}

func TestExtractArchiveReadsEachImageOnce(t *testing.T) {
	inner, err := OpenZip(zipOf(t, map[string]string{
		"manifest.json":       fullManifest,
		"audio/narration.mp3": "MP3",
		"images/leaf.png":     "PNG",
	}))
	if err != nil {
		t.Fatal(err)
	}
	ca := &countingArchive{Archive: inner, reads: map[string]int{}}

	// one worker: countingArchive is not safe for concurrent use
	pc, err := ExtractArchive(context.Background(), ca, WithWorkers(1))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if n := ca.reads["images/leaf.png"]; n != 1 {
		t.Fatalf("leaf.png read %d times, want 1", n)
	}
	if ca.reads["images/hidden.png"] != 0 {
		t.Fatal("hide keyframe image must not be fetched")
	}
	if len(pc.Warnings) != 2 {
		t.Fatalf("expected poster and transcript warnings, got %v", pc.Warnings)
	}
}

func TestReadManifest(t *testing.T) {
	m, err := ReadManifest(zipOf(t, map[string]string{"manifest.json": "\xEF\xBB\xBF" + fullManifest}))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if len(m.Keyframes) != 4 {
		t.Fatalf("keyframes = %d", len(m.Keyframes))
	}
}

func TestReleaseDropsBlobs(t *testing.T) {
	s := "text"
	pc := &PackageContent{
		Manifest:   Manifest{Title: "T"},
		Audio:      []byte("a"),
		Poster:     []byte("p"),
		Images:     map[string][]byte{"i": []byte("i")},
		Transcript: &s,
	}
	if pc.Size() != 7 {
		t.Fatalf("size = %d", pc.Size())
	}
	pc.Release()
	if pc.Audio != nil || pc.Poster != nil || pc.Images != nil || pc.Transcript != nil {
		t.Fatal("blobs still referenced after Release")
	}
	if pc.Manifest.Title != "T" {
		t.Fatal("manifest should survive Release")
	}
}

func TestSafeEntryPath(t *testing.T) {
	ok := []string{"a.mp3", "audio/a.mp3", "images/x..y.png", "./a.mp3"}
	bad := []string{"", "../a.mp3", "images/../../a", "/etc/passwd", `images\a.png`, "C:/a.mp3", ".."}
	for _, p := range ok {
		if !SafeEntryPath(p) {
			t.Errorf("SafeEntryPath(%q) = false", p)
		}
	}
	for _, p := range bad {
		if SafeEntryPath(p) {
			t.Errorf("SafeEntryPath(%q) = true", p)
		}
	}
}
