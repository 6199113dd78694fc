package sample

import (
	"bytes"
	"context"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"github.com/petervdpas/avp/internal/avp"
)

func TestGenerateExtracts(t *testing.T) {
	data, err := Generate(Options{})
	if err != nil {
		t.Fatal(err)
	}

	pc, err := avp.Extract(context.Background(), data, avp.WithStrictAssets(true))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if pc.Manifest.Title != DefaultTitle {
		t.Fatalf("title = %q", pc.Manifest.Title)
	}
	if len(pc.Warnings) != 0 {
		t.Fatalf("warnings: %v", pc.Warnings)
	}
	if len(pc.Images) != 2 {
		t.Fatalf("images = %d", len(pc.Images))
	}
	if pc.Transcript == nil || !bytes.Contains([]byte(*pc.Transcript), []byte("Test Lesson")) {
		t.Fatal("transcript missing title")
	}
	if _, err := jpeg.Decode(bytes.NewReader(pc.Poster)); err != nil {
		t.Fatalf("poster is not a jpeg: %v", err)
	}
	for src, img := range pc.Images {
		if _, err := png.Decode(bytes.NewReader(img)); err != nil {
			t.Fatalf("%s is not a png: %v", src, err)
		}
	}
	if err := avp.Validate(pc.Manifest, avp.DefaultLimits()); err != nil {
		t.Fatalf("generated manifest invalid: %v", err)
	}
}

func TestBuildTimeline(t *testing.T) {
	pkg, err := Build(Options{Title: "Timeline", Duration: 20 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	kfs := pkg.Manifest.Keyframes

	active := avp.ActiveAt(kfs, 11)
	if len(active) != 1 || active[0].Target != "slide" || active[0].ImageSrc() != "images/slide-2.png" {
		t.Fatalf("active at 11s = %+v", active)
	}
	if got := avp.ActiveAt(kfs, 19); len(got) != 0 {
		t.Fatalf("active at 19s = %+v", got)
	}
	if d := *pkg.Manifest.Duration; d < 19.9 || d > 20.1 {
		t.Fatalf("duration = %f", d)
	}
}

func TestSilentMP3Length(t *testing.T) {
	b := SilentMP3(time.Second)
	if len(b)%silentFrameSize != 0 {
		t.Fatalf("partial frame: %d bytes", len(b))
	}
	if d := SilentMP3Duration(b); d < 1 || d > 1.05 {
		t.Fatalf("duration = %f", d)
	}
}
