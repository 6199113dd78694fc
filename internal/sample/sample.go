// Package sample builds a small but complete test lesson: silent audio, a
// drawn poster, a transcript and two overlay images driven by keyframes.
package sample

import (
	"bytes"
	"fmt"
	"image/color"
	"image/jpeg"
	"time"

	"github.com/fogleman/gg"

	"github.com/petervdpas/avp/internal/avp"
)

const (
	DefaultTitle    = "Test Lesson"
	DefaultDuration = 10 * time.Second
	FileName        = "test-lesson.avp"
)

type Options struct {
	Title    string
	Duration time.Duration
	Width    int
	Height   int
}

func (o Options) withDefaults() Options {
	if o.Title == "" {
		o.Title = DefaultTitle
	}
	if o.Duration <= 0 {
		o.Duration = DefaultDuration
	}
	if o.Width <= 0 {
		o.Width = 640
	}
	if o.Height <= 0 {
		o.Height = 360
	}
	return o
}

// Build assembles the sample lesson without encoding it.
func Build(opts Options) (*avp.Package, error) {
	opts = opts.withDefaults()

	poster, err := drawPoster(opts)
	if err != nil {
		return nil, fmt.Errorf("poster: %w", err)
	}
	first, err := drawSlide(opts.Width/2, opts.Height/2, "1", color.RGBA{0x25, 0x63, 0xeb, 0xff})
	if err != nil {
		return nil, fmt.Errorf("slide 1: %w", err)
	}
	second, err := drawSlide(opts.Width/2, opts.Height/2, "2", color.RGBA{0x16, 0xa3, 0x4a, 0xff})
	if err != nil {
		return nil, fmt.Errorf("slide 2: %w", err)
	}

	audio := SilentMP3(opts.Duration)
	secs := opts.Duration.Seconds()
	dur := SilentMP3Duration(audio)
	at := func(frac float64) float64 { return float64(int(secs*frac*10)) / 10 }

	m := avp.Manifest{
		Version:    avp.CurrentVersion,
		Title:      opts.Title,
		Duration:   &dur,
		Audio:      "audio.mp3",
		Poster:     "poster.jpg",
		Transcript: "transcript.txt",
		Keyframes: []avp.Keyframe{
			{Time: 0, Type: avp.Show, Target: "title", Content: avp.TextContent(opts.Title)},
			{Time: at(0.2), Type: avp.Show, Target: "slide", Content: avp.ImageContent("images/slide-1.png", "First slide")},
			{Time: at(0.3), Type: avp.Hide, Target: "title"},
			{Time: at(0.5), Type: avp.Show, Target: "slide", Content: avp.ImageContent("images/slide-2.png", "Second slide")},
			{Time: at(0.6), Type: avp.Show, Target: "caption", Content: avp.TextContent("Halfway there")},
			{Time: at(0.9), Type: avp.Hide, Target: "caption"},
			{Time: at(0.9), Type: avp.Hide, Target: "slide"},
		},
	}

	transcript := fmt.Sprintf("# %s\n\nThis is a generated test lesson.\n\n"+
		"- **Slide 1** appears at %.1fs\n- **Slide 2** replaces it at %.1fs\n\n"+
		"The audio track is %s of silence.\n", opts.Title, at(0.2), at(0.5), opts.Duration)

	return &avp.Package{
		Manifest: m,
		Assets: map[string][]byte{
			"audio.mp3":          audio,
			"poster.jpg":         poster,
			"transcript.txt":     []byte(transcript),
			"images/slide-1.png": first,
			"images/slide-2.png": second,
		},
	}, nil
}

// Generate encodes the sample lesson as an .avp archive.
func Generate(opts Options) ([]byte, error) {
	pkg, err := Build(opts)
	if err != nil {
		return nil, err
	}
	lim := avp.DefaultLimits()
	if d := opts.withDefaults().Duration.Seconds(); d > lim.MaxDurationSeconds {
		lim.MaxDurationSeconds = d + 1
	}
	return pkg.Bytes(lim)
}

func drawPoster(opts Options) ([]byte, error) {
	w, h := float64(opts.Width), float64(opts.Height)
	dc := gg.NewContext(opts.Width, opts.Height)

	grad := gg.NewLinearGradient(0, 0, w, h)
	grad.AddColorStop(0, color.RGBA{0x1e, 0x3a, 0x8a, 0xff})
	grad.AddColorStop(1, color.RGBA{0x0f, 0x17, 0x2a, 0xff})
	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, 0, w, h)
	dc.Fill()

	// play button
	dc.SetColor(color.RGBA{0xff, 0xff, 0xff, 0xcc})
	dc.DrawCircle(w/2, h/2, h/6)
	dc.Fill()
	dc.SetColor(color.RGBA{0x1e, 0x3a, 0x8a, 0xff})
	r := h / 14
	dc.MoveTo(w/2-r*0.6, h/2-r)
	dc.LineTo(w/2-r*0.6, h/2+r)
	dc.LineTo(w/2+r, h/2)
	dc.ClosePath()
	dc.Fill()

	dc.SetColor(color.White)
	dc.DrawStringAnchored(opts.Title, w/2, h*0.82, 0.5, 0.5)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dc.Image(), &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawSlide(width, height int, label string, bg color.Color) ([]byte, error) {
	w, h := float64(width), float64(height)
	dc := gg.NewContext(width, height)
	dc.SetColor(bg)
	dc.DrawRoundedRectangle(0, 0, w, h, h/12)
	dc.Fill()

	dc.SetColor(color.White)
	dc.SetLineWidth(4)
	dc.DrawRoundedRectangle(8, 8, w-16, h-16, h/16)
	dc.Stroke()
	dc.DrawStringAnchored("Slide "+label, w/2, h/2, 0.5, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
