package player

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/petervdpas/avp/internal/avp"
	"github.com/petervdpas/avp/internal/sample"
)

func TestFormatTime(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0:00"},
		{5, "0:05"},
		{59.9, "0:59"},
		{75, "1:15"},
		{600, "10:00"},
		{3725, "62:05"},
		{-4, "0:00"},
		{math.NaN(), "0:00"},
	}
	for _, tc := range cases {
		if got := FormatTime(tc.in); got != tc.want {
			t.Errorf("FormatTime(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestProbeMP3(t *testing.T) {
	audio := sample.SilentMP3(2 * time.Second)

	info, err := probeMP3(audio)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if info.Bitrate != 128000 || info.SampleRate != 44100 {
		t.Fatalf("info = %+v", info)
	}
	if want := sample.SilentMP3Duration(audio); math.Abs(info.Duration-want) > 1e-9 {
		t.Fatalf("duration = %v, want %v", info.Duration, want)
	}

	// ID3v2 tag of 20 bytes in front of the audio
	tag := append([]byte("ID3\x04\x00\x00\x00\x00\x00\x14"), make([]byte, 20)...)
	info, err = probeMP3(append(tag, audio...))
	if err != nil {
		t.Fatalf("probe with ID3: %v", err)
	}
	if info.DataOffset != 30 {
		t.Fatalf("data offset = %d, want 30", info.DataOffset)
	}

	for name, bad := range map[string][]byte{
		"empty":     nil,
		"text":      []byte("this is not audio at all"),
		"id3 only":  []byte("ID3\x04\x00\x00\x00\x00\x7f\x7f"),
		"bad index": {0xFF, 0xFB, 0xF0, 0xC4, 0, 0, 0, 0},
	} {
		if _, err := probeMP3(bad); !errors.Is(err, ErrNoFrame) {
			t.Errorf("%s: expected ErrNoFrame, got %v", name, err)
		}
	}
}

func TestClockTransportPlaysToEnd(t *testing.T) {
	audio := sample.SilentMP3(150 * time.Millisecond)
	c := New(NewClockTransport(10 * time.Millisecond))
	defer c.Close()
	events, cancel := c.Subscribe()
	defer cancel()

	pc := &avp.PackageContent{Manifest: avp.Manifest{Title: "Clock", Audio: "a.mp3"}, Audio: audio}
	res := waitResult(t, c.Load(context.Background(), FromContent(pc)))
	if res.Err != nil {
		t.Fatalf("load: %v", res.Err)
	}
	dur := c.State().Duration
	if dur <= 0.1 || dur > 0.3 {
		t.Fatalf("estimated duration = %v", dur)
	}

	if err := c.Play(); err != nil {
		t.Fatal(err)
	}
	nextEvent(t, events, EventTimeUpdate)
	nextEvent(t, events, EventEnded)

	st := c.State()
	if st.IsPlaying || st.CurrentTime != dur {
		t.Fatalf("state after end = %+v", st)
	}
}

func TestClockTransportRejectsUnknownAudio(t *testing.T) {
	c := New(NewClockTransport(10 * time.Millisecond))
	defer c.Close()

	for name, tc := range map[string]struct {
		audio []byte
		want  error
	}{
		"text":           {[]byte("this is not audio at all"), ErrNoFrame},
		"truncated wave": {[]byte("RIFF....WAVEfmt "), ErrBadWAV},
	} {
		pc := &avp.PackageContent{Manifest: avp.Manifest{Audio: "a.mp3"}, Audio: tc.audio}
		res := waitResult(t, c.Load(context.Background(), FromContent(pc)))
		var terr *TransportError
		if !errors.As(res.Err, &terr) || !errors.Is(res.Err, tc.want) {
			t.Fatalf("%s: expected TransportError wrapping %v, got %v", name, tc.want, res.Err)
		}
	}
}

// pcmWAV is a mono 16-bit RIFF/WAVE stream of silence, laid out the way
// the Gemini provider wraps its PCM output.
func pcmWAV(secs float64, rate int) []byte {
	pcm := make([]byte, int(secs*float64(rate))*2)
	var b bytes.Buffer
	le := binary.LittleEndian
	b.WriteString("RIFF")
	_ = binary.Write(&b, le, uint32(36+len(pcm)))
	b.WriteString("WAVEfmt ")
	_ = binary.Write(&b, le, uint32(16))
	_ = binary.Write(&b, le, uint16(1))
	_ = binary.Write(&b, le, uint16(1))
	_ = binary.Write(&b, le, uint32(rate))
	_ = binary.Write(&b, le, uint32(rate*2))
	_ = binary.Write(&b, le, uint16(2))
	_ = binary.Write(&b, le, uint16(16))
	b.WriteString("data")
	_ = binary.Write(&b, le, uint32(len(pcm)))
	b.Write(pcm)
	return b.Bytes()
}

func TestProbeWAV(t *testing.T) {
	info, err := probeAudio(pcmWAV(2, 24000))
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if info.Duration != 2 || info.SampleRate != 24000 || info.Bitrate != 384000 || info.DataOffset != 44 {
		t.Fatalf("info = %+v", info)
	}

	// a LIST chunk ahead of fmt, and a data size left unset by a streaming writer
	wav := pcmWAV(1, 8000)
	list := append([]byte("LIST\x05\x00\x00\x00abcde"), 0)
	wav = append(wav[:12:12], append(list, wav[12:]...)...)
	binary.LittleEndian.PutUint32(wav[len(wav)-16000-4:], 0xFFFFFFFF)
	info, err = probeAudio(wav)
	if err != nil {
		t.Fatalf("probe with LIST: %v", err)
	}
	if info.Duration != 1 || info.DataOffset != 12+14+24+8 {
		t.Fatalf("info with LIST = %+v", info)
	}

	noData := pcmWAV(1, 8000)[:36]
	if _, err := probeAudio(noData); !errors.Is(err, ErrBadWAV) {
		t.Fatalf("missing data chunk: %v", err)
	}
}

func TestControllerLoadsWAVPackage(t *testing.T) {
	dur := 2.0
	pkg := &avp.Package{
		Manifest: avp.Manifest{
			Version:  avp.CurrentVersion,
			Title:    "Narrated",
			Duration: &dur,
			Audio:    "narration.wav",
			Keyframes: []avp.Keyframe{
				{Time: 0, Type: avp.Show, Target: "caption", Content: avp.TextContent("Hello")},
				{Time: 1.5, Type: avp.Hide, Target: "caption"},
			},
		},
		Assets: map[string][]byte{"narration.wav": pcmWAV(dur, 24000)},
	}
	data, err := pkg.Bytes(avp.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}

	c := New(NewClockTransport(10 * time.Millisecond))
	defer c.Close()
	res := waitResult(t, c.Load(context.Background(), FromBytes(data)))
	if res.Err != nil {
		t.Fatalf("load: %v", res.Err)
	}
	st := c.State()
	if st.Phase != PhaseReady || st.Duration != dur {
		t.Fatalf("state = %+v", st)
	}
	if err := c.Seek(1.6); err != nil {
		t.Fatal(err)
	}
	if got := c.ActiveKeyframes(); len(got) != 0 {
		t.Fatalf("active at 1.6 = %+v", got)
	}
}

func TestClockTrackPauseSeek(t *testing.T) {
	now := time.Unix(1000, 0)
	tr := &ClockTransport{Tick: time.Hour, Now: func() time.Time { return now }}
	track, err := tr.Open(sample.SilentMP3(10 * time.Second))
	if err != nil {
		t.Fatal(err)
	}
	defer track.Close()

	if err := track.Play(); err != nil {
		t.Fatal(err)
	}
	now = now.Add(1500 * time.Millisecond)
	if got := track.Position(); math.Abs(got-1.5) > 1e-9 {
		t.Fatalf("position after 1.5s = %v", got)
	}
	if err := track.Pause(); err != nil {
		t.Fatal(err)
	}
	now = now.Add(5 * time.Second)
	if got := track.Position(); math.Abs(got-1.5) > 1e-9 {
		t.Fatalf("position moved while paused: %v", got)
	}
	if err := track.Seek(999); err != nil {
		t.Fatal(err)
	}
	if got := track.Position(); got != track.Duration() {
		t.Fatalf("seek past end = %v, duration %v", got, track.Duration())
	}
	if err := track.Close(); err != nil {
		t.Fatal(err)
	}
}
