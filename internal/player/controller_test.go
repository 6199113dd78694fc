package player

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/petervdpas/avp/internal/avp"
)

type fakeTrack struct {
	dur    float64
	events chan TrackEvent

	mu      sync.Mutex
	pos     float64
	playing bool
	closed  int
	playErr error
}

func (f *fakeTrack) Duration() float64 { return f.dur }
func (f *fakeTrack) Position() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}
func (f *fakeTrack) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playErr != nil {
		return f.playErr
	}
	f.playing = true
	return nil
}
func (f *fakeTrack) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
	return nil
}
func (f *fakeTrack) Seek(pos float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = pos
	return nil
}
func (f *fakeTrack) Events() <-chan TrackEvent { return f.events }
func (f *fakeTrack) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}
func (f *fakeTrack) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeTransport struct {
	mu      sync.Mutex
	dur     float64
	openErr error
	tracks  []*fakeTrack
}

func (t *fakeTransport) Open(audio []byte) (Track, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openErr != nil {
		return nil, t.openErr
	}
	tr := &fakeTrack{dur: t.dur, events: make(chan TrackEvent, 8)}
	t.tracks = append(t.tracks, tr)
	return tr, nil
}

func (t *fakeTransport) track(i int) *fakeTrack {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracks[i]
}

func content(title string) *avp.PackageContent {
	return &avp.PackageContent{
		Manifest: avp.Manifest{
			Title: title,
			Audio: "a.mp3",
			Keyframes: []avp.Keyframe{
				{Time: 10, Type: avp.Show, Target: "fig", Content: avp.ImageContent("fig.png", "")},
				{Time: 50, Type: avp.Hide, Target: "fig"},
			},
		},
		Audio:  []byte("audio"),
		Images: map[string][]byte{"fig.png": []byte("png")},
	}
}

func waitResult(t *testing.T, ch <-chan LoadResult) LoadResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("load did not finish")
	}
	return LoadResult{}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func nextEvent(t *testing.T, ch <-chan Event, want EventType) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("subscription closed before %s", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", want)
		}
	}
}

func TestControllerLifecycle(t *testing.T) {
	tr := &fakeTransport{dur: 100}
	c := New(tr)
	defer c.Close()

	if st := c.State(); st.Phase != PhaseIdle || st.IsPlaying {
		t.Fatalf("initial state = %+v", st)
	}

	events, cancel := c.Subscribe()
	defer cancel()

	res := waitResult(t, c.Load(context.Background(), FromContent(content("Lesson"))))
	if res.Err != nil || res.Superseded {
		t.Fatalf("load result = %+v", res)
	}
	nextEvent(t, events, EventLoading)
	nextEvent(t, events, EventReady)

	st := c.State()
	if st.Phase != PhaseReady || st.IsPlaying || st.CurrentTime != 0 || st.Duration != 100 || st.Title != "Lesson" {
		t.Fatalf("ready state = %+v", st)
	}

	if err := c.Play(); err != nil {
		t.Fatal(err)
	}
	nextEvent(t, events, EventPlay)
	if !c.State().IsPlaying {
		t.Fatal("expected playing")
	}

	if err := c.Seek(150); err != nil {
		t.Fatal(err)
	}
	if got := c.State().CurrentTime; got != 100 {
		t.Fatalf("seek past end clamped to %v, want 100", got)
	}
	if err := c.Seek(-3); err != nil {
		t.Fatal(err)
	}
	if got := c.State().CurrentTime; got != 0 {
		t.Fatalf("negative seek clamped to %v, want 0", got)
	}
	if err := c.Seek(12); err != nil {
		t.Fatal(err)
	}
	if got := tr.track(0).Position(); got != 12 {
		t.Fatalf("transport position = %v", got)
	}
	if kfs := c.ActiveKeyframes(); len(kfs) != 1 || kfs[0].Target != "fig" {
		t.Fatalf("active keyframes at 12s = %+v", kfs)
	}

	if err := c.Pause(); err != nil {
		t.Fatal(err)
	}
	nextEvent(t, events, EventPause)
	st = c.State()
	if st.IsPlaying || st.CurrentTime != 12 {
		t.Fatalf("paused state = %+v", st)
	}
}

func TestControllerNotReady(t *testing.T) {
	c := New(&fakeTransport{dur: 10})
	defer c.Close()

	for name, op := range map[string]func() error{
		"play":  c.Play,
		"pause": c.Pause,
		"seek":  func() error { return c.Seek(1) },
	} {
		if err := op(); !errors.Is(err, ErrNotReady) {
			t.Errorf("%s before load: %v", name, err)
		}
	}
}

func TestControllerLastLoadWins(t *testing.T) {
	tr := &fakeTransport{dur: 30}
	c := New(tr)
	defer c.Close()

	gate := make(chan struct{})
	slow := content("Slow")
	first := c.Load(context.Background(), func(ctx context.Context) (*avp.PackageContent, error) {
		<-gate
		return slow, nil
	})
	second := c.Load(context.Background(), FromContent(content("Fast")))

	r2 := waitResult(t, second)
	if r2.Err != nil || r2.Superseded {
		t.Fatalf("second load = %+v", r2)
	}

	close(gate)
	r1 := waitResult(t, first)
	if !r1.Superseded {
		t.Fatalf("first load should be superseded, got %+v", r1)
	}
	if r1.Generation >= r2.Generation {
		t.Fatalf("generations not increasing: %d then %d", r1.Generation, r2.Generation)
	}
	if slow.Audio != nil {
		t.Fatal("superseded content was not released")
	}
	if st := c.State(); st.Title != "Fast" || st.Phase != PhaseReady {
		t.Fatalf("state after race = %+v", st)
	}
}

func TestControllerReleasesPreviousTrack(t *testing.T) {
	tr := &fakeTransport{dur: 30}
	c := New(tr)

	waitResult(t, c.Load(context.Background(), FromContent(content("One"))))
	first := tr.track(0)
	waitResult(t, c.Load(context.Background(), FromContent(content("Two"))))
	if first.closeCount() != 1 {
		t.Fatalf("first track closed %d times after reload", first.closeCount())
	}

	second := tr.track(1)
	c.Close()
	if second.closeCount() != 1 {
		t.Fatalf("second track closed %d times after Close", second.closeCount())
	}
	if st := c.State(); st.Phase != PhaseIdle {
		t.Fatalf("phase after Close = %s", st.Phase)
	}
	if res := waitResult(t, c.Load(context.Background(), FromContent(content("Late")))); !errors.Is(res.Err, ErrClosed) {
		t.Fatalf("load after Close = %+v", res)
	}
}

func TestControllerLoadFormatError(t *testing.T) {
	c := New(&fakeTransport{dur: 10})
	defer c.Close()
	events, cancel := c.Subscribe()
	defer cancel()

	res := waitResult(t, c.Load(context.Background(), FromBytes([]byte("garbage"))))
	if !avp.IsFormatError(res.Err) {
		t.Fatalf("expected FormatError, got %v", res.Err)
	}
	ev := nextEvent(t, events, EventError)
	if !strings.Contains(ev.Error, "corrupt archive") {
		t.Fatalf("error event = %+v", ev)
	}
	if st := c.State(); st.Phase != PhaseError || st.Error == "" {
		t.Fatalf("state = %+v", st)
	}
	if err := c.Play(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("play in error phase: %v", err)
	}
}

func TestControllerTransportOpenError(t *testing.T) {
	c := New(&fakeTransport{openErr: errors.New("cannot decode")})
	defer c.Close()

	pc := content("Broken audio")
	res := waitResult(t, c.Load(context.Background(), FromContent(pc)))
	var terr *TransportError
	if !errors.As(res.Err, &terr) || terr.Op != "open" {
		t.Fatalf("expected TransportError(open), got %v", res.Err)
	}
	if pc.Audio != nil {
		t.Fatal("content should be released when the transport rejects it")
	}
	if st := c.State(); st.Phase != PhaseError || !strings.Contains(st.Error, "cannot decode") {
		t.Fatalf("state = %+v", st)
	}
}

func TestControllerTrackEvents(t *testing.T) {
	tr := &fakeTransport{dur: 60}
	c := New(tr)
	defer c.Close()
	events, cancel := c.Subscribe()
	defer cancel()

	waitResult(t, c.Load(context.Background(), FromContent(content("Ev"))))
	if err := c.Play(); err != nil {
		t.Fatal(err)
	}
	track := tr.track(0)

	track.events <- TrackEvent{Kind: TrackTime, Position: 12.5}
	ev := nextEvent(t, events, EventTimeUpdate)
	if ev.Time != 12.5 {
		t.Fatalf("timeupdate at %v", ev.Time)
	}
	if got := c.State().CurrentTime; got != 12.5 {
		t.Fatalf("current time = %v", got)
	}

	track.events <- TrackEvent{Kind: TrackEnded}
	nextEvent(t, events, EventPause)
	nextEvent(t, events, EventEnded)
	st := c.State()
	if st.IsPlaying || st.CurrentTime != 60 || st.Phase != PhaseReady {
		t.Fatalf("state after end = %+v", st)
	}

	// playing again from the end restarts
	if err := c.Play(); err != nil {
		t.Fatal(err)
	}
	if got := c.State().CurrentTime; got != 0 {
		t.Fatalf("replay started at %v", got)
	}

	track.events <- TrackEvent{Kind: TrackFailed, Err: errors.New("device lost")}
	ev = nextEvent(t, events, EventError)
	if !strings.Contains(ev.Error, "device lost") {
		t.Fatalf("error event = %+v", ev)
	}
	waitFor(t, "track release", func() bool { return track.closeCount() == 1 })
	if st := c.State(); st.Phase != PhaseError || st.IsPlaying {
		t.Fatalf("state after failure = %+v", st)
	}
}

func TestControllerIgnoresStaleTrackEvents(t *testing.T) {
	tr := &fakeTransport{dur: 60}
	c := New(tr)
	defer c.Close()

	waitResult(t, c.Load(context.Background(), FromContent(content("Old"))))
	old := tr.track(0)
	waitResult(t, c.Load(context.Background(), FromContent(content("New"))))

	select {
	case old.events <- TrackEvent{Kind: TrackTime, Position: 42}:
	default:
	}
	time.Sleep(20 * time.Millisecond)
	if got := c.State().CurrentTime; got != 0 {
		t.Fatalf("stale track moved current time to %v", got)
	}
}

func TestControllerPlayFailure(t *testing.T) {
	tr := &fakeTransport{dur: 60}
	c := New(tr)
	defer c.Close()

	waitResult(t, c.Load(context.Background(), FromContent(content("X"))))
	tr.track(0).playErr = errors.New("busy")

	err := c.Play()
	var terr *TransportError
	if !errors.As(err, &terr) || terr.Op != "play" {
		t.Fatalf("expected TransportError(play), got %v", err)
	}
	if c.State().Phase != PhaseError {
		t.Fatal("expected error phase")
	}
}

func TestControllerAssets(t *testing.T) {
	c := New(&fakeTransport{dur: 5})
	defer c.Close()

	if _, _, ok := c.Audio(); ok {
		t.Fatal("audio available before load")
	}
	pc := content("Assets")
	text := "words"
	pc.Transcript = &text
	waitResult(t, c.Load(context.Background(), FromContent(pc)))

	if b, name, ok := c.Audio(); !ok || string(b) != "audio" || name != "a.mp3" {
		t.Fatalf("audio = %q %q %v", b, name, ok)
	}
	if _, _, ok := c.Poster(); ok {
		t.Fatal("no poster expected")
	}
	if b, ok := c.Image("fig.png"); !ok || string(b) != "png" {
		t.Fatal("image missing")
	}
	if s, ok := c.Transcript(); !ok || s != "words" {
		t.Fatal("transcript missing")
	}
	if m, ok := c.Manifest(); !ok || m.Title != "Assets" {
		t.Fatal("manifest missing")
	}
}
