package player

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/petervdpas/avp/internal/avp"
)

var log = logging.Logger("avp/player")

// Controller manages a single lesson at a time.
type Controller struct {
	transport Transport

	mu       sync.Mutex
	phase    Phase
	gen      uint64 // incremented on every Load and on Close
	loadID   string
	content  *avp.PackageContent
	track    Track
	stopCh   chan struct{} // closed to stop the current track's event pump
	playing  bool
	position float64
	duration float64
	errMsg   string
	closed   bool

	subMu sync.RWMutex
	subs  map[chan Event]struct{}
}

// New creates a controller that plays audio through t.
func New(t Transport) *Controller {
	return &Controller{
		transport: t,
		phase:     PhaseIdle,
		subs:      make(map[chan Event]struct{}),
	}
}

// Load starts loading a package and returns immediately. The returned
// channel yields exactly one result. If another Load starts before this
// one finishes, this attempt's content is discarded and reported as
// Superseded.
func (c *Controller) Load(ctx context.Context, src Source) <-chan LoadResult {
	done := make(chan LoadResult, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		done <- LoadResult{Err: ErrClosed}
		return done
	}
	c.gen++
	gen := c.gen
	c.loadID = uuid.NewString()
	loadID := c.loadID

	c.releaseLocked()
	c.phase = PhaseLoading
	c.playing = false
	c.position = 0
	c.duration = 0
	c.errMsg = ""
	c.emitLocked(EventLoading)
	c.mu.Unlock()

	log.Debugw("load started", "generation", gen, "load_id", loadID)

	go func() {
		pc, err := src(ctx)
		done <- c.finishLoad(gen, loadID, pc, err)
	}()
	return done
}

func (c *Controller) finishLoad(gen uint64, loadID string, pc *avp.PackageContent, err error) LoadResult {
	res := LoadResult{Generation: gen, LoadID: loadID}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.gen {
		if pc != nil {
			pc.Release()
		}
		res.Superseded = true
		log.Debugw("discarded stale load", "generation", gen, "current", c.gen)
		return res
	}

	if err != nil {
		c.failLocked(err)
		res.Err = err
		return res
	}

	track, err := c.transport.Open(pc.Audio)
	if err != nil {
		pc.Release()
		terr := &TransportError{Op: "open", Err: err}
		c.failLocked(terr)
		res.Err = terr
		return res
	}

	c.content = pc
	c.track = track
	c.duration = track.Duration()
	c.position = 0
	c.playing = false
	c.phase = PhaseReady
	c.stopCh = make(chan struct{})
	go c.pump(gen, track, c.stopCh)

	for _, w := range pc.Warnings {
		log.Warnf("package %q: %s", pc.Manifest.Title, w)
	}
	log.Infow("package ready", "title", pc.Manifest.Title, "duration", c.duration, "images", len(pc.Images))
	c.emitLocked(EventReady)
	return res
}

// Play starts or resumes playback. Playing from the end restarts at 0.
func (c *Controller) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseReady {
		return ErrNotReady
	}
	if c.playing {
		return nil
	}
	if c.duration > 0 && c.position >= c.duration {
		if err := c.track.Seek(0); err != nil {
			return c.transportFailLocked("seek", err)
		}
		c.position = 0
	}
	if err := c.track.Play(); err != nil {
		return c.transportFailLocked("play", err)
	}
	c.playing = true
	log.Infof("play from %s", FormatTime(c.position))
	c.emitLocked(EventPlay)
	return nil
}

// Pause stops playback at the current position.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseReady {
		return ErrNotReady
	}
	if !c.playing {
		return nil
	}
	if err := c.track.Pause(); err != nil {
		return c.transportFailLocked("pause", err)
	}
	c.playing = false
	c.position = c.clamp(c.track.Position())
	log.Infof("paused at %s", FormatTime(c.position))
	c.emitLocked(EventPause)
	return nil
}

// Seek moves to t seconds, clamped to [0, duration]. CurrentTime reflects
// the target immediately; the transport's next report is authoritative.
func (c *Controller) Seek(t float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseReady {
		return ErrNotReady
	}
	t = c.clamp(t)
	if err := c.track.Seek(t); err != nil {
		return c.transportFailLocked("seek", err)
	}
	c.position = t
	log.Debugf("seek to %s (playing=%v)", FormatTime(t), c.playing)
	c.emitLocked(EventTimeUpdate)
	return nil
}

// State returns a snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		Phase:       c.phase,
		IsPlaying:   c.playing,
		CurrentTime: c.position,
		Duration:    c.duration,
		Error:       c.errMsg,
		Generation:  c.gen,
		LoadID:      c.loadID,
	}
	if c.content != nil {
		st.Title = c.content.Manifest.Title
	}
	return st
}

// ActiveKeyframes returns the show keyframes in effect at the current time.
func (c *Controller) ActiveKeyframes() []avp.Keyframe {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseReady || c.content == nil {
		return nil
	}
	return avp.ActiveAt(c.content.Manifest.Keyframes, c.position)
}

// Subscribe returns a channel receiving playback events. Events are dropped
// for subscribers that fall behind.
func (c *Controller) Subscribe() (ch <-chan Event, cancel func()) {
	sub := make(chan Event, 64)

	c.subMu.Lock()
	if c.subs == nil {
		c.subMu.Unlock()
		close(sub)
		return sub, func() {}
	}
	c.subs[sub] = struct{}{}
	c.subMu.Unlock()

	cancel = func() {
		c.subMu.Lock()
		if _, ok := c.subs[sub]; ok {
			delete(c.subs, sub)
			close(sub)
		}
		c.subMu.Unlock()
	}
	return sub, cancel
}

// Close releases the transport handle and content and ends all
// subscriptions. Pending loads finish as Superseded.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	c.releaseLocked()
	c.phase = PhaseIdle
	c.playing = false
	c.mu.Unlock()

	c.subMu.Lock()
	for ch := range c.subs {
		close(ch)
	}
	c.subs = nil
	c.subMu.Unlock()
}

// pump forwards transport events for one track until stop is closed.
func (c *Controller) pump(gen uint64, track Track, stop <-chan struct{}) {
	events := track.Events()
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handleTrackEvent(gen, track, ev)
		}
	}
}

func (c *Controller) handleTrackEvent(gen uint64, track Track, ev TrackEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.track != track {
		return
	}

	switch ev.Kind {
	case TrackTime:
		c.position = c.clamp(ev.Position)
		c.emitLocked(EventTimeUpdate)

	case TrackEnded:
		wasPlaying := c.playing
		c.playing = false
		c.position = c.duration
		if wasPlaying {
			c.emitLocked(EventPause)
		}
		log.Infof("track ended at %s", FormatTime(c.duration))
		c.emitLocked(EventEnded)

	case TrackFailed:
		err := ev.Err
		if err == nil {
			err = errors.New("unknown failure")
		}
		c.transportFailLocked("playback", err)
	}
}

func (c *Controller) transportFailLocked(op string, err error) error {
	terr := &TransportError{Op: op, Err: err}
	c.releaseLocked()
	c.failLocked(terr)
	return terr
}

func (c *Controller) failLocked(err error) {
	c.phase = PhaseError
	c.playing = false
	c.errMsg = err.Error()
	log.Errorw("player error", "generation", c.gen, "err", err)
	c.emitLocked(EventError)
}

// releaseLocked drops the transport handle and the content, if any.
func (c *Controller) releaseLocked() {
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
	if c.track != nil {
		if err := c.track.Close(); err != nil {
			log.Warnf("close track: %v", err)
		}
		c.track = nil
	}
	if c.content != nil {
		c.content.Release()
		c.content = nil
	}
}

func (c *Controller) clamp(t float64) float64 {
	if math.IsNaN(t) || t < 0 {
		return 0
	}
	if t > c.duration {
		return c.duration
	}
	return t
}

// emitLocked sends an event describing the current state. Caller holds mu.
func (c *Controller) emitLocked(typ EventType) {
	ev := Event{
		Type:       typ,
		Time:       c.position,
		Duration:   c.duration,
		Generation: c.gen,
		LoadID:     c.loadID,
		At:         time.Now().UnixMilli(),
	}
	if typ == EventError {
		ev.Error = c.errMsg
	}

	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
