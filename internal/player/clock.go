package player

import (
	"sync"
	"time"
)

// ClockTransport is a software transport: it validates MP3 or WAVE audio,
// estimates its duration from the header and advances the position by wall
// clock. Browsers fetch the actual audio bytes over HTTP and follow the
// reported position.
type ClockTransport struct {
	Tick time.Duration
	Now  func() time.Time
}

// NewClockTransport reports the position every tick.
func NewClockTransport(tick time.Duration) *ClockTransport {
	if tick <= 0 {
		tick = 250 * time.Millisecond
	}
	return &ClockTransport{Tick: tick, Now: time.Now}
}

func (t *ClockTransport) Open(audio []byte) (Track, error) {
	info, err := probeAudio(audio)
	if err != nil {
		return nil, err
	}
	now := t.Now
	if now == nil {
		now = time.Now
	}
	ct := &clockTrack{
		info:      *info,
		now:       now,
		updatedAt: now(),
		events:    make(chan TrackEvent, 16),
		quit:      make(chan struct{}),
	}
	go ct.run(t.Tick)
	return ct, nil
}

type clockTrack struct {
	info audioInfo
	now  func() time.Time

	mu        sync.Mutex
	playing   bool
	position  float64 // at updatedAt
	updatedAt time.Time

	events    chan TrackEvent
	quit      chan struct{}
	closeOnce sync.Once
}

func (ct *clockTrack) Duration() float64 { return ct.info.Duration }

// Bitrate is the stream bitrate in bits per second.
func (ct *clockTrack) Bitrate() int { return ct.info.Bitrate }

func (ct *clockTrack) Position() float64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.currentLocked()
}

func (ct *clockTrack) currentLocked() float64 {
	pos := ct.position
	if ct.playing {
		pos += ct.now().Sub(ct.updatedAt).Seconds()
	}
	if pos > ct.info.Duration {
		pos = ct.info.Duration
	}
	return pos
}

func (ct *clockTrack) Play() error {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if ct.playing {
		return nil
	}
	if ct.position >= ct.info.Duration {
		ct.position = 0
	}
	ct.playing = true
	ct.updatedAt = ct.now()
	return nil
}

func (ct *clockTrack) Pause() error {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.position = ct.currentLocked()
	ct.playing = false
	ct.updatedAt = ct.now()
	return nil
}

func (ct *clockTrack) Seek(pos float64) error {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if pos < 0 {
		pos = 0
	}
	if pos > ct.info.Duration {
		pos = ct.info.Duration
	}
	ct.position = pos
	ct.updatedAt = ct.now()
	return nil
}

func (ct *clockTrack) Events() <-chan TrackEvent { return ct.events }

func (ct *clockTrack) Close() error {
	ct.closeOnce.Do(func() { close(ct.quit) })
	return nil
}

func (ct *clockTrack) run(tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ct.quit:
			return
		case <-ticker.C:
		}

		ct.mu.Lock()
		if !ct.playing {
			ct.mu.Unlock()
			continue
		}
		pos := ct.currentLocked()
		ev := TrackEvent{Kind: TrackTime, Position: pos}
		if pos >= ct.info.Duration {
			ct.position = ct.info.Duration
			ct.playing = false
			ct.updatedAt = ct.now()
			ev.Kind = TrackEnded
		}
		ct.mu.Unlock()

		select {
		case ct.events <- ev:
		case <-ct.quit:
			return
		}
	}
}
