// Package player drives playback of a loaded lesson package: it owns the
// load lifecycle, the audio transport handle and the play/pause/seek state,
// and fans out playback events to subscribers.
package player

import (
	"errors"
	"fmt"
)

// Phase is the coarse lifecycle of the controller.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseError   Phase = "error"
)

// State is a snapshot of the controller.
type State struct {
	Phase       Phase   `json:"phase"`
	IsPlaying   bool    `json:"isPlaying"`
	CurrentTime float64 `json:"currentTime"` // seconds
	Duration    float64 `json:"duration"`    // seconds
	Title       string  `json:"title,omitempty"`
	Error       string  `json:"error,omitempty"`
	Generation  uint64  `json:"generation"`
	LoadID      string  `json:"loadId,omitempty"`
}

// EventType names a playback event.
type EventType string

const (
	EventLoading    EventType = "loading"
	EventReady      EventType = "ready"
	EventPlay       EventType = "play"
	EventPause      EventType = "pause"
	EventTimeUpdate EventType = "timeupdate"
	EventEnded      EventType = "ended"
	EventError      EventType = "error"
)

// Event is delivered to subscribers after the state change it describes.
type Event struct {
	Type       EventType `json:"type"`
	Time       float64   `json:"time"`
	Duration   float64   `json:"duration"`
	Error      string    `json:"error,omitempty"`
	Generation uint64    `json:"generation"`
	LoadID     string    `json:"loadId,omitempty"`
	At         int64     `json:"at"` // unix millis
}

// LoadResult reports how a Load attempt finished.
type LoadResult struct {
	Generation uint64
	LoadID     string
	// Superseded is set when a newer Load (or Close) replaced this attempt
	// before it finished; its content was discarded.
	Superseded bool
	Err        error
}

var (
	ErrNotReady = errors.New("no package ready")
	ErrClosed   = errors.New("player closed")
)

// TransportError wraps a failure of the audio transport (undecodable audio,
// device failure, handle errors).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("audio transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
