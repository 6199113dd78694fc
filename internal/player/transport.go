package player

import (
	"context"

	"github.com/petervdpas/avp/internal/avp"
)

// Transport turns audio bytes into a playable Track.
type Transport interface {
	Open(audio []byte) (Track, error)
}

// Track is an open transport handle for one audio stream. Close must be
// safe to call more than once.
type Track interface {
	Duration() float64
	Position() float64
	Play() error
	Pause() error
	Seek(pos float64) error
	// Events reports position updates, end of track and failures.
	Events() <-chan TrackEvent
	Close() error
}

type TrackEventKind int

const (
	TrackTime TrackEventKind = iota
	TrackEnded
	TrackFailed
)

type TrackEvent struct {
	Kind     TrackEventKind
	Position float64
	Err      error
}

// Source produces the content for one Load.
type Source func(ctx context.Context) (*avp.PackageContent, error)

// FromBytes extracts archive bytes when the load runs.
func FromBytes(data []byte, opts ...avp.Option) Source {
	return func(ctx context.Context) (*avp.PackageContent, error) {
		return avp.Extract(ctx, data, opts...)
	}
}

// FromContent loads already extracted content.
func FromContent(pc *avp.PackageContent) Source {
	return func(context.Context) (*avp.PackageContent, error) {
		return pc, nil
	}
}
