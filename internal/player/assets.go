package player

import (
	"github.com/petervdpas/avp/internal/avp"
)

// The accessors below hand out the blob slices of the ready package. The
// slices stay valid after a later Load releases the package; only the
// controller's references are dropped.

// Manifest returns the manifest of the ready package.
func (c *Controller) Manifest() (avp.Manifest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseReady || c.content == nil {
		return avp.Manifest{}, false
	}
	return c.content.Manifest, true
}

// Audio returns the narration bytes and the archive path they came from.
func (c *Controller) Audio() ([]byte, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseReady || c.content == nil {
		return nil, "", false
	}
	return c.content.Audio, c.content.Manifest.Audio, true
}

// Poster returns the poster bytes and path, if the package has one.
func (c *Controller) Poster() ([]byte, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseReady || !c.content.HasPoster() {
		return nil, "", false
	}
	return c.content.Poster, c.content.Manifest.Poster, true
}

// Image returns overlay image bytes by manifest src path.
func (c *Controller) Image(src string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseReady {
		return nil, false
	}
	return c.content.Image(src)
}

// Transcript returns the transcript text, if any.
func (c *Controller) Transcript() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseReady || c.content == nil || c.content.Transcript == nil {
		return "", false
	}
	return *c.content.Transcript, true
}

// Warnings returns the soft problems recorded while extracting the ready
// package.
func (c *Controller) Warnings() []avp.Warning {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseReady || c.content == nil {
		return nil
	}
	return append([]avp.Warning(nil), c.content.Warnings...)
}
