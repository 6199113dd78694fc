// Package avp reads and writes AVP lesson packages: a ZIP archive holding a
// manifest.json, one narration audio track and optional poster, transcript
// and overlay images driven by timed keyframes.
package avp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ManifestName is the fixed archive entry holding the lesson manifest.
const ManifestName = "manifest.json"

// Manifest describes one lesson.
type Manifest struct {
	Version    string     `json:"version"`
	Title      string     `json:"title"`
	Duration   *float64   `json:"duration,omitempty"` // seconds, informational
	Audio      string     `json:"audio"`
	Poster     string     `json:"poster,omitempty"`
	Transcript string     `json:"transcript,omitempty"`
	Keyframes  []Keyframe `json:"keyframes,omitempty"`
}

// KeyframeType is the action a keyframe applies to its target.
type KeyframeType string

const (
	Show KeyframeType = "show"
	Hide KeyframeType = "hide"
)

// Keyframe is a timed show/hide instruction for an overlay target.
type Keyframe struct {
	Time    float64          `json:"time"` // seconds from audio start
	Type    KeyframeType     `json:"type"`
	Target  string           `json:"target"`
	Content *KeyframeContent `json:"content,omitempty"`
}

// ImageSrc returns the referenced image path of a show keyframe, or "".
func (k Keyframe) ImageSrc() string {
	if k.Type != Show || k.Content == nil || !k.Content.IsImage() {
		return ""
	}
	return k.Content.Src
}

// KeyframeContent is either a flat string or an image reference {src, alt}.
// It marshals back to whichever form it was decoded from.
type KeyframeContent struct {
	Text string
	Src  string
	Alt  string

	object bool
}

// TextContent builds a flat string content value.
func TextContent(s string) *KeyframeContent {
	return &KeyframeContent{Text: s}
}

// ImageContent builds an object content value referencing an archive image.
func ImageContent(src, alt string) *KeyframeContent {
	return &KeyframeContent{Src: src, Alt: alt, object: true}
}

// IsImage reports whether the content is the object form carrying a src.
func (c *KeyframeContent) IsImage() bool {
	return c != nil && c.object && c.Src != ""
}

// IsObject reports whether the content was the object form.
func (c *KeyframeContent) IsObject() bool {
	return c != nil && c.object
}

func (c *KeyframeContent) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return errors.New("empty keyframe content")
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = KeyframeContent{Text: s}
		return nil
	case '{':
		var o struct {
			Src string `json:"src"`
			Alt string `json:"alt"`
		}
		if err := json.Unmarshal(b, &o); err != nil {
			return err
		}
		*c = KeyframeContent{Src: o.Src, Alt: o.Alt, object: true}
		return nil
	case 'n':
		*c = KeyframeContent{}
		return nil
	}
	return fmt.Errorf("keyframe content must be a string or an object, got %.16s", b)
}

func (c KeyframeContent) MarshalJSON() ([]byte, error) {
	if !c.object {
		return json.Marshal(c.Text)
	}
	o := struct {
		Src string `json:"src,omitempty"`
		Alt string `json:"alt,omitempty"`
	}{c.Src, c.Alt}
	return json.Marshal(o)
}

// ParseManifest decodes manifest JSON.
func ParseManifest(b []byte) (*Manifest, error) {
	b = stripBOM(b)
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func stripBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}

// Warning records a soft problem found while extracting a package. The
// package is still usable.
type Warning struct {
	Field   string `json:"field"` // poster, transcript, image
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s %q: %s", w.Field, w.Path, w.Message)
}

// PackageContent is the decoded, in-memory form of a package.
type PackageContent struct {
	Manifest   Manifest
	Audio      []byte
	Poster     []byte            // nil when absent
	Images     map[string][]byte // keyed by the src path used in the manifest
	Transcript *string           // nil when absent
	Warnings   []Warning
}

// HasPoster reports whether poster bytes were resolved.
func (p *PackageContent) HasPoster() bool { return p != nil && p.Poster != nil }

// Image returns the bytes for a keyframe image path.
func (p *PackageContent) Image(src string) ([]byte, bool) {
	if p == nil {
		return nil, false
	}
	b, ok := p.Images[src]
	return b, ok
}

// Size returns the total number of blob bytes held.
func (p *PackageContent) Size() int64 {
	if p == nil {
		return 0
	}
	n := int64(len(p.Audio) + len(p.Poster))
	for _, b := range p.Images {
		n += int64(len(b))
	}
	if p.Transcript != nil {
		n += int64(len(*p.Transcript))
	}
	return n
}

// Release drops every blob reference so the memory can be reclaimed. The
// manifest stays readable.
func (p *PackageContent) Release() {
	if p == nil {
		return
	}
	p.Audio = nil
	p.Poster = nil
	p.Images = nil
	p.Transcript = nil
}
