package avp

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// CurrentVersion is written into manifests built by this package.
const CurrentVersion = "1.0"

// Limits bounds what a lesson may contain.
type Limits struct {
	MaxKeyframes       int
	MaxDurationSeconds float64
}

// DefaultLimits match the creator defaults: 50 keyframes, 10 minute lessons.
func DefaultLimits() Limits {
	return Limits{MaxKeyframes: 50, MaxDurationSeconds: 10 * 60}
}

// Validate checks a manifest for authoring mistakes. Extract does not call
// it; a package that fails validation can still be played.
func Validate(m Manifest, lim Limits) error {
	var probs []string
	if m.Audio == "" {
		probs = append(probs, "audio is required")
	} else if !SafeEntryPath(m.Audio) {
		probs = append(probs, fmt.Sprintf("audio path %q escapes the package", m.Audio))
	}
	for _, p := range []struct{ field, path string }{{"poster", m.Poster}, {"transcript", m.Transcript}} {
		if p.path != "" && !SafeEntryPath(p.path) {
			probs = append(probs, fmt.Sprintf("%s path %q escapes the package", p.field, p.path))
		}
	}
	if m.Duration != nil {
		if *m.Duration < 0 {
			probs = append(probs, "duration must be >= 0")
		} else if lim.MaxDurationSeconds > 0 && *m.Duration > lim.MaxDurationSeconds {
			probs = append(probs, fmt.Sprintf("duration %.0fs exceeds limit of %.0fs", *m.Duration, lim.MaxDurationSeconds))
		}
	}
	if lim.MaxKeyframes > 0 && len(m.Keyframes) > lim.MaxKeyframes {
		probs = append(probs, fmt.Sprintf("%d keyframes exceeds limit of %d", len(m.Keyframes), lim.MaxKeyframes))
	}
	for i, k := range m.Keyframes {
		if k.Time < 0 {
			probs = append(probs, fmt.Sprintf("keyframes[%d]: time must be >= 0", i))
		}
		if k.Type != Show && k.Type != Hide {
			probs = append(probs, fmt.Sprintf("keyframes[%d]: type must be show or hide", i))
		}
		if k.Target == "" {
			probs = append(probs, fmt.Sprintf("keyframes[%d]: target is required", i))
		}
		if src := k.ImageSrc(); src != "" && !SafeEntryPath(src) {
			probs = append(probs, fmt.Sprintf("keyframes[%d]: image path %q escapes the package", i, src))
		}
	}
	if len(probs) > 0 {
		return &ValidationError{Problems: probs}
	}
	return nil
}

// Package is an authoring-side lesson: a manifest plus the entries it
// references, keyed by archive path.
type Package struct {
	Manifest Manifest
	Assets   map[string][]byte
}

// Write encodes pkg as an AVP archive. manifest.json is always the first
// entry; the remaining entries follow in path order.
func Write(w io.Writer, pkg *Package, lim Limits) error {
	m := pkg.Manifest
	if m.Version == "" {
		m.Version = CurrentVersion
	}
	if err := Validate(m, lim); err != nil {
		return err
	}
	if _, ok := pkg.Assets[m.Audio]; !ok {
		return formatErr(ErrMissingAudio, m.Audio, nil)
	}

	manifestJSON, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	names := make([]string, 0, len(pkg.Assets))
	for name := range pkg.Assets {
		if name == ManifestName {
			continue
		}
		if !SafeEntryPath(name) {
			return formatErr(ErrUnsafePath, name, nil)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	zw := zip.NewWriter(w)
	fw, err := zw.Create(ManifestName)
	if err != nil {
		return fmt.Errorf("create manifest entry: %w", err)
	}
	if _, err := fw.Write(manifestJSON); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	for _, name := range names {
		// audio entries are stored, not deflated
		method := zip.Deflate
		if name == m.Audio {
			method = zip.Store
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		if err != nil {
			return fmt.Errorf("create %q: %w", name, err)
		}
		if _, err := fw.Write(pkg.Assets[name]); err != nil {
			return fmt.Errorf("write %q: %w", name, err)
		}
	}
	return zw.Close()
}

// Bytes is Write into a fresh buffer.
func (pkg *Package) Bytes(lim Limits) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, pkg, lim); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
