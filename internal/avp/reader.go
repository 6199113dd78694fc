package avp

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

type extractConfig struct {
	strict       bool
	maxEntrySize int64
	maxSize      int64
	workers      int
}

// Option configures Extract.
type Option func(*extractConfig)

// WithStrictAssets makes unresolved poster, transcript and image references
// fatal instead of recording them as warnings.
func WithStrictAssets(strict bool) Option {
	return func(c *extractConfig) { c.strict = strict }
}

// WithMaxEntrySize caps the decompressed size of any single entry.
func WithMaxEntrySize(n int64) Option {
	return func(c *extractConfig) { c.maxEntrySize = n }
}

// WithMaxSize rejects archives larger than n bytes before opening them.
func WithMaxSize(n int64) Option {
	return func(c *extractConfig) { c.maxSize = n }
}

// WithWorkers bounds how many optional entries are decoded at once.
func WithWorkers(n int) Option {
	return func(c *extractConfig) { c.workers = n }
}

func newExtractConfig(opts []Option) extractConfig {
	cfg := extractConfig{maxEntrySize: DefaultMaxEntrySize, workers: 4}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.workers < 1 {
		cfg.workers = 1
	}
	return cfg
}

// Extract decodes a package from archive bytes. On any error no partial
// content is returned.
func Extract(ctx context.Context, data []byte, opts ...Option) (*PackageContent, error) {
	cfg := newExtractConfig(opts)
	if cfg.maxSize > 0 && int64(len(data)) > cfg.maxSize {
		return nil, formatErr(ErrTooLarge, "", fmt.Errorf("%d bytes exceeds limit of %d", len(data), cfg.maxSize))
	}
	a, err := openZip(data, cfg.maxEntrySize)
	if err != nil {
		return nil, err
	}
	return extract(ctx, a, cfg)
}

// ExtractArchive decodes a package from an already opened archive.
func ExtractArchive(ctx context.Context, a Archive, opts ...Option) (*PackageContent, error) {
	return extract(ctx, a, newExtractConfig(opts))
}

// ReadManifest opens archive bytes and returns only the parsed manifest.
func ReadManifest(data []byte) (*Manifest, error) {
	a, err := openZip(data, DefaultMaxEntrySize)
	if err != nil {
		return nil, err
	}
	return readManifest(a)
}

func readManifest(a Archive) (*Manifest, error) {
	if !a.Has(ManifestName) {
		return nil, formatErr(ErrMissingManifest, ManifestName, nil)
	}
	raw, err := a.ReadEntry(ManifestName)
	if err != nil {
		return nil, formatErr(ErrCorruptArchive, ManifestName, err)
	}
	m, err := ParseManifest(raw)
	if err != nil {
		return nil, formatErr(ErrMalformedManifest, ManifestName, err)
	}
	return m, nil
}

type assetKind string

const (
	kindPoster     assetKind = "poster"
	kindTranscript assetKind = "transcript"
	kindImage      assetKind = "image"
)

type assetJob struct {
	kind assetKind
	path string

	data []byte
	warn string
	err  error
}

func extract(ctx context.Context, a Archive, cfg extractConfig) (*PackageContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m, err := readManifest(a)
	if err != nil {
		return nil, err
	}

	switch {
	case m.Audio == "":
		return nil, formatErr(ErrMissingAudio, m.Audio, nil)
	case !SafeEntryPath(m.Audio):
		return nil, formatErr(ErrUnsafePath, m.Audio, nil)
	case !a.Has(m.Audio):
		return nil, formatErr(ErrMissingAudio, m.Audio, nil)
	}
	audio, err := a.ReadEntry(m.Audio)
	if err != nil {
		return nil, formatErr(ErrCorruptArchive, m.Audio, err)
	}

	var jobs []*assetJob
	if m.Poster != "" {
		jobs = append(jobs, &assetJob{kind: kindPoster, path: m.Poster})
	}
	if m.Transcript != "" {
		jobs = append(jobs, &assetJob{kind: kindTranscript, path: m.Transcript})
	}
	for _, src := range ReferencedImages(m.Keyframes) {
		jobs = append(jobs, &assetJob{kind: kindImage, path: src})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers)
	for _, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			resolveAsset(a, j, cfg.strict)
			return j.err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pc := &PackageContent{
		Manifest: *m,
		Audio:    audio,
		Images:   make(map[string][]byte),
	}
	for _, j := range jobs {
		if j.warn != "" {
			pc.Warnings = append(pc.Warnings, Warning{Field: string(j.kind), Path: j.path, Message: j.warn})
			continue
		}
		switch j.kind {
		case kindPoster:
			pc.Poster = j.data
		case kindTranscript:
			s := strings.ToValidUTF8(string(j.data), "�")
			pc.Transcript = &s
		case kindImage:
			pc.Images[j.path] = j.data
		}
	}
	return pc, nil
}

// resolveAsset fills in data, a soft warning, or (strict only) a hard error.
func resolveAsset(a Archive, j *assetJob, strict bool) {
	fail := func(reason error, msg string, cause error) {
		if strict {
			j.err = formatErr(reason, j.path, cause)
			return
		}
		j.warn = msg
	}
	if !SafeEntryPath(j.path) {
		fail(ErrUnsafePath, "path escapes the package", nil)
		return
	}
	if !a.Has(j.path) {
		fail(ErrMissingAsset, "entry not found", nil)
		return
	}
	b, err := a.ReadEntry(j.path)
	if err != nil {
		fail(ErrMissingAsset, err.Error(), err)
		return
	}
	j.data = b
}
