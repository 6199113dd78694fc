package tts

import (
	"context"
	"unicode/utf8"

	"github.com/petervdpas/avp/internal/storage"
)

// CachedProvider serves repeated requests from the speech cache.
type CachedProvider struct {
	inner      Provider
	db         *storage.DB
	maxEntries int
}

func NewCachedProvider(inner Provider, db *storage.DB, maxEntries int) *CachedProvider {
	return &CachedProvider{inner: inner, db: db, maxEntries: maxEntries}
}

func (c *CachedProvider) Name() string { return c.inner.Name() }

func (c *CachedProvider) Synthesize(ctx context.Context, text string, opts Options) (*Audio, error) {
	key := storage.SpeechKey(c.inner.Name(), text, opts.Language, opts.Voice, speedOrDefault(opts.Speed))

	if e, ok, err := c.db.GetSpeech(key); err != nil {
		log.Warnf("speech cache read: %v", err)
	} else if ok {
		log.Debugw("speech cache hit", "key", key[:12], "hits", e.Hits)
		return &Audio{Data: e.Audio, MimeType: e.MimeType}, nil
	}

	a, err := c.inner.Synthesize(ctx, text, opts)
	if err != nil {
		return nil, err
	}

	err = c.db.PutSpeech(storage.SpeechEntry{
		Key:       key,
		Provider:  c.inner.Name(),
		MimeType:  a.MimeType,
		Audio:     a.Data,
		TextChars: utf8.RuneCountInString(text),
	})
	if err != nil {
		log.Warnf("speech cache write: %v", err)
		return a, nil
	}
	if c.maxEntries > 0 {
		if n, err := c.db.PruneSpeech(c.maxEntries); err != nil {
			log.Warnf("speech cache prune: %v", err)
		} else if n > 0 {
			log.Debugf("speech cache pruned %d entries", n)
		}
	}
	return a, nil
}
