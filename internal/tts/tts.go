// Package tts turns lesson narration text into audio through a configured
// speech provider.
package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	logging "github.com/ipfs/go-log/v2"

	"github.com/petervdpas/avp/internal/config"
	"github.com/petervdpas/avp/internal/storage"
)

var log = logging.Logger("avp/tts")

const (
	MaxTextLength = 5000
	MinSpeed      = 0.5
	MaxSpeed      = 2.0

	DefaultLanguage = "en-US"
	DefaultVoice    = "en-US-Neural2-C"
	DefaultSpeed    = 1.0
)

// ErrNotConfigured is returned when no provider has credentials.
var ErrNotConfigured = errors.New("TTS provider not configured. Set GOOGLE_CLOUD_PROJECT_ID and GOOGLE_CLOUD_TTS_API_KEY (or GEMINI_API_KEY) in .env")

// ValidationError reports a request the endpoint rejects with 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Options tune a single synthesis.
type Options struct {
	Language string
	Voice    string
	Speed    float64
}

// Audio is a synthesized clip.
type Audio struct {
	Data     []byte
	MimeType string
}

// Provider synthesizes speech.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text string, opts Options) (*Audio, error)
}

// Request is the JSON body of POST /api/tts. Speed is a pointer so an
// omitted value can be told apart from zero.
type Request struct {
	Text     *string  `json:"text"`
	Language string   `json:"language,omitempty"`
	Voice    string   `json:"voice,omitempty"`
	Speed    *float64 `json:"speed,omitempty"`
}

// Validate checks the request and returns the text plus options with
// defaults filled in.
func (r Request) Validate(defaults Options) (string, Options, error) {
	if r.Text == nil || strings.TrimSpace(*r.Text) == "" {
		return "", Options{}, &ValidationError{Message: "text is required and must be a string"}
	}
	text := *r.Text
	if utf8.RuneCountInString(text) > MaxTextLength {
		return "", Options{}, &ValidationError{Message: fmt.Sprintf("text exceeds maximum length of %d characters", MaxTextLength)}
	}

	opts := Options{Language: r.Language, Voice: r.Voice, Speed: DefaultSpeed}
	if r.Speed != nil {
		if *r.Speed < MinSpeed || *r.Speed > MaxSpeed {
			return "", Options{}, &ValidationError{Message: fmt.Sprintf("speed must be between %.1f and %.1f", MinSpeed, MaxSpeed)}
		}
		opts.Speed = *r.Speed
	}
	if opts.Language == "" {
		opts.Language = firstNonEmpty(defaults.Language, DefaultLanguage)
	}
	if opts.Voice == "" {
		opts.Voice = firstNonEmpty(defaults.Voice, DefaultVoice)
	}
	return text, opts, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// New builds the provider selected by cfg, wrapped in a cache when db is
// non-nil and caching is enabled. It returns (nil, nil) when no provider
// has credentials.
func New(ctx context.Context, cfg config.TTS, db *storage.DB) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "google":
		if !cfg.HasGoogle() {
			return nil, nil
		}
		p = NewGoogleProvider(cfg.GoogleProjectID, cfg.GoogleAPIKey, cfg.TimeoutSeconds)
	case "gemini":
		if !cfg.HasGemini() {
			return nil, nil
		}
		p, err = NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiVoice)
	default:
		switch {
		case cfg.HasGoogle():
			p = NewGoogleProvider(cfg.GoogleProjectID, cfg.GoogleAPIKey, cfg.TimeoutSeconds)
		case cfg.HasGemini():
			p, err = NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiVoice)
		default:
			return nil, nil
		}
	}
	if err != nil {
		return nil, err
	}

	log.Infof("speech provider: %s", p.Name())
	if db != nil && cfg.CacheEnabled {
		return NewCachedProvider(p, db, cfg.CacheMaxEntries), nil
	}
	return p, nil
}
