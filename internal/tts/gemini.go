package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

var (
	// ErrNoCandidates is returned when Gemini answers without audio.
	ErrNoCandidates = errors.New("no candidates in response")
	ErrNoAudio      = errors.New("no audio content in response")
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider synthesizes speech with a Gemini TTS model. The model
// returns raw PCM which is wrapped in a WAV container.
type GeminiProvider struct {
	Model string
	Voice string

	models contentGenerator
}

func NewGeminiProvider(ctx context.Context, apiKey, model, voice string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiProvider{Model: model, Voice: voice, models: client.Models}, nil
}

func (g *GeminiProvider) Name() string { return "gemini" }

// voiceFor maps a request voice onto a Gemini prebuilt voice. Cloud TTS
// voice names (en-US-Neural2-C) have no Gemini equivalent.
func (g *GeminiProvider) voiceFor(v string) string {
	if v == "" || strings.Contains(v, "-") {
		return g.Voice
	}
	return v
}

func (g *GeminiProvider) Synthesize(ctx context.Context, text string, opts Options) (*Audio, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			LanguageCode: firstNonEmpty(opts.Language, DefaultLanguage),
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.voiceFor(opts.Voice)},
			},
		},
	}

	prompt := text
	if s := speedOrDefault(opts.Speed); s != DefaultSpeed {
		prompt = fmt.Sprintf("Read the following at %.2fx normal speaking speed:\n%s", s, text)
	}

	resp, err := g.models.GenerateContent(ctx, g.Model, genai.Text(prompt), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrNoCandidates
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		blob := part.InlineData
		if strings.HasPrefix(blob.MIMEType, "audio/L16") || strings.Contains(blob.MIMEType, "pcm") {
			return &Audio{Data: wrapPCM(blob.Data, pcmRate(blob.MIMEType), 1), MimeType: "audio/wav"}, nil
		}
		return &Audio{Data: blob.Data, MimeType: blob.MIMEType}, nil
	}
	return nil, ErrNoAudio
}
