package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const googleEndpoint = "https://texttospeech.googleapis.com/v1/text:synthesize"

// GoogleProvider calls the Google Cloud Text-to-Speech REST API.
type GoogleProvider struct {
	ProjectID string
	APIKey    string
	Endpoint  string

	httpClient *http.Client
}

func NewGoogleProvider(projectID, apiKey string, timeoutSeconds int) *GoogleProvider {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	return &GoogleProvider{
		ProjectID:  projectID,
		APIKey:     apiKey,
		Endpoint:   googleEndpoint,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
	}
}

func (g *GoogleProvider) Name() string { return "google" }

type googleVoice struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
}

type googleAudioConfig struct {
	AudioEncoding string  `json:"audioEncoding"`
	SpeakingRate  float64 `json:"speakingRate"`
}

type googleRequest struct {
	Input       map[string]string `json:"input"`
	Voice       googleVoice       `json:"voice"`
	AudioConfig googleAudioConfig `json:"audioConfig"`
}

type googleResponse struct {
	AudioContent string `json:"audioContent"`
	Error        *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (g *GoogleProvider) Synthesize(ctx context.Context, text string, opts Options) (*Audio, error) {
	body, err := json.Marshal(googleRequest{
		Input: map[string]string{"text": text},
		Voice: googleVoice{
			LanguageCode: firstNonEmpty(opts.Language, DefaultLanguage),
			Name:         firstNonEmpty(opts.Voice, DefaultVoice),
		},
		AudioConfig: googleAudioConfig{
			AudioEncoding: "MP3",
			SpeakingRate:  speedOrDefault(opts.Speed),
		},
	})
	if err != nil {
		return nil, err
	}

	endpoint := g.Endpoint + "?key=" + url.QueryEscape(g.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.ProjectID != "" {
		req.Header.Set("X-Goog-User-Project", g.ProjectID)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Google TTS request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("Google TTS response: %w", err)
	}

	var out googleResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return nil, fmt.Errorf("Google TTS API error: %s", msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("Google TTS response: %w", decodeErr)
	}
	if out.AudioContent == "" {
		return nil, ErrNoAudio
	}

	data, err := base64.StdEncoding.DecodeString(out.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("Google TTS audio: %w", err)
	}
	return &Audio{Data: data, MimeType: "audio/mpeg"}, nil
}

func speedOrDefault(s float64) float64 {
	if s == 0 {
		return DefaultSpeed
	}
	return s
}
