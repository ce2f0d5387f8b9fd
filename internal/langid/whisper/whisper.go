// Package whisper resolves chunk language with the OpenAI audio
// transcription API. The chunk is uploaded as WAV and the language reported
// in the verbose_json response is normalised onto a supported language.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/stresslens/internal/langid"
	"github.com/MrWong99/stresslens/pkg/audio"
	"github.com/MrWong99/stresslens/pkg/types"
)

// DefaultModel is the transcription model used when none is configured.
const DefaultModel = oai.AudioModelWhisper1

// ErrUnsupportedLanguage is returned when the detected language is not one
// of the supported languages.
var ErrUnsupportedLanguage = errors.New("whisper: detected language is not supported")

type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Resolver.
type Option func(*config)

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// Resolver implements langid.Resolver.
type Resolver struct {
	client oai.Client
	model  oai.AudioModel
}

// New creates a Resolver. apiKey must be non-empty.
func New(apiKey, model string, opts ...Option) (*Resolver, error) {
	if apiKey == "" {
		return nil, errors.New("whisper: apiKey must not be empty")
	}
	m := oai.AudioModel(model)
	if m == "" {
		m = DefaultModel
	}
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	return &Resolver{client: oai.NewClient(reqOpts...), model: m}, nil
}

// verboseTranscription holds the fields of a verbose_json response that the
// SDK's Transcription type does not expose.
type verboseTranscription struct {
	Language string `json:"language"`
}

// Resolve implements langid.Resolver.
func (r *Resolver) Resolve(ctx context.Context, chunk audio.Chunk) (types.Language, error) {
	wav, err := audio.EncodeWAV(chunk.Samples, chunk.SampleRate)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	resp, err := r.client.Audio.Transcriptions.New(ctx, oai.AudioTranscriptionNewParams{
		File:           oai.File(bytes.NewReader(wav), "chunk.wav", "audio/wav"),
		Model:          r.model,
		ResponseFormat: oai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return "", fmt.Errorf("whisper: transcribe: %w", err)
	}

	var v verboseTranscription
	if err := json.Unmarshal([]byte(resp.RawJSON()), &v); err != nil {
		return "", fmt.Errorf("whisper: decode response: %w", err)
	}
	lang, ok := langid.Normalize(v.Language)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, v.Language)
	}
	return lang, nil
}

var _ langid.Resolver = (*Resolver)(nil)
