// Package remote provides a feature extractor backed by an HTTP sidecar.
//
// The sidecar hosts the heavier spectral feature set (MFCCs, pitch and
// spectral statistics) computed by an audio analysis toolkit. It exposes two
// endpoints:
//
//	GET  /schema   → {"names": [...], "sample_rate": 22050, "sample_count": 66150}
//	POST /extract?language=english   (body: audio/wav)
//	               → {"names": [...], "values": [...]}
//
// Calls go through a circuit breaker so that an unreachable sidecar fails
// fast instead of stalling the inference worker on every chunk.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/stresslens/internal/resilience"
	"github.com/MrWong99/stresslens/pkg/audio"
	"github.com/MrWong99/stresslens/pkg/provider/features"
	"github.com/MrWong99/stresslens/pkg/types"
)

// DefaultBaseURL is where the sidecar listens by default.
const DefaultBaseURL = "http://localhost:8765"

// config holds optional configuration collected from functional options.
type config struct {
	timeout    time.Duration
	httpClient *http.Client
	breaker    resilience.CircuitBreakerConfig
}

// Option is a functional option for Extractor.
type Option func(*config)

// WithTimeout sets a per-request HTTP timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithHTTPClient replaces the HTTP client. The timeout option is ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// WithCircuitBreaker tunes the breaker guarding sidecar calls.
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(c *config) {
		c.breaker = cfg
	}
}

// Extractor implements features.Extractor over HTTP.
type Extractor struct {
	baseURL     string
	httpClient  *http.Client
	breaker     *resilience.CircuitBreaker
	names       []string
	sampleRate  int
	sampleCount int
}

type schemaResponse struct {
	Names       []string `json:"names"`
	SampleRate  int      `json:"sample_rate"`
	SampleCount int      `json:"sample_count"`
}

type extractResponse struct {
	Names  []string  `json:"names"`
	Values []float64 `json:"values"`
}

// New connects to the sidecar at baseURL and fetches its feature schema.
// An empty baseURL means [DefaultBaseURL].
func New(ctx context.Context, baseURL string, opts ...Option) (*Extractor, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	cfg := &config{timeout: 10 * time.Second}
	for _, o := range opts {
		o(cfg)
	}
	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}
	if cfg.breaker.Name == "" {
		cfg.breaker.Name = "features/remote"
	}
	e := &Extractor{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
		breaker:    resilience.NewCircuitBreaker(cfg.breaker),
	}

	var schema schemaResponse
	if err := e.do(ctx, http.MethodGet, "/schema", "", nil, &schema); err != nil {
		return nil, fmt.Errorf("remote features: fetch schema: %w", err)
	}
	if len(schema.Names) == 0 {
		return nil, errors.New("remote features: sidecar reported an empty schema")
	}
	if schema.SampleRate <= 0 || schema.SampleCount <= 0 {
		return nil, fmt.Errorf("remote features: invalid schema sample rate %d / count %d", schema.SampleRate, schema.SampleCount)
	}
	e.names = schema.Names
	e.sampleRate = schema.SampleRate
	e.sampleCount = schema.SampleCount
	return e, nil
}

// Names implements features.Extractor.
func (e *Extractor) Names() []string { return append([]string(nil), e.names...) }

// SampleCount implements features.Extractor.
func (e *Extractor) SampleCount() int { return e.sampleCount }

// SampleRate returns the rate the sidecar expects chunks in.
func (e *Extractor) SampleRate() int { return e.sampleRate }

// Extract implements features.Extractor. The chunk is uploaded as a mono
// 16-bit WAV file.
func (e *Extractor) Extract(ctx context.Context, chunk audio.Chunk, language types.Language) (features.Vector, error) {
	if err := features.CheckLength(chunk, e.sampleCount); err != nil {
		return features.Vector{}, fmt.Errorf("remote features: %w", err)
	}
	wav, err := audio.EncodeWAV(chunk.Samples, chunk.SampleRate)
	if err != nil {
		return features.Vector{}, fmt.Errorf("remote features: %w", err)
	}

	path := "/extract?" + url.Values{"language": {string(language)}}.Encode()
	var resp extractResponse
	if err := e.do(ctx, http.MethodPost, path, "audio/wav", wav, &resp); err != nil {
		return features.Vector{}, fmt.Errorf("remote features: extract: %w", err)
	}
	v := features.Vector{Names: resp.Names, Values: resp.Values, Language: language}
	if err := v.Validate(); err != nil {
		return features.Vector{}, fmt.Errorf("remote features: %w", err)
	}
	return v, nil
}

func (e *Extractor) do(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	return e.breaker.Execute(func() error {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, rd)
		if err != nil {
			return err
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := e.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
}

var _ features.Extractor = (*Extractor)(nil)
