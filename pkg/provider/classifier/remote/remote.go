// Package remote provides a classifier backed by an HTTP model server.
//
// The server exposes the schema the model was fit on and a prediction
// endpoint:
//
//	GET  /schema  → {"feature_names": [...], "classes": ["high_stress", ...]}
//	POST /predict ← {"names": [...], "values": [...]}
//	              → {"label": "low_stress", "probabilities": {"low_stress": 0.7, ...}}
//
// Calls go through a circuit breaker.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/stresslens/internal/resilience"
	"github.com/MrWong99/stresslens/pkg/provider/classifier"
	"github.com/MrWong99/stresslens/pkg/provider/features"
	"github.com/MrWong99/stresslens/pkg/types"
)

// DefaultBaseURL is where the model server listens by default.
const DefaultBaseURL = "http://localhost:8766"

type config struct {
	timeout    time.Duration
	httpClient *http.Client
	breaker    resilience.CircuitBreakerConfig
}

// Option is a functional option for Classifier.
type Option func(*config)

// WithTimeout sets a per-request HTTP timeout. Default: 5s.
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

// WithCircuitBreaker tunes the breaker guarding model server calls.
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(c *config) {
		c.breaker = cfg
	}
}

// Classifier implements classifier.Classifier over HTTP.
type Classifier struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	names      []string
	classes    []types.Label
}

type schemaResponse struct {
	FeatureNames []string      `json:"feature_names"`
	Classes      []types.Label `json:"classes"`
}

type predictRequest struct {
	Names  []string  `json:"names"`
	Values []float64 `json:"values"`
}

type predictResponse struct {
	Label         types.Label             `json:"label"`
	Probabilities map[types.Label]float64 `json:"probabilities"`
}

// New connects to the model server at baseURL and fetches its schema. An
// empty baseURL means [DefaultBaseURL].
func New(ctx context.Context, baseURL string, opts ...Option) (*Classifier, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	cfg := &config{timeout: 5 * time.Second}
	for _, o := range opts {
		o(cfg)
	}
	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}
	if cfg.breaker.Name == "" {
		cfg.breaker.Name = "classifier/remote"
	}
	c := &Classifier{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
		breaker:    resilience.NewCircuitBreaker(cfg.breaker),
	}

	var schema schemaResponse
	if err := c.do(ctx, http.MethodGet, "/schema", nil, &schema); err != nil {
		return nil, fmt.Errorf("remote classifier: fetch schema: %w", err)
	}
	if len(schema.FeatureNames) == 0 || len(schema.Classes) == 0 {
		return nil, errors.New("remote classifier: server reported an empty schema")
	}
	c.names = schema.FeatureNames
	c.classes = schema.Classes
	return c, nil
}

// FeatureNames implements classifier.Classifier.
func (c *Classifier) FeatureNames() []string { return slices.Clone(c.names) }

// Classes implements classifier.Classifier.
func (c *Classifier) Classes() []types.Label { return slices.Clone(c.classes) }

// Predict implements classifier.Classifier.
func (c *Classifier) Predict(ctx context.Context, v features.Vector) (classifier.Result, error) {
	body, err := json.Marshal(predictRequest{Names: v.Names, Values: v.Values})
	if err != nil {
		return classifier.Result{}, fmt.Errorf("remote classifier: encode: %w", err)
	}
	var resp predictResponse
	if err := c.do(ctx, http.MethodPost, "/predict", body, &resp); err != nil {
		return classifier.Result{}, fmt.Errorf("remote classifier: predict: %w", err)
	}
	return classifier.Result{Label: resp.Label, Probabilities: resp.Probabilities}, nil
}

func (c *Classifier) do(ctx context.Context, method, path string, body []byte, out any) error {
	return c.breaker.Execute(func() error {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.httpClient.Do(req)
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

var _ classifier.Classifier = (*Classifier)(nil)
