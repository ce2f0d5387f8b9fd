// Package mcpserver exposes stresslens as Model Context Protocol tools so
// that assistants can analyse recordings and read recent results.
//
// Tools:
//   - "analyze_file": analyse a WAV file on the local filesystem.
//   - "latest_recommendation": the most recent stored recommendation.
//   - "recent_recommendations": stored recommendations, newest first.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/stresslens/internal/history"
	"github.com/MrWong99/stresslens/internal/langid"
	"github.com/MrWong99/stresslens/internal/stress"
	"github.com/MrWong99/stresslens/pkg/types"
)

// Analyzer analyses a recording on disk. [pipeline.Analyzer] implements it.
type Analyzer interface {
	AnalyzeFile(ctx context.Context, path, language string) (stress.Recommendation, error)
}

// Option is a functional option for [New].
type Option func(*Server)

// WithAnalyzer registers the analyze_file tool.
func WithAnalyzer(a Analyzer) Option { return func(s *Server) { s.analyzer = a } }

// WithHistory registers the latest_recommendation and recent_recommendations
// tools.
func WithHistory(h history.Store) Option { return func(s *Server) { s.history = h } }

// Server wraps an MCP server with the stresslens tools.
type Server struct {
	analyzer Analyzer
	history  history.Store
	mcp      *mcpsdk.Server
}

// New builds the MCP server. Tools are registered only for the configured
// components.
func New(version string, opts ...Option) *Server {
	s := &Server{}
	for _, o := range opts {
		o(s)
	}
	s.mcp = mcpsdk.NewServer(&mcpsdk.Implementation{Name: "stresslens", Version: version}, nil)

	if s.analyzer != nil {
		mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
			Name:        "analyze_file",
			Description: "Estimate the speaker's stress level in a WAV recording and suggest remedies.",
		}, s.analyzeFile)
	}
	if s.history != nil {
		mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
			Name:        "latest_recommendation",
			Description: "Return the most recent stress recommendation.",
		}, s.latest)
		mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
			Name:        "recent_recommendations",
			Description: "List recent stress recommendations, newest first, optionally filtered.",
		}, s.recent)
	}
	return s
}

// MCP returns the underlying server, e.g. to connect it to a custom
// transport.
func (s *Server) MCP() *mcpsdk.Server { return s.mcp }

// Run serves over stdin/stdout until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("mcp server running on stdio")
	if err := s.mcp.Run(ctx, &mcpsdk.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcpserver: %w", err)
	}
	return nil
}

// ── Tool I/O ─────────────────────────────────────────────────────────────────

type analyzeArgs struct {
	Path     string `json:"path" jsonschema:"path of the WAV file to analyse"`
	Language string `json:"language,omitempty" jsonschema:"optional language hint such as english or hindi"`
}

type recentArgs struct {
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of results"`
	Label    string `json:"label,omitempty" jsonschema:"filter by stress level"`
	Language string `json:"language,omitempty" jsonschema:"filter by language"`
	Tier     string `json:"tier,omitempty" jsonschema:"filter by confidence level: high, medium or low"`
}

type emptyArgs struct{}

// recommendationOut is the wire form of a recommendation. Times are RFC 3339
// strings so the output schema stays plain JSON.
type recommendationOut struct {
	ID                   string             `json:"id"`
	Timestamp            string             `json:"timestamp"`
	StressLevel          string             `json:"stress_level"`
	Language             string             `json:"language"`
	ConfidenceLevel      string             `json:"confidence_level"`
	ModelF1Score         float64            `json:"model_f1_score"`
	PredictionConfidence float64            `json:"prediction_confidence"`
	CombinedConfidence   float64            `json:"combined_confidence"`
	Prefix               string             `json:"prefix"`
	Remedies             []string           `json:"remedies"`
	AdditionalInfo       map[string]any     `json:"additional_info,omitempty"`
	Probabilities        map[string]float64 `json:"probabilities,omitempty"`
}

type latestOut struct {
	Found          bool               `json:"found"`
	Recommendation *recommendationOut `json:"recommendation,omitempty"`
}

type recentOut struct {
	Recommendations []recommendationOut `json:"recommendations"`
}

func toOut(r stress.Recommendation) recommendationOut {
	out := recommendationOut{
		ID:                   r.ID,
		Timestamp:            r.Timestamp.UTC().Format(time.RFC3339Nano),
		StressLevel:          string(r.Label),
		Language:             string(r.Language),
		ConfidenceLevel:      string(r.Tier),
		ModelF1Score:         r.ModelQuality,
		PredictionConfidence: r.PredictionConfidence,
		CombinedConfidence:   r.CombinedConfidence,
		Prefix:               r.Prefix,
		Remedies:             r.Remedies,
		AdditionalInfo:       r.AdditionalInfo,
	}
	if len(r.Probabilities) > 0 {
		out.Probabilities = make(map[string]float64, len(r.Probabilities))
		for l, p := range r.Probabilities {
			out.Probabilities[string(l)] = p
		}
	}
	return out
}

// ── Handlers ─────────────────────────────────────────────────────────────────

func (s *Server) analyzeFile(ctx context.Context, _ *mcpsdk.CallToolRequest, args analyzeArgs) (*mcpsdk.CallToolResult, recommendationOut, error) {
	if args.Path == "" {
		return nil, recommendationOut{}, errors.New("path is required")
	}
	rec, err := s.analyzer.AnalyzeFile(ctx, args.Path, args.Language)
	if err != nil {
		return nil, recommendationOut{}, err
	}
	return nil, toOut(rec), nil
}

func (s *Server) latest(ctx context.Context, _ *mcpsdk.CallToolRequest, _ emptyArgs) (*mcpsdk.CallToolResult, latestOut, error) {
	recs, err := s.history.Recent(ctx, history.Query{Limit: 1})
	if err != nil {
		return nil, latestOut{}, fmt.Errorf("read history: %w", err)
	}
	if len(recs) == 0 {
		return nil, latestOut{Found: false}, nil
	}
	out := toOut(recs[0])
	return nil, latestOut{Found: true, Recommendation: &out}, nil
}

func (s *Server) recent(ctx context.Context, _ *mcpsdk.CallToolRequest, args recentArgs) (*mcpsdk.CallToolResult, recentOut, error) {
	q := history.Query{Limit: args.Limit}
	if args.Label != "" {
		q.Label = types.Label(args.Label)
		if !q.Label.IsValid() {
			return nil, recentOut{}, fmt.Errorf("unknown stress level %q", args.Label)
		}
	}
	if args.Language != "" {
		lang, ok := langid.Normalize(args.Language)
		if !ok {
			return nil, recentOut{}, fmt.Errorf("unsupported language %q", args.Language)
		}
		q.Language = lang
	}
	if args.Tier != "" {
		q.Tier = stress.Tier(args.Tier)
		if q.Tier.Rank() < 0 {
			return nil, recentOut{}, fmt.Errorf("unknown confidence level %q", args.Tier)
		}
	}

	recs, err := s.history.Recent(ctx, q)
	if err != nil {
		return nil, recentOut{}, fmt.Errorf("read history: %w", err)
	}
	out := recentOut{Recommendations: make([]recommendationOut, len(recs))}
	for i, r := range recs {
		out.Recommendations[i] = toOut(r)
	}
	return nil, out, nil
}
