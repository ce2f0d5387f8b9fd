package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/stresslens/internal/langid"
	"github.com/MrWong99/stresslens/internal/model"
	"github.com/MrWong99/stresslens/pkg/audio"
	"github.com/MrWong99/stresslens/pkg/provider/classifier"
	"github.com/MrWong99/stresslens/pkg/provider/features"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Env carries the pipeline parameters every provider is built against.
type Env struct {
	SampleRate int
	ChunkSize  int
	FrameSize  int

	// Bundle is the loaded model artifact bundle.
	Bundle *model.Bundle
}

// Factory constructs a provider of type T from its config entry.
type Factory[T any] func(ctx context.Context, entry ProviderEntry, env Env) (T, error)

type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	source     factories[audio.Source]
	features   factories[features.Extractor]
	classifier factories[classifier.Classifier]
	langid     factories[langid.Resolver]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		source:     newFactories[audio.Source]("source"),
		features:   newFactories[features.Extractor]("features"),
		classifier: newFactories[classifier.Classifier]("classifier"),
		langid:     newFactories[langid.Resolver]("langid"),
	}
}

// RegisterSource registers an audio source factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSource(name string, f Factory[audio.Source]) {
	register(r, &r.source, name, f)
}

// RegisterFeatures registers a feature extractor factory under name.
func (r *Registry) RegisterFeatures(name string, f Factory[features.Extractor]) {
	register(r, &r.features, name, f)
}

// RegisterClassifier registers a classifier factory under name.
func (r *Registry) RegisterClassifier(name string, f Factory[classifier.Classifier]) {
	register(r, &r.classifier, name, f)
}

// RegisterLangID registers a language resolver factory under name.
func (r *Registry) RegisterLangID(name string, f Factory[langid.Resolver]) {
	register(r, &r.langid, name, f)
}

// CreateSource instantiates an audio source using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateSource(ctx context.Context, entry ProviderEntry, env Env) (audio.Source, error) {
	return create(ctx, r, &r.source, entry, env)
}

// CreateFeatures instantiates a feature extractor.
func (r *Registry) CreateFeatures(ctx context.Context, entry ProviderEntry, env Env) (features.Extractor, error) {
	return create(ctx, r, &r.features, entry, env)
}

// CreateClassifier instantiates a classifier.
func (r *Registry) CreateClassifier(ctx context.Context, entry ProviderEntry, env Env) (classifier.Classifier, error) {
	return create(ctx, r, &r.classifier, entry, env)
}

// CreateLangID instantiates a language resolver.
func (r *Registry) CreateLangID(ctx context.Context, entry ProviderEntry, env Env) (langid.Resolver, error) {
	return create(ctx, r, &r.langid, entry, env)
}

// Names returns the registered provider names per kind, sorted.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		r.source.kind:     sortedKeys(r.source.m),
		r.features.kind:   sortedKeys(r.features.m),
		r.classifier.kind: sortedKeys(r.classifier.m),
		r.langid.kind:     sortedKeys(r.langid.m),
	}
}

func register[T any](r *Registry, fs *factories[T], name string, f Factory[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fs.m[name] = f
}

func create[T any](ctx context.Context, r *Registry, fs *factories[T], entry ProviderEntry, env Env) (T, error) {
	r.mu.RLock()
	factory, ok := fs.m[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, fs.kind, entry.Name)
	}
	return factory(ctx, entry, env)
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ── Option helpers ───────────────────────────────────────────────────────────

// OptString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func OptString(opts map[string]any, key string) string {
	return optString(opts, key)
}

func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// OptBool extracts a boolean option, returning def when absent or mistyped.
func OptBool(opts map[string]any, key string, def bool) bool {
	if b, ok := opts[key].(bool); ok {
		return b
	}
	return def
}

// OptInt extracts an integer option. YAML decodes whole numbers as int.
func OptInt(opts map[string]any, key string, def int) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// OptDuration extracts a duration given either as a Go duration string
// ("750ms") or as a number of seconds.
func OptDuration(opts map[string]any, key string, def time.Duration) time.Duration {
	switch v := opts[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return def
}

// OptStrings extracts a list of strings, skipping non-string items.
func OptStrings(opts map[string]any, key string) []string {
	raw, ok := opts[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
