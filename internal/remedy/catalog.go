// Package remedy maps a stress prediction to a bounded, language-matched set
// of coping remedies and contextual notices.
//
// The [Catalog] is loaded once and never mutated afterwards: the [Selector]
// works on local copies of its pools, so low-confidence fallbacks never leak
// back into the shared catalog.
package remedy

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/stresslens/internal/stress"
	"github.com/MrWong99/stresslens/pkg/types"
)

// Catalog size constraints.
const (
	MinPoolSize   = 4
	FallbackCount = 2
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Notices holds the per-language notice texts.
type Notices struct {
	UrgentNote        string                 `yaml:"urgent_note"`
	EmergencyContacts []string               `yaml:"emergency_contacts"`
	LowConfidence     string                 `yaml:"low_confidence"`
	Prefixes          map[stress.Tier]string `yaml:"prefixes"`
}

type catalogFile struct {
	Remedies  map[types.Label]map[types.Language][]string `yaml:"remedies"`
	Fallbacks map[types.Language][]string                 `yaml:"fallbacks"`
	Notices   map[types.Language]Notices                  `yaml:"notices"`
}

// Catalog is the immutable remedy catalog. It is safe for concurrent use.
type Catalog struct {
	remedies  map[types.Label]map[types.Language][]string
	fallbacks map[types.Language][]string
	notices   map[types.Language]Notices
}

var defaultCatalog = sync.OnceValues(func() (*Catalog, error) {
	return Parse(bytes.NewReader(defaultCatalogYAML))
})

// Default returns the built-in catalog. It is parsed once per process.
func Default() (*Catalog, error) {
	return defaultCatalog()
}

// Load reads a catalog from path. An empty path returns [Default].
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &stress.ConfigurationError{Component: "remedies", Reason: "open catalog " + path, Err: err}
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and validates a YAML catalog. Any violation of the catalog
// constraints is reported as a [*stress.ConfigurationError].
func Parse(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f catalogFile
	if err := dec.Decode(&f); err != nil {
		return nil, &stress.ConfigurationError{Component: "remedies", Reason: "decode catalog", Err: err}
	}
	if err := f.validate(); err != nil {
		return nil, &stress.ConfigurationError{Component: "remedies", Reason: "invalid catalog", Err: err}
	}
	return &Catalog{
		remedies:  f.Remedies,
		fallbacks: f.Fallbacks,
		notices:   f.Notices,
	}, nil
}

func (f *catalogFile) validate() error {
	var errs []error
	for label := range f.Remedies {
		if !label.IsValid() {
			errs = append(errs, fmt.Errorf("unknown label %q", label))
		}
	}
	for _, label := range types.Labels {
		byLang := f.Remedies[label]
		for lang := range byLang {
			if !lang.IsValid() {
				errs = append(errs, fmt.Errorf("%s: unknown language %q", label, lang))
			}
		}
		for _, lang := range types.Languages {
			pool := byLang[lang]
			if len(pool) < MinPoolSize {
				errs = append(errs, fmt.Errorf("%s/%s: %d remedies, need at least %d", label, lang, len(pool), MinPoolSize))
			}
			if dup, ok := firstDuplicate(pool); ok {
				errs = append(errs, fmt.Errorf("%s/%s: duplicate remedy %q", label, lang, dup))
			}
		}
	}

	for _, lang := range types.Languages {
		fb := f.Fallbacks[lang]
		if len(fb) != FallbackCount {
			errs = append(errs, fmt.Errorf("fallbacks/%s: %d entries, need exactly %d", lang, len(fb), FallbackCount))
		}
		if dup, ok := firstDuplicate(fb); ok {
			errs = append(errs, fmt.Errorf("fallbacks/%s: duplicate remedy %q", lang, dup))
		}
		n, ok := f.Notices[lang]
		if !ok {
			errs = append(errs, fmt.Errorf("notices/%s: missing", lang))
			continue
		}
		if n.UrgentNote == "" {
			errs = append(errs, fmt.Errorf("notices/%s: urgent_note is empty", lang))
		}
		if len(n.EmergencyContacts) == 0 {
			errs = append(errs, fmt.Errorf("notices/%s: no emergency_contacts", lang))
		}
		if n.LowConfidence == "" {
			errs = append(errs, fmt.Errorf("notices/%s: low_confidence is empty", lang))
		}
		for _, tier := range stress.Tiers {
			if n.Prefixes[tier] == "" {
				errs = append(errs, fmt.Errorf("notices/%s: no prefix for tier %q", lang, tier))
			}
		}
	}
	return errors.Join(errs...)
}

func firstDuplicate(pool []string) (string, bool) {
	seen := make(map[string]struct{}, len(pool))
	for _, r := range pool {
		if _, ok := seen[r]; ok {
			return r, true
		}
		seen[r] = struct{}{}
	}
	return "", false
}

// Pool returns a copy of the remedies for label in lang.
func (c *Catalog) Pool(label types.Label, lang types.Language) []string {
	return slices.Clone(c.remedies[label][lang])
}

// Fallbacks returns a copy of the generic fallback remedies for lang.
func (c *Catalog) Fallbacks(lang types.Language) []string {
	return slices.Clone(c.fallbacks[lang])
}

// Notices returns the notice texts for lang.
func (c *Catalog) Notices(lang types.Language) (Notices, bool) {
	n, ok := c.notices[lang]
	if !ok {
		return Notices{}, false
	}
	n.EmergencyContacts = slices.Clone(n.EmergencyContacts)
	n.Prefixes = maps.Clone(n.Prefixes)
	return n, true
}
