// Package model loads the model bundle: the feature-name schema, the scaler,
// the label encoder classes and, for the built-in linear classifier, its
// weights. The bundle is loaded once at startup and every inconsistency is a
// fatal [*stress.ConfigurationError].
package model

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/stresslens/internal/stress"
	"github.com/MrWong99/stresslens/pkg/provider/classifier"
	"github.com/MrWong99/stresslens/pkg/provider/classifier/linear"
	"github.com/MrWong99/stresslens/pkg/types"
)

// Classifier types understood by [Bundle].
const (
	ClassifierLinear = "linear"
	ClassifierRemote = "remote"
)

//go:embed default.yaml
var defaultBundleYAML []byte

// ClassifierSpec describes the classifier part of a bundle. Weights and Bias
// are only used by the linear classifier.
type ClassifierSpec struct {
	Type    string      `yaml:"type"`
	Weights [][]float64 `yaml:"weights"`
	Bias    []float64   `yaml:"bias"`
}

// Bundle is a loaded model bundle.
type Bundle struct {
	Name         string            `yaml:"name"`
	Extractor    string            `yaml:"extractor"`
	SampleRate   int               `yaml:"sample_rate"`
	FeatureNames []string          `yaml:"feature_names"`
	Classes      []types.Label     `yaml:"classes"`
	Scaler       classifier.Scaler `yaml:"scaler"`
	Classifier   ClassifierSpec    `yaml:"classifier"`
}

// Default returns the built-in bundle.
func Default() (*Bundle, error) {
	return Parse(bytes.NewReader(defaultBundleYAML))
}

// LoadBundle reads and validates the bundle at path. An empty path returns
// [Default].
func LoadBundle(path string) (*Bundle, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, configErr("open bundle "+path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and validates a bundle.
func Parse(r io.Reader) (*Bundle, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var b Bundle
	if err := dec.Decode(&b); err != nil {
		return nil, configErr("decode bundle", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate checks that schema, scaler, classes and classifier agree.
func (b *Bundle) Validate() error {
	var errs []error
	if len(b.FeatureNames) == 0 {
		errs = append(errs, errors.New("feature_names is empty"))
	}
	if dup, ok := firstDuplicate(b.FeatureNames); ok {
		errs = append(errs, fmt.Errorf("duplicate feature name %q", dup))
	}
	if b.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("sample_rate %d is negative", b.SampleRate))
	}

	if len(b.Classes) < 2 {
		errs = append(errs, fmt.Errorf("need at least 2 classes, got %d", len(b.Classes)))
	}
	for _, c := range b.Classes {
		if !c.IsValid() {
			errs = append(errs, fmt.Errorf("unknown class %q", c))
		}
	}
	if dup, ok := firstDuplicate(b.Classes); ok {
		errs = append(errs, fmt.Errorf("duplicate class %q", dup))
	}

	if err := b.Scaler.Validate(); err != nil {
		errs = append(errs, err)
	} else if b.Scaler.Len() != len(b.FeatureNames) {
		errs = append(errs, fmt.Errorf("scaler has %d columns, schema has %d features", b.Scaler.Len(), len(b.FeatureNames)))
	}

	switch b.Classifier.Type {
	case ClassifierLinear:
		if len(b.Classifier.Weights) != len(b.Classes) || len(b.Classifier.Bias) != len(b.Classes) {
			errs = append(errs, fmt.Errorf("linear classifier has %d weight rows and %d intercepts for %d classes",
				len(b.Classifier.Weights), len(b.Classifier.Bias), len(b.Classes)))
		}
		for i, row := range b.Classifier.Weights {
			if len(row) != len(b.FeatureNames) {
				errs = append(errs, fmt.Errorf("weight row %d has %d coefficients, schema has %d features", i, len(row), len(b.FeatureNames)))
			}
		}
	case ClassifierRemote:
	default:
		errs = append(errs, fmt.Errorf("unknown classifier type %q", b.Classifier.Type))
	}

	if err := errors.Join(errs...); err != nil {
		return configErr(fmt.Sprintf("bundle %q", b.Name), err)
	}
	return nil
}

// NewLinear builds the linear classifier described by the bundle.
func (b *Bundle) NewLinear() (*linear.Classifier, error) {
	if b.Classifier.Type != ClassifierLinear {
		return nil, configErr("bundle "+b.Name, fmt.Errorf("classifier type is %q, not linear", b.Classifier.Type))
	}
	c, err := linear.New(b.FeatureNames, b.Classes, b.Classifier.Weights, b.Classifier.Bias)
	if err != nil {
		return nil, configErr("bundle "+b.Name, err)
	}
	return c, nil
}

// CheckExtractor verifies that an extractor produces exactly the bundle's
// schema.
func (b *Bundle) CheckExtractor(names []string) error {
	if !slices.Equal(names, b.FeatureNames) {
		return configErr("extractor schema", schemaDiff(b.FeatureNames, names))
	}
	return nil
}

// CheckClassifier verifies that a classifier was fit on the bundle's schema
// and classes.
func (b *Bundle) CheckClassifier(c classifier.Classifier) error {
	if !slices.Equal(c.FeatureNames(), b.FeatureNames) {
		return configErr("classifier schema", schemaDiff(b.FeatureNames, c.FeatureNames()))
	}
	got := slices.Clone(c.Classes())
	want := slices.Clone(b.Classes)
	slices.Sort(got)
	slices.Sort(want)
	if !slices.Equal(got, want) {
		return configErr("classifier classes", fmt.Errorf("classifier has %v, bundle has %v", c.Classes(), b.Classes))
	}
	return nil
}

// CheckQuality verifies that the quality table scores every class.
func (b *Bundle) CheckQuality(q stress.QualityTable) error {
	return q.Covers(b.Classes)
}

// CheckSampleRate verifies that the pipeline rate matches the rate the
// model was trained at. A bundle without a sample rate accepts any.
func (b *Bundle) CheckSampleRate(rate int) error {
	if b.SampleRate != 0 && b.SampleRate != rate {
		return configErr("sample rate", fmt.Errorf("pipeline runs at %d Hz, bundle %q expects %d Hz", rate, b.Name, b.SampleRate))
	}
	return nil
}

// schemaDiff describes the first difference between two schemas.
func schemaDiff(want, got []string) error {
	if len(want) != len(got) {
		return fmt.Errorf("expected %d features, got %d", len(want), len(got))
	}
	for i := range want {
		if want[i] != got[i] {
			return fmt.Errorf("feature %d is %q, expected %q", i, got[i], want[i])
		}
	}
	return nil
}

func firstDuplicate[T comparable](xs []T) (T, bool) {
	seen := make(map[T]struct{}, len(xs))
	for _, x := range xs {
		if _, ok := seen[x]; ok {
			return x, true
		}
		seen[x] = struct{}{}
	}
	var zero T
	return zero, false
}

func configErr(reason string, err error) error {
	return &stress.ConfigurationError{Component: "model", Reason: reason, Err: err}
}
