// Package types defines the shared vocabulary used across all stresslens packages.
//
// Stress labels and languages cross the boundary between providers (feature
// extractors, classifiers, language resolvers) and the recommendation layer.
// They live here to avoid circular imports between pkg/ and internal/.
package types

import (
	"slices"
	"strings"
)

// Label is a stress class predicted by a classifier.
type Label string

const (
	NoStress     Label = "no_stress"
	LowStress    Label = "low_stress"
	MediumStress Label = "medium_stress"
	HighStress   Label = "high_stress"
)

// Labels lists the known stress classes ordered by ascending severity.
var Labels = []Label{NoStress, LowStress, MediumStress, HighStress}

// IsValid reports whether l is one of the known [Labels].
func (l Label) IsValid() bool {
	return slices.Contains(Labels, l)
}

// Severity returns the position of l in [Labels], or -1 for unknown labels.
func (l Label) Severity() int {
	return slices.Index(Labels, l)
}

// Highest returns the most severe known label.
func Highest() Label {
	return Labels[len(Labels)-1]
}

// Title returns a display form of the label, e.g. "HIGH STRESS".
func (l Label) Title() string {
	return strings.ToUpper(strings.ReplaceAll(string(l), "_", " "))
}

// Language is the spoken language of an audio chunk. Remedies and notices are
// always rendered in the language of the prediction they answer.
type Language string

const (
	English Language = "english"
	Hindi   Language = "hindi"
)

// Languages lists the supported languages in the order used for one-hot
// feature encoding.
var Languages = []Language{English, Hindi}

// IsValid reports whether lang is one of the supported [Languages].
func (lang Language) IsValid() bool {
	return slices.Contains(Languages, lang)
}

// Title returns the capitalised language name, e.g. "English".
func (lang Language) Title() string {
	if lang == "" {
		return ""
	}
	s := string(lang)
	return strings.ToUpper(s[:1]) + s[1:]
}
