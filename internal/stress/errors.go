package stress

import (
	"errors"
	"fmt"

	"github.com/MrWong99/stresslens/pkg/types"
)

// ErrInferenceEscalated is returned by the inference worker after too many
// consecutive chunk failures. The pipeline must be restarted.
var ErrInferenceEscalated = errors.New("inference failures escalated")

// Inference stages reported by [InferenceError].
const (
	StageValidate = "validate"
	StageLanguage = "language"
	StageExtract  = "extract"
	StageSchema   = "schema"
	StageScale    = "scale"
	StageClassify = "classify"
)

// InferenceError reports why one chunk could not be classified. The chunk is
// skipped.
type InferenceError struct {
	ChunkID string
	Stage   string
	Err     error
}

func (e *InferenceError) Error() string {
	if e.ChunkID == "" {
		return fmt.Sprintf("inference %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("inference %s (chunk %s): %v", e.Stage, e.ChunkID, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// ConfigurationError reports missing or incompatible configuration or model
// artifacts. It is fatal at startup.
type ConfigurationError struct {
	Component string
	Reason    string
	Err       error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration: %s: %s", e.Component, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// RecommendationError reports a remedy catalog without entries for a
// requested label and language. A validated catalog never produces it.
type RecommendationError struct {
	Label    types.Label
	Language types.Language
	Reason   string
}

func (e *RecommendationError) Error() string {
	return fmt.Sprintf("recommendation %s/%s: %s", e.Label, e.Language, e.Reason)
}
