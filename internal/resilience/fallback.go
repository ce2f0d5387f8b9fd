package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry of a [FallbackGroup] failed or
// was skipped because its breaker is open.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is the template for every entry's breaker. Name is
	// replaced with the entry name.
	CircuitBreaker CircuitBreakerConfig
}

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds an ordered list of interchangeable providers, each
// behind its own circuit breaker. Calls go to the first entry whose breaker
// admits them and fall through to the next on failure.
//
// All entries are registered before the group is shared. After that it is
// safe for concurrent use.
type FallbackGroup[T any] struct {
	cfg     FallbackConfig
	members []member[T]
}

// NewFallbackGroup returns a group whose first entry is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an entry tried after all earlier ones.
func (fg *FallbackGroup[T]) AddFallback(name string, v T) {
	bc := fg.cfg.CircuitBreaker
	bc.Name = name
	fg.members = append(fg.members, member[T]{name: name, value: v, breaker: NewCircuitBreaker(bc)})
}

// EntryHealth is the breaker state of one group entry.
type EntryHealth struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// Health returns the breaker state of every entry in order.
func (fg *FallbackGroup[T]) Health() []EntryHealth {
	out := make([]EntryHealth, 0, len(fg.members))
	for _, m := range fg.members {
		out = append(out, EntryHealth{Name: m.name, State: m.breaker.State().String()})
	}
	return out
}

// ExecuteWithResult calls fn with each entry in order and returns the first
// successful result. When all entries fail the error wraps [ErrAllFailed]
// and every entry's error.
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var zero R
	errs := make([]error, 0, len(fg.members))
	for i, m := range fg.members {
		var out R
		err := m.breaker.Execute(func() error {
			var err error
			out, err = fn(m.value)
			return err
		})
		if err == nil {
			return out, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))

		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("provider skipped, circuit open", "provider", m.name)
			continue
		}
		if i < len(fg.members)-1 {
			slog.Warn("provider failed, falling back", "provider", m.name, "next", fg.members[i+1].name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
