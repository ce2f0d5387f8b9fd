package pipeline

import (
	"context"
	"sync"

	"github.com/MrWong99/stresslens/internal/observe"
	"github.com/MrWong99/stresslens/internal/stress"
)

// Handoff is a single-slot mailbox carrying the latest prediction from the
// inference worker to the poller. It is either empty or holding exactly one
// prediction. Publishing over an untaken prediction replaces it; Take
// empties the slot, so a prediction is surfaced at most once.
type Handoff struct {
	metrics *observe.Metrics

	mu         sync.Mutex
	pred       stress.Prediction
	holding    bool
	overwrites uint64
}

// NewHandoff returns an empty Handoff. A nil m uses [observe.DefaultMetrics].
func NewHandoff(m *observe.Metrics) *Handoff {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Handoff{metrics: m}
}

// Publish stores p, replacing any prediction not yet taken.
func (h *Handoff) Publish(p stress.Prediction) {
	h.mu.Lock()
	replaced := h.holding
	h.pred = p
	h.holding = true
	if replaced {
		h.overwrites++
	}
	h.mu.Unlock()

	if replaced {
		h.metrics.HandoffOverwrites.Add(context.Background(), 1)
	}
}

// Take returns the held prediction and empties the slot. ok is false when
// the slot was empty.
func (h *Handoff) Take() (stress.Prediction, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.holding {
		return stress.Prediction{}, false
	}
	p := h.pred
	h.pred = stress.Prediction{}
	h.holding = false
	return p, true
}

// Pending reports whether a prediction is waiting to be taken.
func (h *Handoff) Pending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.holding
}

// Overwrites returns how many predictions were replaced before being taken.
func (h *Handoff) Overwrites() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.overwrites
}
