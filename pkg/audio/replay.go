package audio

import (
	"context"
	"io"
	"sync"
	"time"
)

// ReplaySource is a [Source] that plays back a recording frame by frame.
// With Realtime set, each Read sleeps for the frame's duration so that the
// downstream pipeline sees the same cadence as a live microphone.
//
// When the recording is exhausted Read returns [io.EOF].
type ReplaySource struct {
	samples    []float32
	sampleRate int
	realtime   bool

	mu      sync.Mutex
	pos     int
	stopped bool
	done    chan struct{}
	once    sync.Once
}

// NewReplaySource returns a source replaying samples recorded at sampleRate.
func NewReplaySource(samples []float32, sampleRate int, realtime bool) *ReplaySource {
	return &ReplaySource{
		samples:    samples,
		sampleRate: sampleRate,
		realtime:   realtime,
		done:       make(chan struct{}),
	}
}

// Start implements [Source].
func (s *ReplaySource) Start(context.Context) error { return nil }

// Read implements [Source].
func (s *ReplaySource) Read(ctx context.Context, frameSize int) (Frame, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return Frame{}, ErrSourceClosed
	}
	if s.pos >= len(s.samples) {
		s.mu.Unlock()
		return Frame{}, io.EOF
	}
	end := min(s.pos+frameSize, len(s.samples))
	frame := Frame{
		Samples:    append([]float32(nil), s.samples[s.pos:end]...),
		SampleRate: s.sampleRate,
		Timestamp:  samplesDuration(s.pos, s.sampleRate),
	}
	s.pos = end
	s.mu.Unlock()

	if s.realtime {
		t := time.NewTimer(frame.Duration())
		defer t.Stop()
		select {
		case <-t.C:
		case <-s.done:
			return Frame{}, ErrSourceClosed
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		}
	}
	return frame, nil
}

// Stop implements [Source].
func (s *ReplaySource) Stop() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.done)
	})
	return nil
}

var _ Source = (*ReplaySource)(nil)
