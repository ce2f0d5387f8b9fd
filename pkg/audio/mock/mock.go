// Package mock provides an in-memory [audio.Source] for use in unit tests.
//
// The mock is safe for concurrent use. It records every method call so that
// tests can assert on call counts, and it exposes exported fields that the
// test sets to control what Read returns.
//
// Typical usage:
//
//	src := &mock.Source{Frames: frames}
//	// ... run the pipeline against src ...
//	if src.CallCountStop() != 1 { ... }
//
// Once Frames is exhausted, Read either returns ExhaustedErr (if set) or
// blocks like an idle microphone until Stop is called or ctx is cancelled.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/stresslens/pkg/audio"
)

// Source is a mock implementation of [audio.Source].
type Source struct {
	mu sync.Mutex

	// Frames are returned by successive Read calls, in order.
	Frames []audio.Frame

	// StartErr is returned by Start when non-nil.
	StartErr error

	// ReadErr, when non-nil, is returned by the Read call at index ReadErrAt
	// (zero-based) instead of a frame.
	ReadErr   error
	ReadErrAt int

	// ExhaustedErr, when non-nil, is returned by every Read after Frames
	// runs out. When nil, Read blocks until Stop or ctx cancellation.
	ExhaustedErr error

	// StopErr is returned by Stop when non-nil.
	StopErr error

	reads     int
	starts    int
	stops     int
	stopped   bool
	done      chan struct{}
	frameSize []int
}

func (s *Source) init() {
	if s.done == nil {
		s.done = make(chan struct{})
	}
}

// Start implements [audio.Source].
func (s *Source) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	s.starts++
	return s.StartErr
}

// Read implements [audio.Source].
func (s *Source) Read(ctx context.Context, frameSize int) (audio.Frame, error) {
	s.mu.Lock()
	s.init()
	idx := s.reads
	s.reads++
	s.frameSize = append(s.frameSize, frameSize)
	if s.stopped {
		s.mu.Unlock()
		return audio.Frame{}, audio.ErrSourceClosed
	}
	if s.ReadErr != nil && idx == s.ReadErrAt {
		err := s.ReadErr
		s.mu.Unlock()
		return audio.Frame{}, err
	}
	frameIdx := idx
	if s.ReadErr != nil && idx > s.ReadErrAt {
		frameIdx--
	}
	if frameIdx < len(s.Frames) {
		f := s.Frames[frameIdx]
		s.mu.Unlock()
		return f, nil
	}
	if s.ExhaustedErr != nil {
		err := s.ExhaustedErr
		s.mu.Unlock()
		return audio.Frame{}, err
	}
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		return audio.Frame{}, audio.ErrSourceClosed
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	}
}

// Stop implements [audio.Source]. It unblocks a pending Read.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	s.stops++
	if !s.stopped {
		s.stopped = true
		close(s.done)
	}
	return s.StopErr
}

// CallCountRead returns how many times Read was called.
func (s *Source) CallCountRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// CallCountStart returns how many times Start was called.
func (s *Source) CallCountStart() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// CallCountStop returns how many times Stop was called.
func (s *Source) CallCountStop() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// FrameSizes returns the frameSize argument of every Read call, in order.
func (s *Source) FrameSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.frameSize...)
}

// Ensure Source implements audio.Source at compile time.
var _ audio.Source = (*Source)(nil)

// SplitFrames splits samples into consecutive frames of frameSize samples at
// sampleRate. The last frame may be shorter.
func SplitFrames(samples []float32, frameSize, sampleRate int) []audio.Frame {
	var out []audio.Frame
	for start := 0; start < len(samples); start += frameSize {
		end := min(start+frameSize, len(samples))
		out = append(out, audio.Frame{
			Samples:    append([]float32(nil), samples[start:end]...),
			SampleRate: sampleRate,
		})
	}
	return out
}
