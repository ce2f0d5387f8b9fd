//go:build portaudio

// Package portaudio provides an [audio.Source] backed by the default input
// device through PortAudio. Build with -tags portaudio; the PortAudio C
// library must be installed.
package portaudio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/stresslens/pkg/audio"
	"github.com/gordonklaus/portaudio"
)

// Source captures mono float32 audio from the default input device.
//
// The device delivers fixed-size buffers of FramesPerBuffer samples; the
// frameSize argument of Read is advisory and a frame always holds one
// device buffer.
type Source struct {
	sampleRate      int
	framesPerBuffer int

	mu      sync.Mutex
	stream  *portaudio.Stream
	started bool

	frames chan audio.Frame
	errs   chan error
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// New creates a Source recording at sampleRate in buffers of framesPerBuffer
// samples.
func New(sampleRate, framesPerBuffer int) (*Source, error) {
	if sampleRate <= 0 || framesPerBuffer <= 0 {
		return nil, fmt.Errorf("portaudio: sample rate and frames per buffer must be positive")
	}
	return &Source{
		sampleRate:      sampleRate,
		framesPerBuffer: framesPerBuffer,
		frames:          make(chan audio.Frame, 16),
		errs:            make(chan error, 1),
		done:            make(chan struct{}),
	}, nil
}

// Start implements [audio.Source]. It opens the default input stream and
// begins reading device buffers in the background.
func (s *Source) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return &audio.CaptureError{Op: "initialize", Err: err}
	}
	in := make([]float32, s.framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(s.sampleRate), s.framesPerBuffer, in)
	if err != nil {
		portaudio.Terminate()
		return &audio.CaptureError{Op: "open stream", Err: err}
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return &audio.CaptureError{Op: "start stream", Err: err}
	}
	s.stream = stream
	s.started = true

	s.wg.Add(1)
	go s.captureLoop(stream, in)
	return nil
}

func (s *Source) captureLoop(stream *portaudio.Stream, in []float32) {
	defer s.wg.Done()
	var delivered int
	for {
		select {
		case <-s.done:
			return
		default:
		}
		if err := stream.Read(); err != nil {
			select {
			case s.errs <- &audio.CaptureError{Op: "read", Err: err}:
			default:
			}
			return
		}
		f := audio.Frame{
			Samples:    append([]float32(nil), in...),
			SampleRate: s.sampleRate,
			Timestamp:  time.Duration(delivered) * time.Second / time.Duration(s.sampleRate),
		}
		delivered += len(in)
		select {
		case s.frames <- f:
		case <-s.done:
			return
		}
	}
}

// Read implements [audio.Source].
func (s *Source) Read(ctx context.Context, _ int) (audio.Frame, error) {
	select {
	case f := <-s.frames:
		return f, nil
	case err := <-s.errs:
		return audio.Frame{}, err
	case <-s.done:
		return audio.Frame{}, audio.ErrSourceClosed
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	}
}

// Stop implements [audio.Source]. It waits for the in-flight device read to
// finish before releasing the stream.
func (s *Source) Stop() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.stream == nil {
			return
		}
		if e := s.stream.Stop(); e != nil {
			err = &audio.CaptureError{Op: "stop stream", Err: e}
		}
		s.stream.Close()
		s.stream = nil
		portaudio.Terminate()
	})
	return err
}

var _ audio.Source = (*Source)(nil)
