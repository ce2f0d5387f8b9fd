// Package wsaudio provides an [audio.Source] fed by a WebSocket client.
//
// The Source is an [http.Handler]. Mount it on the HTTP server and point a
// capture client at it: every binary message is little-endian int16 PCM at
// the configured input rate and channel count, resampled to the pipeline rate
// when the two differ. Text messages are rejected.
// Only one client may stream at a time; a second connection receives
// 409 Conflict.
package wsaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/stresslens/pkg/audio"
	"github.com/coder/websocket"
)

const defaultBuffer = 64

// Option is a functional option for configuring the Source.
type Option func(*Source)

// WithChannels sets the number of interleaved channels in incoming PCM.
// Multi-channel audio is averaged down to mono.
func WithChannels(n int) Option {
	return func(s *Source) {
		s.channels = n
	}
}

// WithInputRate declares the rate clients stream at when it differs from the
// pipeline rate. Each message is resampled on arrival.
func WithInputRate(rate int) Option {
	return func(s *Source) {
		s.inputRate = rate
	}
}

// WithBuffer sets how many decoded messages may be queued before the
// connection stops reading and back-pressure reaches the client.
func WithBuffer(n int) Option {
	return func(s *Source) {
		s.buffer = n
	}
}

// WithOriginPatterns sets the host patterns allowed to connect cross-origin.
// See [websocket.AcceptOptions].
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Source) {
		s.originPatterns = patterns
	}
}

// Source implements [audio.Source] on top of incoming WebSocket messages.
type Source struct {
	sampleRate     int
	inputRate      int
	channels       int
	buffer         int
	originPatterns []string

	blocks chan []float32
	done   chan struct{}
	once   sync.Once

	mu        sync.Mutex
	connected bool

	// Owned by the Read goroutine.
	pending   []float32
	delivered int
}

// New creates a Source expecting PCM at sampleRate.
func New(sampleRate int, opts ...Option) (*Source, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("wsaudio: sample rate must be positive, got %d", sampleRate)
	}
	s := &Source{
		sampleRate: sampleRate,
		channels:   1,
		buffer:     defaultBuffer,
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.channels <= 0 {
		return nil, fmt.Errorf("wsaudio: channels must be positive, got %d", s.channels)
	}
	if s.inputRate < 0 {
		return nil, fmt.Errorf("wsaudio: input rate must not be negative, got %d", s.inputRate)
	}
	if s.inputRate == 0 {
		s.inputRate = sampleRate
	}
	if s.buffer <= 0 {
		s.buffer = defaultBuffer
	}
	s.blocks = make(chan []float32, s.buffer)
	return s, nil
}

// Start implements [audio.Source]. The Source is passive: frames arrive once
// a client connects to ServeHTTP.
func (s *Source) Start(context.Context) error {
	select {
	case <-s.done:
		return audio.ErrSourceClosed
	default:
		return nil
	}
}

// Read implements [audio.Source]. It returns at most frameSize samples; a
// frame never spans two WebSocket messages.
func (s *Source) Read(ctx context.Context, frameSize int) (audio.Frame, error) {
	if frameSize <= 0 {
		return audio.Frame{}, fmt.Errorf("wsaudio: frame size must be positive, got %d", frameSize)
	}
	for len(s.pending) == 0 {
		select {
		case b := <-s.blocks:
			s.pending = b
		case <-s.done:
			return audio.Frame{}, audio.ErrSourceClosed
		case <-ctx.Done():
			return audio.Frame{}, ctx.Err()
		}
	}

	n := min(frameSize, len(s.pending))
	f := audio.Frame{
		Samples:    s.pending[:n:n],
		SampleRate: s.sampleRate,
		Timestamp:  time.Duration(s.delivered) * time.Second / time.Duration(s.sampleRate),
	}
	s.pending = s.pending[n:]
	s.delivered += n
	return f, nil
}

// Stop implements [audio.Source]. It unblocks Read and disconnects the
// current client.
func (s *Source) Stop() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// Connected reports whether a client is currently streaming.
func (s *Source) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// ServeHTTP accepts a single streaming client.
func (s *Source) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.done:
		http.Error(w, "audio source stopped", http.StatusServiceUnavailable)
		return
	default:
	}

	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		http.Error(w, "another client is already streaming", http.StatusConflict)
		return
	}
	s.connected = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
	}()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		slog.Warn("wsaudio: accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Info("wsaudio: client connected", "remote", r.RemoteAddr)
	err = s.readLoop(ctx, conn)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusGoingAway, "source stopped")
	case websocket.CloseStatus(err) != -1:
		// Client closed the connection.
	default:
		slog.Warn("wsaudio: stream ended", "remote", r.RemoteAddr, "err", err)
	}
	slog.Info("wsaudio: client disconnected", "remote", r.RemoteAddr)
}

func (s *Source) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageBinary {
			conn.Close(websocket.StatusUnsupportedData, "expected binary PCM16")
			return nil
		}
		samples, err := audio.DecodePCM16(data, s.channels)
		if err != nil {
			conn.Close(websocket.StatusInvalidFramePayloadData, err.Error())
			return nil
		}
		samples = audio.Resample(samples, s.inputRate, s.sampleRate)
		if len(samples) == 0 {
			continue
		}
		select {
		case s.blocks <- samples:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

var _ audio.Source = (*Source)(nil)
