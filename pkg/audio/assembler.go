package audio

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// AssemblerConfig configures an [Assembler].
type AssemblerConfig struct {
	// SampleRate in Hz. Frames with a different rate are rejected.
	SampleRate int

	// Window is the duration of one chunk (e.g. 3s).
	Window time.Duration

	// Language is an optional hint stamped on every emitted chunk.
	Language string
}

// ChunkSize returns the number of samples in one window of the given duration.
func ChunkSize(sampleRate int, window time.Duration) int {
	return int(math.Round(float64(sampleRate) * window.Seconds()))
}

// Assembler accumulates frames into fixed-size, non-overlapping chunks.
//
// Samples are cut from the front of an internal buffer (FIFO); whatever does
// not fill a whole window stays buffered for the next one. A chunk is never
// shorter than the configured size: the trailing partial window is dropped
// by [Assembler.Discard] at shutdown.
//
// An Assembler is owned by the capture goroutine and is not safe for
// concurrent use.
type Assembler struct {
	cfg  AssemblerConfig
	size int
	buf  []float32
	seq  uint64

	now   func() time.Time
	newID func() string
}

// NewAssembler returns an Assembler cutting windows of cfg.Window at
// cfg.SampleRate. It returns an error if the resulting chunk size is not
// positive.
func NewAssembler(cfg AssemblerConfig) (*Assembler, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: assembler: sample rate must be positive, got %d", cfg.SampleRate)
	}
	size := ChunkSize(cfg.SampleRate, cfg.Window)
	if size <= 0 {
		return nil, fmt.Errorf("audio: assembler: window %s yields no samples at %d Hz", cfg.Window, cfg.SampleRate)
	}
	return &Assembler{
		cfg:   cfg,
		size:  size,
		buf:   make([]float32, 0, size*2),
		now:   time.Now,
		newID: uuid.NewString,
	}, nil
}

// Size returns the number of samples in every emitted chunk.
func (a *Assembler) Size() int { return a.size }

// Pending returns the number of buffered samples not yet emitted.
func (a *Assembler) Pending() int { return len(a.buf) }

// Push appends the frame's samples to the buffer. When at least one full
// window is buffered it slices off and returns the oldest one with ok=true.
// Frames larger than a window may leave further complete windows buffered;
// collect them with [Assembler.Ready].
//
// Malformed frames are rejected with an [*AssemblyError] and leave the buffer
// untouched.
func (a *Assembler) Push(f Frame) (Chunk, bool, error) {
	if err := a.validate(f); err != nil {
		return Chunk{}, false, err
	}
	a.buf = append(a.buf, f.Samples...)
	c, ok := a.Ready()
	return c, ok, nil
}

// Ready returns the next complete window if one is buffered.
func (a *Assembler) Ready() (Chunk, bool) {
	if len(a.buf) < a.size {
		return Chunk{}, false
	}
	samples := make([]float32, a.size)
	copy(samples, a.buf[:a.size])

	// Shift the remainder to the front so the backing array does not grow
	// without bound over a long capture.
	n := copy(a.buf, a.buf[a.size:])
	a.buf = a.buf[:n]

	a.seq++
	return Chunk{
		ID:         a.newID(),
		Seq:        a.seq,
		Samples:    samples,
		SampleRate: a.cfg.SampleRate,
		Language:   a.cfg.Language,
		CapturedAt: a.now(),
	}, true
}

// Discard drops the buffered partial window and returns the number of
// samples dropped. Truncated audio is never emitted.
func (a *Assembler) Discard() int {
	n := len(a.buf)
	a.buf = a.buf[:0]
	return n
}

func (a *Assembler) validate(f Frame) error {
	if len(f.Samples) == 0 {
		return &AssemblyError{Reason: "empty frame"}
	}
	if f.SampleRate != a.cfg.SampleRate {
		return &AssemblyError{Reason: fmt.Sprintf("sample rate %d Hz does not match %d Hz", f.SampleRate, a.cfg.SampleRate)}
	}
	for i, s := range f.Samples {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			return &AssemblyError{Reason: fmt.Sprintf("non-finite sample at index %d", i)}
		}
	}
	return nil
}
