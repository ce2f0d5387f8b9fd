// Package audio defines the audio primitives of the stresslens pipeline:
// frames delivered by a [Source], fixed-length [Chunk] windows cut by an
// [Assembler], and the PCM helpers used to get samples into a normalised
// float representation.
//
// Implementations of [Source] live in sub-packages (audio/portaudio,
// audio/wsaudio) so that device and network dependencies stay out of the
// core pipeline.
package audio

import "time"

// Frame is a block of mono samples delivered by a [Source]. Samples are
// normalised to [-1, 1]. Frames are ephemeral: the capture goroutine owns a
// frame until it has been pushed into an [Assembler].
type Frame struct {
	// Samples holds mono PCM samples in the range [-1, 1].
	Samples []float32

	// SampleRate in Hz. Must match the rate the [Assembler] was configured with.
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	return samplesDuration(len(f.Samples), f.SampleRate)
}

// Chunk is a fixed-length analysis window. Every chunk emitted by an
// [Assembler] holds exactly the configured number of samples. Chunks are
// immutable once emitted and are consumed exactly once by the inference worker.
type Chunk struct {
	// ID uniquely identifies the chunk in logs and history records.
	ID string

	// Seq is the capture order of the chunk, starting at 1.
	Seq uint64

	// Samples holds exactly sample_rate × window samples.
	Samples []float32

	// SampleRate in Hz.
	SampleRate int

	// Language is an optional language hint. Empty means "resolve it".
	Language string

	// CapturedAt is the wall-clock time at which the chunk was completed.
	CapturedAt time.Time
}

// Duration returns the playback length of the chunk.
func (c Chunk) Duration() time.Duration {
	return samplesDuration(len(c.Samples), c.SampleRate)
}

func samplesDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}
