package audio

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// resampleQuality is the interpolation window used by beep when a recording's
// rate differs from the pipeline rate.
const resampleQuality = 4

// LoadFile decodes the WAV file at path into mono samples at sampleRate,
// reading at most maxDuration of audio (0 means the whole file).
func LoadFile(path string, sampleRate int, maxDuration time.Duration) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open %q: %w", path, err)
	}
	defer f.Close()

	samples, err := Decode(f, sampleRate, maxDuration)
	if err != nil {
		return nil, fmt.Errorf("audio: load %q: %w", path, err)
	}
	return samples, nil
}

// Decode reads a WAV stream from r and returns mono samples at sampleRate,
// stopping after maxDuration of audio when maxDuration is positive.
// Multi-channel audio is averaged down to mono.
func Decode(r io.Reader, sampleRate int, maxDuration time.Duration) ([]float32, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: decode: sample rate must be positive, got %d", sampleRate)
	}
	streamer, format, err := wav.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("audio: decode wav: %w", err)
	}
	defer streamer.Close()

	var s beep.Streamer = streamer
	target := beep.SampleRate(sampleRate)
	if format.SampleRate != target {
		s = beep.Resample(resampleQuality, format.SampleRate, target, streamer)
	}

	gain := fullScale(format.Precision)
	limit := -1
	if maxDuration > 0 {
		limit = target.N(maxDuration)
	}

	var out []float32
	buf := make([][2]float64, 1024)
	for limit < 0 || len(out) < limit {
		n, ok := s.Stream(buf)
		for i := range n {
			out = append(out, float32(gain*(buf[i][0]+buf[i][1])/2))
		}
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("audio: decode wav: stream: %w", err)
	}
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("audio: decode wav: no samples")
	}
	return out, nil
}

// fullScale returns the gain that maps beep's decoded samples onto [-1, 1].
// beep divides signed 16 and 24 bit PCM by 2^bits-1 instead of 2^(bits-1),
// so those precisions decode at half amplitude. 8 bit input is already full
// scale.
func fullScale(precision int) float64 {
	switch precision {
	case 2, 3:
		bits := uint(8 * precision)
		return float64(int64(1)<<bits-1) / float64(int64(1)<<(bits-1))
	default:
		return 1
	}
}
