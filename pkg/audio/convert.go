package audio

import (
	"fmt"
	"math"
)

// DecodePCM16 converts little-endian int16 PCM into mono float samples in
// [-1, 1]. Interleaved multi-channel input is averaged down to mono.
// It returns an error when the byte count is not a whole number of frames.
func DecodePCM16(pcm []byte, channels int) ([]float32, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("audio: decode pcm16: channels must be positive, got %d", channels)
	}
	frameBytes := 2 * channels
	if len(pcm)%frameBytes != 0 {
		return nil, fmt.Errorf("audio: decode pcm16: %d bytes is not a multiple of %d", len(pcm), frameBytes)
	}
	frames := len(pcm) / frameBytes
	out := make([]float32, frames)
	for i := range frames {
		var sum int32
		for ch := range channels {
			off := i*frameBytes + ch*2
			sum += int32(int16(pcm[off]) | int16(pcm[off+1])<<8)
		}
		out[i] = float32(sum) / float32(channels) / 32768
	}
	return out, nil
}

// EncodePCM16 converts float samples to little-endian int16 PCM, clamping
// values outside [-1, 1].
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(math.Round(float64(s) * 32767))
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// Normalize scales samples in place so that the peak absolute amplitude is 1.
// Silent input is left unchanged.
func Normalize(samples []float32) {
	var peak float32
	for _, s := range samples {
		if a := float32(math.Abs(float64(s))); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return
	}
	for i := range samples {
		samples[i] /= peak
	}
}

// FitLength returns samples trimmed or zero-padded to exactly n samples.
// The input slice is not modified.
func FitLength(samples []float32, n int) []float32 {
	out := make([]float32, n)
	copy(out, samples)
	return out
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. If the rates match, the input is returned unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}
