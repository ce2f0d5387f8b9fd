// Package energy provides a pure-Go time-domain feature extractor.
//
// It frames the chunk, measures loudness, zero-crossing rate and an
// autocorrelation pitch track per frame, and summarises them into a fixed
// schema that ends with the one-hot language columns. It needs no external
// service and is the default extractor of the built-in model bundle.
package energy

import (
	"context"
	"fmt"
	"math"

	"github.com/MrWong99/stresslens/pkg/audio"
	"github.com/MrWong99/stresslens/pkg/provider/features"
	"github.com/MrWong99/stresslens/pkg/types"
)

const (
	defaultFrameLength = 1024
	defaultHop         = 512

	minPitchHz = 60
	maxPitchHz = 400

	// silenceFraction of the loudest frame's RMS below which a frame counts
	// as silent.
	silenceFraction = 0.1

	// voicingThreshold is the minimum normalised autocorrelation peak for a
	// frame to count as voiced.
	voicingThreshold = 0.3
)

var baseNames = []string{
	"rms_mean",
	"rms_std",
	"rms_max",
	"zcr_mean",
	"zcr_std",
	"peak_amplitude",
	"crest_factor",
	"energy_entropy",
	"silence_ratio",
	"dynamic_range_db",
	"pitch_mean",
	"pitch_std",
	"voiced_ratio",
}

// Option is a functional option for configuring the Extractor.
type Option func(*Extractor)

// WithFrameLength sets the analysis frame length in samples.
func WithFrameLength(n int) Option {
	return func(e *Extractor) {
		e.frameLength = n
	}
}

// WithHop sets the distance between consecutive analysis frames in samples.
func WithHop(n int) Option {
	return func(e *Extractor) {
		e.hop = n
	}
}

// Extractor implements features.Extractor.
type Extractor struct {
	sampleRate  int
	sampleCount int
	frameLength int
	hop         int
	names       []string
}

// New creates an Extractor for chunks of sampleCount samples at sampleRate.
func New(sampleRate, sampleCount int, opts ...Option) (*Extractor, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate must be positive, got %d", sampleRate)
	}
	e := &Extractor{
		sampleRate:  sampleRate,
		sampleCount: sampleCount,
		frameLength: defaultFrameLength,
		hop:         defaultHop,
	}
	for _, o := range opts {
		o(e)
	}
	if e.frameLength <= 0 || e.hop <= 0 {
		return nil, fmt.Errorf("energy: frame length and hop must be positive")
	}
	if sampleCount < e.frameLength {
		return nil, fmt.Errorf("energy: chunk of %d samples is shorter than one frame (%d)", sampleCount, e.frameLength)
	}
	e.names = append(append([]string(nil), baseNames...), features.LanguageColumns()...)
	return e, nil
}

// Names implements features.Extractor.
func (e *Extractor) Names() []string { return append([]string(nil), e.names...) }

// SampleCount implements features.Extractor.
func (e *Extractor) SampleCount() int { return e.sampleCount }

// Extract implements features.Extractor.
func (e *Extractor) Extract(ctx context.Context, chunk audio.Chunk, language types.Language) (features.Vector, error) {
	if err := features.CheckLength(chunk, e.sampleCount); err != nil {
		return features.Vector{}, fmt.Errorf("energy: %w", err)
	}
	if chunk.SampleRate != e.sampleRate {
		return features.Vector{}, fmt.Errorf("energy: chunk sample rate %d Hz, extractor expects %d Hz", chunk.SampleRate, e.sampleRate)
	}

	x := chunk.Samples
	nFrames := 1 + (len(x)-e.frameLength)/e.hop
	rms := make([]float64, nFrames)
	zcr := make([]float64, nFrames)
	var pitches []float64

	for i := range nFrames {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return features.Vector{}, err
			}
		}
		frame := x[i*e.hop : i*e.hop+e.frameLength]
		rms[i] = frameRMS(frame)
		zcr[i] = zeroCrossingRate(frame)
		if f0, ok := e.pitch(frame); ok {
			pitches = append(pitches, f0)
		}
	}

	rmsMean, rmsStd := meanStd(rms)
	rmsMax := maxOf(rms)
	zcrMean, zcrStd := meanStd(zcr)

	var peak float64
	for _, s := range x {
		peak = math.Max(peak, math.Abs(float64(s)))
	}
	overall := frameRMS(x)
	crest := 0.0
	if overall > 0 {
		crest = peak / overall
	}

	silent := 0
	for _, r := range rms {
		if r < silenceFraction*rmsMax {
			silent++
		}
	}

	pitchMean, pitchStd := meanStd(pitches)

	values := []float64{
		rmsMean,
		rmsStd,
		rmsMax,
		zcrMean,
		zcrStd,
		peak,
		crest,
		entropy(rms),
		float64(silent) / float64(nFrames),
		dynamicRangeDB(rms),
		pitchMean,
		pitchStd,
		float64(len(pitches)) / float64(nFrames),
	}
	values = append(values, features.OneHot(language)...)

	return features.Vector{
		Names:    e.Names(),
		Values:   values,
		Language: language,
	}, nil
}

// pitch estimates the fundamental frequency of frame by normalised
// autocorrelation over the speech range. ok is false for unvoiced frames.
func (e *Extractor) pitch(frame []float32) (float64, bool) {
	minLag := e.sampleRate / maxPitchHz
	maxLag := min(e.sampleRate/minPitchHz, len(frame)-1)
	if minLag < 1 || minLag >= maxLag {
		return 0, false
	}

	var r0 float64
	for _, s := range frame {
		r0 += float64(s) * float64(s)
	}
	if r0 == 0 {
		return 0, false
	}

	bestLag, best := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var r float64
		for i := 0; i+lag < len(frame); i++ {
			r += float64(frame[i]) * float64(frame[i+lag])
		}
		if r > best {
			best, bestLag = r, lag
		}
	}
	if bestLag == 0 || best/r0 < voicingThreshold {
		return 0, false
	}
	return float64(e.sampleRate) / float64(bestLag), true
}

func frameRMS(x []float32) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, s := range x {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(x)))
}

func zeroCrossingRate(x []float32) float64 {
	if len(x) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(x); i++ {
		if (x[i-1] >= 0) != (x[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(x)-1)
}

func meanStd(v []float64) (mean, std float64) {
	if len(v) == 0 {
		return 0, 0
	}
	for _, x := range v {
		mean += x
	}
	mean /= float64(len(v))
	for _, x := range v {
		std += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(std / float64(len(v)))
}

func maxOf(v []float64) float64 {
	var m float64
	for _, x := range v {
		m = math.Max(m, x)
	}
	return m
}

// entropy is the Shannon entropy (bits) of the frame energy distribution.
func entropy(rms []float64) float64 {
	var total float64
	for _, r := range rms {
		total += r * r
	}
	if total == 0 {
		return 0
	}
	var h float64
	for _, r := range rms {
		p := r * r / total
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return h
}

// dynamicRangeDB is the ratio of the loudest to the quietest non-silent frame.
func dynamicRangeDB(rms []float64) float64 {
	hi := maxOf(rms)
	if hi == 0 {
		return 0
	}
	lo := hi
	for _, r := range rms {
		if r > 0 && r < lo {
			lo = r
		}
	}
	return 20 * math.Log10(hi/lo)
}

var _ features.Extractor = (*Extractor)(nil)
