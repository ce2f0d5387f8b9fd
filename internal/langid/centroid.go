package langid

import (
	"context"
	"math"
	"math/cmplx"

	"github.com/MrWong99/stresslens/pkg/audio"
	"github.com/MrWong99/stresslens/pkg/types"
)

// DefaultCentroidThreshold splits English from Hindi by mean spectral
// centroid in Hz.
const DefaultCentroidThreshold = 2000.0

const (
	centroidFrame = 2048
	centroidHop   = 512
)

// Centroid resolves English when the chunk's mean spectral centroid exceeds
// Threshold and Hindi otherwise. It is a placeholder heuristic.
type Centroid struct {
	Threshold float64
}

// NewCentroid returns a Centroid resolver with the default threshold.
func NewCentroid() *Centroid {
	return &Centroid{Threshold: DefaultCentroidThreshold}
}

// Resolve implements Resolver.
func (c *Centroid) Resolve(ctx context.Context, chunk audio.Chunk) (types.Language, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if SpectralCentroid(chunk.Samples, chunk.SampleRate) > c.Threshold {
		return types.English, nil
	}
	return types.Hindi, nil
}

// SpectralCentroid returns the mean over Hann-windowed frames of the
// magnitude-weighted mean frequency, in Hz. Silent frames count as 0 Hz.
func SpectralCentroid(samples []float32, sampleRate int) float64 {
	if len(samples) == 0 || sampleRate <= 0 {
		return 0
	}
	n := centroidFrame
	for n > len(samples) && n > 2 {
		n /= 2
	}
	window := hann(n)
	buf := make([]complex128, n)
	binHz := float64(sampleRate) / float64(n)

	var sum float64
	frames := 0
	for start := 0; start+n <= len(samples); start += centroidHop {
		for i := range n {
			buf[i] = complex(float64(samples[start+i])*window[i], 0)
		}
		fft(buf)

		var num, den float64
		for k := 0; k <= n/2; k++ {
			mag := cmplx.Abs(buf[k])
			num += float64(k) * binHz * mag
			den += mag
		}
		if den > 0 {
			sum += num / den
		}
		frames++
	}
	if frames == 0 {
		return 0
	}
	return sum / float64(frames)
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// fft is an in-place iterative radix-2 Cooley-Tukey transform. len(x) must
// be a power of two.
func fft(x []complex128) {
	n := len(x)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j |= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}
	for size := 2; size <= n; size <<= 1 {
		step := cmplx.Exp(complex(0, -2*math.Pi/float64(size)))
		for start := 0; start < n; start += size {
			w := complex(1, 0)
			for k := range size / 2 {
				a := x[start+k]
				b := x[start+k+size/2] * w
				x[start+k] = a + b
				x[start+k+size/2] = a - b
				w *= step
			}
		}
	}
}
