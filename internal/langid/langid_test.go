package langid_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/stresslens/internal/langid"
	"github.com/MrWong99/stresslens/internal/resilience"
	"github.com/MrWong99/stresslens/pkg/audio"
	"github.com/MrWong99/stresslens/pkg/types"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		hint   string
		want   types.Language
		wantOK bool
	}{
		{"english", types.English, true},
		{"  Hindi ", types.Hindi, true},
		{"EN", types.English, true},
		{"hi_IN", types.Hindi, true},
		{"englsh", types.English, true},
		{"hindee", types.Hindi, true},
		{"हिंदी", types.Hindi, true},
		{"", "", false},
		{"klingon", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.hint, func(t *testing.T) {
			got, ok := langid.Normalize(tt.hint)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Normalize(%q) = (%q, %v), want (%q, %v)", tt.hint, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func tone(freq float64, rate, n int) audio.Chunk {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return audio.Chunk{Samples: s, SampleRate: rate}
}

func TestSpectralCentroid_PureTone(t *testing.T) {
	c := tone(1000, 22050, 22050)
	got := langid.SpectralCentroid(c.Samples, c.SampleRate)
	if math.Abs(got-1000) > 50 {
		t.Errorf("SpectralCentroid = %.1f, want ~1000", got)
	}
	if langid.SpectralCentroid(make([]float32, 4096), 22050) != 0 {
		t.Error("silence must have a zero centroid")
	}
}

func TestCentroid_Resolve(t *testing.T) {
	r := langid.NewCentroid()
	tests := []struct {
		name string
		freq float64
		want types.Language
	}{
		{"bright", 4000, types.English},
		{"dark", 300, types.Hindi},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), tone(tt.freq, 22050, 22050))
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Resolve = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestChain_FallsBack(t *testing.T) {
	calls := 0
	failing := langid.ResolverFunc(func(context.Context, audio.Chunk) (types.Language, error) {
		calls++
		return "", errors.New("service down")
	})
	chain := langid.NewChain("remote", failing, resilience.FallbackConfig{}).
		Add("static", langid.Static(types.Hindi))

	got, err := chain.Resolve(context.Background(), audio.Chunk{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != types.Hindi || calls != 1 {
		t.Errorf("got %s after %d primary calls, want hindi after 1", got, calls)
	}
}

func TestChain_AllFail(t *testing.T) {
	failing := langid.ResolverFunc(func(context.Context, audio.Chunk) (types.Language, error) {
		return "", errors.New("nope")
	})
	_, err := langid.NewChain("a", failing, resilience.FallbackConfig{}).Resolve(context.Background(), audio.Chunk{})
	if !errors.Is(err, resilience.ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
