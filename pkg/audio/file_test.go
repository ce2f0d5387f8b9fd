package audio_test

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/stresslens/pkg/audio"
)

func sine(n, rate int, freq float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestEncodeWAV_Header(t *testing.T) {
	data, err := audio.EncodeWAV(sine(100, 8000, 440), 8000)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if len(data) != 44+200 {
		t.Fatalf("len = %d, want 244", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[36:40]) != "data" {
		t.Errorf("unexpected header %q", data[:44])
	}
	if _, err := audio.EncodeWAV(nil, 8000); err == nil {
		t.Error("expected error for empty samples")
	}
}

func TestDecode_WAVFromEncoder(t *testing.T) {
	want := sine(8000, 8000, 220)
	data, err := audio.EncodeWAV(want, 8000)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}

	got, err := audio.Decode(bytes.NewReader(data), 8000, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-3 {
			t.Fatalf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLoadFile_LimitsDurationAndResamples(t *testing.T) {
	data, err := audio.EncodeWAV(sine(16000, 8000, 220), 8000) // 2s
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := audio.LoadFile(path, 16000, time.Second)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(got) != 16000 {
		t.Errorf("len = %d, want 16000 (1s at 16kHz)", len(got))
	}
}

func TestLoadFile_KeepsAmplitude(t *testing.T) {
	tests := []struct {
		name string
		peak float32
	}{
		{"half scale", 0.5},
		{"near full scale", 0.99},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := make([]float32, 800)
			for i := range samples {
				samples[i] = tt.peak
				if i%2 == 1 {
					samples[i] = -tt.peak
				}
			}
			data, err := audio.EncodeWAV(samples, 8000)
			if err != nil {
				t.Fatalf("EncodeWAV: %v", err)
			}
			path := filepath.Join(t.TempDir(), "square.wav")
			if err := os.WriteFile(path, data, 0o644); err != nil {
				t.Fatal(err)
			}

			got, err := audio.LoadFile(path, 8000, 0)
			if err != nil {
				t.Fatalf("LoadFile: %v", err)
			}
			var peak float32
			for _, s := range got {
				peak = max(peak, s, -s)
			}
			if math.Abs(float64(peak-tt.peak)) > 1e-3 {
				t.Errorf("peak = %v, want %v", peak, tt.peak)
			}
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := audio.LoadFile(filepath.Join(t.TempDir(), "nope.wav"), 8000, 0); err == nil {
		t.Fatal("expected error for missing file")
	}
}
