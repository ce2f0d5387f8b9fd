package audio_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/MrWong99/stresslens/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestDecodePCM16_Mono(t *testing.T) {
	got, err := audio.DecodePCM16(samplesToBytes([]int16{0, 16384, -32768}), 1)
	if err != nil {
		t.Fatalf("DecodePCM16: %v", err)
	}
	want := []float32{0, 0.5, -1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDecodePCM16_StereoDownmix(t *testing.T) {
	// Two stereo frames: L=16384,R=0 and L=-16384,R=-16384.
	got, err := audio.DecodePCM16(samplesToBytes([]int16{16384, 0, -16384, -16384}), 2)
	if err != nil {
		t.Fatalf("DecodePCM16: %v", err)
	}
	want := []float32{0.25, -0.5}
	if len(got) != len(want) {
		t.Fatalf("length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDecodePCM16_RejectsPartialFrame(t *testing.T) {
	if _, err := audio.DecodePCM16([]byte{1, 2, 3}, 1); err == nil {
		t.Fatal("expected error for odd byte count")
	}
	if _, err := audio.DecodePCM16([]byte{1, 2}, 2); err == nil {
		t.Fatal("expected error for incomplete stereo frame")
	}
}

func TestEncodePCM16_Clamps(t *testing.T) {
	pcm := audio.EncodePCM16([]float32{2, -2, 0})
	got := []int16{
		int16(binary.LittleEndian.Uint16(pcm[0:])),
		int16(binary.LittleEndian.Uint16(pcm[2:])),
		int16(binary.LittleEndian.Uint16(pcm[4:])),
	}
	want := []int16{32767, -32768, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestNormalize(t *testing.T) {
	s := []float32{0.1, -0.25, 0.2}
	audio.Normalize(s)
	if s[1] != -1 {
		t.Errorf("peak sample = %v, want -1", s[1])
	}
	if math.Abs(float64(s[0]-0.4)) > 1e-6 {
		t.Errorf("s[0] = %v, want 0.4", s[0])
	}

	silent := []float32{0, 0}
	audio.Normalize(silent)
	if silent[0] != 0 || silent[1] != 0 {
		t.Errorf("silent input changed: %v", silent)
	}
}

func TestFitLength(t *testing.T) {
	in := []float32{1, 2, 3}
	if got := audio.FitLength(in, 5); len(got) != 5 || got[2] != 3 || got[4] != 0 {
		t.Errorf("pad: got %v", got)
	}
	if got := audio.FitLength(in, 2); len(got) != 2 || got[1] != 2 {
		t.Errorf("trim: got %v", got)
	}
}

func TestResample(t *testing.T) {
	in := []float32{0, 1, 0, -1}
	if got := audio.Resample(in, 8000, 8000); len(got) != 4 {
		t.Errorf("same rate: len = %d, want 4", len(got))
	}
	up := audio.Resample(in, 8000, 16000)
	if len(up) != 8 {
		t.Fatalf("upsample: len = %d, want 8", len(up))
	}
	if up[1] != 0.5 {
		t.Errorf("interpolated sample = %v, want 0.5", up[1])
	}
	if down := audio.Resample(in, 16000, 8000); len(down) != 2 {
		t.Errorf("downsample: len = %d, want 2", len(down))
	}
}
