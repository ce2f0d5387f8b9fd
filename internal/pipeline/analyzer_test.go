package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/MrWong99/stresslens/internal/pipeline"
	"github.com/MrWong99/stresslens/internal/remedy"
	"github.com/MrWong99/stresslens/internal/stress"
	"github.com/MrWong99/stresslens/pkg/audio"
	"github.com/MrWong99/stresslens/pkg/types"
)

func writeWAV(t *testing.T, samples []float32) string {
	t.Helper()
	data, err := audio.EncodeWAV(samples, testRate)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestAnalyzeFile_HighStressEnglish(t *testing.T) {
	ext, cls := newMocks(result(types.HighStress, 0.02, 0.03, 0.05, 0.90))
	sink := &recordingSink{}
	a := pipeline.NewAnalyzer(newWorker(t, ext, cls, 0), newRecommender(t, sink), testRate, testWindow)

	// One second of audio is zero-padded to the three second window.
	rec, err := a.AnalyzeFile(context.Background(), writeWAV(t, ramp(testRate)), "english")
	if err != nil {
		t.Fatalf("AnalyzeFile: %v", err)
	}

	if rec.Label != types.HighStress || rec.Language != types.English {
		t.Fatalf("recommendation = %s", rec)
	}
	if rec.Tier != stress.TierHigh {
		t.Errorf("Tier = %q, want high", rec.Tier)
	}
	if rec.CombinedConfidence < 0.849 || rec.CombinedConfidence > 0.851 {
		t.Errorf("CombinedConfidence = %v, want 0.85", rec.CombinedConfidence)
	}
	if len(rec.Remedies) != 3 {
		t.Fatalf("remedies = %d, want 3", len(rec.Remedies))
	}
	cat, _ := remedy.Default()
	pool := cat.Pool(types.HighStress, types.English)
	for _, r := range rec.Remedies {
		if !slices.Contains(pool, r) {
			t.Errorf("remedy %q not in the English high-stress pool", r)
		}
	}
	for _, key := range []string{remedy.InfoUrgentNote, remedy.InfoEmergencyContacts} {
		if _, ok := rec.AdditionalInfo[key]; !ok {
			t.Errorf("AdditionalInfo missing %q", key)
		}
	}

	calls := ext.Calls()
	if len(calls) != 1 || calls[0].Samples != testSize {
		t.Errorf("extract calls = %+v, want one call with %d samples", calls, testSize)
	}
	if got := sink.all(); len(got) != 1 || got[0].ID != rec.ID {
		t.Errorf("sink received %d recommendations, want the returned one", len(got))
	}
}

func TestAnalyze_LowConfidenceHindi(t *testing.T) {
	ext, cls := newMocks(result(types.MediumStress, 0.25, 0.20, 0.40, 0.15))
	a := pipeline.NewAnalyzer(newWorker(t, ext, cls, 0), newRecommender(t), testRate, testWindow)

	data, err := audio.EncodeWAV(ramp(5*testRate), testRate)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	rec, err := a.Analyze(context.Background(), bytes.NewReader(data), "hi")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if rec.Tier != stress.TierLow {
		t.Fatalf("Tier = %q, want low (combined %v)", rec.Tier, rec.CombinedConfidence)
	}
	if rec.Language != types.Hindi {
		t.Errorf("Language = %q, want hindi", rec.Language)
	}
	if len(rec.Remedies) != 1 {
		t.Fatalf("remedies = %d, want 1", len(rec.Remedies))
	}
	cat, _ := remedy.Default()
	allowed := append(cat.Pool(types.MediumStress, types.Hindi), cat.Fallbacks(types.Hindi)...)
	if !slices.Contains(allowed, rec.Remedies[0]) {
		t.Errorf("remedy %q is not a Hindi medium-stress remedy or fallback", rec.Remedies[0])
	}
	if _, ok := rec.AdditionalInfo[remedy.InfoNote]; !ok {
		t.Error("low-confidence note missing")
	}
	if _, ok := rec.AdditionalInfo[remedy.InfoUrgentNote]; ok {
		t.Error("urgent note present for a non-highest label")
	}
	if calls := ext.Calls(); calls[0].Samples != testSize {
		t.Errorf("extracted %d samples, want trimmed to %d", calls[0].Samples, testSize)
	}
}

func TestAnalyze_Errors(t *testing.T) {
	ext, cls := newMocks(result(types.NoStress, 0.7, 0.1, 0.1, 0.1))
	a := pipeline.NewAnalyzer(newWorker(t, ext, cls, 0), newRecommender(t), testRate, testWindow)

	if _, err := a.AnalyzeFile(context.Background(), filepath.Join(t.TempDir(), "missing.wav"), ""); err == nil {
		t.Error("AnalyzeFile on a missing file succeeded")
	}
	if _, err := a.Analyze(context.Background(), bytes.NewReader([]byte("not a wav file")), ""); err == nil {
		t.Error("Analyze on garbage succeeded")
	}

	ext.ExtractErr = errors.New("boom")
	data, _ := audio.EncodeWAV(ramp(testRate), testRate)
	_, err := a.Analyze(context.Background(), bytes.NewReader(data), "en")
	var ie *stress.InferenceError
	if !errors.As(err, &ie) || ie.Stage != stress.StageExtract {
		t.Errorf("err = %v, want extract InferenceError", err)
	}
}
