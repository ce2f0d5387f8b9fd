package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/MrWong99/stresslens/internal/pipeline"
	"github.com/MrWong99/stresslens/internal/stress"
	"github.com/MrWong99/stresslens/pkg/types"
)

func prediction(label types.Label, maxProb float64) stress.Prediction {
	rest := (1 - maxProb) / 3
	probs := map[types.Label]float64{}
	for _, l := range types.Labels {
		probs[l] = rest
	}
	probs[label] = maxProb
	return stress.Prediction{ChunkID: "c1", Seq: 1, Label: label, Probabilities: probs, Language: types.English, ModelQuality: 0.80}
}

func TestRecommender_SurfaceDeliversToAllSinks(t *testing.T) {
	errSink := errors.New("sink offline")
	good := &recordingSink{}
	failing := pipeline.SinkFunc(func(context.Context, stress.Recommendation) error { return errSink })
	r := newRecommender(t, failing, good)

	rec, err := r.Surface(context.Background(), prediction(types.HighStress, 0.9))
	if !errors.Is(err, errSink) {
		t.Fatalf("err = %v, want the sink error", err)
	}
	if rec.ID == "" {
		t.Fatal("recommendation not returned alongside sink error")
	}
	if len(good.all()) != 1 {
		t.Fatal("failing sink stopped delivery to the next one")
	}
}

func TestRecommender_TiersFollowThresholds(t *testing.T) {
	r := newRecommender(t)
	tests := []struct {
		maxProb float64
		want    stress.Tier
	}{
		{0.90, stress.TierHigh},
		{0.60, stress.TierMedium},
		{0.40, stress.TierLow},
	}
	for _, tt := range tests {
		rec, err := r.Recommend(context.Background(), prediction(types.LowStress, tt.maxProb))
		if err != nil {
			t.Fatalf("Recommend: %v", err)
		}
		if rec.Tier != tt.want {
			t.Errorf("max %v: Tier = %q, want %q", tt.maxProb, rec.Tier, tt.want)
		}
	}

	if err := r.Aggregator().SetThresholds(stress.Thresholds{High: 0.95, Medium: 0.9}); err != nil {
		t.Fatalf("SetThresholds: %v", err)
	}
	rec, _ := r.Recommend(context.Background(), prediction(types.LowStress, 0.90))
	if rec.Tier != stress.TierLow {
		t.Errorf("after reload Tier = %q, want low", rec.Tier)
	}
}

func TestLogSink_WarnsOnHighestSeverity(t *testing.T) {
	var buf bytes.Buffer
	sink := pipeline.LogSink{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	r := newRecommender(t, sink)

	if _, err := r.Surface(context.Background(), prediction(types.HighStress, 0.9)); err != nil {
		t.Fatalf("Surface: %v", err)
	}
	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "label=high_stress") {
		t.Errorf("log = %q", buf.String())
	}
}

func TestWriterSink_PrintsReport(t *testing.T) {
	var buf bytes.Buffer
	r := newRecommender(t, &pipeline.WriterSink{W: &buf})
	if _, err := r.Surface(context.Background(), prediction(types.NoStress, 0.9)); err != nil {
		t.Fatalf("Surface: %v", err)
	}
	if !strings.Contains(buf.String(), "NO STRESS") {
		t.Errorf("report = %q, want the stress level headline", buf.String())
	}
}
