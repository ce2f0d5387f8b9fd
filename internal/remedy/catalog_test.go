package remedy_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/stresslens/internal/remedy"
	"github.com/MrWong99/stresslens/internal/stress"
	"github.com/MrWong99/stresslens/pkg/types"
)

func defaultCatalog(t *testing.T) *remedy.Catalog {
	t.Helper()
	c, err := remedy.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	return c
}

func TestDefault_SatisfiesConstraints(t *testing.T) {
	c := defaultCatalog(t)
	wantSizes := map[types.Label]int{
		types.NoStress:     4,
		types.LowStress:    5,
		types.MediumStress: 6,
		types.HighStress:   6,
	}
	for _, lang := range types.Languages {
		for label, want := range wantSizes {
			if got := len(c.Pool(label, lang)); got != want {
				t.Errorf("%s/%s pool = %d, want %d", label, lang, got, want)
			}
		}
		if got := len(c.Fallbacks(lang)); got != remedy.FallbackCount {
			t.Errorf("%s fallbacks = %d, want %d", lang, got, remedy.FallbackCount)
		}
		n, ok := c.Notices(lang)
		if !ok || n.UrgentNote == "" || len(n.EmergencyContacts) != 2 || n.LowConfidence == "" {
			t.Errorf("%s notices incomplete: %+v", lang, n)
		}
	}
}

func TestDefault_IsShared(t *testing.T) {
	a, _ := remedy.Default()
	b, _ := remedy.Default()
	if a != b {
		t.Error("Default must return the same catalog instance")
	}
}

func TestCatalog_AccessorsReturnCopies(t *testing.T) {
	c := defaultCatalog(t)
	pool := c.Pool(types.LowStress, types.English)
	pool[0] = "mutated"
	if c.Pool(types.LowStress, types.English)[0] == "mutated" {
		t.Error("Pool must return a copy")
	}
	fb := c.Fallbacks(types.English)
	_ = append(fb[:0], "x")
	if c.Fallbacks(types.English)[0] == "x" {
		t.Error("Fallbacks must return a copy")
	}
}

const validLangBlock = `
    english: [e1, e2, e3, e4]
    hindi: [h1, h2, h3, h4]`

func catalogYAML(noStress string) string {
	return `
remedies:
  no_stress:` + noStress + `
  low_stress:` + validLangBlock + `
  medium_stress:` + validLangBlock + `
  high_stress:` + validLangBlock + `
fallbacks:
  english: [ef1, ef2]
  hindi: [hf1, hf2]
notices:
  english:
    urgent_note: u
    emergency_contacts: [c]
    low_confidence: l
    prefixes: {high: H, medium: M, low: L}
  hindi:
    urgent_note: u
    emergency_contacts: [c]
    low_confidence: l
    prefixes: {high: H, medium: M, low: L}
`
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "valid", yaml: catalogYAML(validLangBlock)},
		{
			name:    "pool too small",
			yaml:    catalogYAML("\n    english: [e1, e2, e3]\n    hindi: [h1, h2, h3, h4]"),
			wantErr: "need at least 4",
		},
		{
			name:    "duplicate remedy",
			yaml:    catalogYAML("\n    english: [e1, e2, e3, e1]\n    hindi: [h1, h2, h3, h4]"),
			wantErr: "duplicate remedy",
		},
		{
			name:    "unknown language",
			yaml:    catalogYAML(validLangBlock + "\n    german: [g1, g2, g3, g4]"),
			wantErr: "unknown language",
		},
		{
			name:    "wrong fallback count",
			yaml:    strings.Replace(catalogYAML(validLangBlock), "english: [ef1, ef2]", "english: [ef1]", 1),
			wantErr: "need exactly 2",
		},
		{
			name:    "missing prefix",
			yaml:    strings.Replace(catalogYAML(validLangBlock), "{high: H, medium: M, low: L}", "{high: H, medium: M}", 1),
			wantErr: "no prefix",
		},
		{
			name:    "unknown field",
			yaml:    catalogYAML(validLangBlock) + "extra: true\n",
			wantErr: "decode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := remedy.Parse(strings.NewReader(tt.yaml))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Parse: %v", err)
				}
				return
			}
			var ce *stress.ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want *ConfigurationError", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_EmptyPathIsDefault(t *testing.T) {
	c, err := remedy.Load("")
	if err != nil {
		t.Fatal(err)
	}
	if c != defaultCatalog(t) {
		t.Error("Load(\"\") must return the default catalog")
	}
	if _, err := remedy.Load("/does/not/exist.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
