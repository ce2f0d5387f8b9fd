package remedy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/stresslens/internal/stress"
)

const rule = "=================================================="

// Format renders rec as a plain-text assessment report.
func Format(rec stress.Recommendation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", rule)
	b.WriteString("STRESS ASSESSMENT REPORT\n")
	fmt.Fprintf(&b, "Time: %s\n", rec.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "%s\n\n", rule)

	fmt.Fprintf(&b, "Detected Stress Level: %s\n", rec.Label.Title())
	fmt.Fprintf(&b, "Language: %s\n", rec.Language.Title())
	fmt.Fprintf(&b, "Confidence Level: %s\n", rec.Tier)
	fmt.Fprintf(&b, "Combined Confidence: %.2f\n", rec.CombinedConfidence)
	fmt.Fprintf(&b, "Model F1 Score: %.2f\n\n", rec.ModelQuality)

	b.WriteString(rec.Prefix + "\n")
	for i, r := range rec.Remedies {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r)
	}

	if len(rec.AdditionalInfo) > 0 {
		b.WriteString("\nAdditional Information:\n")
		keys := make([]string, 0, len(rec.AdditionalInfo))
		for k := range rec.AdditionalInfo {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, func(a, b string) int {
			if d := infoOrder(a) - infoOrder(b); d != 0 {
				return d
			}
			return strings.Compare(a, b)
		})
		for _, k := range keys {
			switch v := rec.AdditionalInfo[k].(type) {
			case []string:
				fmt.Fprintf(&b, "%s:\n", infoTitle(k))
				for _, item := range v {
					fmt.Fprintf(&b, "  - %s\n", item)
				}
			default:
				fmt.Fprintf(&b, "%s: %v\n", infoTitle(k), v)
			}
		}
	}

	fmt.Fprintf(&b, "\n%s\n", rule)
	return b.String()
}

func infoOrder(key string) int {
	switch key {
	case InfoUrgentNote:
		return 0
	case InfoEmergencyContacts:
		return 1
	case InfoNote:
		return 2
	default:
		return 3
	}
}

// infoTitle turns "urgent_note" into "Urgent Note".
func infoTitle(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
