package canonical

import (
	"strings"

	"palmreader/internal/domain"
)

const defaultMarkLocation = "On palm"

// markAliases folds plural and misspelled mark names onto the template keys.
var markAliases = map[string]string{
	"stars":     "star",
	"triangles": "triangle",
	"crosses":   "cross",
	"chains":    "chain",
	"islands":   "island",
	"forks":     "fork",
	"grill":     "grille",
	"grills":    "grille",
	"grilles":   "grille",
	"grid":      "grille",
	"breaks":    "break",
}

// markType returns the template key for a mark name such as "Star on Jupiter"
// or "Crosses". Unknown names are returned lowercased.
func markType(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	switch {
	case strings.HasPrefix(n, "master number"):
		return "master number"
	case strings.HasPrefix(n, "karmic lesson"):
		return "karmic lesson"
	}
	for _, word := range strings.Fields(n) {
		word = strings.Trim(word, ".,;:()")
		if alias, ok := markAliases[word]; ok {
			return alias
		}
		if _, ok := markMeanings[word]; ok {
			return word
		}
	}
	return n
}

// normalizeLevel maps free-form significance labels onto High/Medium/Low.
func normalizeLevel(t Text) string {
	switch t.Lower() {
	case "high", "strong", "major", "very high", "prominent", "well-developed", "developed":
		return levelHigh
	case "low", "weak", "minor", "flat", "underdeveloped", "faint":
		return levelLow
	case "medium", "moderate", "average", "normal", "balanced":
		return levelMedium
	}
	return levelMedium
}

func buildMarks(raw MarkList) []domain.SpecialMark {
	marks := make([]domain.SpecialMark, 0, len(raw))
	for _, m := range raw {
		name := m.Type
		if !name.Known() {
			name = m.Name
		}
		if !name.Known() {
			continue
		}
		location := defaultMarkLocation
		if m.Location.Known() {
			location = m.Location.String()
		}
		significance := m.ImpactLevel
		if !significance.Known() {
			significance = m.Significance
		}
		meaning := m.Meaning.String()
		if !m.Meaning.Known() {
			meaning = markMeaning(name.String(), location)
		}
		marks = append(marks, domain.SpecialMark{
			Name:         upperFirst(name.String()),
			Location:     location,
			Meaning:      meaning,
			Significance: normalizeLevel(significance),
		})
	}
	return marks
}

// Marks adjustment bounds, applied to the base of 50 in the overall blend.
const (
	marksAdjustmentMin = -10
	marksAdjustmentMax = 15
)

// marksAdjustment sums per-mark bonuses keyed by mark type and significance.
func marksAdjustment(marks []domain.SpecialMark) float64 {
	total := 0.0
	for _, m := range marks {
		switch markType(m.Name) {
		case "star", "triangle", "master number":
			total += byLevel(m.Significance, 8, 5, 2)
		case "fork", "chain":
			if m.Significance == levelHigh {
				total += 3
			} else {
				total++
			}
		case "island", "break", "cross", "grille", "karmic lesson":
			total += byLevel(m.Significance, -5, -3, -1)
		}
	}
	return clamp(total, marksAdjustmentMin, marksAdjustmentMax)
}
