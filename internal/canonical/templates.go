package canonical

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"palmreader/internal/domain"
)

// Canonical prediction areas, in output order.
const (
	AreaCareer        = "career"
	AreaRelationships = "relationships"
	AreaHealth        = "health"
	AreaFinances      = "finances"
)

var predictionAreas = []string{AreaCareer, AreaRelationships, AreaHealth, AreaFinances}

var areaTitles = map[string]string{
	AreaCareer:        "Career",
	AreaRelationships: "Relationships",
	AreaHealth:        "Health",
	AreaFinances:      "Finances",
}

var defaultTimeframes = map[string]string{
	AreaCareer:        "Next 6 months",
	AreaRelationships: "Next 3 months",
	AreaHealth:        "Ongoing",
	AreaFinances:      "Next 1 year",
}

var defaultAdvice = map[string]string{
	AreaCareer:        "Focus on clear goal-setting and leveraging your natural strengths. Network actively and seek opportunities that align with your values.",
	AreaRelationships: "Practice open communication and emotional expression. Invest time in deepening connections with loved ones through shared experiences.",
	AreaHealth:        "Maintain a balanced lifestyle with regular exercise, nutritious diet, and adequate rest. Listen to your body's signals and address any concerns promptly.",
	AreaFinances:      "Create a comprehensive budget and build an emergency fund. Make informed financial decisions and avoid impulsive spending.",
}

// titleCase normalizes a label such as "highly curved" to "Highly Curved".
func titleCase(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ToLower(s))
}

type lineTemplates struct {
	name     string
	strong   string
	moderate string
	faint    string
}

var lineMeanings = map[string]lineTemplates{
	domain.LineLife: {
		name:     "life line",
		strong:   "A strong, well-defined life line indicates robust vitality, excellent health, and a long life with abundant energy.",
		moderate: "A moderate life line suggests good health and vitality with balanced energy levels throughout life.",
		faint:    "A faint life line may indicate developing energy reserves or a need to focus on health and vitality.",
	},
	domain.LineHead: {
		name:     "head line",
		strong:   "A strong head line suggests sharp intellect, clear thinking, and excellent problem-solving abilities.",
		moderate: "A moderate head line indicates balanced thinking, combining logic with creativity in decision-making.",
		faint:    "A faint head line suggests developing mental clarity and the potential for enhanced analytical thinking.",
	},
	domain.LineHeart: {
		name:     "heart line",
		strong:   "A strong heart line indicates deep emotional capacity, strong relationships, and expressive love nature.",
		moderate: "A moderate heart line suggests balanced emotions and healthy relationships with room for emotional growth.",
		faint:    "A faint heart line may indicate reserved emotions or developing emotional awareness and expression.",
	},
	domain.LineFate: {
		name:     "fate line",
		strong:   "A strong fate line indicates a clear sense of purpose and direction in your life path.",
		moderate: "A visible fate line indicates developing career focus and a growing sense of direction.",
		faint:    "A faint fate line suggests a career focus that is still taking shape.",
	},
}

const (
	absentFateMeaning = "The fate line is not clearly visible on this palm, suggesting a flexible, self-directed life and career path with less influence from external circumstances."
	absentFateDetails = "Fate line not detected in this palm scan. This indicates a self-directed approach to career and life choices, with the ability to adapt and create your own path rather than following predetermined patterns."
	noMetricDetails   = "Detailed metrics are not available for this line."
)

func lineMeaning(key, quality string, score float64) string {
	t, ok := lineMeanings[key]
	if !ok {
		return fmt.Sprintf("This line shows %s characteristics.", strings.ToLower(quality))
	}
	switch qualityBand(quality, score) {
	case bandStrong:
		return t.strong
	case bandModerate:
		return t.moderate
	default:
		return t.faint
	}
}

type band int

const (
	bandWeak band = iota
	bandModerate
	bandStrong
)

// qualityBand buckets a quality label, falling back to the score when the
// label carries no strength information.
func qualityBand(quality string, score float64) band {
	switch strings.ToLower(quality) {
	case "strong", "clear", "deep", "present", "long":
		return bandStrong
	case "moderate", "medium", "curved", "straight", "highly curved", "balanced":
		return bandModerate
	case "weak", "faint", "broken", "short", "shallow", "unclear":
		return bandWeak
	}
	switch {
	case score >= 70:
		return bandStrong
	case score >= 50:
		return bandModerate
	}
	return bandWeak
}

var mountNames = map[string]string{
	"venus":   "Venus",
	"jupiter": "Jupiter",
	"saturn":  "Saturn",
	"sun":     "Sun",
	"mercury": "Mercury",
	"moon":    "Moon",
}

var mountThemes = map[string]string{
	"venus":   "love, warmth and vitality",
	"jupiter": "ambition, confidence and leadership",
	"saturn":  "discipline, responsibility and patience",
	"sun":     "creativity, recognition and optimism",
	"mercury": "communication, wit and business sense",
	"moon":    "imagination, intuition and sensitivity",
}

func mountMeaning(key, level string) string {
	theme := mountThemes[key]
	switch level {
	case levelHigh:
		return fmt.Sprintf("A prominent Mount of %s points to strong %s.", mountNames[key], theme)
	case levelLow:
		return fmt.Sprintf("A flat Mount of %s suggests %s are still developing.", mountNames[key], theme)
	}
	return fmt.Sprintf("A balanced Mount of %s indicates steady %s.", mountNames[key], theme)
}

var markMeanings = map[string]string{
	"star":     "A star mark %s indicates exceptional potential and significant positive events in this area of life.",
	"triangle": "A triangle %s suggests protection and positive energy, enhancing the qualities of this area.",
	"cross":    "A cross %s may indicate challenges or important decisions that will shape this aspect of life.",
	"chain":    "Chain marks %s suggest periods of change or transitions in this area.",
	"island":   "An island %s indicates periods of difficulty or energy drain in this aspect of life.",
	"fork":     "A fork %s suggests multiple paths or choices available in this area.",
	"grille":   "Grille patterns %s indicate scattered energy or multiple influences affecting this area.",
	"break":    "A break %s suggests interruption or change in the flow of energy in this aspect.",
}

func markMeaning(name, location string) string {
	loc := strings.ToLower(location)
	if tmpl, ok := markMeanings[markType(name)]; ok {
		return fmt.Sprintf(tmpl, loc)
	}
	return fmt.Sprintf("This %s mark %s has significance in palmistry.", strings.ToLower(name), loc)
}

func traitDescription(factors []string, score float64, noun string) string {
	level := "developing"
	switch {
	case score >= 70:
		level = "strong"
	case score >= 55:
		level = "moderate"
	}
	if len(factors) > 2 {
		factors = factors[:2]
	}
	if len(factors) == 0 {
		return fmt.Sprintf("Your reading suggests %s %s.", level, noun)
	}
	return fmt.Sprintf("%s suggest %s %s.", upperFirst(strings.Join(factors, ", ")), level, noun)
}

func overallSummary(score float64) string {
	pct := int(score)
	switch {
	case score >= 80:
		return fmt.Sprintf("Your reading shows exceptional characteristics with an overall score of %d%%. Strong indicators and positive traits point to a balanced and promising path.", pct)
	case score >= 70:
		return fmt.Sprintf("Your reading reveals strong potential with an overall score of %d%%. Good indicators and balanced traits suggest positive experiences ahead.", pct)
	case score >= 60:
		return fmt.Sprintf("Your reading shows moderate characteristics with an overall score of %d%%. There is room for growth and development in several areas.", pct)
	}
	return fmt.Sprintf("Your reading indicates developing potential with an overall score of %d%%. Focus on personal growth to strengthen your path.", pct)
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
