package canonical

import (
	"fmt"
	"strings"

	"palmreader/internal/domain"
)

// lineOrder is the averaging and reporting order of palm lines.
var lineOrder = []string{domain.LineLife, domain.LineHead, domain.LineHeart, domain.LineFate}

// lineKey maps raw line keys such as "life_line", "lifeLine" or "Life" onto
// the canonical keys. Unknown keys return "".
func lineKey(raw string) string {
	k := strings.ToLower(strings.TrimSpace(raw))
	k = strings.NewReplacer("_", "", "-", "", " ", "").Replace(k)
	k = strings.TrimSuffix(k, "line")
	switch k {
	case "life":
		return domain.LineLife
	case "heart":
		return domain.LineHeart
	case "head":
		return domain.LineHead
	case "fate", "destiny", "saturn":
		return domain.LineFate
	}
	return ""
}

// Metric label values on the 0-100 scale. "breaks" shares the continuity table.
var metricValues = map[string]map[string]float64{
	"clarity": {
		"deep": 90, "clear": 90, "moderate": 70, "medium": 70, "faint": 45, "unclear": 30,
	},
	"length": {
		"full": 90, "long": 90, "partial": 65, "medium": 65, "short": 45,
	},
	"depth": {
		"deep": 90, "moderate": 70, "medium": 70, "shallow": 45,
	},
	"continuity": {
		"unbroken": 90, "none": 90, "minor": 65, "minor breaks": 65, "major": 40, "major breaks": 40,
	},
	"curvature": {
		"straight": 75, "curved": 85, "highly curved": 70,
	},
}

// Per-line score formulas: the mean of the listed metrics that were supplied.
var lineFormulas = map[string][]string{
	domain.LineLife:  {"clarity", "length", "depth", "breaks"},
	domain.LineHeart: {"clarity", "depth", "continuity"},
	domain.LineHead:  {"clarity", "depth", "continuity", "curvature"},
	domain.LineFate:  {"clarity", "depth"},
}

var metricLabels = map[string]string{
	"clarity":    "Line clarity",
	"length":     "length",
	"depth":      "depth",
	"breaks":     "breaks",
	"continuity": "continuity",
	"curvature":  "curvature",
}

// Score used when a line offers nothing but a strength label.
var strengthDefaults = map[string]float64{
	"strong": 80, "clear": 80, "deep": 80,
	"present": 70, "curved": 70,
	"straight": 65,
	"moderate": 60, "medium": 60, "balanced": 60, "highly curved": 60,
	"weak": 40, "broken": 40,
	"faint": 35,
}

const unknownStrengthScore = 55

var absentLabels = map[string]bool{"absent": true, "none": true, "not present": true, "no": true, "missing": true}

// lineInput is one palm line lowered from either raw schema.
type lineInput struct {
	supplied       bool
	strength       Text
	score          Percent
	calculated     Percent
	interpretation Text
	details        Text
	metrics        LineMetrics
}

func (m LineMetrics) value(name string) Text {
	switch name {
	case "present":
		return m.Present
	case "clarity":
		return m.Clarity
	case "length":
		return m.Length
	case "depth":
		return m.Depth
	case "breaks":
		return m.Breaks
	case "continuity":
		return m.Continuity
	case "curvature":
		return m.Curvature
	}
	return ""
}

func metricScore(name string, label Text) (float64, bool) {
	table := name
	if name == "breaks" {
		table = "continuity"
	}
	v, ok := metricValues[table][label.Lower()]
	return v, ok
}

// formulaScore averages the recognized metrics for a line.
func formulaScore(key string, m LineMetrics) (float64, bool) {
	var values []float64
	for _, name := range lineFormulas[key] {
		if v, ok := metricScore(name, m.value(name)); ok {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return 0, false
	}
	return average(values, 0), true
}

// lineScore applies the precedence: supplied quality score, the model's
// calculated score, the metric formula, then the strength label default.
func lineScore(key string, in lineInput) float64 {
	if in.score.Positive() {
		return in.score.Value
	}
	if in.calculated.Positive() {
		return in.calculated.Value
	}
	if v, ok := formulaScore(key, in.metrics); ok {
		return v
	}
	if v, ok := strengthDefaults[in.strength.Lower()]; ok {
		return v
	}
	return unknownStrengthScore
}

// inferQuality picks a quality label from metrics, then from the score.
func inferQuality(m LineMetrics, score float64) string {
	clarity, depth := m.Clarity.Lower(), m.Depth.Lower()
	switch {
	case clarity == "deep" || clarity == "clear" || depth == "deep":
		return "Strong"
	case clarity == "moderate" || clarity == "medium" || depth == "moderate":
		return "Moderate"
	case clarity == "faint" || clarity == "unclear" || depth == "shallow":
		return "Faint"
	}
	switch {
	case score >= 70:
		return "Strong"
	case score >= 50:
		return "Moderate"
	}
	return "Weak"
}

func fateAbsent(in lineInput) bool {
	if !in.supplied {
		return true
	}
	if in.metrics.Present.Lower() == "no" {
		return true
	}
	return absentLabels[in.strength.Lower()]
}

// buildLine produces the canonical line and reports whether it counts toward
// line averages.
func buildLine(key string, in lineInput) (domain.Line, bool) {
	if key == domain.LineFate && fateAbsent(in) {
		meaning := absentFateMeaning
		if in.interpretation.Known() {
			meaning = in.interpretation.String()
		}
		return domain.Line{
			Quality: domain.QualityAbsent,
			Score:   0,
			Meaning: meaning,
			Details: absentFateDetails,
		}, false
	}

	score := round1(clamp(lineScore(key, in), 0, 100))
	quality := titleCase(in.strength.String())
	// Only the fate line may be reported absent.
	if !in.strength.Known() || absentLabels[in.strength.Lower()] {
		quality = inferQuality(in.metrics, score)
	}

	meaning := in.interpretation.String()
	if !in.interpretation.Known() {
		meaning = lineMeaning(key, quality, score)
	}
	details := in.details.String()
	if !in.details.Known() {
		details = lineDetails(key, in, quality, score)
	}
	return domain.Line{Quality: quality, Score: score, Meaning: meaning, Details: details}, score > 0
}

func lineDetails(key string, in lineInput, quality string, score float64) string {
	var parts []string
	for _, name := range lineFormulas[key] {
		v := in.metrics.value(name)
		if !v.Known() {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", metricLabels[name], v))
	}
	if in.calculated.Positive() {
		parts = append(parts, fmt.Sprintf("calculated score: %d%%", int(in.calculated.Value)))
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	if !in.supplied {
		return noMetricDetails
	}
	return fmt.Sprintf("Quality analysis based on %s line characteristics with %d%% overall quality score.", strings.ToLower(quality), int(score))
}

// buildLines returns all four canonical lines plus the scores that count
// toward averages, in lineOrder.
func buildLines(inputs map[string]lineInput) (map[string]domain.Line, []float64) {
	lines := make(map[string]domain.Line, len(lineOrder))
	scores := make([]float64, 0, len(lineOrder))
	for _, key := range lineOrder {
		line, counted := buildLine(key, inputs[key])
		lines[key] = line
		if counted {
			scores = append(scores, line.Score)
		}
	}
	return lines, scores
}
