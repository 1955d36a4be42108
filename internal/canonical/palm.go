package canonical

import (
	"fmt"
	"strings"

	"palmreader/internal/domain"
)

// mountOrder is the reporting order of palm mounts.
var mountOrder = []string{"venus", "jupiter", "saturn", "sun", "mercury", "moon"}

var mountLevelScores = map[string]float64{levelHigh: 85, levelMedium: 65, levelLow: 45}

var handShapeNotes = map[string]string{
	"square": "a practical and dependable nature",
	"earth":  "a grounded, patient temperament",
	"fire":   "energy and drive",
	"water":  "sensitivity and strong intuition",
	"air":    "curiosity and a quick, communicative mind",
	"round":  "warmth and an adaptable outlook",
}

type mountInput struct {
	level   string
	meaning Text
}

// palmFeatures is the variant-independent view both raw palm schemas are
// lowered into before the result is built.
type palmFeatures struct {
	lines        map[string]lineInput
	dominant     Text
	palmShape    Text
	fingerLength Text
	handType     Text
	analysis     Text
	mounts       map[string]mountInput
	traits       []traitInput
	predictions  predictionInputs
	marks        MarkList
	compat       CompatibilityList
	overall      Percent
	summary      Text
	accuracy     LegacyAccuracy
}

func (f *palmFeatures) shape() string {
	if f.palmShape.Known() {
		return titleCase(f.palmShape.String())
	}
	return "Square"
}

func (f *palmFeatures) finger() string {
	if f.fingerLength.Known() {
		return titleCase(f.fingerLength.String())
	}
	return "Medium"
}

func (f *palmFeatures) dominantHand() string {
	if f.dominant.Known() {
		return titleCase(f.dominant.String())
	}
	return "Right"
}

// mount returns the development level of a mount, Medium when undetected.
func (f *palmFeatures) mount(key string) string {
	if m, ok := f.mounts[key]; ok {
		return m.level
	}
	return levelMedium
}

// lineLabel returns the lowercased metric label for a line when metric is
// supplied and known, otherwise the line's strength label.
func (f *palmFeatures) lineLabel(key, metric string) string {
	in := f.lines[key]
	if metric != "" {
		if v := in.metrics.value(metric); v.Known() {
			return v.Lower()
		}
	}
	return in.strength.Lower()
}

func mountKey(raw string) string {
	k := strings.ToLower(strings.TrimSpace(raw))
	k = strings.NewReplacer("mount_of_", "", "mount of ", "", "_mount", "", " mount", "").Replace(k)
	if k == "apollo" {
		return "sun"
	}
	if _, ok := mountNames[k]; ok {
		return k
	}
	return ""
}

func lowerMounts(sets ...MountSet) map[string]mountInput {
	out := make(map[string]mountInput, len(mountOrder))
	for _, set := range sets {
		for raw, v := range set {
			key := mountKey(raw)
			if key == "" {
				continue
			}
			if _, seen := out[key]; seen {
				continue
			}
			level := v.level()
			if !level.Known() {
				continue
			}
			out[key] = mountInput{level: normalizeLevel(level), meaning: v.Meaning}
		}
	}
	return out
}

func lowerPalm(p PalmPayload) *palmFeatures {
	if p.Variant == PalmStructured && p.Structured != nil {
		return lowerStructured(p.Structured)
	}
	if p.Legacy == nil {
		return lowerLegacy(&LegacyPalm{})
	}
	return lowerLegacy(p.Legacy)
}

func lowerStructured(s *StructuredPalm) *palmFeatures {
	f := &palmFeatures{
		lines:        make(map[string]lineInput, len(lineOrder)),
		dominant:     firstKnown(s.Physical.DominantHand, s.Personality.DominantHand),
		palmShape:    firstKnown(s.Physical.PalmShape, s.Personality.PalmShape),
		fingerLength: firstKnown(s.Physical.FingerLength, s.Personality.FingerLength),
		handType:     firstKnown(s.Physical.HandType, s.Personality.HandType),
		analysis:     firstKnown(s.Physical.HandTypeSummary, s.Physical.HandTypeDesc, s.Personality.HandTypeAnalysis),
		mounts:       lowerMounts(s.Physical.Mounts, s.Personality.Mounts),
		predictions:  collectPredictions(s.Predictions, nil),
		marks:        s.SpecialMarks,
		overall:      s.HandAnalysis.OverallScore,
		summary:      s.HandAnalysis.Summary,
	}
	for raw, l := range s.PalmLines {
		key := lineKey(raw)
		if key == "" {
			continue
		}
		f.lines[key] = lineInput{
			supplied:       true,
			strength:       strengthLabel(l.Strength, l.Type),
			score:          l.QualityScore,
			calculated:     l.Metrics.CalculatedScore,
			interpretation: l.Interpretation,
			metrics:        l.Metrics,
		}
	}
	for _, k := range structuredTraitKeys {
		t, ok := s.PersonalityTraits[k.key]
		if !ok {
			continue
		}
		score := t.Percentage
		if !score.Set {
			score = t.Score
		}
		in := traitInput{name: k.name, score: score}
		if t.Calculation.Known() {
			in.description = t.Calculation.String()
		}
		f.traits = append(f.traits, in)
	}
	if len(f.traits) == 0 {
		f.traits = legacyTraits(s.Personality)
	}
	return f
}

func lowerLegacy(l *LegacyPalm) *palmFeatures {
	p := l.Personality
	f := &palmFeatures{
		lines:        make(map[string]lineInput, len(lineOrder)),
		dominant:     p.DominantHand,
		palmShape:    p.PalmShape,
		fingerLength: p.FingerLength,
		handType:     p.HandType,
		analysis:     p.HandTypeAnalysis,
		mounts:       lowerMounts(p.Mounts),
		traits:       legacyTraits(p),
		predictions:  collectPredictions(nil, l.Predictions),
		marks:        l.SpecialMarks,
		compat:       l.Compatibility,
		overall:      l.OverallScore,
		summary:      l.Summary,
		accuracy:     l.Accuracy,
	}
	for raw, line := range l.Lines {
		key := lineKey(raw)
		if key == "" {
			continue
		}
		f.lines[key] = lineInput{
			supplied:       true,
			strength:       strengthLabel(line.Quality, line.Strength),
			score:          line.Score,
			interpretation: line.Meaning,
			details:        line.Details,
		}
	}
	return f
}

// legacyTraits reads personality.traits, or the per-trait keys when the list
// is empty.
func legacyTraits(p LegacyPersonality) []traitInput {
	var out []traitInput
	for _, t := range p.Traits {
		if !t.Name.Known() {
			continue
		}
		out = append(out, traitInput{name: t.Name.String(), score: t.score(), description: t.description()})
	}
	if len(out) > 0 {
		return out
	}
	for _, key := range legacyNamedTraits {
		t, ok := p.Named[key]
		if !ok {
			continue
		}
		out = append(out, traitInput{name: key, score: t.score(), description: t.description()})
	}
	return out
}

func firstKnown(values ...Text) Text {
	for _, v := range values {
		if v.Known() {
			return v
		}
	}
	return ""
}

// strengthLabel is firstKnown that also keeps absence labels such as "None",
// which Known treats as placeholders.
func strengthLabel(values ...Text) Text {
	for _, v := range values {
		if v.Known() || absentLabels[v.Lower()] {
			return v
		}
	}
	return ""
}

// buildMounts reports all six mounts and the scores of the detected ones.
func buildMounts(f *palmFeatures) (map[string]domain.Mount, []float64) {
	mounts := make(map[string]domain.Mount, len(mountOrder))
	scores := make([]float64, 0, len(f.mounts))
	for _, key := range mountOrder {
		in, detected := f.mounts[key]
		level := levelMedium
		if detected {
			level = in.level
		}
		score := mountLevelScores[level]
		meaning := mountMeaning(key, level)
		if detected && in.meaning.Known() {
			meaning = in.meaning.String()
		}
		mounts[key] = domain.Mount{Development: level, Score: score, Meaning: meaning}
		if detected {
			scores = append(scores, score)
		}
	}
	return mounts, scores
}

func handProfile(f *palmFeatures, lineAvg float64) domain.HandProfile {
	shape, finger := f.shape(), f.finger()
	handType := f.handType.String()
	if !f.handType.Known() {
		handType = fmt.Sprintf("%s hand with %s fingers", shape, strings.ToLower(finger))
	}
	analysis := f.analysis.String()
	if !f.analysis.Known() {
		note := handShapeNotes[strings.ToLower(shape)]
		if note == "" {
			note = "a balanced character"
		}
		analysis = fmt.Sprintf("Your %s palm with %s fingers reflects %s. Average line quality is %d%%.",
			strings.ToLower(shape), strings.ToLower(finger), note, int(lineAvg))
	}
	return domain.HandProfile{
		DominantHand: f.dominantHand(),
		PalmShape:    shape,
		FingerLength: finger,
		HandType:     handType,
		Analysis:     analysis,
	}
}

func (e *Engine) palm(p PalmPayload) *domain.Result {
	f := lowerPalm(p)
	lines, lineScores := buildLines(f.lines)
	lineAvg := average(lineScores, defaultLineAverage)
	mounts, mountScores := buildMounts(f)

	traits := buildTraits(f.traits,
		func(name string) (float64, string, bool) { return deriveTrait(name, f) },
		func(string) float64 { return 35 + lineAvg*0.5 },
	)
	predictions := buildPredictions(f.predictions, predictionRules{
		confidence: func(area string) float64 { return palmConfidence(f, lines, area) },
		text:       func(area string) string { return palmPrediction(f, area) },
	})
	marks := buildMarks(f.marks)

	var compat []domain.Compatibility
	if len(f.compat) > 0 {
		shape := f.shape()
		compat = suppliedCompatibility(f.compat, func(category string) compatCell {
			return palmCell(shape, titleCase(category))
		})
	}
	if len(compat) == 0 {
		compat = e.palmCompatibility(f.shape(), f.finger())
	}

	overall := overallScore(f.overall, overallInputs{
		lineScores:  lineScores,
		traitScores: traitScores(traits),
		mountScores: mountScores,
		marks:       marks,
	})
	summary := f.summary.String()
	if !f.summary.Known() {
		summary = overallSummary(overall)
	}
	return &domain.Result{
		Lines:         lines,
		Traits:        traits,
		Predictions:   predictions,
		SpecialMarks:  marks,
		Compatibility: compat,
		Mounts:        mounts,
		Hand:          handProfile(f, lineAvg),
		Accuracy:      mergeAccuracy(f.accuracy, average(lineScores, 0)),
		Summary:       summary,
		OverallScore:  overall,
	}
}
