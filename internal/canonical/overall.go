package canonical

import "palmreader/internal/domain"

// Blend weights and defaults for the derived overall score.
const (
	weightLines  = 0.35
	weightTraits = 0.35
	weightMounts = 0.15
	weightMarks  = 0.15

	defaultLineAverage  = 50
	defaultTraitAverage = 50
	defaultMountAverage = 65
	marksBase           = 50

	overallMin = 40
	overallMax = 95
)

type overallInputs struct {
	lineScores  []float64
	traitScores []float64
	mountScores []float64
	marks       []domain.SpecialMark
}

// blendOverall computes the weighted overall score.
func blendOverall(in overallInputs) float64 {
	lines := average(in.lineScores, defaultLineAverage)
	traits := average(in.traitScores, defaultTraitAverage)
	mounts := average(in.mountScores, defaultMountAverage)
	marks := marksBase + marksAdjustment(in.marks)
	score := lines*weightLines + traits*weightTraits + mounts*weightMounts + marks*weightMarks
	return round1(clamp(score, overallMin, overallMax))
}

// overallScore prefers a supplied positive value over the blend.
func overallScore(supplied Percent, in overallInputs) float64 {
	if supplied.Positive() {
		return round1(supplied.Value)
	}
	return blendOverall(in)
}

// accuracyFrom scales a base score into the per-stage accuracy block.
func accuracyFrom(base float64) domain.Accuracy {
	base = clamp(base, 0, 100)
	return domain.Accuracy{
		LineDetection:   float64(int(base)),
		PatternAnalysis: float64(int(base * 0.9)),
		Interpretation:  float64(int(base * 0.85)),
		Overall:         float64(int(base * 0.92)),
	}
}

// mergeAccuracy keeps supplied stage values and derives the rest.
func mergeAccuracy(supplied LegacyAccuracy, base float64) domain.Accuracy {
	acc := accuracyFrom(base)
	pick := func(p Percent, def float64) float64 {
		if p.Positive() {
			return round1(p.Value)
		}
		return def
	}
	acc.LineDetection = pick(supplied.LineDetection, acc.LineDetection)
	acc.PatternAnalysis = pick(supplied.PatternAnalysis, acc.PatternAnalysis)
	acc.Interpretation = pick(supplied.Interpretation, acc.Interpretation)
	acc.Overall = pick(supplied.Overall, acc.Overall)
	return acc
}
