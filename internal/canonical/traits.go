package canonical

import (
	"strings"

	"palmreader/internal/domain"
)

const (
	levelHigh   = "High"
	levelMedium = "Medium"
	levelLow    = "Low"
)

// Derived trait scores are kept inside this band.
const (
	traitMin = 35
	traitMax = 95
)

// Each individual bonus or penalty applied to a derived trait is bounded.
const (
	bonusMin = -10
	bonusMax = 15
)

// defaultTraits are produced when a reading carries no trait data at all.
var defaultTraits = []string{"Leadership", "Creativity", "Intuition", "Communication", "Determination"}

// structuredTraitKeys maps personality_traits keys to display names, in order.
var structuredTraitKeys = []struct{ key, name string }{
	{"creative", "Creativity"},
	{"analytical", "Analytical"},
	{"emotional", "Emotional"},
	{"leadership", "Leadership"},
	{"practical", "Practical"},
	{"intuitive", "Intuition"},
}

var traitAliases = map[string]string{
	"creative":   "creativity",
	"intuitive":  "intuition",
	"analysis":   "analytical",
	"emotion":    "emotional",
	"leader":     "leadership",
	"determined": "determination",
}

type traitInput struct {
	name        string
	score       Percent
	description string
}

type traitCalc struct {
	score   float64
	factors []string
}

func (c *traitCalc) base(score float64, factor string) {
	c.score = score
	if factor != "" {
		c.factors = append(c.factors, factor)
	}
}

func (c *traitCalc) add(bonus float64, factor string) {
	c.score += clamp(bonus, bonusMin, bonusMax)
	if factor != "" {
		c.factors = append(c.factors, factor)
	}
}

func (c traitCalc) final() float64 {
	return round1(clamp(c.score, traitMin, traitMax))
}

func byLevel(level string, high, medium, low float64) float64 {
	switch level {
	case levelHigh:
		return high
	case levelLow:
		return low
	}
	return medium
}

func mountFactor(level, mount string) string {
	switch level {
	case levelHigh:
		return "prominent " + mount + " mount"
	case levelLow:
		return "low " + mount + " mount"
	}
	return "moderate " + mount + " mount"
}

// deriveTrait computes a palm trait from mounts, hand shape and lines. The
// second result is false for trait names with no formula.
func deriveTrait(name string, f *palmFeatures) (float64, string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := traitAliases[key]; ok {
		key = alias
	}
	shape := strings.ToLower(f.shape())
	finger := strings.ToLower(f.finger())
	var c traitCalc
	var noun string

	switch key {
	case "leadership":
		noun = "leadership qualities"
		jupiter := f.mount("jupiter")
		c.base(byLevel(jupiter, 85, 60, 45), mountFactor(jupiter, "Jupiter"))
		switch shape {
		case "fire", "square":
			c.add(8, "strong palm structure")
		case "water":
			c.add(-5, "")
		}
		switch finger {
		case "long":
			c.add(5, "long fingers")
		case "short":
			c.add(-3, "")
		}
	case "creativity":
		noun = "creative potential"
		head := f.lineLabel(domain.LineHead, "curvature")
		switch head {
		case "curved", "highly curved":
			c.base(75, "curved head line")
		case "straight":
			c.base(55, "straight head line")
		default:
			c.base(45, "developing head line")
		}
		moon := f.mount("moon")
		c.add(byLevel(moon, 15, 8, -5), mountFactor(moon, "Moon"))
		if shape == "fire" || shape == "air" {
			c.add(5, "")
		}
	case "intuition":
		noun = "intuitive abilities"
		moon := f.mount("moon")
		c.base(byLevel(moon, 80, 60, 45), mountFactor(moon, "Moon"))
		switch f.lineLabel(domain.LineHeart, "") {
		case "curved":
			c.add(10, "curved heart line")
		case "weak", "faint":
			c.add(-10, "weak heart line")
		}
		if shape == "water" || shape == "round" {
			c.add(8, "")
		}
	case "communication":
		noun = "communication skills"
		mercury := f.mount("mercury")
		c.base(byLevel(mercury, 75, 60, 45), mountFactor(mercury, "Mercury"))
		switch f.lineLabel(domain.LineHeart, "") {
		case "strong":
			c.add(12, "strong heart line")
		case "weak", "faint":
			c.add(-8, "weak heart line")
		}
		switch finger {
		case "long":
			c.add(8, "")
		case "short":
			c.add(-5, "")
		}
		if shape == "air" {
			c.add(10, "")
		}
	case "determination":
		noun = "determination and focus"
		switch f.lineLabel(domain.LineFate, "") {
		case "present", "strong", "clear":
			c.base(75, "present fate line")
		case "weak", "faint", "moderate":
			c.base(55, "weak fate line")
		default:
			c.base(40, "absent fate line")
		}
		saturn := f.mount("saturn")
		c.add(byLevel(saturn, 15, 8, -5), mountFactor(saturn, "Saturn"))
		switch f.lineLabel(domain.LineLife, "") {
		case "strong":
			c.add(10, "strong life line")
		case "weak", "faint", "broken":
			c.add(-10, "weak life line")
		}
	case "analytical":
		noun = "analytical thinking"
		switch f.lineLabel(domain.LineHead, "clarity") {
		case "deep", "clear", "strong":
			c.base(75, "clear head line")
		case "moderate", "medium":
			c.base(60, "moderate head line")
		default:
			c.base(45, "faint head line")
		}
		switch shape {
		case "square", "earth":
			c.add(8, "square palm")
		case "air":
			c.add(5, "")
		}
		switch finger {
		case "long":
			c.add(8, "long fingers")
		case "short":
			c.add(-3, "")
		}
	case "emotional":
		noun = "emotional depth"
		switch f.lineLabel(domain.LineHeart, "depth") {
		case "deep", "strong":
			c.base(75, "deep heart line")
		case "moderate", "medium":
			c.base(60, "moderate heart line")
		default:
			c.base(45, "shallow heart line")
		}
		venus := f.mount("venus")
		c.add(byLevel(venus, 12, 5, -5), mountFactor(venus, "Venus"))
		if shape == "water" {
			c.add(8, "")
		}
	case "practical":
		noun = "practical sense"
		switch shape {
		case "square", "earth":
			c.base(75, "square palm")
		case "fire":
			c.base(60, "fire palm")
		default:
			c.base(50, "")
		}
		saturn := f.mount("saturn")
		c.add(byLevel(saturn, 10, 5, -3), mountFactor(saturn, "Saturn"))
		if finger == "short" {
			c.add(5, "short fingers")
		}
	default:
		return 0, "", false
	}
	score := c.final()
	return score, traitDescription(c.factors, score, noun), true
}

// buildTraits keeps supplied scores, derives missing ones, and falls back to
// the default trait set when nothing was supplied.
func buildTraits(inputs []traitInput, derive func(name string) (float64, string, bool), fallback func(name string) float64) []domain.Trait {
	if len(inputs) == 0 {
		inputs = make([]traitInput, 0, len(defaultTraits))
		for _, name := range defaultTraits {
			inputs = append(inputs, traitInput{name: name})
		}
	}
	traits := make([]domain.Trait, 0, len(inputs))
	for _, in := range inputs {
		name := titleCase(in.name)
		if name == "" {
			continue
		}
		score := round1(in.score.Value)
		description := in.description
		if !in.score.Positive() {
			derived, why, ok := derive(name)
			if !ok {
				base := 60.0
				if fallback != nil {
					base = fallback(name)
				}
				derived = round1(clamp(base, traitMin, traitMax))
				why = traitDescription(nil, derived, strings.ToLower(name))
			}
			score = derived
			if description == "" {
				description = why
			}
		}
		if description == "" {
			description = "Derived from reading analysis: " + strings.ToLower(name)
		}
		traits = append(traits, domain.Trait{Name: name, Score: score, Description: description})
	}
	return traits
}

func traitScores(traits []domain.Trait) []float64 {
	scores := make([]float64, 0, len(traits))
	for _, t := range traits {
		if t.Score > 0 {
			scores = append(scores, t.Score)
		}
	}
	return scores
}
