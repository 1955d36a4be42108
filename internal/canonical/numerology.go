package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"palmreader/internal/divination"
	"palmreader/internal/domain"
)

// NumerologyPayload is the raw numerology schema.
type NumerologyPayload struct {
	CoreNumbers   CoreNumbers       `json:"core_numbers"`
	Traits        LegacyTraitList   `json:"traits"`
	Strengths     TextList          `json:"strengths"`
	Challenges    TextList          `json:"challenges"`
	Predictions   PredictionSet     `json:"predictions"`
	LuckyNumbers  IntList           `json:"lucky_numbers"`
	KarmicLessons IntList           `json:"karmic_lessons"`
	Compatibility CompatibilityList `json:"compatibility"`
	Summary       Text              `json:"summary"`
	OverallScore  Percent           `json:"overall_score"`
}

// DecodeNumerology decodes obj into the numerology payload.
func DecodeNumerology(obj map[string]any) (NumerologyPayload, error) {
	var p NumerologyPayload
	if err := redecode(obj, &p); err != nil {
		return NumerologyPayload{}, fmt.Errorf("canonical: decode numerology: %w", err)
	}
	return p, nil
}

type CoreNumbers struct {
	LifePath    CoreNumber `json:"life_path"`
	Destiny     CoreNumber `json:"destiny"`
	Expression  CoreNumber `json:"expression"`
	SoulUrge    CoreNumber `json:"soul_urge"`
	Personality CoreNumber `json:"personality"`
}

func (c *CoreNumbers) UnmarshalJSON(b []byte) error {
	type plain CoreNumbers
	return decodeObject(b, (*plain)(c))
}

// CoreNumber accepts 7, "7" or {"number": 7, "meaning": "..."}.
type CoreNumber struct {
	Number  int
	Meaning Text
}

func (n *CoreNumber) UnmarshalJSON(b []byte) error {
	*n = CoreNumber{}
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var obj struct {
			Number  Text `json:"number"`
			Value   Text `json:"value"`
			Meaning Text `json:"meaning"`
		}
		if err := decodeObject(b, &obj); err != nil {
			return err
		}
		n.Number = atoi(firstKnown(obj.Number, obj.Value))
		n.Meaning = obj.Meaning
		return nil
	}
	var t Text
	_ = t.UnmarshalJSON(b)
	n.Number = atoi(t)
	return nil
}

// IntList accepts numbers or numeric strings and skips anything else.
type IntList []int

func (l *IntList) UnmarshalJSON(b []byte) error {
	*l = IntList{}
	var items []Text
	if err := decodeArray(b, &items); err != nil {
		return nil
	}
	for _, t := range items {
		if n := atoi(t); n > 0 {
			*l = append(*l, n)
		}
	}
	return nil
}

func atoi(t Text) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(t.String()), 64)
	if err != nil {
		return 0
	}
	return int(f)
}

// validCoreNumber reports whether n is 1-9 or a master number.
func validCoreNumber(n int) bool {
	return (n >= 1 && n <= 9) || divination.IsMasterNumber(n)
}

func pickNumber(supplied CoreNumber, fallback int) int {
	if validCoreNumber(supplied.Number) {
		return supplied.Number
	}
	return fallback
}

// numberArchetypes are the traits associated with each life path number.
var numberArchetypes = map[int][]string{
	1: {"Independent", "Pioneering", "Ambitious", "Creative"},
	2: {"Cooperative", "Diplomatic", "Sensitive", "Caring"},
	3: {"Artistic", "Expressive", "Optimistic", "Social"},
	4: {"Practical", "Organized", "Reliable", "Hardworking"},
	5: {"Adventurous", "Freedom-loving", "Curious", "Versatile"},
	6: {"Caring", "Responsible", "Family-oriented", "Healing"},
	7: {"Spiritual", "Analytical", "Introspective", "Wise"},
	8: {"Ambitious", "Business-minded", "Material success", "Power"},
	9: {"Compassionate", "Generous", "Idealistic", "Wise"},
}

var masterArchetype = []string{"Spiritual", "Powerful", "Transformative"}

func archetype(n int) []string {
	if divination.IsMasterNumber(n) {
		return masterArchetype
	}
	return numberArchetypes[n]
}

func hasTrait(set []string, name string) bool {
	for _, s := range set {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// favouredNumbers lists the core numbers that strengthen each prediction area.
var favouredNumbers = map[string][]int{
	AreaCareer:        {1, 4, 8, 22},
	AreaRelationships: {2, 6, 9, 11, 33},
	AreaHealth:        {4, 6, 7},
	AreaFinances:      {1, 4, 8, 22},
}

var numberPredictions = map[string]string{
	AreaCareer:        "Your life path %d favours steady professional growth when you lean on your natural talents.",
	AreaRelationships: "Life path %d brings warmth to close bonds. Honest conversations deepen the connections that matter most.",
	AreaHealth:        "Balance is the key theme for life path %d. Regular rest and movement keep your energy steady.",
	AreaFinances:      "Life path %d rewards patient planning. Consistent saving builds lasting security.",
}

type numberSet struct {
	lifePath, destiny, soul, personality int
}

func (s numberSet) values() []int {
	return []int{s.lifePath, s.destiny, s.soul, s.personality}
}

func (s numberSet) traitScore(name string) (float64, string) {
	score := 60.0
	var factors []string
	if hasTrait(archetype(s.lifePath), name) {
		score += 10
		factors = append(factors, fmt.Sprintf("life path %d", s.lifePath))
	}
	if hasTrait(archetype(s.destiny), name) {
		score += 5
		factors = append(factors, fmt.Sprintf("destiny number %d", s.destiny))
	}
	if hasTrait(archetype(s.soul), name) {
		score += 5
		factors = append(factors, fmt.Sprintf("soul urge %d", s.soul))
	}
	if divination.IsMasterNumber(s.lifePath) {
		score += 5
	}
	score = round1(clamp(score, traitMin, traitMax))
	return score, traitDescription(factors, score, strings.ToLower(name)+" energy")
}

func (s numberSet) confidence(area string) float64 {
	n := 0
	for _, v := range s.values() {
		if containsInt(favouredNumbers[area], v) {
			n++
		}
	}
	return clamp(55+5*float64(n), 50, 90)
}

func luckyNumbers(lifePath int) []int {
	if lifePath == 0 {
		return []int{}
	}
	out := make([]int, 0, 3)
	for _, mult := range []int{1, 2, 3} {
		n := lifePath * mult
		if n > 9 && !divination.IsMasterNumber(n) {
			n = divination.Reduce(n)
		}
		if !containsInt(out, n) {
			out = append(out, n)
		}
	}
	return out
}

func (e *Engine) numerology(p NumerologyPayload, chart *divination.NumerologyChart) *domain.Result {
	var hint divination.NumerologyChart
	if chart != nil {
		hint = *chart
	}
	nums := numberSet{
		lifePath:    pickNumber(p.CoreNumbers.LifePath, hint.LifePath),
		destiny:     pickNumber(p.CoreNumbers.Destiny, pickNumber(p.CoreNumbers.Expression, hint.Name.Destiny)),
		soul:        pickNumber(p.CoreNumbers.SoulUrge, hint.Name.Soul),
		personality: pickNumber(p.CoreNumbers.Personality, hint.Name.Personality),
	}

	var inputs []traitInput
	for _, t := range p.Traits {
		if t.Name.Known() {
			inputs = append(inputs, traitInput{name: t.Name.String(), score: t.score(), description: t.description()})
		}
	}
	if len(inputs) == 0 {
		for _, name := range archetype(nums.lifePath) {
			inputs = append(inputs, traitInput{name: name})
		}
	}
	traits := buildTraits(inputs,
		func(name string) (float64, string, bool) {
			score, why := nums.traitScore(name)
			return score, why, true
		}, nil)

	predictions := buildPredictions(collectPredictions(p.Predictions, nil), predictionRules{
		confidence: nums.confidence,
		text: func(area string) string {
			return fmt.Sprintf(numberPredictions[area], nums.lifePath)
		},
	})

	masters := make([]int, 0, 3)
	var marks []domain.SpecialMark
	positions := []struct {
		label string
		n     int
		cn    CoreNumber
	}{
		{"Life Path", nums.lifePath, p.CoreNumbers.LifePath},
		{"Destiny", nums.destiny, p.CoreNumbers.Destiny},
		{"Soul Urge", nums.soul, p.CoreNumbers.SoulUrge},
		{"Personality", nums.personality, p.CoreNumbers.Personality},
	}
	for _, pos := range positions {
		if !divination.IsMasterNumber(pos.n) {
			continue
		}
		if !containsInt(masters, pos.n) {
			masters = append(masters, pos.n)
		}
		meaning := fmt.Sprintf("Master number %d in your %s carries heightened potential and responsibility.", pos.n, strings.ToLower(pos.label))
		if pos.cn.Number == pos.n && pos.cn.Meaning.Known() {
			meaning = pos.cn.Meaning.String()
		}
		marks = append(marks, domain.SpecialMark{
			Name:         fmt.Sprintf("Master Number %d", pos.n),
			Location:     pos.label,
			Meaning:      meaning,
			Significance: levelHigh,
		})
	}
	lessons := []int(p.KarmicLessons)
	if len(lessons) == 0 {
		lessons = hint.KarmicLessons
	}
	karmic := make([]int, 0, len(lessons))
	for _, n := range lessons {
		if n < 1 || n > 9 || containsInt(karmic, n) {
			continue
		}
		karmic = append(karmic, n)
		marks = append(marks, domain.SpecialMark{
			Name:         fmt.Sprintf("Karmic Lesson %d", n),
			Location:     "Name",
			Meaning:      fmt.Sprintf("The missing %d in your name points to a quality you are here to develop.", n),
			Significance: levelMedium,
		})
	}
	sort.Ints(karmic)

	lucky := []int(p.LuckyNumbers)
	if len(lucky) == 0 {
		lucky = hint.LuckyNumbers
	}
	if len(lucky) == 0 {
		lucky = luckyNumbers(nums.lifePath)
	}

	var compat []domain.Compatibility
	if len(p.Compatibility) > 0 {
		compat = suppliedCompatibility(p.Compatibility, func(category string) compatCell {
			return numberCell(nums.lifePath, nums.destiny, lastNumber(category))
		})
	}
	if len(compat) == 0 {
		compat = e.numberCompatibility(nums.lifePath, nums.destiny)
	}

	overall := overallScore(p.OverallScore, overallInputs{
		traitScores: traitScores(traits),
		marks:       marks,
	})
	summary := p.Summary.String()
	if !p.Summary.Known() {
		summary = fmt.Sprintf("Life path %d shapes this reading. %s", nums.lifePath, overallSummary(overall))
	}
	method := hint.Method
	if method == "" {
		method = "model"
	}
	return &domain.Result{
		Traits:        traits,
		Predictions:   predictions,
		SpecialMarks:  marks,
		Compatibility: compat,
		Accuracy:      accuracyFrom(average(predictionConfidences(predictions), confidenceFloor)),
		Summary:       summary,
		OverallScore:  overall,
		Numerology: &domain.NumerologyProfile{
			LifePath:       nums.lifePath,
			Destiny:        nums.destiny,
			SoulUrge:       nums.soul,
			Personality:    nums.personality,
			MasterNumbers:  masters,
			KarmicLessons:  karmic,
			LuckyNumbers:   lucky,
			CalculationLog: method,
		},
	}
}

// lastNumber extracts the trailing integer from labels like "Life Path 7".
func lastNumber(s string) int {
	fields := strings.Fields(s)
	for i := len(fields) - 1; i >= 0; i-- {
		if n, err := strconv.Atoi(strings.Trim(fields[i], "#.,")); err == nil {
			return n
		}
	}
	return 0
}

// redecode round-trips a generic object into a typed payload.
func redecode(obj map[string]any, v any) error {
	raw, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
